package scrape

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare 403 ray", 403, http.Header{"Cf-Ray": {"abc123"}}, "", BlockCloudflare},
		{"cloudflare 503 server", 503, http.Header{"Server": {"cloudflare"}}, "", BlockCloudflare},
		{"challenge body", 200, http.Header{}, "<p>Checking your browser before accessing</p>", BlockCloudflare},
		{"captcha body", 200, http.Header{}, "<p>Please complete the reCAPTCHA to continue</p>", BlockCaptcha},
		{"too many requests", 429, http.Header{}, "slow down", BlockRateLimited},
		{"js shell", 200, http.Header{}, "<html><noscript>Please enable JavaScript to continue</noscript></html>", BlockJSShell},
		{"meta refresh", 200, http.Header{}, `<meta http-equiv="refresh" content="0;url=/x">`, BlockJSShell},
		{"clean page", 200, http.Header{}, "<html><body>Best tacos in Charleston, find us downtown.</body></html>", BlockNone},
		{"plain 403", 403, http.Header{}, "forbidden", BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.status, Header: tt.header}
			blocked, bt := DetectBlock(resp, []byte(tt.body))
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, bt)
		})
	}
}

func TestDetectBlock_NilResponse(t *testing.T) {
	blocked, bt := DetectBlock(nil, nil)
	assert.False(t, blocked)
	assert.Equal(t, BlockNone, bt)
}
