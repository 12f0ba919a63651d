package discovery

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns cover pages that list or describe trucks rather
// than belong to one.
var defaultExcludePatterns = []string{
	"/blog/*",
	"/news/*",
	"/events/*",
	"/event/*",
	"/calendar/*",
	"/reviews/*",
	"/review/*",
	"/directory/*",
	"/*.pdf",
}

// PathMatcher filters URLs by glob-style path patterns. A pattern ending
// in "/*" also matches deeper paths, so "/blog/*" matches "/blog/a/b".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns such as
// "/events/*" or "/*.pdf". No patterns means the defaults.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	lower := make([]string, len(patterns))
	for i, p := range patterns {
		lower[i] = strings.ToLower(p)
	}
	return &PathMatcher{patterns: lower}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded reports whether rawURL's path matches any pattern.
// Unparseable URLs are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(pattern, p) {
			return true
		}
	}
	return false
}

func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		return urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/")
	}
	return false
}
