package extract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/resilience"
	"github.com/sells-group/foodtruck-cli/pkg/anthropic"
	anthropicmocks "github.com/sells-group/foodtruck-cli/pkg/anthropic/mocks"
)

type fakeUsage struct {
	mu         sync.Mutex
	reserveErr error
	reserved   int
	tokens     []int64
}

func (f *fakeUsage) Reserve(_ context.Context, _ string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return f.reserveErr
	}
	f.reserved++
	return nil
}

func (f *fakeUsage) Record(_ context.Context, _ string, tokens int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, tokens)
	return nil
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 900, OutputTokens: 100},
	}
}

func newTestClient(llm anthropic.Client, usage Usage) *Client {
	return NewClient(llm, usage, config.AnthropicConfig{Model: "test-model"},
		WithRetry(resilience.RetryConfig{
			MaxAttempts: 3,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		}))
}

func TestExtract_FullExtractionRepairsOutput(t *testing.T) {
	llm := anthropicmocks.NewMockClient(t)
	llm.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "test-model" &&
			req.Temperature != nil && *req.Temperature == 0 &&
			strings.Contains(req.Messages[0].Content, "https://tacotruck.example")
	})).Return(textResponse(`{"name": "Taco Truck" "cuisine": "Mexican"}`), nil).Once()

	usage := &fakeUsage{}
	res := newTestClient(llm, usage).FullExtraction(context.Background(), "# Taco Truck\nMexican street food", "https://tacotruck.example")

	require.Equal(t, StatusOK, res.Status, res.Error)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 3, res.ParseAttempts)
	full := res.Data.(FullExtractionPayload)
	assert.Equal(t, "Taco Truck", full.Name)
	assert.Equal(t, []string{"Mexican"}, full.CuisineType)
	assert.Equal(t, 1, usage.reserved)
	assert.Equal(t, []int64{1000}, usage.tokens)
	assert.NoError(t, res.Err())
}

func TestExtract_NotConfigured(t *testing.T) {
	res := NewClient(nil, &fakeUsage{}, config.AnthropicConfig{}).Extract(context.Background(), KindMenu, "tacos $3")
	assert.Equal(t, StatusConfigError, res.Status)
	assert.Zero(t, res.Attempts)
	assert.Error(t, res.Err())
}

func TestExtract_RateLimitedMakesNoCall(t *testing.T) {
	llm := anthropicmocks.NewMockClient(t)
	usage := &fakeUsage{reserveErr: eris.Wrap(monitoring.ErrLimitExceeded, "anthropic: 1500/1500 requests")}

	res := newTestClient(llm, usage).Extract(context.Background(), KindMenu, "tacos $3")
	assert.Equal(t, StatusRateLimited, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.ErrorIs(t, res.Err(), monitoring.ErrLimitExceeded)
	llm.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestExtract_RetriesTransientAndMetersEachAttempt(t *testing.T) {
	llm := anthropicmocks.NewMockClient(t)
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("overloaded"), 529)).Once()
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"score": 0.9, "confidence": 0.8, "summary": "Great"}`), nil).Once()

	usage := &fakeUsage{}
	res := newTestClient(llm, usage).Extract(context.Background(), KindSentiment, "Best tacos in town!")

	require.Equal(t, StatusOK, res.Status, res.Error)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, usage.reserved)
	require.Len(t, usage.tokens, 2)
	assert.Positive(t, usage.tokens[0])
	assert.Equal(t, int64(1000), usage.tokens[1])
	assert.Equal(t, 0.9, res.Data.(SentimentPayload).Score)
}

func TestExtract_PermanentErrorNotRetried(t *testing.T) {
	llm := anthropicmocks.NewMockClient(t)
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("anthropic: create message: 400 invalid request")).Once()

	res := newTestClient(llm, &fakeUsage{}).Extract(context.Background(), KindHours, "Mon-Fri 11-2")
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.Error, "invalid request")
}

func TestExtract_ParseError(t *testing.T) {
	llm := anthropicmocks.NewMockClient(t)
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("Sorry, I can't help with that."), nil).Once()

	res := newTestClient(llm, &fakeUsage{}).Extract(context.Background(), KindLocation, "somewhere")
	assert.Equal(t, StatusParseError, res.Status)
	assert.Nil(t, res.Data)
	assert.Equal(t, "Sorry, I can't help with that.", res.Raw)
}

func TestExtract_ValidationFailureIsParseError(t *testing.T) {
	llm := anthropicmocks.NewMockClient(t)
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"score": 9}`), nil).Once()

	res := newTestClient(llm, &fakeUsage{}).Extract(context.Background(), KindSentiment, "ok")
	assert.Equal(t, StatusParseError, res.Status)
	assert.Contains(t, res.Error, "out of range")
}

func TestExtract_UnknownKind(t *testing.T) {
	llm := anthropicmocks.NewMockClient(t)
	res := newTestClient(llm, &fakeUsage{}).Extract(context.Background(), Kind("recipes"), "x")
	assert.Equal(t, StatusFailed, res.Status)
}

func TestBuildPrompt(t *testing.T) {
	for _, k := range Kinds {
		p, err := BuildPrompt(k, `{"name":"Taco Truck"}`, "https://tacotruck.example")
		require.NoError(t, err, k)
		assert.NotEmpty(t, p)
	}

	p, err := BuildPrompt(KindFullExtraction, "content", "https://tacotruck.example")
	require.NoError(t, err)
	assert.Contains(t, p, "Source URL: https://tacotruck.example")

	p, err = BuildPrompt(KindMenu, strings.Repeat("x", maxInputChars+100), "")
	require.NoError(t, err)
	assert.Less(t, len(p), maxInputChars+1000)

	_, ok := ParseKind("fullExtraction")
	assert.True(t, ok)
	_, ok = ParseKind("bogus")
	assert.False(t, ok)
}
