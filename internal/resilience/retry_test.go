package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	state, err := Do(context.Background(), RetryConfig{Sleep: noSleep}, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, state.Attempt)
}

func TestDo_RetriesTransient(t *testing.T) {
	var delays []time.Duration
	cfg := RetryConfig{
		MaxAttempts: 3,
		Backoff:     Backoff{Base: time.Second, Max: time.Minute, Multiplier: 2},
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	calls := 0
	state, err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, state.Attempt)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestDo_Exhausts(t *testing.T) {
	var retries []int
	cfg := RetryConfig{
		MaxAttempts: 3,
		Sleep:       noSleep,
		OnRetry:     func(s RetryState) { retries = append(retries, s.Attempt) },
	}
	state, err := Do(context.Background(), cfg, func(context.Context) error {
		return NewTransientError(errors.New("down"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 3, state.Attempt)
	assert.Equal(t, []int{1, 2}, retries)
	assert.ErrorContains(t, state.LastErr, "down")
}

func TestDo_PermanentErrorNoRetry(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), RetryConfig{Sleep: noSleep}, func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, RetryConfig{Backoff: Backoff{Base: time.Hour}}, func(context.Context) error {
		calls++
		return NewTransientError(errors.New("slow"), 504)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	v, state, err := DoVal(context.Background(), RetryConfig{Sleep: noSleep}, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("429"), 429)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, state.Attempt)
}
