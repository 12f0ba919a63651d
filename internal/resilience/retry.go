package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior for one external call.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first. Default: 3.
	MaxAttempts int

	Backoff Backoff

	// ShouldRetry overrides the transient check. Nil means IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep.
	OnRetry func(state RetryState)

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns the retry policy used for API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff: Backoff{
			Base:       time.Second,
			Max:        30 * time.Second,
			Multiplier: 2,
			Jitter:     0.25,
		},
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The returned state carries the attempt count.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) (RetryState, error) {
	_, state, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return state, err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, RetryState, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var zero T
	var state RetryState
	for {
		val, err := fn(ctx)
		if err == nil {
			state.Attempt++
			return val, state, nil
		}
		state.Record(err)

		if ctx.Err() != nil || !shouldRetry(err) || state.Exhausted(cfg.MaxAttempts) {
			return zero, state, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(state)
		}
		if serr := sleep(ctx, cfg.Backoff.NextDelay(state.Attempt)); serr != nil {
			return zero, state, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(service, operation string) func(RetryState) {
	return func(state RetryState) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", state.Attempt),
			zap.Error(state.LastErr),
		)
	}
}
