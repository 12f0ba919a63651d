package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes exponential delays with jitter. NextDelay is a pure
// function of the attempt number and the injected random source.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the fraction of the delay added or removed at random (0.2 = ±20%).
	Jitter float64
	// Rand returns a value in [0,1). Nil means math/rand/v2.
	Rand func() float64
}

// DefaultJobBackoff is the delay schedule for failed scraping jobs.
func DefaultJobBackoff() Backoff {
	return Backoff{
		Base:       30 * time.Second,
		Max:        30 * time.Minute,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// NextDelay returns the wait before retry number attempt (1-based). Attempt
// values below 1 are treated as 1.
func (b Backoff) NextDelay(attempt int) time.Duration {
	b = b.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1))
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		r := b.Rand
		if r == nil {
			r = rand.Float64
		}
		delay += (r()*2 - 1) * delay * b.Jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func (b Backoff) withDefaults() Backoff {
	if b.Base <= 0 {
		b.Base = 500 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	if b.Multiplier <= 0 {
		b.Multiplier = 2
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	return b
}

// RetryState is the explicit bookkeeping for one retried operation.
type RetryState struct {
	Attempt int
	LastErr error
}

// Record notes a failed attempt.
func (s *RetryState) Record(err error) {
	s.Attempt++
	s.LastErr = err
}

// Exhausted reports whether max attempts have been used.
func (s RetryState) Exhausted(max int) bool {
	return s.Attempt >= max
}
