package firecrawl

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultPollInterval    = 10 * time.Second
	defaultPollMaxAttempts = 30
)

// ErrCrawlFailed is returned when the crawl reports status "failed".
var ErrCrawlFailed = eris.New("firecrawl: crawl failed")

// ErrCrawlTimeout is returned when the crawl is still running after the
// last poll attempt.
var ErrCrawlTimeout = eris.New("firecrawl: crawl timed out")

// PollOption configures polling.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval    time.Duration
	maxAttempts int
}

// WithPollInterval overrides the fixed poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.interval = d
	}
}

// WithMaxAttempts overrides the number of status checks.
func WithMaxAttempts(n int) PollOption {
	return func(c *pollConfig) {
		c.maxAttempts = n
	}
}

// PollCrawl checks crawl status at a fixed interval. It returns the final
// status on "completed", ErrCrawlFailed on "failed" and ErrCrawlTimeout when
// attempts run out.
func PollCrawl(ctx context.Context, client Client, id string, opts ...PollOption) (*CrawlStatusResponse, error) {
	cfg := pollConfig{interval: defaultPollInterval, maxAttempts: defaultPollMaxAttempts}
	for _, opt := range opts {
		opt(&cfg)
	}

	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		status, err := client.GetCrawlStatus(ctx, id)
		if err != nil {
			return nil, eris.Wrapf(err, "firecrawl: poll crawl %s", id)
		}

		switch status.Status {
		case "completed":
			return status, nil
		case "failed":
			return nil, eris.Wrapf(ErrCrawlFailed, "crawl %s", id)
		}

		if attempt == cfg.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "firecrawl: poll crawl %s", id)
		case <-time.After(cfg.interval):
		}
	}
	return nil, eris.Wrapf(ErrCrawlTimeout, "crawl %s after %d attempts", id, cfg.maxAttempts)
}
