package scrape

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/resilience"
	"github.com/sells-group/foodtruck-cli/pkg/firecrawl"
)

// FirecrawlAdapter wraps a Firecrawl client as a Scraper for single-page
// scrapes. Each call is reserved against the firecrawl quota first.
type FirecrawlAdapter struct {
	client   firecrawl.Client
	usage    Reserver
	breaker  *resilience.CircuitBreaker
	waitForM int
}

// FirecrawlOption configures a FirecrawlAdapter.
type FirecrawlOption func(*FirecrawlAdapter)

// WithUsage reserves quota before every request.
func WithUsage(r Reserver) FirecrawlOption {
	return func(f *FirecrawlAdapter) { f.usage = r }
}

// WithBreaker routes requests through a circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) FirecrawlOption {
	return func(f *FirecrawlAdapter) { f.breaker = cb }
}

// WithWaitFor sets how long firecrawl waits for page scripts, in ms.
func WithWaitFor(ms int) FirecrawlOption {
	return func(f *FirecrawlAdapter) { f.waitForM = ms }
}

// NewFirecrawlAdapter creates a FirecrawlAdapter from a Firecrawl client.
func NewFirecrawlAdapter(client firecrawl.Client, opts ...FirecrawlOption) *FirecrawlAdapter {
	f := &FirecrawlAdapter{client: client, waitForM: 2000}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Scraper.
func (f *FirecrawlAdapter) Name() string { return "firecrawl" }

// Supports returns true; Firecrawl can attempt any URL.
func (f *FirecrawlAdapter) Supports(_ string) bool { return true }

// Scrape fetches a single URL via Firecrawl's scrape API.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	if err := f.reserve(ctx); err != nil {
		return nil, err
	}

	call := func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		return f.client.Scrape(ctx, firecrawl.ScrapeRequest{
			URL:             targetURL,
			Formats:         []string{"markdown"},
			OnlyMainContent: true,
			WaitFor:         f.waitForM,
		})
	}

	var resp *firecrawl.ScrapeResponse
	var err error
	if f.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, f.breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.Errorf("firecrawl: scrape not successful: %s", resp.Error)
	}

	pageURL := resp.Data.Metadata.SourceURL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &Result{
		Page: model.CrawledPage{
			URL:        pageURL,
			Title:      resp.Data.Metadata.Title,
			Markdown:   resp.Data.Markdown,
			StatusCode: resp.Data.Metadata.StatusCode,
		},
		Source: "firecrawl",
	}, nil
}

func (f *FirecrawlAdapter) reserve(ctx context.Context) error {
	if f.usage == nil {
		return nil
	}
	return f.usage.Reserve(ctx, model.ServiceFirecrawl, 0)
}
