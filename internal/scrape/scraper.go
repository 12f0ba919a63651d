// Package scrape fetches page content for extraction: a firecrawl-first
// scraper chain with a local HTML fallback, a result cache, and
// multi-page crawls.
package scrape

import (
	"context"

	"github.com/sells-group/foodtruck-cli/internal/model"
)

// Result holds a scraped page with its source.
type Result struct {
	Page   model.CrawledPage
	Source string // e.g. "firecrawl", "local_http"
	Cached bool
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}

// Reserver guards paid API calls against daily quotas.
type Reserver interface {
	Reserve(ctx context.Context, service string, estTokens int64) error
}
