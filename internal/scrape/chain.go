package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/pkg/firecrawl"
)

// pageSeparator joins crawled pages into one document.
const pageSeparator = "\n\n---\n\n"

// Chain tries scrapers in priority order, returning the first success.
// Successful results are cached per URL.
type Chain struct {
	scrapers []Scraper
	cache    *resultCache

	fcClient firecrawl.Client // optional: enables Crawl
	usage    Reserver
	pollOpts []firecrawl.PollOption
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithCacheTTL sets how long successful scrapes are reused.
func WithCacheTTL(ttl time.Duration) ChainOption {
	return func(c *Chain) { c.cache.ttl = ttl }
}

// WithClock overrides the cache's time source.
func WithClock(now func() time.Time) ChainOption {
	return func(c *Chain) { c.cache.now = now }
}

// WithCrawler enables multi-page crawls through fc. Crawl submissions are
// reserved against the firecrawl quota when usage is non-nil.
func WithCrawler(fc firecrawl.Client, usage Reserver, opts ...firecrawl.PollOption) ChainOption {
	return func(c *Chain) {
		c.fcClient = fc
		c.usage = usage
		c.pollOpts = opts
	}
}

// NewChain creates a Chain. Scrapers are tried in order; the first
// successful result is returned.
func NewChain(scrapers []Scraper, opts ...ChainOption) *Chain {
	c := &Chain{
		scrapers: scrapers,
		cache:    newResultCache(defaultCacheSize, 12*time.Hour, time.Now),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scrape returns a cached result when one is fresh, otherwise tries each
// scraper in order for the URL.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	if r, ok := c.cache.get(targetURL); ok {
		zap.L().Debug("scrape: cache hit", zap.String("url", targetURL))
		return r, nil
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil {
			c.cache.put(targetURL, result)
			return result, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "scrape: cancelled")
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}

// CrawlOptions bounds a multi-page crawl.
type CrawlOptions struct {
	MaxDepth int
	Limit    int
}

// CrawlResult is the aggregated output of a crawl.
type CrawlResult struct {
	Content string
	URLs    []string
	Pages   []model.CrawledPage
}

// Crawl submits a crawl of rootURL and polls until it completes, fails,
// or the poll attempts run out.
func (c *Chain) Crawl(ctx context.Context, rootURL string, opts CrawlOptions) (*CrawlResult, error) {
	if c.fcClient == nil {
		return nil, eris.New("scrape: crawl requires a firecrawl client")
	}
	if c.usage != nil {
		if err := c.usage.Reserve(ctx, model.ServiceFirecrawl, 0); err != nil {
			return nil, err
		}
	}

	resp, err := c.fcClient.Crawl(ctx, firecrawl.CrawlRequest{
		URL:      rootURL,
		MaxDepth: opts.MaxDepth,
		Limit:    opts.Limit,
		ScrapeOptions: &firecrawl.ScrapeOptions{
			Formats:         []string{"markdown"},
			OnlyMainContent: true,
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: start crawl %s", rootURL)
	}
	if !resp.Success || resp.ID == "" {
		return nil, eris.Errorf("scrape: crawl %s not accepted: %s", rootURL, resp.Error)
	}

	zap.L().Info("scrape: crawl started",
		zap.String("url", rootURL),
		zap.String("crawl_id", resp.ID),
	)

	status, err := firecrawl.PollCrawl(ctx, c.fcClient, resp.ID, c.pollOpts...)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: crawl %s", rootURL)
	}

	out := &CrawlResult{}
	var parts []string
	for _, d := range status.Data {
		if strings.TrimSpace(d.Markdown) == "" {
			continue
		}
		out.Pages = append(out.Pages, model.CrawledPage{
			URL:        d.Metadata.SourceURL,
			Title:      d.Metadata.Title,
			Markdown:   d.Markdown,
			StatusCode: d.Metadata.StatusCode,
		})
		out.URLs = append(out.URLs, d.Metadata.SourceURL)
		parts = append(parts, d.Markdown)
	}
	out.Content = strings.Join(parts, pageSeparator)

	zap.L().Info("scrape: crawl complete",
		zap.String("url", rootURL),
		zap.Int("pages", len(out.Pages)),
	)
	return out, nil
}
