// Package discovery finds candidate food truck websites through web
// search and directory crawls and records them as discovered URLs.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/scrape"
	"github.com/sells-group/foodtruck-cli/internal/store"
	"github.com/sells-group/foodtruck-cli/pkg/tavily"
)

// ErrNotConfigured is returned when discovery has no search client.
var ErrNotConfigured = eris.New("discovery: search client not configured")

const (
	defaultQueryTemplate = "food trucks in {city} {state}"
	defaultMaxResults    = 5
	directoryMaxDepth    = 2
	directoryLimit       = 20
)

// City is a search target.
type City struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// ParseCity parses "Charleston, SC". A missing state defaults to SC.
func ParseCity(s string) City {
	name, state, _ := strings.Cut(s, ",")
	c := City{Name: strings.TrimSpace(name), State: strings.TrimSpace(state)}
	if c.State == "" {
		c.State = "SC"
	}
	return c
}

// ParseCities parses a list of "City, ST" strings, skipping blanks.
func ParseCities(list []string) []City {
	out := make([]City, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) != "" {
			out = append(out, ParseCity(s))
		}
	}
	return out
}

func (c City) String() string {
	return c.Name + ", " + c.State
}

// Store is the persistence the engine needs.
type Store interface {
	InsertDiscoveredURL(ctx context.Context, u *model.DiscoveredURL) (bool, error)
	GetDiscoveredURL(ctx context.Context, url string) (*model.DiscoveredURL, error)
	UpdateDiscoveredStatus(ctx context.Context, url string, status model.DiscoveredStatus) error
	ListDiscoveredURLs(ctx context.Context, filter store.URLFilter) ([]model.DiscoveredURL, error)
	FindBusinessBySourceURL(ctx context.Context, url string) (*model.BusinessRecord, error)
}

// Crawler runs multi-page crawls of directory sites.
type Crawler interface {
	Crawl(ctx context.Context, rootURL string, opts scrape.CrawlOptions) (*scrape.CrawlResult, error)
}

// Reserver guards paid API calls against daily quotas.
type Reserver interface {
	Reserve(ctx context.Context, service string, estTokens int64) error
}

// Enqueuer creates scraping jobs.
type Enqueuer interface {
	EnqueueURL(ctx context.Context, url string, priority int) (*model.ScrapingJob, bool, error)
}

// Result summarizes one discovery run. Found counts accepted URLs; each
// is then either Stored or a Duplicate of a known URL.
type Result struct {
	Found     int      `json:"found"`
	Stored    int      `json:"stored"`
	Duplicate int      `json:"duplicate"`
	Rejected  int      `json:"rejected"`
	URLs      []string `json:"urls,omitempty"`
	Errors    []string `json:"errors"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Engine runs discovery.
type Engine struct {
	search     tavily.Client
	st         Store
	filter     *Filter
	limiter    *rate.Limiter
	templates  []string
	maxResults int
	usage      Reserver
	crawler    Crawler
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithUsage meters search and crawl calls.
func WithUsage(r Reserver) Option {
	return func(e *Engine) { e.usage = r }
}

// WithCrawler enables directory crawling.
func WithCrawler(c Crawler) Option {
	return func(e *Engine) { e.crawler = c }
}

// WithLimiter overrides query pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithMaxResults sets the results requested per query.
func WithMaxResults(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxResults = n
		}
	}
}

// NewEngine creates a discovery engine. search may be nil, in which case
// Discover returns ErrNotConfigured.
func NewEngine(search tavily.Client, st Store, cfg config.DiscoveryConfig, opts ...Option) *Engine {
	qps := cfg.QueriesPerSecond
	if qps <= 0 {
		qps = 1
	}
	e := &Engine{
		search:     search,
		st:         st,
		filter:     NewFilter(cfg.ExtraBlocklist),
		limiter:    rate.NewLimiter(rate.Limit(qps), 1),
		templates:  cfg.QueryTemplates,
		maxResults: defaultMaxResults,
		now:        time.Now,
	}
	if len(e.templates) == 0 {
		e.templates = []string{defaultQueryTemplate}
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Queries returns the search queries issued for city.
func (e *Engine) Queries(city City) []string {
	out := make([]string, 0, len(e.templates))
	for _, t := range e.templates {
		q := strings.NewReplacer("{city}", city.Name, "{state}", city.State).Replace(t)
		out = append(out, strings.Join(strings.Fields(q), " "))
	}
	return out
}

// run tracks per-run state shared by search and directory discovery.
type run struct {
	res     *Result
	seen    map[string]bool
	maxURLs int
}

func newRun(maxURLs int) *run {
	return &run{res: &Result{Errors: []string{}}, seen: make(map[string]bool), maxURLs: maxURLs}
}

func (r *run) full() bool {
	return r.maxURLs > 0 && r.res.Found >= r.maxURLs
}

// Discover searches each city and stores new candidate URLs, stopping once
// maxURLs have been found. A failing query is recorded in Errors and the
// remaining queries still run.
func (e *Engine) Discover(ctx context.Context, cities []City, maxURLs int) (*Result, error) {
	if e.search == nil {
		return nil, ErrNotConfigured
	}
	log := zap.L().With(zap.String("component", "discovery"))
	r := newRun(maxURLs)

	for _, city := range cities {
		for _, query := range e.Queries(city) {
			if r.full() {
				break
			}
			if err := ctx.Err(); err != nil {
				return r.res, eris.Wrap(err, "discovery: cancelled")
			}

			resp, err := e.searchOnce(ctx, query)
			if err != nil {
				r.res.addError("search failed for %q: %v", query, err)
				log.Warn("search failed", zap.String("query", query), zap.Error(err))
				if errors.Is(err, monitoring.ErrLimitExceeded) {
					return r.res, nil
				}
				continue
			}

			for _, hit := range resp.Results {
				e.consider(ctx, r, hit.URL, query, city.String())
				for _, u := range ExtractURLs(hit.Content + "\n" + hit.RawContent) {
					e.consider(ctx, r, u, query, city.String())
				}
			}
		}
	}

	log.Info("discovery complete",
		zap.Int("found", r.res.Found),
		zap.Int("stored", r.res.Stored),
		zap.Int("duplicate", r.res.Duplicate),
		zap.Int("rejected", r.res.Rejected),
		zap.Int("errors", len(r.res.Errors)),
	)
	return r.res, nil
}

func (e *Engine) searchOnce(ctx context.Context, query string) (*tavily.SearchResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter")
	}
	if e.usage != nil {
		if err := e.usage.Reserve(ctx, model.ServiceTavily, 0); err != nil {
			return nil, err
		}
	}
	return e.search.Search(ctx, tavily.SearchRequest{
		Query:       query,
		MaxResults:  e.maxResults,
		SearchDepth: "basic",
	})
}

// consider runs one URL through the filter, the dedup checks and the store.
func (e *Engine) consider(ctx context.Context, r *run, rawURL, source, region string) {
	if r.full() || strings.TrimSpace(rawURL) == "" {
		return
	}
	u, reason, ok := e.filter.Check(rawURL)
	if !ok {
		if u == "" || !r.seen[u] {
			r.res.Rejected++
		}
		if u != "" {
			r.seen[u] = true
		}
		zap.L().Debug("discovery: rejected url", zap.String("url", rawURL), zap.String("reason", reason))
		return
	}
	if r.seen[u] {
		return
	}
	r.seen[u] = true
	r.res.Found++

	known, err := e.known(ctx, u)
	if err != nil {
		r.res.addError("lookup failed for %s: %v", u, err)
		return
	}
	if known {
		r.res.Duplicate++
		return
	}

	inserted, err := e.st.InsertDiscoveredURL(ctx, &model.DiscoveredURL{
		URL:          u,
		Status:       model.DiscoveredNew,
		SourceQuery:  source,
		Region:       region,
		DiscoveredAt: e.now().UTC(),
	})
	if err != nil {
		r.res.addError("store failed for %s: %v", u, err)
		return
	}
	if !inserted {
		r.res.Duplicate++
		return
	}
	r.res.Stored++
	r.res.URLs = append(r.res.URLs, u)
}

// known reports whether u is already a discovered URL or a business source.
func (e *Engine) known(ctx context.Context, u string) (bool, error) {
	d, err := e.st.GetDiscoveredURL(ctx, u)
	switch {
	case err == nil && d != nil:
		return true, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return false, err
	}
	b, err := e.st.FindBusinessBySourceURL(ctx, u)
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

// CrawlDirectories crawls directory pages and stores the food truck sites
// they link to. Each failing directory is recorded in Errors.
func (e *Engine) CrawlDirectories(ctx context.Context, directoryURLs []string, maxURLs int) (*Result, error) {
	if e.crawler == nil {
		return nil, eris.New("discovery: directory crawling requires a crawler")
	}
	r := newRun(maxURLs)
	for _, dir := range directoryURLs {
		if r.full() {
			break
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return r.res, eris.Wrap(err, "discovery: rate limiter")
		}
		cr, err := e.crawler.Crawl(ctx, dir, scrape.CrawlOptions{MaxDepth: directoryMaxDepth, Limit: directoryLimit})
		if err != nil {
			r.res.addError("crawl failed for %s: %v", dir, err)
			zap.L().Warn("discovery: directory crawl failed", zap.String("url", dir), zap.Error(err))
			if errors.Is(err, monitoring.ErrLimitExceeded) {
				break
			}
			continue
		}
		source := "directory:" + dir
		for _, u := range cr.URLs {
			e.consider(ctx, r, u, source, "")
		}
		for _, u := range ExtractURLs(cr.Content) {
			e.consider(ctx, r, u, source, "")
		}
	}
	return r.res, nil
}

// QueueNew creates scraping jobs for up to limit discovered URLs in status
// new and advances them to queued. It returns the number queued.
func (e *Engine) QueueNew(ctx context.Context, q Enqueuer, limit, priority int) (int, error) {
	pending, err := e.st.ListDiscoveredURLs(ctx, store.URLFilter{Status: model.DiscoveredNew, Limit: limit})
	if err != nil {
		return 0, eris.Wrap(err, "discovery: list new urls")
	}
	queued := 0
	for _, d := range pending {
		if _, _, err := q.EnqueueURL(ctx, d.URL, priority); err != nil {
			return queued, eris.Wrapf(err, "discovery: enqueue %s", d.URL)
		}
		if err := e.st.UpdateDiscoveredStatus(ctx, d.URL, model.DiscoveredQueued); err != nil {
			return queued, eris.Wrapf(err, "discovery: mark %s queued", d.URL)
		}
		queued++
	}
	return queued, nil
}
