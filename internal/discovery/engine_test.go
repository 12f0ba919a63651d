package discovery

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/scrape"
	"github.com/sells-group/foodtruck-cli/internal/store"
	"github.com/sells-group/foodtruck-cli/pkg/tavily"
	tavilymocks "github.com/sells-group/foodtruck-cli/pkg/tavily/mocks"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "discovery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testConfig(templates ...string) config.DiscoveryConfig {
	return config.DiscoveryConfig{QueryTemplates: templates}
}

func fastLimiter() Option {
	return WithLimiter(rate.NewLimiter(rate.Inf, 1))
}

type fakeReserver struct {
	err   error
	calls []string
}

func (f *fakeReserver) Reserve(_ context.Context, service string, _ int64) error {
	f.calls = append(f.calls, service)
	return f.err
}

type fakeEnqueuer struct {
	urls []string
	err  error
}

func (f *fakeEnqueuer) EnqueueURL(_ context.Context, url string, priority int) (*model.ScrapingJob, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	f.urls = append(f.urls, url)
	return &model.ScrapingJob{TargetURL: url, Priority: priority}, true, nil
}

type fakeCrawler struct {
	results map[string]*scrape.CrawlResult
	opts    []scrape.CrawlOptions
}

func (f *fakeCrawler) Crawl(_ context.Context, rootURL string, opts scrape.CrawlOptions) (*scrape.CrawlResult, error) {
	f.opts = append(f.opts, opts)
	if r, ok := f.results[rootURL]; ok {
		return r, nil
	}
	return nil, errors.New("crawl timeout")
}

func TestParseCity(t *testing.T) {
	assert.Equal(t, City{Name: "Charleston", State: "SC"}, ParseCity("Charleston, SC"))
	assert.Equal(t, City{Name: "Summerville", State: "SC"}, ParseCity(" Summerville "))
	assert.Equal(t, "Springfield, IL", ParseCity("Springfield,IL").String())
	assert.Len(t, ParseCities([]string{"Charleston, SC", " ", "Columbia, SC"}), 2)
}

func TestEngine_Queries(t *testing.T) {
	e := NewEngine(nil, nil, testConfig("food trucks in {city} {state}", "{city} mobile food vendors"))
	assert.Equal(t, []string{
		"food trucks in Springfield IL",
		"Springfield mobile food vendors",
	}, e.Queries(City{Name: "Springfield", State: "IL"}))
}

func TestEngine_Discover_NotConfigured(t *testing.T) {
	e := NewEngine(nil, newTestStore(t), testConfig())
	_, err := e.Discover(context.Background(), []City{{Name: "Charleston", State: "SC"}}, 5)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEngine_Discover_DuplicateAndCap(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	inserted, err := st.InsertDiscoveredURL(ctx, &model.DiscoveredURL{URL: "https://springfieldtacos.com"})
	require.NoError(t, err)
	require.True(t, inserted)

	search := tavilymocks.NewMockClient(t)
	search.On("Search", mock.Anything, tavily.SearchRequest{
		Query:       "food trucks in Springfield SC",
		MaxResults:  5,
		SearchDepth: "basic",
	}).Return(&tavily.SearchResponse{Results: []tavily.SearchResult{
		{URL: "https://springfieldtacos.com", Content: "See also https://curbsidekitchen.net."},
		{URL: "https://www.yelp.com/biz/springfield-tacos"},
		{URL: "https://rollingsmokebbq.com/menu"},
		{URL: "https://www.springfieldtacos.com/?utm_source=tavily"},
		{URL: "https://wafflewagon.com"},
		{URL: "https://burgerbus.com/menu"},
		{URL: "https://pizzatruck.com"},
	}}, nil).Once()

	usage := &fakeReserver{}
	e := NewEngine(search, st, testConfig("food trucks in {city} {state}", "{city} {state} mobile food vendors"),
		fastLimiter(), WithUsage(usage))

	res, err := e.Discover(ctx, ParseCities([]string{"Springfield"}), 5)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Found)
	assert.Equal(t, 1, res.Duplicate)
	assert.Equal(t, 4, res.Stored)
	assert.Equal(t, 1, res.Rejected)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{
		"https://curbsidekitchen.net",
		"https://rollingsmokebbq.com/menu",
		"https://wafflewagon.com",
		"https://burgerbus.com/menu",
	}, res.URLs)
	assert.Equal(t, []string{model.ServiceTavily}, usage.calls)

	stored, err := st.GetDiscoveredURL(ctx, "https://rollingsmokebbq.com/menu")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.DiscoveredNew, stored.Status)
	assert.Equal(t, "food trucks in Springfield SC", stored.SourceQuery)
	assert.Equal(t, "Springfield, SC", stored.Region)

	missing, err := st.GetDiscoveredURL(ctx, "https://pizzatruck.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEngine_Discover_KnownBusinessSource(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.CreateBusiness(ctx, &model.BusinessRecord{
		Name:       "Rolling Smoke BBQ",
		SourceURLs: []string{"https://rollingsmokebbq.com"},
	}, "rolling smoke bbq"))

	search := tavilymocks.NewMockClient(t)
	search.On("Search", mock.Anything, mock.Anything).Return(&tavily.SearchResponse{Results: []tavily.SearchResult{
		{URL: "https://www.rollingsmokebbq.com/"},
	}}, nil)

	e := NewEngine(search, st, testConfig(), fastLimiter())
	res, err := e.Discover(ctx, []City{{Name: "Charleston", State: "SC"}}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, 1, res.Duplicate)
	assert.Zero(t, res.Stored)
}

func TestEngine_Discover_SearchErrorContinues(t *testing.T) {
	ctx := context.Background()
	search := tavilymocks.NewMockClient(t)
	search.On("Search", mock.Anything, mock.MatchedBy(func(r tavily.SearchRequest) bool {
		return r.Query == "food trucks in Charleston SC"
	})).Return(nil, errors.New("boom")).Once()
	search.On("Search", mock.Anything, mock.MatchedBy(func(r tavily.SearchRequest) bool {
		return r.Query == "Charleston SC mobile food vendors"
	})).Return(&tavily.SearchResponse{Results: []tavily.SearchResult{
		{URL: "https://lowcountrytacotruck.com"},
	}}, nil).Once()

	e := NewEngine(search, newTestStore(t), testConfig("food trucks in {city} {state}", "{city} {state} mobile food vendors"), fastLimiter())
	res, err := e.Discover(ctx, []City{{Name: "Charleston", State: "SC"}}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{`search failed for "food trucks in Charleston SC": boom`}, res.Errors)
	assert.Equal(t, 1, res.Stored)
}

func TestEngine_Discover_QuotaExhausted(t *testing.T) {
	search := tavilymocks.NewMockClient(t)
	usage := &fakeReserver{err: monitoring.ErrLimitExceeded}

	e := NewEngine(search, newTestStore(t), testConfig("a {city}", "b {city}"), fastLimiter(), WithUsage(usage))
	res, err := e.Discover(context.Background(), []City{{Name: "Charleston", State: "SC"}}, 10)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "usage limit exceeded")
	assert.Len(t, usage.calls, 1)
	search.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
}

func TestEngine_CrawlDirectories(t *testing.T) {
	ctx := context.Background()
	crawler := &fakeCrawler{results: map[string]*scrape.CrawlResult{
		"https://chsfoodtrucks.com/trucks": {
			URLs:    []string{"https://chsfoodtrucks.com/trucks", "https://tacoboy.com", "https://instagram.com/tacoboy"},
			Content: "Book https://holycitycatering.com/menu for events.",
		},
	}}
	e := NewEngine(nil, newTestStore(t), testConfig(), fastLimiter(), WithCrawler(crawler))

	res, err := e.CrawlDirectories(ctx, []string{"https://chsfoodtrucks.com/trucks", "https://broken.example"}, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://chsfoodtrucks.com/trucks", "https://tacoboy.com", "https://holycitycatering.com/menu"}, res.URLs)
	assert.Equal(t, 1, res.Rejected)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "crawl failed for https://broken.example")
	assert.Equal(t, scrape.CrawlOptions{MaxDepth: 2, Limit: 20}, crawler.opts[0])

	_, err = NewEngine(nil, newTestStore(t), testConfig()).CrawlDirectories(ctx, []string{"https://x.com"}, 1)
	assert.Error(t, err)
}

func TestEngine_QueueNew(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	for _, u := range []string{"https://tacoboy.com", "https://wafflewagon.com", "https://bunbros.com"} {
		_, err := st.InsertDiscoveredURL(ctx, &model.DiscoveredURL{URL: u})
		require.NoError(t, err)
	}
	require.NoError(t, st.UpdateDiscoveredStatus(ctx, "https://bunbros.com", model.DiscoveredQueued))

	q := &fakeEnqueuer{}
	e := NewEngine(nil, st, testConfig())
	n, err := e.QueueNew(ctx, q, 10, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"https://tacoboy.com", "https://wafflewagon.com"}, q.urls)

	left, err := st.ListDiscoveredURLs(ctx, store.URLFilter{Status: model.DiscoveredNew})
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = e.QueueNew(ctx, &fakeEnqueuer{err: errors.New("db down")}, 10, 5)
	assert.NoError(t, err, "nothing left to queue")
}
