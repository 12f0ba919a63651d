package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/pkg/firecrawl"
	firecrawlmocks "github.com/sells-group/foodtruck-cli/pkg/firecrawl/mocks"
)

// mockScraper implements Scraper for testing.
type mockScraper struct {
	name     string
	supports bool
	result   *Result
	err      error
	calls    int
}

func (m *mockScraper) Name() string           { return m.name }
func (m *mockScraper) Supports(_ string) bool { return m.supports }
func (m *mockScraper) Scrape(_ context.Context, _ string) (*Result, error) {
	m.calls++
	return m.result, m.err
}

func pageResult(source string) *Result {
	return &Result{
		Page:   model.CrawledPage{URL: "https://tacoloco.com", Title: "Taco Loco", Markdown: "tacos"},
		Source: source,
	}
}

func TestChain_Scrape_FirstSuccess(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, result: pageResult("primary")}
	s2 := &mockScraper{name: "fallback", supports: true}

	chain := NewChain([]Scraper{s1, s2})
	result, err := chain.Scrape(context.Background(), "https://tacoloco.com")

	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)
	assert.Equal(t, 0, s2.calls)
}

func TestChain_Scrape_FallbackOnError(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, err: errors.New("failed")}
	s2 := &mockScraper{name: "fallback", supports: true, result: pageResult("fallback")}

	result, err := NewChain([]Scraper{s1, s2}).Scrape(context.Background(), "https://tacoloco.com")

	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Source)
}

func TestChain_Scrape_AllFail(t *testing.T) {
	s1 := &mockScraper{name: "a", supports: true, err: errors.New("fail a")}
	s2 := &mockScraper{name: "b", supports: true, err: errors.New("fail b")}

	_, err := NewChain([]Scraper{s1, s2}).Scrape(context.Background(), "https://tacoloco.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all scrapers failed")
	assert.Contains(t, err.Error(), "fail b")
}

func TestChain_Scrape_NoSupportingScraper(t *testing.T) {
	s1 := &mockScraper{name: "a", supports: false}

	_, err := NewChain([]Scraper{s1}).Scrape(context.Background(), "https://tacoloco.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suitable scraper")
}

func TestChain_Scrape_CachesFor12Hours(t *testing.T) {
	now := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	s1 := &mockScraper{name: "primary", supports: true, result: pageResult("primary")}
	chain := NewChain([]Scraper{s1}, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	first, err := chain.Scrape(ctx, "https://tacoloco.com")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	now = now.Add(11 * time.Hour)
	second, err := chain.Scrape(ctx, "https://tacoloco.com")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, s1.calls)

	now = now.Add(2 * time.Hour)
	third, err := chain.Scrape(ctx, "https://tacoloco.com")
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, s1.calls)
}

func TestChain_Scrape_FailuresNotCached(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, err: errors.New("down")}
	chain := NewChain([]Scraper{s1})

	_, err := chain.Scrape(context.Background(), "https://x.com")
	require.Error(t, err)
	_, err = chain.Scrape(context.Background(), "https://x.com")
	require.Error(t, err)
	assert.Equal(t, 2, s1.calls)
}

func TestChain_Crawl_AggregatesPages(t *testing.T) {
	fc := firecrawlmocks.NewMockClient(t)
	usage := &fakeReserver{}
	chain := NewChain(nil, WithCrawler(fc, usage, firecrawl.WithPollInterval(time.Millisecond)))

	fc.On("Crawl", mock.Anything, mock.MatchedBy(func(r firecrawl.CrawlRequest) bool {
		return r.URL == "https://trucks.example" && r.MaxDepth == 2 && r.Limit == 20
	})).Return(&firecrawl.CrawlResponse{Success: true, ID: "crawl-1"}, nil)
	fc.On("GetCrawlStatus", mock.Anything, "crawl-1").
		Return(&firecrawl.CrawlStatusResponse{Status: "scraping"}, nil).Once()
	fc.On("GetCrawlStatus", mock.Anything, "crawl-1").
		Return(&firecrawl.CrawlStatusResponse{Status: "completed", Data: []firecrawl.PageData{
			{Markdown: "page one", Metadata: firecrawl.Metadata{SourceURL: "https://trucks.example/a"}},
			{Markdown: "  ", Metadata: firecrawl.Metadata{SourceURL: "https://trucks.example/empty"}},
			{Markdown: "page two", Metadata: firecrawl.Metadata{SourceURL: "https://trucks.example/b"}},
		}}, nil).Once()

	res, err := chain.Crawl(context.Background(), "https://trucks.example", CrawlOptions{MaxDepth: 2, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://trucks.example/a", "https://trucks.example/b"}, res.URLs)
	assert.Equal(t, "page one"+pageSeparator+"page two", res.Content)
	assert.Len(t, res.Pages, 2)
	assert.Equal(t, []string{model.ServiceFirecrawl}, usage.calls)
}

func TestChain_Crawl_Failed(t *testing.T) {
	fc := firecrawlmocks.NewMockClient(t)
	chain := NewChain(nil, WithCrawler(fc, nil, firecrawl.WithPollInterval(time.Millisecond)))

	fc.On("Crawl", mock.Anything, mock.Anything).Return(&firecrawl.CrawlResponse{Success: true, ID: "c"}, nil)
	fc.On("GetCrawlStatus", mock.Anything, "c").Return(&firecrawl.CrawlStatusResponse{Status: "failed"}, nil).Once()

	_, err := chain.Crawl(context.Background(), "https://x.com", CrawlOptions{})
	assert.ErrorIs(t, err, firecrawl.ErrCrawlFailed)
}

func TestChain_Crawl_Timeout(t *testing.T) {
	fc := firecrawlmocks.NewMockClient(t)
	chain := NewChain(nil, WithCrawler(fc, nil,
		firecrawl.WithPollInterval(time.Millisecond), firecrawl.WithMaxAttempts(3)))

	fc.On("Crawl", mock.Anything, mock.Anything).Return(&firecrawl.CrawlResponse{Success: true, ID: "c"}, nil)
	fc.On("GetCrawlStatus", mock.Anything, "c").Return(&firecrawl.CrawlStatusResponse{Status: "scraping"}, nil).Times(3)

	_, err := chain.Crawl(context.Background(), "https://x.com", CrawlOptions{})
	assert.ErrorIs(t, err, firecrawl.ErrCrawlTimeout)
}

func TestChain_Crawl_NoClient(t *testing.T) {
	_, err := NewChain(nil).Crawl(context.Background(), "https://x.com", CrawlOptions{})
	assert.Error(t, err)
}
