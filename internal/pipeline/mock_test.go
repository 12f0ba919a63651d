package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/foodtruck-cli/internal/discovery"
	"github.com/sells-group/foodtruck-cli/internal/extract"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/scrape"
	"github.com/sells-group/foodtruck-cli/pkg/geocode"
)

// --- Scraper Mock ---

type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) Scrape(ctx context.Context, url string) (*scrape.Result, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scrape.Result), args.Error(1)
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) FullExtraction(ctx context.Context, markdown, sourceURL string) *extract.Result {
	args := m.Called(ctx, markdown, sourceURL)
	return args.Get(0).(*extract.Result)
}

// --- Discoverer that panics ---

type panickyDiscoverer struct{}

func (panickyDiscoverer) Discover(context.Context, []discovery.City, int) (*discovery.Result, error) {
	panic("boom")
}

func (panickyDiscoverer) CrawlDirectories(context.Context, []string, int) (*discovery.Result, error) {
	return &discovery.Result{}, nil
}

func (panickyDiscoverer) QueueNew(context.Context, discovery.Enqueuer, int, int) (int, error) {
	return 0, nil
}

// --- Usage checker stub ---

type stubChecker struct{}

func (stubChecker) Check(context.Context) ([]monitoring.Alert, error) { return nil, nil }

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, address string) (*geocode.Result, error) {
	args := m.Called(ctx, address)
	if v := args.Get(0); v != nil {
		return v.(*geocode.Result), args.Error(1)
	}
	return nil, args.Error(1)
}
