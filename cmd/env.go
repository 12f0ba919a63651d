package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/discovery"
	"github.com/sells-group/foodtruck-cli/internal/extract"
	"github.com/sells-group/foodtruck-cli/internal/jobs"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/pipeline"
	"github.com/sells-group/foodtruck-cli/internal/resilience"
	"github.com/sells-group/foodtruck-cli/internal/scrape"
	"github.com/sells-group/foodtruck-cli/internal/seeds"
	"github.com/sells-group/foodtruck-cli/internal/store"
	anthropicpkg "github.com/sells-group/foodtruck-cli/pkg/anthropic"
	"github.com/sells-group/foodtruck-cli/pkg/firecrawl"
	"github.com/sells-group/foodtruck-cli/pkg/geocode"
	"github.com/sells-group/foodtruck-cli/pkg/tavily"
)

// appEnv holds the store, API clients, and pipeline manager shared by the
// serve/pipeline/jobs commands.
type appEnv struct {
	Store     store.Store
	Monitor   *monitoring.Monitor
	Alerter   *monitoring.Alerter
	Breakers  *resilience.ServiceBreakers
	Queue     *jobs.Queue
	Seeds     []seeds.Seed
	Extractor *extract.Client
	Manager   *pipeline.Manager
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Checker returns a usage alert checker bound to the environment's monitor.
func (e *appEnv) Checker() *monitoring.Checker {
	return monitoring.NewChecker(e.Monitor, e.Alerter)
}

// initStore opens and migrates the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv validates config for mode, opens the store, and builds every
// pipeline collaborator. Services without an API key are left out; runs
// that need them fail with a configuration error. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	seedList, err := seeds.Resolve(cfg.Seeds)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load seeds")
	}

	env := &appEnv{
		Store:   st,
		Monitor: monitoring.NewMonitor(st, cfg.Usage),
		Alerter: monitoring.NewAlerter(cfg.Usage),
		Breakers: resilience.NewServiceBreakers(resilience.BreakerConfig{
			FailureThreshold: cfg.Resilience.FailureThreshold,
			Cooldown:         time.Duration(cfg.Resilience.CooldownSecs) * time.Second,
		}),
		Queue: jobs.NewQueue(st, cfg.Jobs),
		Seeds: seedList,
	}

	chain, crawler := env.buildScraper()
	env.Extractor = env.buildExtractor()
	engine := env.buildDiscovery(crawler)

	env.Manager = pipeline.New(cfg, pipeline.Deps{
		Store:     st,
		Queue:     env.Queue,
		Discovery: engine,
		Scraper:   chain,
		Extractor: env.Extractor,
		Resolver:  pipeline.NewResolver(st, cfg, time.Now),
		Geocoder:  buildGeocoder(),
		Usage:     env.Monitor,
		Seeds:     seedList,
	})
	return env, nil
}

// buildScraper assembles the scrape chain: Firecrawl first when keyed,
// then the local fetcher when enabled. The chain doubles as the
// directory crawler when Firecrawl is available.
func (e *appEnv) buildScraper() (pipeline.Scraper, discovery.Crawler) {
	var (
		scrapers  []scrape.Scraper
		chainOpts []scrape.ChainOption
		withCrawl bool
	)
	if cfg.Firecrawl.CacheTTLHours > 0 {
		chainOpts = append(chainOpts, scrape.WithCacheTTL(time.Duration(cfg.Firecrawl.CacheTTLHours)*time.Hour))
	}

	if cfg.Firecrawl.Key != "" {
		fc := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(fc,
			scrape.WithUsage(e.Monitor),
			scrape.WithBreaker(e.Breakers.Get(model.ServiceFirecrawl)),
			scrape.WithWaitFor(cfg.Firecrawl.WaitForMs),
		))
		chainOpts = append(chainOpts, scrape.WithCrawler(fc, e.Monitor,
			firecrawl.WithPollInterval(time.Duration(cfg.Firecrawl.PollIntervalSecs)*time.Second),
			firecrawl.WithMaxAttempts(cfg.Firecrawl.PollMaxAttempts),
		))
		withCrawl = true
	} else {
		zap.L().Warn("FOODTRUCK_FIRECRAWL_KEY not set, firecrawl scraping disabled")
	}
	if cfg.Firecrawl.LocalFallback {
		scrapers = append(scrapers, scrape.NewLocalScraper())
	}
	if len(scrapers) == 0 {
		return nil, nil
	}

	chain := scrape.NewChain(scrapers, chainOpts...)
	if !withCrawl {
		return chain, nil
	}
	return chain, chain
}

func (e *appEnv) buildExtractor() *extract.Client {
	var llm anthropicpkg.Client
	if cfg.Anthropic.Key != "" {
		llm = anthropicpkg.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Warn("FOODTRUCK_ANTHROPIC_KEY not set, extraction disabled")
	}
	return extract.NewClient(llm, e.Monitor, cfg.Anthropic,
		extract.WithBreaker(e.Breakers.Get(model.ServiceAnthropic)),
	)
}

func buildGeocoder() pipeline.Geocoder {
	if !cfg.Geocode.Enabled {
		return nil
	}
	opts := []geocode.Option{geocode.WithRateLimit(cfg.Geocode.RateLimit)}
	if cfg.Geocode.GoogleKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
	}
	return geocode.NewClient(opts...)
}

func (e *appEnv) buildDiscovery(crawler discovery.Crawler) pipeline.Discoverer {
	var search tavily.Client
	if cfg.Tavily.Key != "" {
		search = tavily.NewClient(cfg.Tavily.Key, tavily.WithBaseURL(cfg.Tavily.BaseURL))
	} else {
		zap.L().Warn("FOODTRUCK_TAVILY_KEY not set, search discovery disabled")
	}

	opts := []discovery.Option{
		discovery.WithUsage(e.Monitor),
		discovery.WithMaxResults(cfg.Tavily.MaxResults),
	}
	if crawler != nil {
		opts = append(opts, discovery.WithCrawler(crawler))
	}
	return discovery.NewEngine(search, e.Store, cfg.Discovery, opts...)
}
