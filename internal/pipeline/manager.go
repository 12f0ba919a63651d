// Package pipeline runs the acquisition workflows: discovery, job
// processing, full runs and maintenance.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/discovery"
	"github.com/sells-group/foodtruck-cli/internal/extract"
	"github.com/sells-group/foodtruck-cli/internal/jobs"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/quality"
	"github.com/sells-group/foodtruck-cli/internal/scrape"
	"github.com/sells-group/foodtruck-cli/internal/seeds"
	"github.com/sells-group/foodtruck-cli/internal/store"
	"github.com/sells-group/foodtruck-cli/pkg/geocode"
)

// Store is the persistence the manager reads and writes directly.
type Store interface {
	GetDiscoveredURL(ctx context.Context, url string) (*model.DiscoveredURL, error)
	UpdateDiscoveredStatus(ctx context.Context, url string, status model.DiscoveredStatus) error
	CountDiscoveredByStatus(ctx context.Context) (map[model.DiscoveredStatus]int, error)
	FindBusinessBySourceURL(ctx context.Context, url string) (*model.BusinessRecord, error)
	ListBusinesses(ctx context.Context, filter store.BusinessFilter) ([]model.BusinessRecord, error)
	UpdateBusiness(ctx context.Context, b *model.BusinessRecord, nameKey string) error
	CountBusinesses(ctx context.Context) (int, error)
}

// Queue is the scraping job queue.
type Queue interface {
	Enqueue(ctx context.Context, req jobs.EnqueueRequest) (*model.ScrapingJob, bool, error)
	EnqueueURL(ctx context.Context, url string, priority int) (*model.ScrapingJob, bool, error)
	Claim(ctx context.Context) (*model.ScrapingJob, error)
	ClaimByID(ctx context.Context, id string) (*model.ScrapingJob, error)
	Complete(ctx context.Context, id string, data map[string]any) (*model.ScrapingJob, error)
	Fail(ctx context.Context, job *model.ScrapingJob, cause error) (*model.ScrapingJob, error)
	RequeueFailed(ctx context.Context, limit int) (int, error)
	ReapStalled(ctx context.Context) (int, error)
	Stats(ctx context.Context) (map[model.JobStatus]int, error)
}

// Discoverer finds and queues candidate URLs.
type Discoverer interface {
	Discover(ctx context.Context, cities []discovery.City, maxURLs int) (*discovery.Result, error)
	CrawlDirectories(ctx context.Context, directoryURLs []string, maxURLs int) (*discovery.Result, error)
	QueueNew(ctx context.Context, q discovery.Enqueuer, limit, priority int) (int, error)
}

// Scraper fetches page content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*scrape.Result, error)
}

// Extractor turns page content into truck data.
type Extractor interface {
	FullExtraction(ctx context.Context, markdown, sourceURL string) *extract.Result
}

// Upserter stores a candidate record, merging duplicates.
type Upserter interface {
	Upsert(ctx context.Context, cand *model.BusinessRecord) (*model.BusinessRecord, bool, error)
}

// Geocoder resolves addresses to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocode.Result, error)
}

// UsageReporter reports API quota usage.
type UsageReporter interface {
	Snapshot(ctx context.Context) ([]monitoring.ServiceUsage, error)
}

// TaskReporter reports scheduler state.
type TaskReporter interface {
	Status() []jobs.TaskStatus
}

// Deps are the collaborators of a Manager. Discovery, Scraper, Extractor
// and Resolver may be nil; runs that need a missing one fail. Geocoder is
// optional.
type Deps struct {
	Store     Store
	Queue     Queue
	Discovery Discoverer
	Scraper   Scraper
	Extractor Extractor
	Resolver  Upserter
	Geocoder  Geocoder
	Usage     UsageReporter
	Seeds     []seeds.Seed
	Now       func() time.Time
}

// Manager runs pipelines and reports their state.
type Manager struct {
	cfg       *config.Config
	st        Store
	queue     Queue
	disc      Discoverer
	scraper   Scraper
	extractor Extractor
	resolver  Upserter
	geocoder  Geocoder
	usage     UsageReporter
	scorer    *quality.Scorer
	seeds     []seeds.Seed
	now       func() time.Time

	mu    sync.Mutex
	last  *Result
	tasks TaskReporter
}

// New creates a Manager.
func New(cfg *config.Config, deps Deps) *Manager {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		cfg:       cfg,
		st:        deps.Store,
		queue:     deps.Queue,
		disc:      deps.Discovery,
		scraper:   deps.Scraper,
		extractor: deps.Extractor,
		resolver:  deps.Resolver,
		geocoder:  deps.Geocoder,
		usage:     deps.Usage,
		scorer:    quality.NewScorer(now),
		seeds:     deps.Seeds,
		now:       now,
	}
}

// AttachScheduler makes scheduler state part of Status.
func (m *Manager) AttachScheduler(t TaskReporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = t
}

// Request asks for one pipeline run.
type Request struct {
	Type   Type   `json:"type"`
	Params Params `json:"params"`
}

// Phase is the terminal state of a run.
type Phase string

const (
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Summary counts what a run did.
type Summary struct {
	URLsDiscovered int   `json:"urls_discovered"`
	URLsProcessed  int   `json:"urls_processed"`
	JobsCreated    int   `json:"jobs_created"`
	TrucksCreated  int   `json:"trucks_created"`
	TrucksUpdated  int   `json:"trucks_updated"`
	Errors         int   `json:"errors"`
	DurationMS     int64 `json:"duration_ms"`
}

// Result is the outcome of Run. Per-job failures are listed in Errors
// without failing the run; Success is false only when a phase failed.
type Result struct {
	Success   bool           `json:"success"`
	Type      Type           `json:"type"`
	Phase     Phase          `json:"phase"`
	Summary   Summary        `json:"summary"`
	Details   map[string]any `json:"details"`
	Error     string         `json:"error,omitempty"`
	Errors    []string       `json:"errors"`
	Timestamp time.Time      `json:"timestamp"`
}

func (r *Result) addErrors(errs ...string) {
	r.Errors = append(r.Errors, errs...)
}

// Run executes one pipeline. It never returns an error or panics: every
// failure becomes a failed Result.
func (m *Manager) Run(ctx context.Context, req Request) (res *Result) {
	start := m.now()
	res = &Result{Type: req.Type, Details: map[string]any{}, Errors: []string{}}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("type", string(req.Type)))
	log.Info("pipeline: starting run")

	defer func() {
		if p := recover(); p != nil {
			log.Error("pipeline: run panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			m.finish(res, eris.Errorf("pipeline panicked: %v", p))
		}
		res.Summary.DurationMS = m.now().Sub(start).Milliseconds()
		res.Timestamp = m.now().UTC()
		m.mu.Lock()
		m.last = res
		m.mu.Unlock()
		log.Info("pipeline: run finished",
			zap.Bool("success", res.Success),
			zap.Int("discovered", res.Summary.URLsDiscovered),
			zap.Int("processed", res.Summary.URLsProcessed),
			zap.Int("created", res.Summary.TrucksCreated),
			zap.Int("updated", res.Summary.TrucksUpdated),
			zap.Int("errors", res.Summary.Errors),
			zap.Int64("duration_ms", res.Summary.DurationMS),
		)
	}()

	p := req.Params.normalized()
	var err error
	switch req.Type {
	case TypeDiscovery:
		err = m.runDiscovery(ctx, p, res)
	case TypeProcessing:
		err = m.runProcessing(ctx, p, res)
	case TypeFull:
		err = m.runFull(ctx, p, res)
	case TypeMaintenance:
		err = m.runMaintenance(ctx, p, res)
	default:
		err = eris.Wrapf(ErrUnknownType, "%q", req.Type)
	}
	m.finish(res, err)
	return res
}

func (m *Manager) finish(res *Result, err error) {
	if err != nil {
		res.Success = false
		res.Phase = PhaseFailed
		res.Error = err.Error()
		res.addErrors(err.Error())
	} else {
		res.Success = true
		res.Phase = PhaseCompleted
	}
	res.Summary.Errors = len(res.Errors)
}

// LastResult returns the most recent run result, if any.
func (m *Manager) LastResult() *Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Manager) runDiscovery(ctx context.Context, p Params, res *Result) error {
	if m.disc == nil {
		return eris.New("pipeline: discovery is not configured")
	}
	dr, err := m.disc.Discover(ctx, discovery.ParseCities(p.Cities), p.MaxURLs)
	if err != nil {
		return eris.Wrap(err, "pipeline: discovery")
	}
	res.Summary.URLsDiscovered += dr.Stored
	res.addErrors(dr.Errors...)
	res.Details["discovery"] = dr

	dirs := m.cfg.Discovery.DirectoryURLs
	if remaining := p.MaxURLs - dr.Found; len(dirs) > 0 && remaining > 0 {
		cr, err := m.disc.CrawlDirectories(ctx, dirs, remaining)
		if err != nil {
			res.addErrors(fmt.Sprintf("directory crawl: %v", err))
			return nil
		}
		res.Summary.URLsDiscovered += cr.Stored
		res.addErrors(cr.Errors...)
		res.Details["directories"] = cr
	}
	return nil
}

func (m *Manager) runFull(ctx context.Context, p Params, res *Result) error {
	if !p.SkipDiscovery {
		if err := m.runDiscovery(ctx, p, res); err != nil {
			return err
		}
	}
	if m.disc != nil {
		queued, err := m.disc.QueueNew(ctx, m.queue, p.MaxURLs, p.Priority)
		res.Summary.JobsCreated += queued
		if err != nil {
			return eris.Wrap(err, "pipeline: queue discovered urls")
		}
	}
	return m.runProcessing(ctx, p, res)
}
