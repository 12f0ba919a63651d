package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/dedup"
	"github.com/sells-group/foodtruck-cli/internal/jobs"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/quality"
)

// Status is a point-in-time view of the pipeline.
type Status struct {
	Jobs           map[model.JobStatus]int        `json:"jobs"`
	DiscoveredURLs map[model.DiscoveredStatus]int `json:"discovered_urls"`
	Trucks         int                            `json:"trucks"`
	LastRun        *Result                        `json:"last_run,omitempty"`
	Usage          []monitoring.ServiceUsage      `json:"usage,omitempty"`
	Scheduler      []jobs.TaskStatus              `json:"scheduler,omitempty"`
}

// Status collects job, URL and record counts plus usage and scheduler
// state.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	st := &Status{LastRun: m.LastResult()}
	var err error
	if st.Jobs, err = m.queue.Stats(ctx); err != nil {
		return nil, err
	}
	if st.DiscoveredURLs, err = m.st.CountDiscoveredByStatus(ctx); err != nil {
		return nil, eris.Wrap(err, "pipeline: count discovered urls")
	}
	if st.Trucks, err = m.st.CountBusinesses(ctx); err != nil {
		return nil, eris.Wrap(err, "pipeline: count trucks")
	}
	if m.usage != nil {
		if st.Usage, err = m.usage.Snapshot(ctx); err != nil {
			return nil, eris.Wrap(err, "pipeline: usage snapshot")
		}
	}
	m.mu.Lock()
	tasks := m.tasks
	m.mu.Unlock()
	if tasks != nil {
		st.Scheduler = tasks.Status()
	}
	return st, nil
}

// NewResolver builds the duplicate resolver used for processing. Every
// record it writes is scored and flagged first.
func NewResolver(st dedup.Store, cfg *config.Config, now func() time.Time) *dedup.Resolver {
	scorer := quality.NewScorer(now)
	threshold := cfg.Pipeline.QualityFlagThreshold
	return dedup.NewResolver(st, cfg.Dedup, dedup.WithPrepare(func(rec *model.BusinessRecord) {
		scorer.Apply(rec, threshold)
	}))
}

// UsageChecker evaluates quota usage and sends alerts.
type UsageChecker interface {
	Check(ctx context.Context) ([]monitoring.Alert, error)
}

// DefaultTasks returns the periodic tasks run by serve.
func DefaultTasks(m *Manager, checker UsageChecker, cfg config.SchedulerConfig) []jobs.Task {
	mins := func(n, def int) time.Duration {
		if n <= 0 {
			n = def
		}
		return time.Duration(n) * time.Minute
	}
	run := func(t Type) func(context.Context) error {
		return func(ctx context.Context) error {
			res := m.Run(ctx, Request{Type: t, Params: DefaultParams(m.cfg)})
			if !res.Success {
				return eris.New(res.Error)
			}
			return nil
		}
	}

	tasks := []jobs.Task{
		{
			ID:          "job_processing",
			Name:        "Job processing",
			Description: "Process pending scraping jobs",
			Interval:    mins(cfg.JobProcessingMins, 30),
			Enabled:     true,
			Execute:     run(TypeProcessing),
		},
		{
			ID:          "maintenance",
			Name:        "Maintenance",
			Description: "Refresh stale trucks and keep seed URLs queued",
			Interval:    mins(cfg.MaintenanceMins, 360),
			Enabled:     true,
			Execute:     run(TypeMaintenance),
		},
		{
			ID:          "data_quality_check",
			Name:        "Data quality check",
			Description: "Rescore trucks and flag low quality records",
			Interval:    mins(cfg.DataQualityMins, 720),
			Enabled:     true,
			Execute: func(ctx context.Context) error {
				_, err := m.CheckQuality(ctx)
				return err
			},
		},
		{
			ID:          "discovery",
			Name:        "Discovery",
			Description: "Search configured cities for new food truck sites",
			Interval:    mins(cfg.DiscoveryMins, 1440),
			Enabled:     true,
			Execute:     run(TypeDiscovery),
		},
	}
	if checker != nil {
		tasks = append(tasks, jobs.Task{
			ID:          "usage_check",
			Name:        "Usage check",
			Description: "Evaluate API usage and send alerts",
			Interval:    mins(cfg.UsageCheckMins, 30),
			Enabled:     true,
			Execute: func(ctx context.Context) error {
				alerts, err := checker.Check(ctx)
				if len(alerts) > 0 {
					zap.L().Info("pipeline: usage alerts", zap.Int("count", len(alerts)))
				}
				return err
			},
		})
	}
	return tasks
}
