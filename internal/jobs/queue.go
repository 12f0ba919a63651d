// Package jobs implements the durable scraping job queue and the periodic
// task runner that drives the pipeline.
package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/resilience"
	"github.com/sells-group/foodtruck-cli/internal/store"
)

// Store is the job persistence the queue needs.
type Store interface {
	CreateJob(ctx context.Context, job *model.ScrapingJob) (*model.ScrapingJob, bool, error)
	GetJob(ctx context.Context, id string) (*model.ScrapingJob, error)
	ClaimNextJob(ctx context.Context, now time.Time) (*model.ScrapingJob, error)
	ClaimJob(ctx context.Context, id string, now time.Time) (*model.ScrapingJob, error)
	FinishJob(ctx context.Context, job *model.ScrapingJob) error
	ListJobs(ctx context.Context, filter store.JobFilter) ([]model.ScrapingJob, error)
	CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error)
	RequeueFailedJobs(ctx context.Context, limit int, now time.Time) (int, error)
}

// EnqueueRequest describes a job to create. Zero values take defaults.
type EnqueueRequest struct {
	URL         string
	JobType     string
	Priority    int
	MaxRetries  int
	ScheduledAt time.Time
}

// Queue wraps the store with retry and backoff rules.
type Queue struct {
	st           Store
	backoff      resilience.Backoff
	maxRetries   int
	stalledAfter time.Duration
	now          func() time.Time
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithBackoff overrides the retry delay schedule.
func WithBackoff(b resilience.Backoff) QueueOption {
	return func(q *Queue) { q.backoff = b }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a Queue.
func NewQueue(st Store, cfg config.JobsConfig, opts ...QueueOption) *Queue {
	b := resilience.DefaultJobBackoff()
	if cfg.BackoffBaseSecs > 0 {
		b.Base = time.Duration(cfg.BackoffBaseSecs) * time.Second
	}
	if cfg.BackoffMaxSecs > 0 {
		b.Max = time.Duration(cfg.BackoffMaxSecs) * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = model.DefaultMaxRetries
	}
	q := &Queue{st: st, backoff: b, maxRetries: maxRetries, now: time.Now}
	if cfg.StalledAfterMins > 0 {
		q.stalledAfter = time.Duration(cfg.StalledAfterMins) * time.Minute
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue creates a pending job. When the URL already has a pending or
// running job, that job is returned with created=false.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*model.ScrapingJob, bool, error) {
	u := strings.TrimSpace(req.URL)
	if u == "" {
		return nil, false, eris.New("jobs: enqueue requires a url")
	}
	job := &model.ScrapingJob{
		TargetURL:   u,
		JobType:     req.JobType,
		Priority:    req.Priority,
		MaxRetries:  req.MaxRetries,
		ScheduledAt: req.ScheduledAt,
	}
	if job.Priority <= 0 {
		job.Priority = model.DefaultPriority
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = q.maxRetries
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = q.now().UTC()
	}

	out, created, err := q.st.CreateJob(ctx, job)
	if err != nil {
		return nil, false, eris.Wrapf(err, "jobs: enqueue %s", u)
	}
	if created {
		zap.L().Debug("jobs: enqueued", zap.String("job_id", out.ID), zap.String("url", u), zap.Int("priority", out.Priority))
	}
	return out, created, nil
}

// EnqueueURL enqueues url with the default job type and retry budget.
func (q *Queue) EnqueueURL(ctx context.Context, url string, priority int) (*model.ScrapingJob, bool, error) {
	return q.Enqueue(ctx, EnqueueRequest{URL: url, Priority: priority})
}

// Claim moves the best due pending job to running. It returns nil when no
// job is due.
func (q *Queue) Claim(ctx context.Context) (*model.ScrapingJob, error) {
	job, err := q.st.ClaimNextJob(ctx, q.now().UTC())
	if err != nil {
		return nil, eris.Wrap(err, "jobs: claim")
	}
	return job, nil
}

// ClaimByID moves one pending job to running regardless of its schedule.
func (q *Queue) ClaimByID(ctx context.Context, id string) (*model.ScrapingJob, error) {
	job, err := q.st.ClaimJob(ctx, id, q.now().UTC())
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: claim %s", id)
	}
	return job, nil
}

// Get returns one job.
func (q *Queue) Get(ctx context.Context, id string) (*model.ScrapingJob, error) {
	return q.st.GetJob(ctx, id)
}

// List returns jobs matching filter.
func (q *Queue) List(ctx context.Context, filter store.JobFilter) ([]model.ScrapingJob, error) {
	return q.st.ListJobs(ctx, filter)
}

// Complete marks a running job completed with the collected data.
func (q *Queue) Complete(ctx context.Context, id string, data map[string]any) (*model.ScrapingJob, error) {
	job, err := q.st.GetJob(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: complete %s", id)
	}
	if job.Status != model.JobRunning {
		return nil, eris.Wrapf(store.ErrInvalidTransition, "jobs: complete %s: status %s", id, job.Status)
	}
	now := q.now().UTC()
	job.Status = model.JobCompleted
	job.CompletedAt = &now
	job.DataCollected = data
	if err := q.st.FinishJob(ctx, job); err != nil {
		return nil, eris.Wrapf(err, "jobs: complete %s", id)
	}
	return job, nil
}

// Fail records cause on a running job. The retry count grows by one up to
// MaxRetries; while it stays below MaxRetries the job is rescheduled with
// backoff, otherwise it fails for good. Permanent errors exhaust the
// retries at once, so RequeueFailed never revives them.
func (q *Queue) Fail(ctx context.Context, job *model.ScrapingJob, cause error) (*model.ScrapingJob, error) {
	if job == nil {
		return nil, eris.New("jobs: fail requires a job")
	}
	if job.Status != model.JobRunning {
		return nil, eris.Wrapf(store.ErrInvalidTransition, "jobs: fail %s: status %s", job.ID, job.Status)
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	now := q.now().UTC()

	job.Errors = append(job.Errors, msg)
	job.RetryCount = min(job.RetryCount+1, job.MaxRetries)
	if IsPermanent(cause) {
		job.RetryCount = job.MaxRetries
	}

	if job.RetryCount < job.MaxRetries {
		job.Status = model.JobPending
		job.ScheduledAt = now.Add(q.backoff.NextDelay(job.RetryCount))
		job.CompletedAt = nil
	} else {
		job.Status = model.JobFailed
		job.CompletedAt = &now
	}

	if err := q.st.FinishJob(ctx, job); err != nil {
		return nil, eris.Wrapf(err, "jobs: fail %s", job.ID)
	}
	zap.L().Info("jobs: attempt failed",
		zap.String("job_id", job.ID),
		zap.String("url", job.TargetURL),
		zap.String("status", string(job.Status)),
		zap.Int("retry_count", job.RetryCount),
		zap.Time("scheduled_at", job.ScheduledAt),
		zap.String("error", msg),
	)
	return job, nil
}

// RequeueFailed moves failed jobs with retries left back to pending,
// counting the requeue as a retry.
func (q *Queue) RequeueFailed(ctx context.Context, limit int) (int, error) {
	n, err := q.st.RequeueFailedJobs(ctx, limit, q.now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "jobs: requeue failed")
	}
	return n, nil
}

// stalledBatch caps how many running jobs one ReapStalled call inspects.
const stalledBatch = 500

// ReapStalled fails running jobs started longer than the stalled timeout
// ago, as if their attempt had errored, so a crashed worker cannot hold a
// URL forever. Jobs finished meanwhile are skipped.
func (q *Queue) ReapStalled(ctx context.Context) (int, error) {
	if q.stalledAfter <= 0 {
		return 0, nil
	}
	cutoff := q.now().UTC().Add(-q.stalledAfter)
	running, err := q.st.ListJobs(ctx, store.JobFilter{Status: model.JobRunning, Limit: stalledBatch})
	if err != nil {
		return 0, eris.Wrap(err, "jobs: list running")
	}

	reaped := 0
	for i := range running {
		job := &running[i]
		if job.StartedAt == nil || !job.StartedAt.Before(cutoff) {
			continue
		}
		cause := eris.Errorf("stalled: running since %s", job.StartedAt.UTC().Format(time.RFC3339))
		if _, err := q.Fail(ctx, job, cause); err != nil {
			if errors.Is(err, store.ErrInvalidTransition) {
				continue
			}
			return reaped, err
		}
		reaped++
	}
	return reaped, nil
}

// Stats returns job counts per status, with every status present.
func (q *Queue) Stats(ctx context.Context) (map[model.JobStatus]int, error) {
	counts, err := q.st.CountJobsByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: stats")
	}
	for _, s := range []model.JobStatus{model.JobPending, model.JobRunning, model.JobCompleted, model.JobFailed} {
		if _, ok := counts[s]; !ok {
			counts[s] = 0
		}
	}
	return counts, nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
