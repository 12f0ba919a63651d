// Package store persists discovered URLs, scraping jobs, business records
// and API usage counters.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/foodtruck-cli/internal/model"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = eris.New("not found")

// ErrInvalidTransition is returned when a status change violates the
// lifecycle rules of a discovered URL or job.
var ErrInvalidTransition = eris.New("invalid status transition")

// URLFilter selects discovered URLs.
type URLFilter struct {
	Status model.DiscoveredStatus
	Limit  int
}

// JobFilter selects scraping jobs.
type JobFilter struct {
	Status model.JobStatus
	Limit  int
	Offset int
}

// BusinessFilter selects business records.
type BusinessFilter struct {
	// ScrapedBefore limits results to records last scraped before this time
	// (or never scraped).
	ScrapedBefore *time.Time
	// NamePrefix limits results to records whose normalized name key
	// starts with this prefix.
	NamePrefix string
	Limit      int
	Offset     int
}

// Store defines the persistence interface for the acquisition pipeline.
type Store interface {
	// Discovered URLs
	InsertDiscoveredURL(ctx context.Context, u *model.DiscoveredURL) (bool, error)
	GetDiscoveredURL(ctx context.Context, url string) (*model.DiscoveredURL, error)
	UpdateDiscoveredStatus(ctx context.Context, url string, status model.DiscoveredStatus) error
	ListDiscoveredURLs(ctx context.Context, filter URLFilter) ([]model.DiscoveredURL, error)
	CountDiscoveredByStatus(ctx context.Context) (map[model.DiscoveredStatus]int, error)

	// Scraping jobs
	CreateJob(ctx context.Context, job *model.ScrapingJob) (*model.ScrapingJob, bool, error)
	GetJob(ctx context.Context, id string) (*model.ScrapingJob, error)
	ClaimNextJob(ctx context.Context, now time.Time) (*model.ScrapingJob, error)
	ClaimJob(ctx context.Context, id string, now time.Time) (*model.ScrapingJob, error)
	FinishJob(ctx context.Context, job *model.ScrapingJob) error
	ListJobs(ctx context.Context, filter JobFilter) ([]model.ScrapingJob, error)
	CountJobsByStatus(ctx context.Context) (map[model.JobStatus]int, error)
	RequeueFailedJobs(ctx context.Context, limit int, now time.Time) (int, error)

	// Business records
	CreateBusiness(ctx context.Context, b *model.BusinessRecord, nameKey string) error
	UpdateBusiness(ctx context.Context, b *model.BusinessRecord, nameKey string) error
	GetBusiness(ctx context.Context, id string) (*model.BusinessRecord, error)
	FindBusinessBySourceURL(ctx context.Context, url string) (*model.BusinessRecord, error)
	FindBusinessByNameKey(ctx context.Context, nameKey string) (*model.BusinessRecord, error)
	ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.BusinessRecord, error)
	CountBusinesses(ctx context.Context) (int, error)

	// Usage counters
	IncrementUsage(ctx context.Context, service, day string, requests, tokens int64) (*model.UsageCounter, error)
	GetUsage(ctx context.Context, service, day string) (*model.UsageCounter, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const timeLayout = "2006-01-02T15:04:05.000000Z"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse time %q", s)
	}
	return t, nil
}
