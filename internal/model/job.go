package model

import "time"

// JobStatus is the lifecycle state of a scraping job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsActive reports whether the status counts toward the one-live-job-per-URL rule.
func (s JobStatus) IsActive() bool {
	return s == JobPending || s == JobRunning
}

// Job defaults.
const (
	DefaultJobType    = "website"
	DefaultPriority   = 5
	DefaultMaxRetries = 3
)

// ScrapingJob is a unit of work to fetch and extract one URL.
type ScrapingJob struct {
	ID            string         `json:"id"`
	TargetURL     string         `json:"target_url"`
	JobType       string         `json:"job_type"`
	Priority      int            `json:"priority"`
	Status        JobStatus      `json:"status"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	ScheduledAt   time.Time      `json:"scheduled_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Errors        []string       `json:"errors"`
	DataCollected map[string]any `json:"data_collected,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// CanRetry reports whether another attempt is allowed.
func (j *ScrapingJob) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// DiscoveredStatus is the review state of a discovered URL.
type DiscoveredStatus string

const (
	DiscoveredNew       DiscoveredStatus = "new"
	DiscoveredQueued    DiscoveredStatus = "queued"
	DiscoveredProcessed DiscoveredStatus = "processed"
	DiscoveredRejected  DiscoveredStatus = "rejected"
)

var discoveredOrder = map[DiscoveredStatus]int{
	DiscoveredNew:       0,
	DiscoveredQueued:    1,
	DiscoveredProcessed: 2,
}

// CanAdvanceTo reports whether s may move to next. Statuses only move
// forward, except that any status may become rejected.
func (s DiscoveredStatus) CanAdvanceTo(next DiscoveredStatus) bool {
	if next == DiscoveredRejected {
		return true
	}
	from, ok := discoveredOrder[s]
	if !ok {
		return false
	}
	to, ok := discoveredOrder[next]
	return ok && to > from
}

// DiscoveredURL is a candidate page found by discovery.
type DiscoveredURL struct {
	ID           string           `json:"id"`
	URL          string           `json:"url"`
	Status       DiscoveredStatus `json:"status"`
	SourceQuery  string           `json:"source_query,omitempty"`
	Region       string           `json:"region,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	DiscoveredAt time.Time        `json:"discovered_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
