package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/foodtruck-cli/internal/config"
)

// Type selects what a pipeline run does.
type Type string

const (
	TypeDiscovery   Type = "discovery"
	TypeProcessing  Type = "processing"
	TypeFull        Type = "full"
	TypeMaintenance Type = "maintenance"
)

// ErrUnknownType is returned for unsupported pipeline types.
var ErrUnknownType = eris.New("unknown pipeline type")

// ParseType validates a pipeline type name.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeDiscovery, TypeProcessing, TypeFull, TypeMaintenance:
		return t, nil
	default:
		return "", eris.Wrapf(ErrUnknownType, "%q", s)
	}
}

const (
	maxConcurrency      = 5
	maintenancePriority = 1
)

// Params tunes one run.
type Params struct {
	Cities          []string `json:"cities"`
	MaxURLs         int      `json:"max_urls"`
	MaxJobs         int      `json:"max_jobs"`
	Priority        int      `json:"priority"`
	Concurrency     int      `json:"concurrency"`
	StaleDays       int      `json:"stale_days"`
	SkipDiscovery   bool     `json:"skip_discovery"`
	RetryFailedJobs bool     `json:"retry_failed_jobs"`
}

// DefaultParams builds run parameters from configuration.
func DefaultParams(cfg *config.Config) Params {
	return Params{
		Cities:      append([]string(nil), cfg.Discovery.Cities...),
		MaxURLs:     cfg.Pipeline.MaxURLs,
		MaxJobs:     cfg.Pipeline.MaxJobs,
		Priority:    cfg.Pipeline.Priority,
		Concurrency: cfg.Pipeline.Concurrency,
		StaleDays:   cfg.Pipeline.StaleDays,
	}.normalized()
}

// Overrides carries caller-supplied parameters. Nil fields keep defaults.
// maxUrlsToProcess is accepted as an alias of maxJobs.
type Overrides struct {
	Cities           []string `json:"cities"`
	MaxURLs          *int     `json:"maxUrls"`
	MaxJobs          *int     `json:"maxJobs"`
	MaxURLsToProcess *int     `json:"maxUrlsToProcess"`
	Priority         *int     `json:"priority"`
	Concurrency      *int     `json:"concurrency"`
	StaleDays        *int     `json:"staleDays"`
	SkipDiscovery    *bool    `json:"skipDiscovery"`
	RetryFailedJobs  *bool    `json:"retryFailedJobs"`
}

// Apply returns p with o's set fields applied.
func (p Params) Apply(o Overrides) Params {
	if len(o.Cities) > 0 {
		p.Cities = o.Cities
	}
	setInt(&p.MaxURLs, o.MaxURLs)
	setInt(&p.MaxJobs, o.MaxURLsToProcess)
	setInt(&p.MaxJobs, o.MaxJobs)
	setInt(&p.Priority, o.Priority)
	setInt(&p.Concurrency, o.Concurrency)
	setInt(&p.StaleDays, o.StaleDays)
	if o.SkipDiscovery != nil {
		p.SkipDiscovery = *o.SkipDiscovery
	}
	if o.RetryFailedJobs != nil {
		p.RetryFailedJobs = *o.RetryFailedJobs
	}
	return p.normalized()
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// normalized clamps values into their supported ranges. MaxJobs may be 0,
// which makes processing a no-op.
func (p Params) normalized() Params {
	if len(p.Cities) == 0 {
		p.Cities = []string{"Charleston, SC", "Columbia, SC", "Greenville, SC"}
	}
	if p.MaxURLs <= 0 {
		p.MaxURLs = 50
	}
	if p.MaxJobs < 0 {
		p.MaxJobs = 0
	}
	if p.Priority < 1 {
		p.Priority = 5
	}
	p.Priority = min(p.Priority, 10)
	p.Concurrency = min(max(p.Concurrency, 1), maxConcurrency)
	if p.StaleDays <= 0 {
		p.StaleDays = 7
	}
	return p
}
