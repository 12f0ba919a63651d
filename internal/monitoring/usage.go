// Package monitoring tracks daily API quota consumption per external
// service and raises leveled alerts as usage approaches the limits.
package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/config"
	"github.com/sells-group/foodtruck-cli/internal/model"
)

// ErrLimitExceeded is returned by Reserve when a call would exceed the
// service's daily request or token quota.
var ErrLimitExceeded = eris.New("usage limit exceeded")

// ErrUnknownService is returned for services without a configured limit.
var ErrUnknownService = eris.New("unknown service")

// UsageStore persists daily counters.
type UsageStore interface {
	IncrementUsage(ctx context.Context, service, day string, requests, tokens int64) (*model.UsageCounter, error)
	GetUsage(ctx context.Context, service, day string) (*model.UsageCounter, error)
}

// ServiceUsage is one service's consumption for the current day.
type ServiceUsage struct {
	Service       string  `json:"service"`
	Date          string  `json:"date"`
	RequestsUsed  int64   `json:"requests_used"`
	RequestLimit  int64   `json:"request_limit"`
	TokensUsed    int64   `json:"tokens_used"`
	TokenLimit    int64   `json:"token_limit,omitempty"`
	RequestsRatio float64 `json:"requests_ratio"`
	TokensRatio   float64 `json:"tokens_ratio,omitempty"`
}

// Ratio returns the larger of the request and token ratios.
func (u ServiceUsage) Ratio() float64 {
	if u.TokensRatio > u.RequestsRatio {
		return u.TokensRatio
	}
	return u.RequestsRatio
}

// Monitor guards external calls against daily quotas. Reserve runs the
// limit check and the request increment under one mutex so concurrent
// callers in the same process cannot overshoot the request limit.
type Monitor struct {
	mu          sync.Mutex
	store       UsageStore
	limits      map[string]config.ServiceLimit
	tokenBuffer int64
	now         func() time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock overrides the time source used to pick the usage day.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a Monitor backed by st.
func NewMonitor(st UsageStore, cfg config.UsageConfig, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		store:       st,
		limits:      cfg.Limits,
		tokenBuffer: cfg.TokenBuffer,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Today returns the current usage day as YYYY-MM-DD in UTC.
func (m *Monitor) Today() string {
	return m.now().UTC().Format("2006-01-02")
}

// Services returns the configured services in name order.
func (m *Monitor) Services() []string {
	out := make([]string, 0, len(m.limits))
	for s := range m.limits {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// EstimateTokens approximates the token cost of a prompt.
func EstimateTokens(prompt string) int64 {
	return int64(len(prompt)/4 + 500)
}

// Reserve checks the service's remaining quota for one request of
// estTokens and, when allowed, counts the request immediately.
func (m *Monitor) Reserve(ctx context.Context, service string, estTokens int64) error {
	limit, ok := m.limits[service]
	if !ok {
		return eris.Wrapf(ErrUnknownService, "monitoring: %s", service)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	day := m.Today()
	cur, err := m.store.GetUsage(ctx, service, day)
	if err != nil {
		return eris.Wrapf(err, "monitoring: read usage for %s", service)
	}

	if limit.Requests > 0 && cur.RequestsUsed+1 > limit.Requests {
		zap.L().Warn("monitoring: request limit reached",
			zap.String("service", service),
			zap.Int64("requests_used", cur.RequestsUsed),
			zap.Int64("limit", limit.Requests),
		)
		return eris.Wrapf(ErrLimitExceeded, "%s: %d/%d requests", service, cur.RequestsUsed, limit.Requests)
	}
	if limit.Tokens > 0 && limit.Tokens-cur.TokensUsed-estTokens < m.tokenBuffer {
		zap.L().Warn("monitoring: token limit reached",
			zap.String("service", service),
			zap.Int64("tokens_used", cur.TokensUsed),
			zap.Int64("estimated", estTokens),
			zap.Int64("limit", limit.Tokens),
		)
		return eris.Wrapf(ErrLimitExceeded, "%s: %d/%d tokens", service, cur.TokensUsed, limit.Tokens)
	}

	if _, err := m.store.IncrementUsage(ctx, service, day, 1, 0); err != nil {
		return eris.Wrapf(err, "monitoring: reserve %s", service)
	}
	return nil
}

// Record adds the tokens actually consumed by a reserved request.
func (m *Monitor) Record(ctx context.Context, service string, tokens int64) error {
	if tokens <= 0 {
		return nil
	}
	_, err := m.store.IncrementUsage(ctx, service, m.Today(), 0, tokens)
	return eris.Wrapf(err, "monitoring: record %s tokens", service)
}

// Usage returns today's consumption for one service.
func (m *Monitor) Usage(ctx context.Context, service string) (*ServiceUsage, error) {
	limit, ok := m.limits[service]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownService, "monitoring: %s", service)
	}
	day := m.Today()
	cur, err := m.store.GetUsage(ctx, service, day)
	if err != nil {
		return nil, eris.Wrapf(err, "monitoring: read usage for %s", service)
	}

	u := &ServiceUsage{
		Service:      service,
		Date:         day,
		RequestsUsed: cur.RequestsUsed,
		RequestLimit: limit.Requests,
		TokensUsed:   cur.TokensUsed,
		TokenLimit:   limit.Tokens,
	}
	if limit.Requests > 0 {
		u.RequestsRatio = float64(cur.RequestsUsed) / float64(limit.Requests)
	}
	if limit.Tokens > 0 {
		u.TokensRatio = float64(cur.TokensUsed) / float64(limit.Tokens)
	}
	return u, nil
}

// Snapshot returns today's consumption for every configured service.
func (m *Monitor) Snapshot(ctx context.Context) ([]ServiceUsage, error) {
	services := m.Services()
	out := make([]ServiceUsage, 0, len(services))
	for _, s := range services {
		u, err := m.Usage(ctx, s)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}
