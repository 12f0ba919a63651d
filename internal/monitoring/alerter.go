package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/foodtruck-cli/internal/config"
)

// AlertLevel is the severity of a usage alert.
type AlertLevel string

const (
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Service   string         `json:"service"`
	Level     AlertLevel     `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates usage against warning and critical thresholds, keeps
// a bounded alert history, and delivers alerts to an optional webhook.
// A given service and level alert at most once per usage day.
type Alerter struct {
	cfg    config.UsageConfig
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	history []Alert
	raised  map[string]bool
}

// NewAlerter creates a new Alerter with the given usage config.
func NewAlerter(cfg config.UsageConfig) *Alerter {
	if cfg.AlertHistory <= 0 {
		cfg.AlertHistory = 100
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		raised: make(map[string]bool),
	}
}

// Evaluate checks each service's usage and returns new alerts. Alerts
// already raised today for the same service and level are suppressed.
func (a *Alerter) Evaluate(usage []ServiceUsage) []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().UTC()
	var alerts []Alert
	for _, u := range usage {
		ratio := u.Ratio()
		var level AlertLevel
		var threshold float64
		switch {
		case ratio >= a.cfg.CriticalThreshold:
			level, threshold = LevelCritical, a.cfg.CriticalThreshold
		case ratio >= a.cfg.WarningThreshold:
			level, threshold = LevelWarning, a.cfg.WarningThreshold
		default:
			continue
		}

		key := u.Date + "/" + u.Service + "/" + string(level)
		if a.raised[key] {
			continue
		}
		a.raised[key] = true

		alert := Alert{
			Service: u.Service,
			Level:   level,
			Message: fmt.Sprintf("%s usage at %.1f%% of daily limit (threshold %.0f%%)",
				u.Service, ratio*100, threshold*100),
			Details: map[string]any{
				"requests_used": u.RequestsUsed,
				"request_limit": u.RequestLimit,
				"tokens_used":   u.TokensUsed,
				"token_limit":   u.TokenLimit,
				"date":          u.Date,
			},
			Timestamp: now,
		}
		alerts = append(alerts, alert)
		a.history = append(a.history, alert)
	}

	if over := len(a.history) - a.cfg.AlertHistory; over > 0 {
		a.history = append([]Alert(nil), a.history[over:]...)
	}
	return alerts
}

// History returns the most recent alerts, oldest first.
func (a *Alerter) History() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Alert(nil), a.history...)
}

// SendAlerts logs every alert and delivers it to the configured webhook.
// Returns the number of alerts successfully sent to the webhook.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	for _, alert := range alerts {
		log := zap.L().With(zap.String("service", alert.Service), zap.String("level", string(alert.Level)))
		if alert.Level == LevelCritical {
			log.Error("monitoring: " + alert.Message)
		} else {
			log.Warn("monitoring: " + alert.Message)
		}
	}

	if a.cfg.AlertWebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("service", alert.Service),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.AlertWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
