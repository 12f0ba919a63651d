package monitoring

import (
	"context"

	"go.uber.org/zap"
)

// Checker evaluates current usage and sends any new alerts. It is run by
// the usage_check scheduled task.
type Checker struct {
	monitor *Monitor
	alerter *Alerter
}

// NewChecker creates a usage alert checker.
func NewChecker(monitor *Monitor, alerter *Alerter) *Checker {
	return &Checker{monitor: monitor, alerter: alerter}
}

// Check takes a usage snapshot, evaluates it, and delivers new alerts.
func (c *Checker) Check(ctx context.Context) ([]Alert, error) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.monitor.Snapshot(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect usage", zap.Error(err))
		return nil, err
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return nil, nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts, nil
}
