package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/crowdcount/internal/config"
)

// Checker runs periodic alert checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_minutes", c.cfg.LookbackMinutes),
		zap.Strings("projects", c.cfg.Projects),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check evaluates every watched project once and returns the number of
// alerts triggered.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	lookback := time.Duration(c.cfg.LookbackMinutes) * time.Minute
	triggered := 0

	for _, id := range c.cfg.Projects {
		snap, err := c.collector.Collect(ctx, id, lookback)
		if err != nil {
			log.Error("monitoring: failed to collect snapshot", zap.String("project", id), zap.Error(err))
			continue
		}

		alerts := c.alerter.Evaluate(snap)
		if len(alerts) == 0 {
			log.Debug("monitoring: no alerts triggered", zap.String("project", id))
			continue
		}
		triggered += len(alerts)

		sent := c.alerter.SendAlerts(ctx, alerts)
		log.Info("monitoring: alert check complete",
			zap.String("project", id),
			zap.Int64("current", snap.Current),
			zap.Int("alerts_triggered", len(alerts)),
			zap.Int("alerts_sent", sent),
		)
	}
	return triggered
}
