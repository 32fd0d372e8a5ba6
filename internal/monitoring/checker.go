package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadval-cli/internal/config"
)

// Checker drives collect-evaluate-send cycles on a timer.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	log       *zap.Logger
}

// NewChecker builds a background health checker. A zero interval falls back
// to five minutes, a zero lookback to 24 hours.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  time.Duration(cfg.IntervalSecs) * time.Second,
		lookback:  cfg.LookbackHours,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
	if c.interval <= 0 {
		c.interval = 5 * time.Minute
	}
	if c.lookback <= 0 {
		c.lookback = 24
	}
	return c
}

// Run checks once immediately, then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("health checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.check(ctx)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx)
		}
	}
}

func (c *Checker) check(ctx context.Context) {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		c.log.Error("collect health snapshot", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		c.log.Debug("all health checks passed")
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	c.log.Warn("health thresholds breached",
		zap.Int("alerts", len(alerts)),
		zap.Int("delivered", sent),
	)
}
