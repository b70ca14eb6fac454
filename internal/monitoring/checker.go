package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker periodically collects a snapshot, evaluates it and delivers
// alerts. An alert type that fired recently is held back until the
// cooldown elapses so a sustained breach does not page on every tick.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	lookback  int
	interval  time.Duration
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	last      *MetricsSnapshot
	lastFired map[AlertType]time.Time
}

// NewChecker wires a collector and alerter into a background loop.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		lookback:  cfg.LookbackWindowHours,
		interval:  interval,
		cooldown:  time.Duration(cfg.AlertCooldownMins) * time.Minute,
		now:       time.Now,
		lastFired: make(map[AlertType]time.Time),
	}
}

// Run checks once immediately, then on every tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", c.interval),
		zap.Duration("cooldown", c.cooldown),
		zap.Int("lookback_hours", c.lookback),
	)

	if ctx.Err() == nil {
		c.check(ctx, log)
	}

	ticker := time.NewTicker(c.interval)
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

// LastSnapshot returns the most recent successfully collected snapshot.
func (c *Checker) LastSnapshot() (MetricsSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return MetricsSnapshot{}, false
	}
	return *c.last, true
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return 0
	}

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()

	alerts := c.suppress(c.alerter.Evaluate(snap))
	if len(alerts) == 0 {
		log.Debug("monitoring: no new alerts",
			zap.Int("documents", snap.Documents),
			zap.Int("ai_requests", snap.AIRequests),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return len(alerts)
}

// suppress drops alerts whose type fired within the cooldown window and
// stamps the rest.
func (c *Checker) suppress(alerts []Alert) []Alert {
	if len(alerts) == 0 {
		return nil
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	out := alerts[:0:0]
	for _, a := range alerts {
		if at, ok := c.lastFired[a.Type]; ok && c.cooldown > 0 && now.Sub(at) < c.cooldown {
			continue
		}
		c.lastFired[a.Type] = now
		out = append(out, a)
	}
	return out
}
