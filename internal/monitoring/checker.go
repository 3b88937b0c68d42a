package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/customer-map/internal/config"
)

// Checker runs periodic alert checks in the background. An alert is sent
// when its condition first appears and again only after it has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	mu     sync.Mutex
	active map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    make(map[AlertType]bool),
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	c.run(ctx, interval)
}

func (c *Checker) run(ctx context.Context, interval time.Duration) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("stale_after_secs", c.cfg.StaleAfterSecs),
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

// Active returns the alert types currently firing.
func (c *Checker) Active() []AlertType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AlertType, 0, len(c.active))
	for _, t := range []AlertType{AlertCRMDisconnected, AlertSyncStale, AlertLowGeocodeCoverage} {
		if c.active[t] {
			out = append(out, t)
		}
	}
	return out
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap := c.collector.Collect()
	if snap.Syncing {
		log.Debug("monitoring: sync in progress, deferring check")
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	fresh := c.transition(alerts, log)
	if len(fresh) == 0 {
		log.Debug("monitoring: no new alerts",
			zap.Int("alerts_firing", len(alerts)),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}

// transition records the firing set and returns the alerts that were not
// firing on the previous check.
func (c *Checker) transition(alerts []Alert, log *zap.Logger) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	firing := make(map[AlertType]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		firing[a.Type] = true
		if !c.active[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for t := range c.active {
		if !firing[t] {
			log.Info("monitoring: alert resolved", zap.String("type", string(t)))
		}
	}
	c.active = firing
	return fresh
}
