package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sshguard/internal/alerts"
	"sshguard/internal/config"
	"sshguard/internal/engine"
	"sshguard/internal/metrics"
	"sshguard/internal/model"
	"sshguard/internal/report"
	"sshguard/internal/storage"
)

// Monitor runs the periodic analysis loop and fans fresh alerts out to the
// in-memory stores, the optional persistent sink and the alert callback.
type Monitor struct {
	engine   *engine.Engine
	alerts   *alerts.Store
	tally    *metrics.Tally
	metrics  *metrics.Collectors
	sink     storage.Store
	cooldown *Cooldown
	logger   *slog.Logger
	clock    func() time.Time
	cfg      atomic.Value

	mu      sync.Mutex
	onAlert func(model.Alert)
}

type Deps struct {
	Alerts  *alerts.Store
	Tally   *metrics.Tally
	Metrics *metrics.Collectors
	Sink    storage.Store
	Clock   func() time.Time
}

func New(eng *engine.Engine, cfg *config.Config, deps Deps, logger *slog.Logger) *Monitor {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.Alerts == nil {
		deps.Alerts = alerts.NewStore(cfg.Alerts.StoreLimit)
	}
	if deps.Tally == nil {
		deps.Tally = metrics.NewTally(0)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	m := &Monitor{
		engine:   eng,
		alerts:   deps.Alerts,
		tally:    deps.Tally,
		metrics:  deps.Metrics,
		sink:     deps.Sink,
		cooldown: NewCooldown(cfg.Monitor.AlertCooldown),
		logger:   logger,
		clock:    deps.Clock,
	}
	m.cfg.Store(cfg)
	return m
}

// OnAlert registers a callback invoked for every delivered alert.
func (m *Monitor) OnAlert(fn func(model.Alert)) {
	m.mu.Lock()
	m.onAlert = fn
	m.mu.Unlock()
}

func (m *Monitor) SetConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	m.cfg.Store(cfg)
	m.cooldown.SetPeriod(cfg.Monitor.AlertCooldown)
}

func (m *Monitor) config() *config.Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (m *Monitor) Alerts() *alerts.Store { return m.alerts }

func (m *Monitor) Tally() *metrics.Tally { return m.tally }

// Reset forgets cooldown state so the next pass reports every finding again.
func (m *Monitor) Reset() {
	m.cooldown.Reset()
}

// Tick runs one analysis pass and returns the alerts that survived the
// cooldown filter.
func (m *Monitor) Tick(ctx context.Context) []model.Alert {
	start := time.Now()
	found := m.engine.Analyze()
	m.metrics.ObserveAnalysis(time.Since(start), m.engine.Stats().Attempts, found)

	now := m.clock()
	m.cooldown.Prune(now)
	fresh := make([]model.Alert, 0, len(found))
	for _, a := range found {
		if m.cooldown.Allow(a, now) {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	m.alerts.Add(fresh...)
	m.tally.Record(fresh...)
	if m.sink != nil {
		if err := m.sink.SaveAlerts(ctx, fresh); err != nil {
			m.metrics.ObserveSinkError()
			m.logger.Error("persist alerts failed", "count", len(fresh), "err", err)
		}
	}

	m.mu.Lock()
	fn := m.onAlert
	m.mu.Unlock()
	for _, a := range fresh {
		m.logger.Warn("ssh alert",
			"alert", report.FormatAlertLine(a),
			"type", a.Type,
			"severity", a.Severity,
			"ip", a.IP,
			"username", a.Username,
		)
		if fn != nil {
			fn(a)
		}
	}
	return fresh
}

// Housekeep drops attempts older than the retention period.
func (m *Monitor) Housekeep() int {
	retention := m.config().Monitor.Retention
	minutes := int(retention / time.Minute)
	if minutes <= 0 {
		minutes = 1
	}
	removed := m.engine.ClearOldAttempts(minutes)
	if removed > 0 {
		m.logger.Debug("cleared old attempts", "removed", removed, "retention", retention)
	}
	return removed
}

// Run blocks until ctx is done. Interval changes from a config reload take
// effect after the next tick.
func (m *Monitor) Run(ctx context.Context) {
	cfg := m.config()
	interval := cfg.Monitor.Interval
	housekeeping := cfg.Monitor.HousekeepingInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if housekeeping <= 0 {
		housekeeping = time.Minute
	}
	analyze := time.NewTicker(interval)
	defer analyze.Stop()
	clean := time.NewTicker(housekeeping)
	defer clean.Stop()
	m.logger.Info("monitor started", "interval", interval, "housekeeping", housekeeping)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return
		case <-analyze.C:
			m.Tick(ctx)
			if next := m.config().Monitor.Interval; next > 0 && next != interval {
				interval = next
				analyze.Reset(interval)
			}
		case <-clean.C:
			m.Housekeep()
			if next := m.config().Monitor.HousekeepingInterval; next > 0 && next != housekeeping {
				housekeeping = next
				clean.Reset(housekeeping)
			}
		}
	}
}
