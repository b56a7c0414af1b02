package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sshguard/internal/config"
	"sshguard/internal/geo"
	"sshguard/internal/model"
	"sshguard/internal/users"
)

type Engine struct {
	logger *slog.Logger
	cfg    atomic.Value
	rules  atomic.Value
	store  *AttemptStore
	geo    geo.Classifier
	users  users.Registry
	clock  func() time.Time

	stateMu     sync.Mutex
	lastSuccess map[string]time.Time
	started     time.Time
	lastRun     time.Time
	lastAlerts  int
}

type Stats struct {
	Attempts        int       `json:"attempts"`
	StoreCapacity   int       `json:"store_capacity"`
	TrackedIPs      int       `json:"tracked_ips"`
	Started         time.Time `json:"started"`
	LastAnalysis    time.Time `json:"last_analysis,omitempty"`
	LastAlertCount  int       `json:"last_alert_count"`
	AnalysisWindow  string    `json:"analysis_window"`
	BruteForceLimit int       `json:"brute_force_threshold"`
}

type Option func(*Engine)

// WithClock replaces time.Now for timestamps and window cutoffs.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEngine wires the store and detectors. A nil classifier tags every address
// UNKNOWN; a nil registry treats every username as non-existent.
func NewEngine(cfg *config.Config, logger *slog.Logger, classifier geo.Classifier, registry users.Registry, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if classifier == nil {
		classifier = geo.Static{}
	}
	if registry == nil {
		registry = users.NewSnapshot()
	}
	e := &Engine{
		logger:      logger,
		geo:         classifier,
		users:       registry,
		clock:       time.Now,
		lastSuccess: make(map[string]time.Time),
		store:       NewAttemptStore(cfg.Detection.StoreCapacity, cfg.Detection.EvictBatch),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.started = e.clock()
	e.cfg.Store(cfg)
	e.rules.Store(buildRuleset(cfg))
	return e
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	e.cfg.Store(cfg)
	e.rules.Store(buildRuleset(cfg))
	e.store.Resize(cfg.Detection.StoreCapacity, cfg.Detection.EvictBatch)
}

// Config returns the active configuration.
func (e *Engine) Config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

func (e *Engine) ruleset() *ruleset {
	if v := e.rules.Load(); v != nil {
		return v.(*ruleset)
	}
	return buildRuleset(config.DefaultConfig())
}

// Start drains the producer channel into the store until ctx is done or the
// channel closes.
func (e *Engine) Start(ctx context.Context, in <-chan model.ConnectionAttempt) {
	go func() {
		for {
			select {
			case att, ok := <-in:
				if !ok {
					return
				}
				e.Append(att)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Append stores a pre-built attempt. A zero timestamp is stamped with now.
func (e *Engine) Append(att model.ConnectionAttempt) {
	if att.Timestamp.IsZero() {
		att.Timestamp = e.clock()
	}
	e.store.Append(att)
}

func (e *Engine) AddConnectionAttempt(ip, username string, success bool, port int) {
	e.store.Append(model.ConnectionAttempt{
		Timestamp: e.clock(),
		IP:        ip,
		Username:  username,
		Success:   success,
		Port:      port,
	})
}

// Analyze runs every detector over the analysis window. Calls are serialised
// because the time-anomaly detector updates per-IP state; concurrent callers
// observe each other's updates in call order.
func (e *Engine) Analyze() []model.Alert {
	rules := e.ruleset()
	now := e.clock()
	attempts := e.store.Window(now.Add(-rules.analysisWindow))

	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.lastRun = now
	if len(attempts) == 0 {
		e.lastAlerts = 0
		return nil
	}

	a := &analysis{
		snapshot:    newSnapshot(attempts, e.geo),
		rules:       rules,
		users:       e.users,
		lastSuccess: e.lastSuccess,
		now:         now,
	}
	var out []model.Alert
	for _, d := range pipeline {
		found := d.run(a)
		if len(found) > 0 {
			e.logger.Debug("detector matched", "type", d.kind, "alerts", len(found))
		}
		out = append(out, found...)
	}
	e.lastAlerts = len(out)
	return out
}

func (e *Engine) GetRecentAttempts(minutes int) []model.ConnectionAttempt {
	return e.store.Window(e.clock().Add(-time.Duration(minutes) * time.Minute))
}

// ClearOldAttempts drops attempts older than the given age and reports how many went.
func (e *Engine) ClearOldAttempts(minutes int) int {
	removed := e.store.EvictBefore(e.clock().Add(-time.Duration(minutes) * time.Minute))
	if removed > 0 {
		e.logger.Debug("evicted old attempts", "removed", removed)
	}
	return removed
}

// ClearAttempts empties the attempt store but keeps the time-anomaly history.
func (e *Engine) ClearAttempts() {
	e.store.Clear()
}

// Reset clears the store and the time-anomaly history.
func (e *Engine) Reset() {
	e.store.Clear()
	e.stateMu.Lock()
	e.lastSuccess = make(map[string]time.Time)
	e.lastAlerts = 0
	e.stateMu.Unlock()
}

func (e *Engine) Stats() Stats {
	rules := e.ruleset()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return Stats{
		Attempts:        e.store.Len(),
		StoreCapacity:   e.store.Capacity(),
		TrackedIPs:      len(e.lastSuccess),
		Started:         e.started,
		LastAnalysis:    e.lastRun,
		LastAlertCount:  e.lastAlerts,
		AnalysisWindow:  rules.analysisWindow.String(),
		BruteForceLimit: rules.bruteThreshold,
	}
}
