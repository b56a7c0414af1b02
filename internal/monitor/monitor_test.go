package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"sshguard/internal/config"
	"sshguard/internal/engine"
	"sshguard/internal/model"
	"sshguard/internal/users"
)

var base = time.Date(2026, 10, 14, 11, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeSink struct {
	saved []model.Alert
	err   error
}

func (s *fakeSink) Init(context.Context) error { return nil }
func (s *fakeSink) Close() error               { return nil }

func (s *fakeSink) SaveAlerts(_ context.Context, alerts []model.Alert) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, alerts...)
	return nil
}

func (s *fakeSink) ListAlerts(context.Context, time.Time, int) ([]model.Alert, error) {
	return s.saved, nil
}

func newMonitorForTest(sink *fakeSink) (*Monitor, *engine.Engine, *fakeClock) {
	cfg := config.DefaultConfig()
	cfg.Detection.Timezone = "UTC"
	clock := &fakeClock{now: base}
	eng := engine.NewEngine(cfg, nil, nil, users.NewSnapshot("alice"), engine.WithClock(clock.Now))
	deps := Deps{Clock: clock.Now}
	if sink != nil {
		deps.Sink = sink
	}
	return New(eng, cfg, deps, nil), eng, clock
}

func bruteForce(eng *engine.Engine) {
	for i := 0; i < 5; i++ {
		eng.AddConnectionAttempt("198.51.100.7", "alice", false, 22)
	}
}

func countType(alerts []model.Alert, kind model.AlertType) int {
	n := 0
	for _, a := range alerts {
		if a.Type == kind {
			n++
		}
	}
	return n
}

func TestTickDeliversAndStores(t *testing.T) {
	sink := &fakeSink{}
	mon, eng, _ := newMonitorForTest(sink)
	bruteForce(eng)

	var delivered []model.Alert
	mon.OnAlert(func(a model.Alert) { delivered = append(delivered, a) })

	fresh := mon.Tick(context.Background())
	if countType(fresh, model.AlertBruteForce) != 1 {
		t.Fatalf("expected a brute force alert, got %+v", fresh)
	}
	if len(delivered) != len(fresh) || len(sink.saved) != len(fresh) {
		t.Fatalf("fan out mismatch: delivered=%d saved=%d fresh=%d", len(delivered), len(sink.saved), len(fresh))
	}
	if mon.Alerts().Len() != len(fresh) {
		t.Fatalf("alert store has %d, want %d", mon.Alerts().Len(), len(fresh))
	}
	if got := mon.Tally().Summary(5).ByType[model.AlertBruteForce]; got != 1 {
		t.Fatalf("tally brute force count %d", got)
	}
}

func TestTickCooldownSuppressesRepeats(t *testing.T) {
	mon, eng, clock := newMonitorForTest(nil)
	bruteForce(eng)
	ctx := context.Background()

	if len(mon.Tick(ctx)) == 0 {
		t.Fatalf("expected alerts on first pass")
	}
	clock.now = clock.now.Add(time.Minute)
	if got := mon.Tick(ctx); countType(got, model.AlertBruteForce) != 0 {
		t.Fatalf("expected repeat to be suppressed, got %+v", got)
	}
	clock.now = clock.now.Add(5 * time.Minute)
	if got := mon.Tick(ctx); countType(got, model.AlertBruteForce) != 1 {
		t.Fatalf("expected alert again after cooldown, got %+v", got)
	}
}

func TestTickCooldownDisabled(t *testing.T) {
	mon, eng, _ := newMonitorForTest(nil)
	cfg := config.DefaultConfig()
	cfg.Monitor.AlertCooldown = 0
	mon.SetConfig(cfg)
	bruteForce(eng)
	ctx := context.Background()
	first := mon.Tick(ctx)
	second := mon.Tick(ctx)
	if countType(first, model.AlertBruteForce) != 1 || countType(second, model.AlertBruteForce) != 1 {
		t.Fatalf("expected every pass to report without cooldown")
	}
}

func TestTickSurvivesSinkError(t *testing.T) {
	sink := &fakeSink{err: errors.New("disk full")}
	mon, eng, _ := newMonitorForTest(sink)
	bruteForce(eng)
	fresh := mon.Tick(context.Background())
	if len(fresh) == 0 || mon.Alerts().Len() != len(fresh) {
		t.Fatalf("expected alerts to be kept despite sink error")
	}
}

func TestResetClearsCooldown(t *testing.T) {
	mon, eng, _ := newMonitorForTest(nil)
	bruteForce(eng)
	ctx := context.Background()
	mon.Tick(ctx)
	mon.Reset()
	if countType(mon.Tick(ctx), model.AlertBruteForce) != 1 {
		t.Fatalf("expected alert after cooldown reset")
	}
}

func TestHousekeepEvictsOldAttempts(t *testing.T) {
	mon, eng, clock := newMonitorForTest(nil)
	bruteForce(eng)
	clock.now = clock.now.Add(2 * time.Hour)
	eng.AddConnectionAttempt("198.51.100.8", "alice", true, 22)
	if removed := mon.Housekeep(); removed != 5 {
		t.Fatalf("expected 5 evicted, got %d", removed)
	}
	if eng.Stats().Attempts != 1 {
		t.Fatalf("expected one attempt left")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	mon, _, _ := newMonitorForTest(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("monitor did not stop")
	}
}

func TestCooldownKeyIncludesUser(t *testing.T) {
	c := NewCooldown(time.Minute)
	a := model.Alert{Type: model.AlertRootAttack, IP: "192.0.2.1", Username: "root"}
	b := a
	b.Username = "admin"
	if !c.Allow(a, base) || !c.Allow(b, base) {
		t.Fatalf("distinct users must not share a cooldown")
	}
	if c.Allow(a, base.Add(30*time.Second)) {
		t.Fatalf("expected repeat to be suppressed")
	}
	c.Prune(base.Add(2 * time.Minute))
	if !c.Allow(a, base.Add(2*time.Minute)) {
		t.Fatalf("expected pruned key to be allowed")
	}
}

func TestCooldownKeyIncludesPort(t *testing.T) {
	c := NewCooldown(time.Minute)
	a := model.Alert{Type: model.AlertNonStandardPort, IP: "192.0.2.1", Details: map[string]string{"port": "2222"}}
	b := model.Alert{Type: model.AlertNonStandardPort, IP: "192.0.2.1", Details: map[string]string{"port": "8022"}}
	if !c.Allow(a, base) || !c.Allow(b, base) {
		t.Fatalf("distinct ports must not share a cooldown")
	}
	if c.Allow(b, base.Add(10*time.Second)) {
		t.Fatalf("expected repeat on the same port to be suppressed")
	}
}

func TestTickDeliversEveryScannedPort(t *testing.T) {
	mon, eng, clock := newMonitorForTest(nil)
	for _, port := range []int{22, 2222, 8022} {
		eng.AddConnectionAttempt("10.0.0.4", "alice", false, port)
	}
	ctx := context.Background()

	first := mon.Tick(ctx)
	if got := countType(first, model.AlertNonStandardPort); got != 2 {
		t.Fatalf("expected one alert per non-standard port, got %d in %+v", got, first)
	}
	ports := map[string]bool{}
	for _, a := range first {
		if a.Type == model.AlertNonStandardPort {
			ports[a.Details["port"]] = true
		}
	}
	if !ports["2222"] || !ports["8022"] {
		t.Fatalf("unexpected ports delivered %v", ports)
	}

	clock.now = clock.now.Add(time.Minute)
	if got := countType(mon.Tick(ctx), model.AlertNonStandardPort); got != 0 {
		t.Fatalf("expected both ports to be inside the cooldown, got %d", got)
	}
}
