package monitor

import (
	"sync"
	"time"

	"sshguard/internal/model"
)

// Cooldown suppresses repeats of the same finding raised within the cooldown
// period. A finding is identified by type, source and user, plus the port for
// non-standard port alerts.
type Cooldown struct {
	mu     sync.Mutex
	period time.Duration
	last   map[string]time.Time
}

func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{period: period, last: make(map[string]time.Time)}
}

func (c *Cooldown) SetPeriod(period time.Duration) {
	c.mu.Lock()
	c.period = period
	c.mu.Unlock()
}

func cooldownKey(a model.Alert) string {
	key := string(a.Type) + "|" + a.IP + "|" + a.Username
	if a.Type == model.AlertNonStandardPort {
		key += "|" + a.Details["port"]
	}
	return key
}

// Allow reports whether the alert should be delivered at now, and records it if so.
func (c *Cooldown) Allow(a model.Alert, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.period <= 0 {
		return true
	}
	key := cooldownKey(a)
	if ts, ok := c.last[key]; ok && now.Sub(ts) < c.period {
		return false
	}
	c.last[key] = now
	return true
}

// Prune forgets entries older than the cooldown period.
func (c *Cooldown) Prune(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, ts := range c.last {
		if now.Sub(ts) >= c.period {
			delete(c.last, k)
		}
	}
}

func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = make(map[string]time.Time)
}
