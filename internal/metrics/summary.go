package metrics

import (
	"sort"
	"sync"
	"time"

	"sshguard/internal/model"
)

// Summary is the aggregate view of every alert recorded since the last clear.
type Summary struct {
	Total      int                     `json:"total"`
	ByType     map[model.AlertType]int `json:"by_type"`
	BySeverity map[model.Severity]int  `json:"by_severity"`
	TopSources []SourceCount           `json:"top_sources,omitempty"`
	FirstSeen  time.Time               `json:"first_seen,omitempty"`
	LastSeen   time.Time               `json:"last_seen,omitempty"`
}

type SourceCount struct {
	IP       string    `json:"ip"`
	Alerts   int       `json:"alerts"`
	LastSeen time.Time `json:"last_seen"`
}

// Tally counts alerts by type, severity and source. Sources are bounded;
// past the limit the least recently seen source is dropped.
type Tally struct {
	mu         sync.RWMutex
	byType     map[model.AlertType]int
	bySeverity map[model.Severity]int
	bySource   map[string]*SourceCount
	total      int
	first      time.Time
	last       time.Time
	limit      int
}

func NewTally(limit int) *Tally {
	if limit <= 0 {
		limit = 5000
	}
	t := &Tally{limit: limit}
	t.reset()
	return t
}

func (t *Tally) reset() {
	t.byType = make(map[model.AlertType]int)
	t.bySeverity = make(map[model.Severity]int)
	t.bySource = make(map[string]*SourceCount)
	t.total = 0
	t.first = time.Time{}
	t.last = time.Time{}
}

func (t *Tally) Record(alerts ...model.Alert) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range alerts {
		t.total++
		t.byType[a.Type]++
		t.bySeverity[a.Severity]++
		if t.first.IsZero() || a.Timestamp.Before(t.first) {
			t.first = a.Timestamp
		}
		if a.Timestamp.After(t.last) {
			t.last = a.Timestamp
		}
		if a.IP == "" {
			continue
		}
		src, ok := t.bySource[a.IP]
		if !ok {
			src = &SourceCount{IP: a.IP}
			t.bySource[a.IP] = src
		}
		src.Alerts++
		if a.Timestamp.After(src.LastSeen) {
			src.LastSeen = a.Timestamp
		}
		if len(t.bySource) > t.limit {
			t.evictOldest()
		}
	}
}

// Summary returns a copy with the top sources ranked by alert count.
func (t *Tally) Summary(top int) Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Summary{
		Total:      t.total,
		ByType:     make(map[model.AlertType]int, len(t.byType)),
		BySeverity: make(map[model.Severity]int, len(t.bySeverity)),
		FirstSeen:  t.first,
		LastSeen:   t.last,
	}
	for k, v := range t.byType {
		s.ByType[k] = v
	}
	for k, v := range t.bySeverity {
		s.BySeverity[k] = v
	}
	sources := make([]SourceCount, 0, len(t.bySource))
	for _, src := range t.bySource {
		sources = append(sources, *src)
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Alerts != sources[j].Alerts {
			return sources[i].Alerts > sources[j].Alerts
		}
		return sources[i].IP < sources[j].IP
	})
	if top > 0 && len(sources) > top {
		sources = sources[:top]
	}
	if len(sources) > 0 {
		s.TopSources = sources
	}
	return s
}

func (t *Tally) evictOldest() {
	var oldest *SourceCount
	for _, src := range t.bySource {
		if oldest == nil || src.LastSeen.Before(oldest.LastSeen) {
			oldest = src
		}
	}
	if oldest != nil {
		delete(t.bySource, oldest.IP)
	}
}

func (t *Tally) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}
