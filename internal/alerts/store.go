package alerts

import (
	"sync"
	"time"

	"sshguard/internal/model"
)

// Store keeps the most recent alerts in a fixed-size ring, oldest first on read.
type Store struct {
	mu    sync.RWMutex
	ring  []model.Alert
	head  int
	count int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{ring: make([]model.Alert, limit)}
}

func (s *Store) Add(alerts ...model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range alerts {
		s.ring[(s.head+s.count)%len(s.ring)] = a
		if s.count < len(s.ring) {
			s.count++
		} else {
			s.head = (s.head + 1) % len(s.ring)
		}
	}
}

// List returns up to limit of the newest alerts; limit <= 0 returns all.
func (s *Store) List(limit int) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > s.count {
		limit = s.count
	}
	out := make([]model.Alert, 0, limit)
	for i := s.count - limit; i < s.count; i++ {
		out = append(out, s.ring[(s.head+i)%len(s.ring)])
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Alert, 0)
	for i := 0; i < s.count; i++ {
		a := s.ring[(s.head+i)%len(s.ring)]
		if !a.Timestamp.Before(ts) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.ring)
	s.head = 0
	s.count = 0
}
