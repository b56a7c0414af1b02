package engine

import (
	"sync"
	"time"

	"sshguard/internal/model"
)

const (
	DefaultStoreCapacity = 10000
	DefaultEvictBatch    = 1000
)

// AttemptStore is the append-ordered attempt history. Insertion order is
// expected to follow timestamps; the store never re-sorts.
type AttemptStore struct {
	mu       sync.Mutex
	events   []model.ConnectionAttempt
	capacity int
	batch    int
}

func NewAttemptStore(capacity, batch int) *AttemptStore {
	s := &AttemptStore{events: make([]model.ConnectionAttempt, 0, 1024)}
	s.Resize(capacity, batch)
	return s
}

// Resize changes the cap and overflow batch; it does not trim until the next Append.
func (s *AttemptStore) Resize(capacity, batch int) {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	if batch <= 0 || batch > capacity {
		batch = capacity / 10
		if batch == 0 {
			batch = 1
		}
	}
	s.mu.Lock()
	s.capacity = capacity
	s.batch = batch
	s.mu.Unlock()
}

func (s *AttemptStore) Append(a model.ConnectionAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, a)
	if len(s.events) > s.capacity {
		drop := s.batch
		if over := len(s.events) - s.capacity; over > drop {
			drop = over
		}
		n := copy(s.events, s.events[drop:])
		clear(s.events[n:])
		s.events = s.events[:n]
	}
}

// Window returns a copy of the attempts newer than cutoff.
func (s *AttemptStore) Window(cutoff time.Time) []model.ConnectionAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ConnectionAttempt, 0, len(s.events))
	for _, a := range s.events {
		if a.Timestamp.After(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

// EvictBefore drops attempts older than cutoff and reports how many went.
func (s *AttemptStore) EvictBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	for _, a := range s.events {
		if !a.Timestamp.Before(cutoff) {
			kept = append(kept, a)
		}
	}
	removed := len(s.events) - len(kept)
	clear(s.events[len(kept):])
	s.events = kept
	return removed
}

func (s *AttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *AttemptStore) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

func (s *AttemptStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]model.ConnectionAttempt, 0, 1024)
}
