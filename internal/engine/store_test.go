package engine

import (
	"testing"
	"time"

	"sshguard/internal/model"
)

func TestAttemptStoreOverflowDropsBatch(t *testing.T) {
	s := NewAttemptStore(10, 3)
	base := time.Unix(0, 0)
	for i := 0; i < 11; i++ {
		s.Append(model.ConnectionAttempt{Timestamp: base.Add(time.Duration(i) * time.Second), Port: i})
	}
	if s.Len() != 8 {
		t.Fatalf("expected 8 after overflow, got %d", s.Len())
	}
	got := s.Window(time.Time{})
	if got[0].Port != 3 {
		t.Fatalf("expected oldest kept port 3, got %d", got[0].Port)
	}
}

func TestAttemptStoreWindowCopies(t *testing.T) {
	s := NewAttemptStore(0, 0)
	now := time.Now()
	s.Append(model.ConnectionAttempt{Timestamp: now.Add(-2 * time.Hour), IP: "old"})
	s.Append(model.ConnectionAttempt{Timestamp: now, IP: "new"})
	got := s.Window(now.Add(-time.Hour))
	if len(got) != 1 || got[0].IP != "new" {
		t.Fatalf("unexpected window %v", got)
	}
	got[0].IP = "mutated"
	if s.Window(now.Add(-time.Hour))[0].IP != "new" {
		t.Fatalf("window must not alias the store")
	}
	if s.Capacity() != DefaultStoreCapacity {
		t.Fatalf("expected default capacity, got %d", s.Capacity())
	}
}

func TestAttemptStoreEvictBefore(t *testing.T) {
	s := NewAttemptStore(100, 10)
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.Append(model.ConnectionAttempt{Timestamp: now.Add(time.Duration(i-5) * time.Hour)})
	}
	if removed := s.EvictBefore(now.Add(-2 * time.Hour)); removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestTypoDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"admim", "admin", 1},
		{"admin", "admin", 0},
		{"roott", "root", 1},
		{"rooot", "root", 2},
		{"xdmim", "admin", 2},
		{"adm", "administrator", 10},
	}
	for _, tc := range cases {
		if got := typoDistance(tc.a, tc.b); got != tc.want {
			t.Fatalf("typoDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestClosestCommonSkipsIdentical(t *testing.T) {
	r := buildRuleset(testConfig())
	if got := closestCommon(r, "admin"); got != "" {
		t.Fatalf("identical name must not be a typo, got %q", got)
	}
	if got := closestCommon(r, "admim"); got != "admin" {
		t.Fatalf("expected admin, got %q", got)
	}
}

func TestVerdictPrefersSeverityThenOrder(t *testing.T) {
	var v verdict
	v.consider(true, model.SeverityMedium, "first")
	v.consider(true, model.SeverityMedium, "second")
	if v.reason != "first" {
		t.Fatalf("expected tie to keep first, got %q", v.reason)
	}
	v.consider(true, model.SeverityHigh, "third")
	v.consider(false, model.SeverityCritical, "skipped")
	if v.reason != "third" || v.severity != model.SeverityHigh {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestBusinessHours(t *testing.T) {
	r := buildRuleset(testConfig())
	if !r.isBusinessHours(businessHours) {
		t.Fatalf("expected Wednesday 11:00 to be business hours")
	}
	if !r.isBusinessHours(time.Date(2026, 10, 14, 17, 59, 0, 0, time.UTC)) {
		t.Fatalf("expected 17:59 to be business hours")
	}
	if r.isBusinessHours(time.Date(2026, 10, 14, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 18:00 to be off hours")
	}
	if r.isBusinessHours(offHours) {
		t.Fatalf("expected Saturday to be off hours")
	}
}
