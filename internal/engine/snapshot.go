package engine

import (
	"sort"
	"strconv"
	"time"

	"sshguard/internal/geo"
	"sshguard/internal/model"
)

// snapshot indexes one window of attempts so every detector shares the same
// groupings. Groups keep insertion order.
type snapshot struct {
	attempts  []model.ConnectionAttempt
	ips       []string
	byIP      map[string][]model.ConnectionAttempt
	byIPUser  map[string]map[string][]model.ConnectionAttempt
	byIPPort  map[string]map[int][]model.ConnectionAttempt
	successes map[string][]model.ConnectionAttempt
	geo       geo.Classifier
	countries map[string]string
}

func newSnapshot(attempts []model.ConnectionAttempt, classifier geo.Classifier) *snapshot {
	s := &snapshot{
		attempts:  attempts,
		byIP:      make(map[string][]model.ConnectionAttempt),
		byIPUser:  make(map[string]map[string][]model.ConnectionAttempt),
		byIPPort:  make(map[string]map[int][]model.ConnectionAttempt),
		successes: make(map[string][]model.ConnectionAttempt),
		geo:       classifier,
		countries: make(map[string]string),
	}
	for _, a := range attempts {
		if _, ok := s.byIP[a.IP]; !ok {
			s.ips = append(s.ips, a.IP)
			s.byIPUser[a.IP] = make(map[string][]model.ConnectionAttempt)
			s.byIPPort[a.IP] = make(map[int][]model.ConnectionAttempt)
		}
		s.byIP[a.IP] = append(s.byIP[a.IP], a)
		s.byIPUser[a.IP][a.Username] = append(s.byIPUser[a.IP][a.Username], a)
		s.byIPPort[a.IP][a.Port] = append(s.byIPPort[a.IP][a.Port], a)
		if a.Success {
			s.successes[a.IP] = append(s.successes[a.IP], a)
		}
	}
	sort.Strings(s.ips)
	for ip, list := range s.successes {
		s.successes[ip] = sortedByTime(list)
	}
	return s
}

// country classifies each IP at most once per snapshot.
func (s *snapshot) country(ip string) string {
	if tag, ok := s.countries[ip]; ok {
		return tag
	}
	tag := geo.Unknown
	if s.geo != nil {
		tag = s.geo.Classify(ip)
	}
	s.countries[ip] = tag
	return tag
}

func (s *snapshot) usernames(ip string) []string {
	group := s.byIPUser[ip]
	out := make([]string, 0, len(group))
	for name := range group {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *snapshot) ports(ip string) []int {
	group := s.byIPPort[ip]
	out := make([]int, 0, len(group))
	for port := range group {
		out = append(out, port)
	}
	sort.Ints(out)
	return out
}

func sortedByTime(list []model.ConnectionAttempt) []model.ConnectionAttempt {
	out := append([]model.ConnectionAttempt(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func countFailures(list []model.ConnectionAttempt) (failed, succeeded int) {
	for _, a := range list {
		if a.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return failed, succeeded
}

func newest(list []model.ConnectionAttempt) time.Time {
	var ts time.Time
	for _, a := range list {
		if a.Timestamp.After(ts) {
			ts = a.Timestamp
		}
	}
	return ts
}

// verdict keeps the strongest matching criterion; equal severities keep the
// first one considered.
type verdict struct {
	matched  bool
	severity model.Severity
	reason   string
}

func (v *verdict) consider(ok bool, severity model.Severity, reason string) {
	if !ok {
		return
	}
	if !v.matched || severity.Rank() > v.severity.Rank() {
		v.matched = true
		v.severity = severity
		v.reason = reason
	}
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
