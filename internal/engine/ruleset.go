package engine

import (
	"sort"
	"strings"
	"time"

	"sshguard/internal/config"
	"sshguard/internal/geo"
)

type ruleset struct {
	bruteThreshold  int
	bruteWindow     time.Duration
	analysisWindow  time.Duration
	commonUsernames map[string]struct{}
	commonSorted    []string
	normalCountries map[string]struct{}
	standardPorts   map[int]struct{}
	loc             *time.Location
}

func buildRuleset(cfg *config.Config) *ruleset {
	d := cfg.Detection
	r := &ruleset{
		bruteThreshold:  d.BruteForceThreshold,
		bruteWindow:     d.BruteForceWindow,
		analysisWindow:  d.AnalysisWindow,
		commonUsernames: buildStringSet(d.CommonUsernames, false),
		normalCountries: buildStringSet(d.NormalCountries, true),
		standardPorts:   make(map[int]struct{}, len(d.StandardPorts)),
		loc:             config.Location(d.Timezone),
	}
	if r.bruteThreshold <= 0 {
		r.bruteThreshold = 5
	}
	if r.bruteWindow <= 0 {
		r.bruteWindow = 10 * time.Minute
	}
	if r.analysisWindow <= 0 {
		r.analysisWindow = time.Hour
	}
	for _, p := range d.StandardPorts {
		r.standardPorts[p] = struct{}{}
	}
	if len(r.standardPorts) == 0 {
		r.standardPorts[22] = struct{}{}
	}
	r.commonSorted = make([]string, 0, len(r.commonUsernames))
	for name := range r.commonUsernames {
		r.commonSorted = append(r.commonSorted, name)
	}
	sort.Strings(r.commonSorted)
	return r
}

func buildStringSet(values []string, upper bool) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if upper {
			v = strings.ToUpper(v)
		}
		set[v] = struct{}{}
	}
	return set
}

func (r *ruleset) isCommon(username string) bool {
	_, ok := r.commonUsernames[username]
	return ok
}

func (r *ruleset) isStandardPort(port int) bool {
	_, ok := r.standardPorts[port]
	return ok
}

// isForeign reports a resolved country outside the normal set. Local, reserved
// and unresolved addresses are never foreign.
func (r *ruleset) isForeign(country string) bool {
	switch country {
	case geo.Local, geo.Reserved, geo.Unknown, "":
		return false
	}
	_, normal := r.normalCountries[country]
	return !normal
}

// isBusinessHours is Monday through Friday, 09:00 to 17:59.
func (r *ruleset) isBusinessHours(t time.Time) bool {
	local := t.In(r.loc)
	day := local.Weekday()
	hour := local.Hour()
	return day >= time.Monday && day <= time.Friday && hour >= 9 && hour <= 17
}

func (r *ruleset) hourOf(t time.Time) int {
	return t.In(r.loc).Hour()
}
