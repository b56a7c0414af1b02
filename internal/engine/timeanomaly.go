package engine

import (
	"fmt"
	"sort"
	"time"

	"sshguard/internal/model"
)

const newPatternGap = 24 * time.Hour

// detectTimeAnomalies is the only detector with state across calls: it records
// the last off-hours success per IP in a.lastSuccess, so repeating a call on the
// same data does not repeat the new-pattern finding.
func detectTimeAnomalies(a *analysis) []model.Alert {
	var out []model.Alert
	for _, ip := range a.ips {
		list := a.byIP[ip]
		successes := a.successes[ip]
		var failures []model.ConnectionAttempt
		for _, att := range list {
			if !att.Success {
				failures = append(failures, att)
			}
		}

		offHoursSuccess := 0
		for _, att := range successes {
			if !a.rules.isBusinessHours(att.Timestamp) {
				offHoursSuccess++
			}
		}
		offHoursAttempts, offHoursFailures := 0, 0
		for _, att := range list {
			if a.rules.isBusinessHours(att.Timestamp) {
				continue
			}
			offHoursAttempts++
			if !att.Success {
				offHoursFailures++
			}
		}

		prior, hasPrior := a.lastSuccess[ip]
		latest := newest(list)
		var record time.Time

		var v verdict
		if offHoursSuccess > 0 && (!hasPrior || latest.Sub(prior) > newPatternGap) {
			severity := model.SeverityLow
			if offHoursSuccess >= 2 {
				severity = model.SeverityMedium
			}
			v.consider(true, severity, "Successful login outside business hours")
			record = latest
		}
		v.consider(offHoursFailures >= 3 && offHoursAttempts >= offHoursFailures, model.SeverityMedium,
			"Multiple failed attempts during off-hours")
		if len(successes) == 1 && !a.rules.isBusinessHours(successes[0].Timestamp) && !hasPrior {
			v.consider(true, model.SeverityLow, "First successful connection from this IP occurred outside business hours")
			if record.IsZero() {
				record = successes[0].Timestamp
			}
		}
		if len(failures) >= 5 {
			if hour, ok := unusualFailureHour(a.rules, failures); ok {
				v.consider(true, model.SeverityMedium, fmt.Sprintf("High activity during unusual hours (hour %d)", hour))
			}
		}

		if !record.IsZero() {
			a.lastSuccess[ip] = record
		}
		if !v.matched {
			continue
		}

		details := map[string]string{
			"successful_connections": itoa(len(successes)),
			"failed_connections":     itoa(len(failures)),
			"off_hours_success":      itoa(offHoursSuccess),
			"off_hours_failures":     itoa(offHoursFailures),
			"reason":                 v.reason,
		}
		username := ""
		if len(successes) > 0 {
			username = successes[len(successes)-1].Username
			details["last_username"] = username
		}
		out = append(out, a.alert(model.AlertTimeAnomaly, v.severity, ip, username, "Time anomaly detected: "+v.reason, details))
	}
	return out
}

// unusualFailureHour finds the earliest hour outside 06:00-22:00 holding at
// least three failures.
func unusualFailureHour(r *ruleset, failures []model.ConnectionAttempt) (int, bool) {
	perHour := make(map[int]int)
	for _, att := range failures {
		perHour[r.hourOf(att.Timestamp)]++
	}
	hours := make([]int, 0, len(perHour))
	for h := range perHour {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	for _, h := range hours {
		if perHour[h] >= 3 && (h < 6 || h > 22) {
			return h, true
		}
	}
	return 0, false
}
