package engine

import (
	"fmt"
	"time"

	"sshguard/internal/model"
)

func detectPostLoginAnomalies(a *analysis) []model.Alert {
	var out []model.Alert
	for _, ip := range a.ips {
		successes := a.successes[ip]
		n := len(successes)
		if n < 2 {
			continue
		}
		country := a.country(ip)
		foreign := a.rules.isForeign(country)

		quick := 0
		for i := 1; i < n; i++ {
			if successes[i].Timestamp.Sub(successes[i-1].Timestamp) < 5*time.Minute {
				quick++
			}
		}
		first := successes[0].Timestamp
		lateOffHours := false
		for _, att := range successes[1:] {
			if att.Timestamp.Sub(first) > 24*time.Hour && !a.rules.isBusinessHours(att.Timestamp) {
				lateOffHours = true
				break
			}
		}
		users := make(map[string]struct{})
		for _, att := range successes {
			users[att.Username] = struct{}{}
		}
		// fractional hours, so a burst shorter than an hour still yields a per-hour rate
		span := successes[n-1].Timestamp.Sub(first).Hours()
		rate := 0.0
		if span > 0 {
			rate = float64(n) / span
		}

		var v verdict
		v.consider(n >= 3 && quick >= 2, model.SeverityMedium, "Frequent short sessions detected")
		v.consider(lateOffHours, model.SeverityLow, "Unusual timing pattern after initial login")
		v.consider(len(users) >= 3 && n >= 5, model.SeverityHigh, "Multiple different users from same IP after successful logins")
		v.consider(foreign && n >= 3, model.SeverityMedium, "Multiple successful logins from unusual geographic location")
		v.consider(n >= 5 && span > 0 && rate > 2, model.SeverityMedium, "High frequency of logins from same IP")
		if !v.matched {
			continue
		}

		details := map[string]string{
			"successful_logins":        itoa(n),
			"unique_users":             itoa(len(users)),
			"country":                  country,
			"observation_period_hours": fmt.Sprintf("%.2f", span),
			"reason":                   v.reason,
		}
		if span > 0 {
			details["avg_logins_per_hour"] = fmt.Sprintf("%.2f", rate)
		}
		username := successes[n-1].Username
		desc := fmt.Sprintf("Post-login anomaly detected: %s (%d successful logins)", v.reason, n)
		out = append(out, a.alert(model.AlertPostLoginAnomaly, v.severity, ip, username, desc, details))
	}
	return out
}
