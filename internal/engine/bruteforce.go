package engine

import (
	"fmt"

	"sshguard/internal/model"
)

func detectBruteForce(a *analysis) []model.Alert {
	var out []model.Alert
	windowStart := a.now.Add(-a.rules.bruteWindow)
	minutes := int(a.rules.bruteWindow.Minutes())
	for _, ip := range a.ips {
		var recent []model.ConnectionAttempt
		for _, att := range a.byIP[ip] {
			if att.Timestamp.After(windowStart) {
				recent = append(recent, att)
			}
		}
		total := len(recent)
		if total == 0 {
			continue
		}
		failed, _ := countFailures(recent)
		rate := float64(failed) / float64(total)

		var reason string
		switch {
		case failed >= a.rules.bruteThreshold:
			reason = "High number of failed attempts"
		case rate > 0.8 && total >= 5:
			reason = "High failure rate with multiple attempts"
		case total >= 10 && failed >= 8:
			reason = "Persistent failed attempts"
			span := recent[total-1].Timestamp.Sub(recent[0].Timestamp)
			if total >= 3 && span.Seconds() < 60 && failed >= total-1 {
				reason += " (rapid sequential attempts)"
			}
		default:
			continue
		}

		desc := fmt.Sprintf("Brute force attack detected: %s. Failed: %d/%d attempts in %d minutes",
			reason, failed, total, minutes)
		out = append(out, a.alert(model.AlertBruteForce, model.SeverityHigh, ip, "", desc, map[string]string{
			"failed_attempts":     itoa(failed),
			"total_attempts":      itoa(total),
			"failure_rate":        fmt.Sprintf("%.1f%%", rate*100),
			"time_window_minutes": itoa(minutes),
			"reason":              reason,
		}))
	}
	return out
}
