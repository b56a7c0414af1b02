package engine

import (
	"fmt"
	"time"

	"sshguard/internal/model"
)

const rootUsername = "root"

func detectRootAttempts(a *analysis) []model.Alert {
	var out []model.Alert
	for _, ip := range a.ips {
		list := a.byIPUser[ip][rootUsername]
		if len(list) == 0 {
			continue
		}
		failed, succeeded := countFailures(list)
		total := len(list)
		others := len(a.byIPUser[ip]) - 1
		foreign := a.rules.isForeign(a.country(ip))

		offHours := false
		for _, att := range list {
			if !a.rules.isBusinessHours(att.Timestamp) {
				offHours = true
				break
			}
		}
		rapid := 0
		sorted := sortedByTime(list)
		for i := 1; i < len(sorted); i++ {
			if sorted[i].Timestamp.Sub(sorted[i-1].Timestamp) < 30*time.Second {
				rapid++
			}
		}

		var v verdict
		if failed >= 3 {
			severity := model.SeverityMedium
			if failed >= 5 {
				severity = model.SeverityHigh
			}
			v.consider(true, severity, "Multiple failed root login attempts")
		}
		v.consider(succeeded > 0 && foreign, model.SeverityHigh, "Successful root login from unusual geographic location")
		v.consider(others > 0 && failed >= 2, model.SeverityHigh, "Root login attempts combined with other username attempts")
		v.consider(offHours && failed >= 2, model.SeverityMedium, "Root login attempts outside business hours")
		v.consider(total >= 3 && rapid >= 2, model.SeverityHigh, "Rapid sequential root login attempts")
		if !v.matched {
			continue
		}

		desc := fmt.Sprintf("Root account attack detected: %s (Failed: %d, Successful: %d)", v.reason, failed, succeeded)
		out = append(out, a.alert(model.AlertRootAttack, v.severity, ip, rootUsername, desc, map[string]string{
			"failed_root_attempts":     itoa(failed),
			"successful_root_attempts": itoa(succeeded),
			"total_root_attempts":      itoa(total),
			"other_usernames_tried":    itoa(others),
			"reason":                   v.reason,
		}))
	}
	return out
}
