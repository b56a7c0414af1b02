package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"sshguard/internal/model"
)

func detectDictionaryAttack(a *analysis) []model.Alert {
	var out []model.Alert
	for _, ip := range a.ips {
		list := a.byIP[ip]
		tried := make(map[string]struct{})
		total, failed := 0, 0
		for _, att := range list {
			if !a.rules.isCommon(att.Username) {
				continue
			}
			total++
			if !att.Success {
				failed++
			}
			tried[att.Username] = struct{}{}
		}

		var v verdict
		v.consider(total >= 5, model.SeverityMedium, "Multiple attempts with common usernames")
		v.consider(len(tried) >= 3 && total >= 3, model.SeverityMedium, "Multiple different common usernames tried")
		if !v.matched && failed >= 3 && len(tried) >= 2 {
			v.consider(sequentialCommonFailures(a.rules, list) >= 2, model.SeverityMedium,
				"Sequential failed attempts with different common usernames")
		}
		if !v.matched {
			continue
		}

		names := make([]string, 0, len(tried))
		for n := range tried {
			names = append(names, n)
		}
		sort.Strings(names)
		desc := fmt.Sprintf("Dictionary attack detected: %s. Common usernames tried: %d, Total attempts: %d",
			v.reason, len(tried), total)
		out = append(out, a.alert(model.AlertDictionaryAttack, v.severity, ip, "", desc, map[string]string{
			"common_usernames_tried": itoa(len(tried)),
			"total_common_attempts":  itoa(total),
			"failed_common_attempts": itoa(failed),
			"usernames":              strings.Join(names, ", "),
			"reason":                 v.reason,
		}))
	}
	return out
}

// sequentialCommonFailures counts time-ordered pairs where a failed common-name
// attempt is followed within five minutes by the next attempt.
func sequentialCommonFailures(r *ruleset, list []model.ConnectionAttempt) int {
	sorted := sortedByTime(list)
	n := 0
	for i := 0; i+1 < len(sorted); i++ {
		cur := sorted[i]
		if cur.Success || !r.isCommon(cur.Username) {
			continue
		}
		if sorted[i+1].Timestamp.Sub(cur.Timestamp) < 5*time.Minute {
			n++
		}
	}
	return n
}
