package engine

import (
	"fmt"
	"strings"

	"sshguard/internal/model"
)

func detectNonexistentUsers(a *analysis) []model.Alert {
	var out []model.Alert
	for _, ip := range a.ips {
		for _, name := range a.usernames(ip) {
			if a.users != nil && a.users.Exists(name) {
				continue
			}
			list := a.byIPUser[ip][name]
			total := len(list)
			failed, _ := countFailures(list)
			likely := closestCommon(a.rules, name)

			var v verdict
			v.consider(total >= 3, model.SeverityMedium, "Multiple attempts with non-existent username")
			v.consider(failed >= 2 && total >= 2, model.SeverityLow, "Failed attempts with non-existent username")
			if !v.matched && total >= 2 && likely != "" {
				v.consider(true, model.SeverityLow, fmt.Sprintf("Possible typo in common username '%s'", likely))
			}
			if !v.matched {
				continue
			}

			reason := v.reason
			details := map[string]string{
				"total_attempts":  itoa(total),
				"failed_attempts": itoa(failed),
				"reason":          v.reason,
			}
			if likely != "" {
				details["likely_username"] = likely
				if !strings.HasPrefix(reason, "Possible typo") {
					reason += fmt.Sprintf(": possible typo of '%s'", likely)
				}
			}
			desc := fmt.Sprintf("Suspicious activity with non-existent user '%s': %s (%d attempts)", name, reason, total)
			out = append(out, a.alert(model.AlertNonexistentUser, v.severity, ip, name, desc, details))
		}
	}
	return out
}

// closestCommon returns the first common username, in sorted order, that the
// given name looks like a typo of.
func closestCommon(r *ruleset, name string) string {
	for _, common := range r.commonSorted {
		if common != name && typoDistance(name, common) <= 2 {
			return common
		}
	}
	return ""
}

// typoDistance counts positional mismatches over the shorter length plus the
// length difference. Pairs whose lengths differ by more than two never match.
func typoDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	diff := len(ra) - len(rb)
	if diff < 0 {
		diff = -diff
	}
	if diff > 2 {
		return diff
	}
	n := min(len(ra), len(rb))
	d := diff
	for i := 0; i < n; i++ {
		if ra[i] != rb[i] {
			d++
		}
	}
	return d
}
