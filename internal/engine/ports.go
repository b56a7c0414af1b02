package engine

import (
	"fmt"

	"sshguard/internal/model"
)

func detectNonStandardPorts(a *analysis) []model.Alert {
	var out []model.Alert
	for _, ip := range a.ips {
		ports := a.ports(ip)
		nonStandard := 0
		for _, p := range ports {
			if !a.rules.isStandardPort(p) {
				nonStandard++
			}
		}
		if nonStandard == 0 {
			continue
		}
		foreign := a.rules.isForeign(a.country(ip))

		for _, port := range ports {
			if a.rules.isStandardPort(port) {
				continue
			}
			list := a.byIPPort[ip][port]
			total := len(list)
			failed, succeeded := countFailures(list)
			names := make(map[string]struct{})
			for _, att := range list {
				names[att.Username] = struct{}{}
			}

			var v verdict
			v.consider(total >= 3, model.SeverityMedium, "Multiple connection attempts to non-standard port")
			v.consider(len(ports) >= 3 && nonStandard >= 2, model.SeverityHigh, "Port scanning activity detected")
			v.consider(succeeded > 0, model.SeverityMedium, "Successful connection to non-standard port")
			v.consider(foreign && total >= 2, model.SeverityHigh, "Non-standard port attempts from unusual geographic location")
			if !v.matched {
				continue
			}

			desc := fmt.Sprintf("Port scanning detected: %s (Port: %d, Attempts: %d)", v.reason, port, total)
			out = append(out, a.alert(model.AlertNonStandardPort, v.severity, ip, "", desc, map[string]string{
				"port":                   itoa(port),
				"attempts_on_port":       itoa(total),
				"successful_connections": itoa(succeeded),
				"failed_connections":     itoa(failed),
				"usernames_tried":        itoa(len(names)),
				"total_ports_scanned":    itoa(len(ports)),
				"reason":                 v.reason,
			}))
		}
	}
	return out
}
