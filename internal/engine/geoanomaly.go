package engine

import (
	"fmt"

	"sshguard/internal/geo"
	"sshguard/internal/model"
)

func detectGeoIPAnomalies(a *analysis) []model.Alert {
	var out []model.Alert
	for _, ip := range a.ips {
		country := a.country(ip)
		if country == geo.Local || !a.rules.isForeign(country) {
			continue
		}
		list := a.byIP[ip]
		total := len(list)
		failed, succeeded := countFailures(list)
		ports := a.ports(ip)
		names := len(a.byIPUser[ip])

		nonStandard := false
		for _, p := range ports {
			if !a.rules.isStandardPort(p) {
				nonStandard = true
				break
			}
		}
		offHoursSuccess := false
		for _, att := range list {
			if att.Success && !a.rules.isBusinessHours(att.Timestamp) {
				offHoursSuccess = true
				break
			}
		}

		var v verdict
		v.consider(total >= 3, model.SeverityMedium, "Multiple connections from unusual geographic location")
		v.consider(failed >= 5 && succeeded == 0, model.SeverityMedium, "Failed connection attempts from unusual geographic location")
		v.consider(nonStandard && total >= 2, model.SeverityHigh, "Connection attempts to non-standard ports from unusual geographic location")
		v.consider(names >= 3 && failed >= 3, model.SeverityHigh, "Multiple usernames tried from unusual geographic location")
		v.consider(offHoursSuccess && total >= 2, model.SeverityHigh, "Successful connections outside business hours from unusual geographic location")
		if !v.matched {
			continue
		}

		desc := fmt.Sprintf("GeoIP anomaly detected: %s (Country: %s, Connections: %d)", v.reason, country, total)
		out = append(out, a.alert(model.AlertGeoIPAnomaly, v.severity, ip, "", desc, map[string]string{
			"country":                country,
			"total_connections":      itoa(total),
			"successful_connections": itoa(succeeded),
			"failed_connections":     itoa(failed),
			"usernames_tried":        itoa(names),
			"ports_used":             itoa(len(ports)),
			"reason":                 v.reason,
		}))
	}
	return out
}
