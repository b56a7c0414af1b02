package engine

import (
	"time"

	"github.com/google/uuid"

	"sshguard/internal/model"
	"sshguard/internal/users"
)

// analysis is the per-call context handed to every detector.
type analysis struct {
	*snapshot
	rules       *ruleset
	users       users.Registry
	lastSuccess map[string]time.Time
	now         time.Time
}

type detector struct {
	kind model.AlertType
	run  func(a *analysis) []model.Alert
}

// pipeline order is part of the output contract.
var pipeline = []detector{
	{model.AlertBruteForce, detectBruteForce},
	{model.AlertDictionaryAttack, detectDictionaryAttack},
	{model.AlertGeoIPAnomaly, detectGeoIPAnomalies},
	{model.AlertTimeAnomaly, detectTimeAnomalies},
	{model.AlertNonexistentUser, detectNonexistentUsers},
	{model.AlertRootAttack, detectRootAttempts},
	{model.AlertNonStandardPort, detectNonStandardPorts},
	{model.AlertPostLoginAnomaly, detectPostLoginAnomalies},
}

var recommendations = map[model.AlertType]string{
	model.AlertBruteForce:       "Block the source IP and require key-based authentication",
	model.AlertDictionaryAttack: "Disable password authentication and restrict AllowUsers to known accounts",
	model.AlertGeoIPAnomaly:     "Verify the source location and restrict SSH access by network",
	model.AlertTimeAnomaly:      "Confirm the login with the account owner",
	model.AlertNonexistentUser:  "Block the source IP; probing for invalid accounts indicates reconnaissance",
	model.AlertRootAttack:       "Set PermitRootLogin no and block the source IP",
	model.AlertNonStandardPort:  "Review firewall rules and listeners on non-standard ports",
	model.AlertPostLoginAnomaly: "Audit active sessions and recent activity of the affected accounts",
}

func (a *analysis) alert(kind model.AlertType, severity model.Severity, ip, username, description string, details map[string]string) model.Alert {
	return model.Alert{
		ID:             uuid.NewString(),
		Timestamp:      a.now,
		Type:           kind,
		Severity:       severity,
		IP:             ip,
		Username:       username,
		Description:    description,
		Details:        details,
		Recommendation: recommendations[kind],
	}
}
