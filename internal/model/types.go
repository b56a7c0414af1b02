package model

import "time"

type AlertType string

const (
	AlertBruteForce       AlertType = "brute_force"
	AlertDictionaryAttack AlertType = "dictionary_attack"
	AlertGeoIPAnomaly     AlertType = "geo_ip_anomaly"
	AlertTimeAnomaly      AlertType = "time_anomaly"
	AlertNonexistentUser  AlertType = "nonexistent_user"
	AlertRootAttack       AlertType = "root_attack"
	AlertNonStandardPort  AlertType = "non_standard_port"
	AlertPostLoginAnomaly AlertType = "post_login_anomaly"
)

// AlertTypes lists every alert type in pipeline order.
var AlertTypes = []AlertType{
	AlertBruteForce,
	AlertDictionaryAttack,
	AlertGeoIPAnomaly,
	AlertTimeAnomaly,
	AlertNonexistentUser,
	AlertRootAttack,
	AlertNonStandardPort,
	AlertPostLoginAnomaly,
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4); unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

type ConnectionAttempt struct {
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Username  string    `json:"username"`
	Success   bool      `json:"success"`
	Port      int       `json:"port"`
	Source    string    `json:"source,omitempty"`
}

type Alert struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	Type           AlertType         `json:"type"`
	Severity       Severity          `json:"severity"`
	IP             string            `json:"ip"`
	Username       string            `json:"username,omitempty"`
	Description    string            `json:"description"`
	Details        map[string]string `json:"details,omitempty"`
	Recommendation string            `json:"recommendation,omitempty"`
}
