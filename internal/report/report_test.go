package report

import (
	"bytes"
	"strings"
	"testing"

	"sshguard/internal/model"
)

func sampleAlerts() []model.Alert {
	return []model.Alert{
		{
			Type:        model.AlertRootAttack,
			Severity:    model.SeverityCritical,
			IP:          "203.0.113.9",
			Username:    "root",
			Description: "Root login attempt detected",
			Details:     map[string]string{"total_attempts": "3", "failed_attempts": "3"},
		},
		{
			Type:        model.AlertBruteForce,
			Severity:    model.SeverityHigh,
			IP:          "203.0.113.9",
			Description: "Brute force attack detected",
		},
		{
			Type:     model.AlertRootAttack,
			Severity: model.SeverityHigh,
			IP:       "198.51.100.2",
			Username: "root",
		},
	}
}

func TestPrintSummarySortsTypes(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, false).PrintSummary(sampleAlerts())
	out := buf.String()
	brute := strings.Index(out, "brute_force: 1 incidents")
	root := strings.Index(out, "root_attack: 2 incidents")
	if brute < 0 || root < 0 || brute > root {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestPrintSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, false).PrintSummary(nil)
	if !strings.Contains(buf.String(), "No SSH attacks detected!") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestPrintAlertsDetailsSorted(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, false).PrintAlerts(sampleAlerts())
	out := buf.String()
	if !strings.Contains(out, "[critical] root_attack from 203.0.113.9 (user: root)") {
		t.Fatalf("missing header:\n%s", out)
	}
	if strings.Index(out, "failed_attempts: 3") > strings.Index(out, "total_attempts: 3") {
		t.Fatalf("details not sorted:\n%s", out)
	}
	if strings.Contains(out, "\033[") {
		t.Fatalf("unexpected colour codes")
	}
	// grouped: both root alerts come before the brute force alert
	if strings.Index(out, "198.51.100.2") > strings.Index(out, "brute_force from") {
		t.Fatalf("alerts not grouped by type:\n%s", out)
	}
}

func TestPrintAlertsColour(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, true).PrintAlerts(sampleAlerts()[:1])
	if !strings.Contains(buf.String(), "\033[1;31m[critical]\033[0m") {
		t.Fatalf("expected red critical label, got %q", buf.String())
	}
}

func TestFormatAlertLine(t *testing.T) {
	got := FormatAlertLine(sampleAlerts()[0])
	want := "[critical] root_attack from 203.0.113.9 (user: root): Root login attempt detected"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
