package report

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattn/go-isatty"

	"sshguard/internal/model"
)

var severityColors = map[model.Severity]string{
	model.SeverityCritical: "\033[1;31m",
	model.SeverityHigh:     "\033[1;33m",
	model.SeverityMedium:   "\033[1;36m",
	model.SeverityLow:      "\033[1;37m",
}

const colorReset = "\033[0m"

// Printer writes alerts for humans. Colour is applied only when enabled.
type Printer struct {
	w     io.Writer
	color bool
}

func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color}
}

// NewStdoutPrinter colours output when stdout is a terminal.
func NewStdoutPrinter() *Printer {
	fd := os.Stdout.Fd()
	return NewPrinter(os.Stdout, isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

func (p *Printer) severity(s model.Severity) string {
	label := "[" + string(s) + "]"
	if !p.color {
		return label
	}
	if c, ok := severityColors[s]; ok {
		return c + label + colorReset
	}
	return label
}

// FormatAlertLine is the one-line form used by the monitor log.
func FormatAlertLine(a model.Alert) string {
	return fmt.Sprintf("[%s] %s from %s (user: %s): %s", a.Severity, a.Type, a.IP, a.Username, a.Description)
}

// CountByType tallies alerts per type.
func CountByType(alerts []model.Alert) map[model.AlertType]int {
	out := make(map[model.AlertType]int)
	for _, a := range alerts {
		out[a.Type]++
	}
	return out
}

// PrintSummary writes "type: N incidents" lines sorted by type name.
func (p *Printer) PrintSummary(alerts []model.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(p.w, "No SSH attacks detected!")
		return
	}
	counts := CountByType(alerts)
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	fmt.Fprintf(p.w, "Detected %d alerts:\n", len(alerts))
	for _, k := range kinds {
		fmt.Fprintf(p.w, "  %s: %d incidents\n", k, counts[model.AlertType(k)])
	}
}

// PrintAlerts writes each alert with its description and sorted details,
// grouped by type in the order types first appear.
func (p *Printer) PrintAlerts(alerts []model.Alert) {
	if len(alerts) == 0 {
		return
	}
	var order []model.AlertType
	groups := make(map[model.AlertType][]model.Alert)
	for _, a := range alerts {
		if _, ok := groups[a.Type]; !ok {
			order = append(order, a.Type)
		}
		groups[a.Type] = append(groups[a.Type], a)
	}
	fmt.Fprintln(p.w, "\nDetailed Alerts:")
	for _, kind := range order {
		for _, a := range groups[kind] {
			user := a.Username
			if user == "" {
				user = "-"
			}
			fmt.Fprintf(p.w, "%s %s from %s (user: %s)\n", p.severity(a.Severity), a.Type, a.IP, user)
			fmt.Fprintf(p.w, "  %s\n", a.Description)
			keys := make([]string, 0, len(a.Details))
			for k := range a.Details {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(p.w, "  %s: %s\n", k, a.Details[k])
			}
			if a.Recommendation != "" {
				fmt.Fprintf(p.w, "  recommendation: %s\n", a.Recommendation)
			}
		}
	}
}

// PrintBatch is the full parse-log report.
func (p *Printer) PrintBatch(attempts int, alerts []model.Alert) {
	fmt.Fprintf(p.w, "Parsed %d connection attempts\n", attempts)
	p.PrintSummary(alerts)
	p.PrintAlerts(alerts)
}
