package normalize

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"sshguard/internal/config"
	"sshguard/internal/model"
)

// AuthFields is one authentication event as extracted by a parser, before
// typing and defaults are applied.
type AuthFields struct {
	Timestamp string
	IP        string
	Username  string
	Result    string
	Port      string
	Source    string
	Raw       string
	// Structured marks payloads whose timestamp was set deliberately by the
	// producer, as with REST or Kafka JSON.
	Structured bool
}

var ErrMissingIP = errors.New("missing or invalid source ip")

// Normalize converts parsed fields into an attempt. Log timestamps are kept
// only for structured payloads or when parser.use_log_time is set; otherwise
// the timestamp stays zero and the engine stamps arrival time.
func Normalize(fields AuthFields, cfg *config.Config) (model.ConnectionAttempt, error) {
	ip := strings.Trim(strings.TrimSpace(fields.IP), "[]")
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return model.ConnectionAttempt{}, fmt.Errorf("%w: %q", ErrMissingIP, fields.IP)
	}

	parser := cfg.Ingest.Parser
	att := model.ConnectionAttempt{
		IP:       parsed.String(),
		Username: strings.TrimSpace(fields.Username),
		Success:  ParseResult(fields.Result),
		Port:     parsePort(fields.Port, parser.DefaultPort),
		Source:   fields.Source,
	}

	if fields.Timestamp != "" && (fields.Structured || parser.UseLogTime) {
		ts, err := ParseTimestamp(fields.Timestamp, config.Location(parser.Timezone))
		if err != nil {
			return model.ConnectionAttempt{}, fmt.Errorf("parse timestamp: %w", err)
		}
		att.Timestamp = ts.UTC()
	}
	return att, nil
}

func ParseResult(result string) bool {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "accepted", "success", "ok", "true", "allow", "allowed", "granted":
		return true
	}
	return false
}

func parsePort(value string, fallback int) int {
	if fallback <= 0 {
		fallback = 22
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	p, err := strconv.Atoi(value)
	if err != nil || p <= 0 || p > 65535 {
		return fallback
	}
	return p
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05.000000Z07:00",
}

var syslogLayouts = []string{
	"Jan _2 15:04:05",
	"Jan 2 15:04:05",
	"Jan 02 15:04:05",
}

// ParseTimestamp accepts RFC 3339 variants, unix seconds, milliseconds or
// microseconds, and year-less syslog stamps. Syslog stamps take the current
// year, or the previous one when that would land more than a day ahead.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if loc == nil {
		loc = time.Local
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range syslogLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err != nil {
			continue
		}
		now := time.Now().In(loc)
		ts := time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
		if ts.Sub(now) > 24*time.Hour {
			ts = ts.AddDate(-1, 0, 0)
		}
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	switch {
	case len(value) >= 16:
		return time.UnixMicro(n).UTC(), nil
	case len(value) >= 13:
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}
