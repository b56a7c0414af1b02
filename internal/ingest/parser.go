package ingest

import (
	"regexp"
	"strings"

	"sshguard/internal/normalize"
)

var (
	reFailed   = regexp.MustCompile(`Failed (?:password|publickey|none|hostbased|keyboard-interactive(?:/pam)?) for (invalid user )?(\S*) from (\S+) port (\d+)`)
	reAccepted = regexp.MustCompile(`Accepted (?:password|publickey|hostbased|gssapi-with-mic|keyboard-interactive(?:/pam)?) for (\S+) from (\S+) port (\d+)`)
	reInvalid  = regexp.MustCompile(`Invalid user (\S*) from (\S+)(?: port (\d+))?`)

	rePriority  = regexp.MustCompile(`^<\d{1,3}>(?:1 )?`)
	reTimestamp = regexp.MustCompile(`^\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[ T][0-9:.]+(?:Z|[+-][0-9]{2}:?[0-9]{2})?)`)
	reSyslogTS  = regexp.MustCompile(`^\s*([A-Za-z]{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})`)
)

// Parser extracts sshd authentication events from syslog text lines and
// journald JSON exports.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// ParseLine returns nil fields for lines that carry no authentication event.
func (p *Parser) ParseLine(line string) (*normalize.AuthFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		fields, err := ParseJSONBytes([]byte(trim))
		if err != nil || fields == nil {
			return nil, err
		}
		fields.Raw = trim
		return fields, nil
	}

	trim = rePriority.ReplaceAllString(trim, "")
	ts, rest := extractTimestamp(trim)
	fields := parseMessage(rest)
	if fields == nil {
		return nil, nil
	}
	fields.Timestamp = ts
	fields.Raw = trim
	return fields, nil
}

// parseMessage matches an sshd message body. Failed-for-invalid-user lines and
// bare Invalid user lines are both reported, as sshd logs both for one attempt.
func parseMessage(msg string) *normalize.AuthFields {
	if m := reFailed.FindStringSubmatch(msg); m != nil {
		return &normalize.AuthFields{Username: m[2], IP: m[3], Port: m[4], Result: "failure"}
	}
	if m := reAccepted.FindStringSubmatch(msg); m != nil {
		return &normalize.AuthFields{Username: m[1], IP: m[2], Port: m[3], Result: "accepted"}
	}
	if m := reInvalid.FindStringSubmatch(msg); m != nil {
		return &normalize.AuthFields{Username: m[1], IP: m[2], Port: m[3], Result: "failure"}
	}
	return nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func extractTimestamp(line string) (string, string) {
	m := reTimestamp.FindStringSubmatchIndex(line)
	if len(m) >= 4 {
		return strings.TrimSpace(line[m[2]:m[3]]), strings.TrimSpace(line[m[3]:])
	}
	m = reSyslogTS.FindStringSubmatchIndex(line)
	if len(m) >= 4 {
		return strings.TrimSpace(line[m[2]:m[3]]), strings.TrimSpace(line[m[3]:])
	}
	return "", line
}
