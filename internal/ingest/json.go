package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sshguard/internal/normalize"
)

// JournalEntry is the subset of a `journalctl -o json` record we use.
type JournalEntry struct {
	Message    string
	Timestamp  string
	Identifier string
}

func decodeObject(data []byte) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// ParseJSONBytes decodes either a journald record or a structured attempt
// object. It returns nil fields when the payload has no authentication event.
func ParseJSONBytes(data []byte) (*normalize.AuthFields, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	if _, ok := obj["MESSAGE"]; ok {
		entry := journalFromMap(obj)
		fields := parseMessage(entry.Message)
		if fields == nil {
			return nil, nil
		}
		fields.Timestamp = entry.Timestamp
		return fields, nil
	}
	return ParseJSONMap(obj)
}

func journalFromMap(obj map[string]any) *JournalEntry {
	return &JournalEntry{
		Message:    journalString(obj["MESSAGE"]),
		Timestamp:  journalString(obj["__REALTIME_TIMESTAMP"]),
		Identifier: journalString(obj["SYSLOG_IDENTIFIER"]),
	}
}

// journalString handles journald's habit of exporting non-UTF-8 fields as
// byte arrays.
func journalString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		b := make([]byte, 0, len(t))
		for _, e := range t {
			if n, ok := e.(float64); ok {
				b = append(b, byte(n))
			}
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

// ParseJSONMap maps a structured attempt object. Keys are matched case
// insensitively; "success" may be a bool or a result word.
func ParseJSONMap(obj map[string]any) (*normalize.AuthFields, error) {
	kv := make(map[string]any, len(obj))
	for k, v := range obj {
		kv[strings.ToLower(k)] = v
	}
	fields := &normalize.AuthFields{
		Timestamp:  firstString(kv, "timestamp", "time", "ts"),
		IP:         firstString(kv, "ip", "source_ip", "src_ip", "remote_addr"),
		Username:   firstString(kv, "username", "user"),
		Port:       firstString(kv, "port"),
		Structured: true,
	}
	if fields.IP == "" {
		return nil, errors.New("attempt object has no ip")
	}
	switch v := kv["success"].(type) {
	case bool:
		if v {
			fields.Result = "success"
		} else {
			fields.Result = "failure"
		}
	case nil:
		fields.Result = firstString(kv, "result", "status", "outcome")
	default:
		fields.Result = fmt.Sprint(v)
	}
	return fields, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = fmt.Sprintf("%.0f", t)
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
