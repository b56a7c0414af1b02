package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

// NewSQLite opens a modernc sqlite database. Timestamps are stored as
// fixed-width RFC 3339 text.
func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:sshguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db, dialect: dialect{
		schema: []string{
			`CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				ts TEXT NOT NULL,
				alert_type TEXT NOT NULL,
				severity TEXT NOT NULL,
				ip TEXT NOT NULL,
				username TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL,
				recommendation TEXT NOT NULL DEFAULT '',
				details_json TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_ip ON alerts(ip)`,
		},
		insert: `INSERT OR REPLACE INTO alerts (id, ts, alert_type, severity, ip, username, description, recommendation, details_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		list: `SELECT id, ts, alert_type, severity, ip, username, description, recommendation, details_json
			FROM alerts WHERE ts >= ? ORDER BY ts DESC LIMIT ?`,
		textTime: true,
	}}}, nil
}
