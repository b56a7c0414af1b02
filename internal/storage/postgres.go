package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/sshguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &postgresStore{baseStore{db: db, dialect: dialect{
		schema: []string{
			`CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				ts TIMESTAMPTZ NOT NULL,
				alert_type TEXT NOT NULL,
				severity TEXT NOT NULL,
				ip TEXT NOT NULL,
				username TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL,
				recommendation TEXT NOT NULL DEFAULT '',
				details_json JSONB
			)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_ip ON alerts(ip)`,
		},
		insert: `INSERT INTO alerts (id, ts, alert_type, severity, ip, username, description, recommendation, details_json)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
		list: `SELECT id, ts, alert_type, severity, ip, username, description, recommendation, details_json::text
			FROM alerts WHERE ts >= $1 ORDER BY ts DESC LIMIT $2`,
	}}}, nil
}
