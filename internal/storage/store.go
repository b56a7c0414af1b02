package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sshguard/internal/config"
	"sshguard/internal/model"
)

// Store persists alerts outside the process.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveAlerts(ctx context.Context, alerts []model.Alert) error
	ListAlerts(ctx context.Context, since time.Time, limit int) ([]model.Alert, error)
}

// NewStore returns nil when storage is disabled.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

// dialect covers the differences between the two SQL engines.
type dialect struct {
	schema   []string
	insert   string
	list     string
	textTime bool
}

type baseStore struct {
	db *sql.DB
	dialect
}

func (b *baseStore) Init(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	for _, stmt := range b.schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) SaveAlerts(ctx context.Context, alerts []model.Alert) error {
	if b.db == nil || len(alerts) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, b.insert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, a := range alerts {
		if _, err := stmt.ExecContext(ctx,
			a.ID,
			b.encodeTime(a.Timestamp),
			string(a.Type),
			string(a.Severity),
			a.IP,
			a.Username,
			a.Description,
			a.Recommendation,
			encodeJSON(a.Details),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert alert %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// ListAlerts returns alerts at or after since, newest first.
func (b *baseStore) ListAlerts(ctx context.Context, since time.Time, limit int) ([]model.Alert, error) {
	if b.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := b.db.QueryContext(ctx, b.list, b.encodeTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()
	out := make([]model.Alert, 0)
	for rows.Next() {
		var (
			a        model.Alert
			kind     string
			severity string
			details  string
			ts       any
		)
		if err := rows.Scan(&a.ID, &ts, &kind, &severity, &a.IP, &a.Username, &a.Description, &a.Recommendation, &details); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = model.AlertType(kind)
		a.Severity = model.Severity(severity)
		if a.Timestamp, err = decodeTime(ts); err != nil {
			return nil, fmt.Errorf("alert %s timestamp: %w", a.ID, err)
		}
		if details != "" && details != "null" {
			if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
				return nil, fmt.Errorf("alert %s details: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// textTimeLayout is fixed width so text timestamps compare in time order.
const textTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func (b *baseStore) encodeTime(ts time.Time) any {
	if b.textTime {
		return ts.UTC().Format(textTimeLayout)
	}
	return ts.UTC()
}

func decodeTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	}
	return time.Time{}, fmt.Errorf("unexpected type %T", v)
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}
