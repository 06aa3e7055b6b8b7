// Package audit records completed exports in PostgreSQL.
//
// Only metadata is stored: which sink, how many rows, the recipient or
// object key, the profile and the session. Tables themselves are never
// persisted.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/seace/internal/config"
	"github.com/JonMunkholm/seace/internal/core"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Event is one stored export.
type Event struct {
	ID        uuid.UUID
	SessionID string
	Sink      string
	FileName  string
	Profile   string
	Recipient string
	Rows      int
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS export_log (
    id          UUID PRIMARY KEY,
    session_id  TEXT NOT NULL,
    sink        TEXT NOT NULL,
    file_name   TEXT NOT NULL,
    profile     TEXT NOT NULL,
    recipient   TEXT NOT NULL DEFAULT '',
    row_count   INTEGER NOT NULL,
    ip_address  INET,
    user_agent  TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS export_log_created_at_idx ON export_log (created_at DESC);
`

const insertSQL = `
INSERT INTO export_log (id, session_id, sink, file_name, profile, recipient, row_count, ip_address, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const recentSQL = `
SELECT id, session_id, sink, file_name, profile, recipient, row_count,
       COALESCE(host(ip_address), ''), user_agent, created_at
FROM export_log
ORDER BY created_at DESC
LIMIT $1`

// Recorder implements core.Recorder on PostgreSQL.
type Recorder struct {
	db DBTX
}

// NewRecorder wraps an open connection or pool.
func NewRecorder(db DBTX) *Recorder {
	return &Recorder{db: db}
}

// Open connects a pool from cfg, verifies it and ensures the schema.
// The caller must Close the pool.
func Open(ctx context.Context, cfg config.AuditConfig) (*pgxpool.Pool, *Recorder, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	r := NewRecorder(pool)
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, r, nil
}

// EnsureSchema creates the export_log table if needed.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create export_log: %w", err)
	}
	return nil
}

// Record stores ev.
func (r *Recorder) Record(ctx context.Context, ev core.ExportEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := r.db.Exec(ctx, insertSQL,
		uuid.New(),
		ev.SessionID,
		ev.Sink,
		ev.FileName,
		ev.Profile,
		ev.Recipient,
		ev.Rows,
		parseIP(ev.IPAddress),
		ev.UserAgent,
		at,
	)
	if err != nil {
		return fmt.Errorf("insert export_log: %w", err)
	}

	slog.Debug("export recorded", "sink", ev.Sink, "session", ev.SessionID, "rows", ev.Rows)
	return nil
}

// Recent returns the latest events, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, recentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query export_log: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(
			&ev.ID,
			&ev.SessionID,
			&ev.Sink,
			&ev.FileName,
			&ev.Profile,
			&ev.Recipient,
			&ev.Rows,
			&ev.IPAddress,
			&ev.UserAgent,
			&ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan export_log: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// parseIP returns nil for addresses Postgres' INET would reject.
func parseIP(s string) *netip.Addr {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil
	}
	return &addr
}
