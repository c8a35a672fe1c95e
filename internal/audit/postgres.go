package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const createTableStmt = `
CREATE TABLE IF NOT EXISTS audit_events (
	id BIGSERIAL PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	event TEXT NOT NULL,
	request_id TEXT,
	account_id TEXT,
	fields JSONB NOT NULL DEFAULT '{}'::jsonb
)`

const insertStmt = `
INSERT INTO audit_events (ts, event, request_id, account_id, fields)
VALUES ($1, $2, $3, $4, $5)`

// PostgresSink persists audit entries through database/sql (pgx stdlib
// driver). Ledger state itself stays in memory; only the audit trail
// survives a restart.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink wraps an open database handle.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the audit table when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableStmt); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

// Record inserts one audit entry.
func (s *PostgresSink) Record(ctx context.Context, e Entry) error {
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("marshal audit fields: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insertStmt,
		e.TS, e.Event, nullable(e.RequestID), nullable(e.AccountID), fields); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
