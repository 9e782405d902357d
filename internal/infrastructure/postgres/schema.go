package postgres

import (
	"context"
	"fmt"
)

// EnsureSchema creates the tables the store needs if they do not exist.
// The demo manages its own schema; there is no external migration tool.
func (db *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id       TEXT PRIMARY KEY,
			email    TEXT NOT NULL DEFAULT '',
			name     TEXT NOT NULL DEFAULT '',
			testmode BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS link_sessions (
			id            TEXT PRIMARY KEY,
			customer_id   TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
			fc_session_id TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL DEFAULT 'pending',
			metadata      JSONB,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_link_sessions_customer ON link_sessions(customer_id)`,
		`CREATE TABLE IF NOT EXISTS app_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
