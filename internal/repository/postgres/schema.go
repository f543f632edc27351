package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the notification engine's tables. Idempotent; both
// binaries run it at startup. The users table is owned by the surrounding
// application — it is created here only so a standalone deployment works.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id TEXT PRIMARY KEY REFERENCES users(id),
	socket_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	email_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	thresholds INTEGER[] NOT NULL,
	quiet_start TEXT,
	quiet_end TEXT,
	quiet_timezone TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS delivery_jobs (
	id UUID PRIMARY KEY,
	alert_id UUID NOT NULL,
	user_id TEXT NOT NULL,
	budget_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	payload JSONB NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	lease_expires_at TIMESTAMPTZ,
	worker_id TEXT NOT NULL DEFAULT '',
	message_id TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_delivery_jobs_claim
	ON delivery_jobs (next_attempt_at)
	WHERE channel = 'email' AND status IN ('pending', 'failed');

CREATE INDEX IF NOT EXISTS idx_delivery_jobs_dead
	ON delivery_jobs (updated_at DESC)
	WHERE status = 'dead';
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
