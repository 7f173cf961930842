package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is written in a lowest-common-denominator dialect (TEXT ids and
// timestamps, INTEGER booleans/counters) that `database/sql` drives
// identically against both lib/pq and modernc.org/sqlite — the same
// migration runs unmodified in production (Postgres) and lite mode
// (SQLite).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL,
		deleted_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS social_connections (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		page_id TEXT,
		account_id TEXT,
		access_token TEXT NOT NULL,
		token_expiry TEXT NOT NULL,
		refreshed_at TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_configs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		verification_token TEXT NOT NULL,
		webhook_url TEXT,
		generated_url TEXT,
		is_active INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS ai_project_bindings (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		runtime_config TEXT NOT NULL DEFAULT '{}',
		api_key TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '{}',
		last_interaction TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		UNIQUE(tenant_id, participant_id, platform)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		external_thread_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		last_message_at TEXT NOT NULL,
		session_id TEXT NOT NULL,
		UNIQUE(tenant_id, platform, external_thread_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		external_id TEXT,
		sent_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS queued_events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		raw_payload BLOB NOT NULL,
		fingerprint TEXT NOT NULL,
		event_ts TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_retry_at TEXT,
		error TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(fingerprint)
	)`,
	`CREATE TABLE IF NOT EXISTS processing_traces (
		id TEXT PRIMARY KEY,
		queued_event_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		ts TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dead_letters (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		original_payload BLOB NOT NULL,
		error TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		failed_at TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'failed'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queued_events_claim ON queued_events(status, retry_count, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_lookup ON sessions(tenant_id, participant_id, platform)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at)`,
}

// Migrate applies the schema. It is idempotent — safe to call on every
// startup in both production and lite mode.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}
	return nil
}
