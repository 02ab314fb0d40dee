package postgres

import (
	"context"
	"fmt"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'listener',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_user_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
		key_hash TEXT NOT NULL UNIQUE,
		key_prefix TEXT NOT NULL,
		permissions TEXT[] NOT NULL DEFAULT '{}',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at TIMESTAMPTZ,
		last_used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON api_keys(owner_user_id)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		stream_url TEXT NOT NULL,
		region TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS songs (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT,
		label TEXT,
		isrc CHAR(12) UNIQUE,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS detections (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		song_id TEXT NOT NULL REFERENCES songs(id),
		isrc CHAR(12),
		source TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		detected_at TIMESTAMPTZ NOT NULL,
		play_duration_seconds INTEGER NOT NULL DEFAULT 0,
		corrected_by TEXT,
		corrected_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_detections_channel_time ON detections(channel_id, detected_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_detections_time ON detections(detected_at DESC)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL,
		method TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		kind TEXT,
		user_id TEXT,
		key_id TEXT,
		reason TEXT,
		request_id TEXT,
		client_ip TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_time ON audit_logs(occurred_at DESC)`,
}

// Migrate creates the tables and indexes in one transaction.
func (s *Store) Migrate(ctx context.Context) (err error) {
	ctx, done := s.begin(ctx, "Store.Migrate", "migrate", "*")
	defer func() { done(err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin migration", err)
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return wrap(fmt.Sprintf("migration step %d", i), err)
		}
	}
	return wrap("commit migration", tx.Commit())
}
