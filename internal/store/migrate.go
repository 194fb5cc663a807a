package store

import (
	"context"
	"database/sql"
)

// schema is idempotent. attendance_sessions_one_open backs the
// one-open-session-per-user rule for concurrent clock-ins.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                 UUID PRIMARY KEY,
	username           TEXT NOT NULL,
	email              TEXT NOT NULL UNIQUE,
	password_hash      TEXT NOT NULL,
	role               TEXT NOT NULL DEFAULT 'user',
	location_lat       DOUBLE PRECISION,
	location_lng       DOUBLE PRECISION,
	location_radius_m  DOUBLE PRECISION,
	current_session_id UUID,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attendance_sessions (
	id        UUID PRIMARY KEY,
	user_id   UUID NOT NULL REFERENCES users(id),
	clock_in  TIMESTAMPTZ NOT NULL,
	clock_out TIMESTAMPTZ,
	photo     BYTEA,
	CONSTRAINT clock_out_after_clock_in CHECK (clock_out IS NULL OR clock_out >= clock_in)
);

CREATE UNIQUE INDEX IF NOT EXISTS attendance_sessions_one_open
	ON attendance_sessions (user_id) WHERE clock_out IS NULL;

CREATE INDEX IF NOT EXISTS attendance_sessions_user_clock_in
	ON attendance_sessions (user_id, clock_in);

CREATE TABLE IF NOT EXISTS photo_checks (
	session_id  UUID PRIMARY KEY REFERENCES attendance_sessions(id),
	archive_url TEXT NOT NULL DEFAULT '',
	live        BOOLEAN NOT NULL DEFAULT FALSE,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	checked_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
