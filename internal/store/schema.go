package store

import "context"

// schema is applied idempotently on startup. The unique index on
// (session_id, student_id_norm) is the authority for the one-record-per-
// student-per-session rule; application code only translates its violation
// into a domain error.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS teachers (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS classes (
		id             TEXT PRIMARY KEY,
		teacher_id     TEXT NOT NULL REFERENCES teachers(id),
		name           TEXT NOT NULL,
		code           TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		loc_lat        DOUBLE PRECISION,
		loc_lng        DOUBLE PRECISION,
		loc_accuracy   DOUBLE PRECISION,
		fence_lat      DOUBLE PRECISION,
		fence_lng      DOUBLE PRECISION,
		fence_radius_m DOUBLE PRECISION,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		class_id     TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
		teacher_id   TEXT NOT NULL REFERENCES teachers(id),
		session_code TEXT NOT NULL UNIQUE,
		name         TEXT NOT NULL,
		start_time   TIMESTAMPTZ NOT NULL,
		end_time     TIMESTAMPTZ,
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		students     JSONB,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS workshops (
		id           TEXT PRIMARY KEY,
		teacher_id   TEXT NOT NULL REFERENCES teachers(id),
		name         TEXT NOT NULL,
		code         TEXT NOT NULL UNIQUE,
		description  TEXT NOT NULL DEFAULT '',
		event_date   TEXT NOT NULL DEFAULT '',
		loc_lat      DOUBLE PRECISION,
		loc_lng      DOUBLE PRECISION,
		loc_accuracy DOUBLE PRECISION,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS workshop_attendants (
		id          TEXT PRIMARY KEY,
		workshop_id TEXT NOT NULL REFERENCES workshops(id) ON DELETE CASCADE,
		name        TEXT NOT NULL,
		email       TEXT NOT NULL,
		email_norm  TEXT NOT NULL,
		phone       TEXT NOT NULL,
		attended_at TIMESTAMPTZ NOT NULL,
		UNIQUE (workshop_id, email_norm)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id              TEXT PRIMARY KEY,
		session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		student_name    TEXT NOT NULL,
		student_id      TEXT NOT NULL,
		student_id_norm TEXT NOT NULL,
		student_email   TEXT NOT NULL DEFAULT '',
		attended_at     TIMESTAMPTZ NOT NULL,
		lat             DOUBLE PRECISION,
		lng             DOUBLE PRECISION,
		accuracy        DOUBLE PRECISION,
		distance_km     DOUBLE PRECISION,
		geofence_status TEXT NOT NULL DEFAULT 'inside',
		anchor_status   TEXT NOT NULL DEFAULT '',
		anchor_tx       TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (session_id, student_id_norm)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_session ON attendance_records (session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_class ON sessions (class_id)`,
}

// Migrate applies the schema.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
