package store

import "context"

// EnsureSchema creates the tables and indexes the app needs. Statements are
// idempotent so a restart against an existing database is a no-op.
func (d *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            UUID PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'student',
			profile       JSONB NOT NULL DEFAULT '{}',
			preferences   JSONB NOT NULL DEFAULT '{}',
			attendance_goal INT NOT NULL DEFAULT 75,
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			last_login    TIMESTAMPTZ,
			login_count   INT NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS subjects (
			id          UUID PRIMARY KEY,
			user_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name        TEXT NOT NULL,
			code        TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			instructor  JSONB NOT NULL DEFAULT '{}',
			schedule    JSONB NOT NULL DEFAULT '[]',
			semester    TEXT NOT NULL DEFAULT '',
			year        INT,
			color       TEXT NOT NULL DEFAULT '#3b82f6',
			is_active   BOOLEAN NOT NULL DEFAULT TRUE,
			total_lectures        INT NOT NULL DEFAULT 0,
			attended_lectures     INT NOT NULL DEFAULT 0,
			attendance_percentage INT NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS lectures (
			id          UUID PRIMARY KEY,
			subject_id  UUID NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
			user_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title       TEXT NOT NULL,
			topic       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			lecture_date DATE NOT NULL,
			start_time  TEXT NOT NULL,
			end_time    TEXT NOT NULL,
			duration    INT NOT NULL DEFAULT 0,
			room        TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'absent',
			notes       TEXT NOT NULL DEFAULT '',
			materials   JSONB NOT NULL DEFAULT '[]',
			assignments JSONB NOT NULL DEFAULT '[]',
			is_important BOOLEAN NOT NULL DEFAULT FALSE,
			is_exam     BOOLEAN NOT NULL DEFAULT FALSE,
			exam_type   TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subjects_user ON subjects (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_lectures_user_date ON lectures (user_id, lecture_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_lectures_subject_date ON lectures (subject_id, lecture_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_lectures_status ON lectures (status)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
