package postgres

import (
	"context"
	"fmt"
	"time"

	"school-portal/internal/config"
	"school-portal/internal/logging"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, cfg config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// ConnectWithRetry keeps dialing until it succeeds, retries run out or ctx is done.
func ConnectWithRetry(ctx context.Context, cfg config.PostgresConfig) (*sqlx.DB, error) {
	attempts := max(cfg.ConnectRetries, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := Connect(ctx, cfg)
		if err == nil {
			return db, nil
		}
		lastErr = err

		logging.Warn().Err(err).Int("attempt", attempt).Dur("next_retry", cfg.RetryInterval).Msg("database connection failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", attempts, lastErr)
}

const schema = `
CREATE TABLE IF NOT EXISTS admins (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS parents (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	surname       TEXT NOT NULL DEFAULT '',
	email         TEXT UNIQUE,
	phone         TEXT UNIQUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS teachers (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	surname       TEXT NOT NULL DEFAULT '',
	email         TEXT UNIQUE,
	phone         TEXT UNIQUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS classes (
	id   SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS students (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	surname       TEXT NOT NULL DEFAULT '',
	email         TEXT UNIQUE,
	phone         TEXT UNIQUE,
	parent_id     TEXT NOT NULL REFERENCES parents(id),
	class_id      INT REFERENCES classes(id),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lessons (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	teacher_id TEXT NOT NULL REFERENCES teachers(id),
	class_id   INT NOT NULL REFERENCES classes(id)
);

CREATE TABLE IF NOT EXISTS exams (
	id         SERIAL PRIMARY KEY,
	title      TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	lesson_id  INT NOT NULL REFERENCES lessons(id)
);

CREATE TABLE IF NOT EXISTS assignments (
	id         SERIAL PRIMARY KEY,
	title      TEXT NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	due_date   TIMESTAMPTZ NOT NULL,
	lesson_id  INT NOT NULL REFERENCES lessons(id)
);

CREATE TABLE IF NOT EXISTS results (
	id            SERIAL PRIMARY KEY,
	score         INT NOT NULL,
	exam_id       INT REFERENCES exams(id) ON DELETE CASCADE,
	assignment_id INT REFERENCES assignments(id) ON DELETE CASCADE,
	student_id    TEXT NOT NULL REFERENCES students(id),
	CHECK (exam_id IS NOT NULL OR assignment_id IS NOT NULL)
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	user_type  TEXT NOT NULL DEFAULT '',
	action     TEXT NOT NULL,
	entity     TEXT NOT NULL,
	entity_id  TEXT,
	changes    JSONB,
	ip_address TEXT,
	user_agent TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_user_created ON audit_logs (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs (created_at);

CREATE UNIQUE INDEX IF NOT EXISTS idx_parents_email_lower ON parents (lower(email));
CREATE UNIQUE INDEX IF NOT EXISTS idx_teachers_email_lower ON teachers (lower(email));
CREATE UNIQUE INDEX IF NOT EXISTS idx_students_email_lower ON students (lower(email));
`

// Migrate creates the tables the service reads; it is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
