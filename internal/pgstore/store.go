// Package pgstore implements portal.Repository on Postgres through the pgx
// database/sql driver.
package pgstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"eduface/internal/portal"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            SERIAL PRIMARY KEY,
	full_name     TEXT NOT NULL,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	student_id    TEXT,
	phone         TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'student',
	section       TEXT NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email));
CREATE UNIQUE INDEX IF NOT EXISTS users_student_id_key ON users (student_id);

CREATE TABLE IF NOT EXISTS routines (
	id              SERIAL PRIMARY KEY,
	user_id         INTEGER NOT NULL,
	day             TEXT NOT NULL,
	start_time      TEXT NOT NULL,
	end_time        TEXT NOT NULL,
	subject         TEXT NOT NULL,
	instructor_name TEXT NOT NULL DEFAULT '',
	room_number     TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS subjects (
	name     TEXT PRIMARY KEY,
	position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS attendance (
	id         SERIAL PRIMARY KEY,
	user_id    INTEGER,
	student_id TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL REFERENCES subjects (name),
	date       TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS attendance_subject_idx ON attendance (subject);

CREATE TABLE IF NOT EXISTS results (
	id          SERIAL PRIMARY KEY,
	user_id     INTEGER NOT NULL,
	subject     TEXT NOT NULL,
	marks       INTEGER NOT NULL,
	grade       TEXT NOT NULL,
	date        TEXT NOT NULL,
	uploaded_by INTEGER,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Store persists portal entities in Postgres.
type Store struct {
	db *sql.DB
}

var _ portal.Repository = (*Store)(nil)

// New creates a store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates missing tables and registers the declared subjects in
// order.
func (s *Store) Migrate(ctx context.Context, subjects []string) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", mapErr(err))
	}
	for i, name := range subjects {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO subjects (name, position) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET position = EXCLUDED.position
		`, name, i); err != nil {
			return fmt.Errorf("register subject %s: %w", name, mapErr(err))
		}
	}
	return nil
}

// mapErr translates driver errors into portal errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return portal.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", portal.ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", portal.ErrUnknownSubject, pgErr.Detail)
		}
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57") {
			return fmt.Errorf("%w: %w", portal.ErrUnavailable, err)
		}
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) ||
		errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", portal.ErrUnavailable, err)
	}
	return err
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullableID(id int) any {
	if id <= 0 {
		return nil
	}
	return id
}
