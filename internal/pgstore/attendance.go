package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"eduface/internal/portal"
)

const attendanceColumns = `a.id, COALESCE(a.user_id, 0), a.student_id, a.subject, a.date, a.status`

func scanAttendance(row scanner) (portal.Attendance, error) {
	var (
		a      portal.Attendance
		status string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.StudentID, &a.Subject, &a.Date, &status); err != nil {
		return portal.Attendance{}, err
	}
	a.Status = portal.Status(status)
	if st, err := portal.ParseStatus(status); err == nil {
		a.Status = st
	}
	return a, nil
}

func (s *Store) queryAttendance(ctx context.Context, what, query string, args ...any) ([]portal.Attendance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, mapErr(err))
	}
	defer rows.Close()
	return collect(rows, scanAttendance)
}

// subject returns the registered spelling of name.
func (s *Store) subject(ctx context.Context, q querier, name string) (string, error) {
	var canonical string
	err := q.QueryRowContext(ctx, `SELECT name FROM subjects WHERE lower(name) = lower($1)`, strings.TrimSpace(name)).Scan(&canonical)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", portal.ErrUnknownSubject, name)
	}
	if err != nil {
		return "", fmt.Errorf("resolve subject %s: %w", name, mapErr(err))
	}
	return canonical, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserAttendance returns marks recorded for the user either by id or by
// student ID, grouped by subject in declared order.
func (s *Store) UserAttendance(ctx context.Context, userID int) ([]portal.Attendance, error) {
	u, err := s.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.queryAttendance(ctx, "user attendance", `
		SELECT `+attendanceColumns+`
		FROM attendance a JOIN subjects s ON s.name = a.subject
		WHERE a.user_id = $1 OR ($2 <> '' AND a.student_id = $2)
		ORDER BY s.position, a.id
	`, userID, strings.TrimSpace(u.StudentID))
}

func (s *Store) AttendanceBySubject(ctx context.Context, subject string) ([]portal.Attendance, error) {
	name, err := s.subject(ctx, s.db, subject)
	if err != nil {
		return nil, err
	}
	return s.queryAttendance(ctx, "attendance of "+name,
		`SELECT `+attendanceColumns+` FROM attendance a WHERE a.subject = $1 ORDER BY a.id`, name)
}

func (s *Store) ListAttendance(ctx context.Context) ([]portal.Attendance, error) {
	return s.queryAttendance(ctx, "list attendance", `
		SELECT `+attendanceColumns+`
		FROM attendance a JOIN subjects s ON s.name = a.subject
		ORDER BY s.position, a.id
	`)
}

func (s *Store) AttendanceSubjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM subjects ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", mapErr(err))
	}
	defer rows.Close()
	return collect(rows, func(r scanner) (string, error) {
		var name string
		err := r.Scan(&name)
		return name, err
	})
}

// AttendanceTarget resolves subject against the subjects table. Postgres
// has no legacy table.
func (s *Store) AttendanceTarget(ctx context.Context, subject string) (string, bool, error) {
	name, err := s.subject(ctx, s.db, subject)
	return name, false, err
}

func (s *Store) AddAttendance(ctx context.Context, a portal.Attendance) (portal.Attendance, error) {
	saved, err := s.AddAttendanceBatch(ctx, []portal.Attendance{a})
	if err != nil {
		return portal.Attendance{}, err
	}
	return saved[0], nil
}

// AddAttendanceBatch inserts marks in one transaction.
func (s *Store) AddAttendanceBatch(ctx context.Context, marks []portal.Attendance) ([]portal.Attendance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance batch: %w", mapErr(err))
	}
	defer tx.Rollback() //nolint:errcheck

	saved := make([]portal.Attendance, len(marks))
	for i, a := range marks {
		name, err := s.subject(ctx, tx, a.Subject)
		if err != nil {
			return nil, err
		}
		a.Subject = name
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO attendance (user_id, student_id, subject, date, status)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, nullableID(a.UserID), strings.TrimSpace(a.StudentID), a.Subject, a.Date, string(a.Status)).Scan(&a.ID); err != nil {
			return nil, fmt.Errorf("add attendance to %s: %w", name, mapErr(err))
		}
		saved[i] = a
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance batch: %w", mapErr(err))
	}
	return saved, nil
}
