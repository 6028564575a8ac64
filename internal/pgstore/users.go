package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"eduface/internal/portal"
)

const userColumns = `id, full_name, email, password_hash, COALESCE(student_id, ''), phone, role, section, is_active, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (portal.User, error) {
	var (
		u    portal.User
		role string
	)
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.StudentID, &u.Phone, &role, &u.Section, &u.IsActive, &u.CreatedAt); err != nil {
		return portal.User{}, err
	}
	u.Role = portal.RoleStudent
	if r, err := portal.ParseRole(role); err == nil {
		u.Role = r
	}
	return u, nil
}

func (s *Store) findUser(ctx context.Context, what string, where string, arg any) (portal.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		return portal.User{}, fmt.Errorf("find user by %s: %w", what, mapErr(err))
	}
	return u, nil
}

// FindUserByEmail matches email in any casing.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (portal.User, error) {
	return s.findUser(ctx, "email", `lower(email) = lower($1)`, strings.TrimSpace(email))
}

func (s *Store) FindUserByID(ctx context.Context, id int) (portal.User, error) {
	return s.findUser(ctx, "id", `id = $1`, id)
}

func (s *Store) FindUserByStudentID(ctx context.Context, studentID string) (portal.User, error) {
	return s.findUser(ctx, "student id", `student_id = $1`, strings.TrimSpace(studentID))
}

// AddUser inserts u as an active account. Duplicate emails or student IDs
// yield portal.ErrConflict.
func (s *Store) AddUser(ctx context.Context, u portal.User) (portal.User, error) {
	if u.Role == "" {
		u.Role = portal.RoleStudent
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (full_name, email, password_hash, student_id, phone, role, section, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE)
		RETURNING id, created_at
	`, u.FullName, u.Email, u.PasswordHash, nullable(u.StudentID), u.Phone, string(u.Role), u.Section)
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		return portal.User{}, fmt.Errorf("add user: %w", mapErr(err))
	}
	u.IsActive = true
	return u, nil
}

// UpdateUser overwrites the mutable columns of u.ID.
func (s *Store) UpdateUser(ctx context.Context, u portal.User) (portal.User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET full_name = $2, password_hash = $3, phone = $4, role = $5, section = $6, is_active = $7
		WHERE id = $1
		RETURNING `+userColumns,
		u.ID, u.FullName, u.PasswordHash, u.Phone, string(u.Role), u.Section, u.IsActive)
	updated, err := scanUser(row)
	if err != nil {
		return portal.User{}, fmt.Errorf("update user %d: %w", u.ID, mapErr(err))
	}
	return updated, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]portal.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", mapErr(err))
	}
	defer rows.Close()
	return collect(rows, scanUser)
}

func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}
