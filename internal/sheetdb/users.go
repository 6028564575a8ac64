package sheetdb

import (
	"context"
	"fmt"
	"strings"

	"eduface/internal/portal"
	"eduface/internal/record"
	"eduface/internal/sheet"
)

func userFromRecord(rec record.Record) portal.User {
	role, err := portal.ParseRole(rec[record.Role])
	if err != nil {
		role = portal.RoleStudent
	}
	return portal.User{
		ID:           atoi(rec[record.ID]),
		FullName:     rec[record.FullName],
		Email:        rec[record.Email],
		PasswordHash: rec[record.Password],
		StudentID:    rec[record.StudentID],
		Phone:        rec[record.Phone],
		Role:         role,
		Section:      rec[record.Section],
		IsActive:     !strings.EqualFold(rec[record.IsActive], "false"),
		CreatedAt:    parseStamp(rec[record.CreatedAt]),
	}
}

func userRecord(u portal.User) record.Record {
	active := "true"
	if !u.IsActive {
		active = "false"
	}
	created := ""
	if !u.CreatedAt.IsZero() {
		created = stamp(u.CreatedAt)
	}
	return record.Record{
		record.FullName:  u.FullName,
		record.Email:     u.Email,
		record.Password:  u.PasswordHash,
		record.StudentID: u.StudentID,
		record.Phone:     u.Phone,
		record.Role:      string(u.Role),
		record.Section:   u.Section,
		record.IsActive:  active,
		record.CreatedAt: created,
	}
}

func (db *DB) findUser(ctx context.Context, match func(record.Record) bool) (entry, bool, error) {
	es, err := db.entries(ctx, sheet.Users, record.Users)
	if err != nil {
		return entry{}, false, err
	}
	for _, e := range es {
		if match(e.rec) {
			return e, true, nil
		}
	}
	return entry{}, false, nil
}

// FindUserByEmail matches email case-insensitively.
func (db *DB) FindUserByEmail(ctx context.Context, email string) (portal.User, error) {
	email = strings.TrimSpace(email)
	e, ok, err := db.findUser(ctx, func(r record.Record) bool {
		return strings.EqualFold(r[record.Email], email)
	})
	if err != nil {
		return portal.User{}, err
	}
	if !ok {
		return portal.User{}, notFound("user", email)
	}
	return userFromRecord(e.rec), nil
}

func (db *DB) FindUserByID(ctx context.Context, id int) (portal.User, error) {
	e, ok, err := db.findUser(ctx, func(r record.Record) bool { return sameID(r[record.ID], id) })
	if err != nil {
		return portal.User{}, err
	}
	if !ok {
		return portal.User{}, notFound("user", id)
	}
	return userFromRecord(e.rec), nil
}

func (db *DB) FindUserByStudentID(ctx context.Context, studentID string) (portal.User, error) {
	studentID = strings.TrimSpace(studentID)
	e, ok, err := db.findUser(ctx, func(r record.Record) bool {
		return studentID != "" && r[record.StudentID] == studentID
	})
	if err != nil {
		return portal.User{}, err
	}
	if !ok {
		return portal.User{}, notFound("student", studentID)
	}
	return userFromRecord(e.rec), nil
}

// AddUser appends u with the next id. New accounts are always active.
func (db *DB) AddUser(ctx context.Context, u portal.User) (portal.User, error) {
	if u.Role == "" {
		u.Role = portal.RoleStudent
	}
	u.IsActive = true
	u.CreatedAt = db.createdAt()
	assigned, err := db.insert(ctx, sheet.Users, record.Users, userRecord(u))
	if err != nil {
		return portal.User{}, fmt.Errorf("add user: %w", err)
	}
	u.ID = assigned[0]
	return u, nil
}

// UpdateUser rewrites the cells of u's row that differ from what is stored.
func (db *DB) UpdateUser(ctx context.Context, u portal.User) (portal.User, error) {
	unlock := db.locks.Lock(sheet.Users.Key)
	defer unlock()

	e, ok, err := db.findUser(ctx, func(r record.Record) bool { return sameID(r[record.ID], u.ID) })
	if err != nil {
		return portal.User{}, err
	}
	if !ok {
		return portal.User{}, notFound("user", u.ID)
	}
	header, err := db.sheets.Header(ctx, sheet.Users)
	if err != nil {
		return portal.User{}, storeErr(err)
	}
	layout := record.NewLayout(record.Users, header)

	type cell struct {
		col   int
		value string
	}
	want := userRecord(u)
	var cells []cell
	for _, key := range []string{record.FullName, record.Email, record.Password, record.Phone, record.Role, record.Section, record.IsActive} {
		if want[key] == e.rec[key] {
			continue
		}
		col, ok := layout.ColumnOf(key)
		if !ok {
			if want[key] == absentUserValue(key) {
				continue
			}
			return portal.User{}, fmt.Errorf("update user %d: users table has no %s column: %w", u.ID, key, portal.ErrInvalid)
		}
		cells = append(cells, cell{col, want[key]})
	}
	for _, c := range cells {
		if err := db.sheets.UpdateCell(ctx, sheet.Users, e.row, c.col, c.value); err != nil {
			return portal.User{}, fmt.Errorf("update user %d: %w", u.ID, storeErr(err))
		}
	}
	u.CreatedAt = parseStamp(e.rec[record.CreatedAt])
	return u, nil
}

// absentUserValue is what a field reads as when its column is missing.
func absentUserValue(key string) string {
	if key == record.IsActive {
		return "true"
	}
	return ""
}

func (db *DB) ListUsers(ctx context.Context) ([]portal.User, error) {
	es, err := db.entries(ctx, sheet.Users, record.Users)
	if err != nil {
		return nil, err
	}
	out := make([]portal.User, len(es))
	for i, e := range es {
		out[i] = userFromRecord(e.rec)
	}
	return out, nil
}
