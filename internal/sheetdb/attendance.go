package sheetdb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"eduface/internal/portal"
	"eduface/internal/record"
	"eduface/internal/sheet"
)

func status(s string) portal.Status {
	if st, err := portal.ParseStatus(s); err == nil {
		return st
	}
	return portal.Status(s)
}

func subjectMark(subject string, rec record.Record) portal.Attendance {
	return portal.Attendance{
		StudentID: rec[record.StudentID],
		Subject:   subject,
		Date:      rec[record.Date],
		Status:    status(rec[record.Status]),
	}
}

func legacyMark(rec record.Record) portal.Attendance {
	return portal.Attendance{
		ID:      atoi(rec[record.ID]),
		UserID:  atoi(rec[record.UserID]),
		Subject: rec[record.Subject],
		Date:    rec[record.Date],
		Status:  status(rec[record.Status]),
	}
}

// declared returns the declared spelling of subject.
func (db *DB) declared(subject string) (string, bool) {
	subject = strings.TrimSpace(subject)
	for _, s := range db.opts.Subjects {
		if strings.EqualFold(s, subject) {
			return s, true
		}
	}
	return "", false
}

// subjectRows lists one subject table. A missing table reads as no rows
// when missingOK is set.
func (db *DB) subjectRows(ctx context.Context, subject string, missingOK bool) ([]portal.Attendance, error) {
	es, err := db.entries(ctx, sheet.Subject(subject), record.SubjectAttendance)
	if isTableMissing(err) {
		if missingOK {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s: %w", portal.ErrUnknownSubject, subject, err)
	}
	if err != nil {
		return nil, err
	}
	out := make([]portal.Attendance, len(es))
	for i, e := range es {
		out[i] = subjectMark(subject, e.rec)
	}
	return out, nil
}

func (db *DB) legacyRows(ctx context.Context) ([]portal.Attendance, error) {
	es, err := db.entries(ctx, sheet.Attendance, record.LegacyAttendance)
	if isTableMissing(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]portal.Attendance, len(es))
	for i, e := range es {
		out[i] = legacyMark(e.rec)
	}
	return out, nil
}

// UserAttendance returns userID's marks from every declared subject table in
// declared order, followed by legacy rows for the same user. Subject tables
// are matched on the user's student ID.
func (db *DB) UserAttendance(ctx context.Context, userID int) ([]portal.Attendance, error) {
	u, err := db.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []portal.Attendance
	if sid := strings.TrimSpace(u.StudentID); sid != "" {
		for _, subject := range db.opts.Subjects {
			rows, err := db.subjectRows(ctx, subject, true)
			if err != nil {
				return nil, err
			}
			for _, a := range rows {
				if strings.TrimSpace(a.StudentID) == sid {
					out = append(out, a)
				}
			}
		}
	}

	legacy, err := db.legacyRows(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range legacy {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

// AttendanceBySubject returns every row of one subject table. Subjects that
// are not declared or have no table yield ErrUnknownSubject.
func (db *DB) AttendanceBySubject(ctx context.Context, subject string) ([]portal.Attendance, error) {
	name, ok := db.declared(subject)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", portal.ErrUnknownSubject, subject, sheet.ErrTableNotFound)
	}
	return db.subjectRows(ctx, name, false)
}

// ListAttendance returns all subject tables in declared order, then the
// legacy table.
func (db *DB) ListAttendance(ctx context.Context) ([]portal.Attendance, error) {
	var out []portal.Attendance
	for _, subject := range db.opts.Subjects {
		rows, err := db.subjectRows(ctx, subject, true)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	legacy, err := db.legacyRows(ctx)
	if err != nil {
		return nil, err
	}
	return append(out, legacy...), nil
}

// AttendanceSubjects returns the declared subjects that have a table.
func (db *DB) AttendanceSubjects(ctx context.Context) ([]string, error) {
	var out []string
	for _, subject := range db.opts.Subjects {
		ok, err := db.sheets.Exists(ctx, sheet.Subject(subject))
		if err != nil {
			return nil, storeErr(err)
		}
		if ok {
			out = append(out, subject)
		}
	}
	return out, nil
}

// target reports where marks for subject are written: its own table, or
// the legacy table when that is allowed and present.
func (db *DB) target(ctx context.Context, subject string) (name string, legacy bool, err error) {
	if name, ok := db.declared(subject); ok {
		exists, err := db.sheets.Exists(ctx, sheet.Subject(name))
		if err != nil {
			return "", false, storeErr(err)
		}
		if exists {
			return name, false, nil
		}
	}
	if db.opts.LegacyFallback {
		exists, err := db.sheets.Exists(ctx, sheet.Attendance)
		if err != nil {
			return "", false, storeErr(err)
		}
		if exists {
			return subject, true, nil
		}
	}
	return "", false, fmt.Errorf("%w: %s: %w", portal.ErrUnknownSubject, subject, sheet.ErrTableNotFound)
}

func (db *DB) AttendanceTarget(ctx context.Context, subject string) (string, bool, error) {
	return db.target(ctx, subject)
}

// AddAttendance writes one mark to its subject table, falling back to the
// legacy table.
func (db *DB) AddAttendance(ctx context.Context, a portal.Attendance) (portal.Attendance, error) {
	saved, err := db.AddAttendanceBatch(ctx, []portal.Attendance{a})
	if err != nil {
		return portal.Attendance{}, err
	}
	return saved[0], nil
}

// AddAttendanceBatch writes marks with one append per destination table.
// Destinations are resolved before anything is written, so an unknown
// subject fails the whole batch.
func (db *DB) AddAttendanceBatch(ctx context.Context, marks []portal.Attendance) ([]portal.Attendance, error) {
	type group struct {
		name   string
		legacy bool
		idx    []int
	}
	var groups []*group
	byKey := map[string]*group{}
	saved := make([]portal.Attendance, len(marks))

	for i, a := range marks {
		name, legacy, err := db.target(ctx, a.Subject)
		if err != nil {
			return nil, err
		}
		key := name
		if legacy {
			key = "\x00legacy"
		}
		g, ok := byKey[key]
		if !ok {
			g = &group{name: name, legacy: legacy}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.idx = append(g.idx, i)
		a.Subject = name
		saved[i] = a
	}

	for _, g := range groups {
		if g.legacy {
			if err := db.addLegacy(ctx, saved, g.idx); err != nil {
				return nil, err
			}
			continue
		}
		recs := make([]record.Record, len(g.idx))
		for j, i := range g.idx {
			a := saved[i]
			recs[j] = record.Record{
				record.StudentID: a.StudentID,
				record.Date:      a.Date,
				record.Status:    string(a.Status),
			}
		}
		if err := db.appendPlain(ctx, sheet.Subject(g.name), record.SubjectAttendance, recs...); err != nil {
			return nil, fmt.Errorf("add attendance to %s: %w", g.name, err)
		}
	}
	return saved, nil
}

func (db *DB) addLegacy(ctx context.Context, saved []portal.Attendance, idx []int) error {
	recs := make([]record.Record, len(idx))
	created := stamp(db.createdAt())
	for j, i := range idx {
		a := saved[i]
		user := ""
		if a.UserID > 0 {
			user = strconv.Itoa(a.UserID)
		}
		recs[j] = record.Record{
			record.UserID:    user,
			record.Subject:   a.Subject,
			record.Status:    string(a.Status),
			record.Date:      a.Date,
			record.CreatedAt: created,
		}
	}
	assigned, err := db.insert(ctx, sheet.Attendance, record.LegacyAttendance, recs...)
	if err != nil {
		return fmt.Errorf("add legacy attendance: %w", err)
	}
	for j, i := range idx {
		saved[i].ID = assigned[j]
	}
	return nil
}

// MigrateLegacyAttendance copies rows of the legacy table into the declared
// subject tables, creating missing tables. Rows already present in the
// subject table, rows of undeclared subjects and rows whose user has no
// student ID are skipped. The legacy table is left untouched. It returns
// the number of rows copied.
func (db *DB) MigrateLegacyAttendance(ctx context.Context) (int, error) {
	legacy, err := db.legacyRows(ctx)
	if err != nil || len(legacy) == 0 {
		return 0, err
	}
	users, err := db.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	studentOf := make(map[int]string, len(users))
	for _, u := range users {
		studentOf[u.ID] = strings.TrimSpace(u.StudentID)
	}

	pending := map[string][]record.Record{}
	seen := map[string]map[string]bool{}
	var order []string
	for _, a := range legacy {
		subject, ok := db.declared(a.Subject)
		sid := studentOf[a.UserID]
		if !ok || sid == "" {
			continue
		}
		if _, ok := seen[subject]; !ok {
			if _, err := db.sheets.EnsureTable(ctx, sheet.Subject(subject), record.SubjectAttendance.Header()); err != nil {
				return 0, storeErr(err)
			}
			existing, err := db.subjectRows(ctx, subject, false)
			if err != nil {
				return 0, err
			}
			seen[subject] = map[string]bool{}
			for _, e := range existing {
				seen[subject][markKey(e.StudentID, e.Date, e.Status)] = true
			}
			order = append(order, subject)
		}
		k := markKey(sid, a.Date, a.Status)
		if seen[subject][k] {
			continue
		}
		seen[subject][k] = true
		pending[subject] = append(pending[subject], record.Record{
			record.StudentID: sid,
			record.Date:      a.Date,
			record.Status:    string(a.Status),
		})
	}

	copied := 0
	for _, subject := range order {
		recs := pending[subject]
		if len(recs) == 0 {
			continue
		}
		if err := db.appendPlain(ctx, sheet.Subject(subject), record.SubjectAttendance, recs...); err != nil {
			return copied, fmt.Errorf("migrate %s: %w", subject, err)
		}
		copied += len(recs)
	}
	return copied, nil
}

func markKey(studentID, date string, st portal.Status) string {
	return strings.TrimSpace(studentID) + "|" + strings.TrimSpace(date) + "|" + strings.ToLower(string(st))
}
