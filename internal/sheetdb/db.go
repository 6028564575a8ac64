// Package sheetdb implements portal.Repository on top of a spreadsheet.
//
// Each entity lives in its own table (see sheet.Users and friends) and every
// read goes back to the store. Writes that allocate an id hold a per-table
// lock across reading the table, choosing the id and appending the row.
package sheetdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"eduface/internal/ids"
	"eduface/internal/portal"
	"eduface/internal/record"
	"eduface/internal/sheet"
)

// Options configures the attendance tables.
type Options struct {
	// Subjects is the declared list of per-subject attendance tables, in the
	// order they are scanned.
	Subjects []string
	// LegacyFallback lets AddAttendance write to the unified Attendance
	// table when a subject has no table of its own.
	LegacyFallback bool
}

// DB is the spreadsheet repository.
type DB struct {
	sheets *sheet.Adapter
	ids    ids.Allocator
	locks  ids.Locks
	opts   Options
	now    func() time.Time
}

var _ portal.Repository = (*DB)(nil)

// New creates a repository over a. A nil allocator means ids.Local.
func New(a *sheet.Adapter, alloc ids.Allocator, opts Options) *DB {
	if alloc == nil {
		alloc = ids.Local{}
	}
	return &DB{sheets: a, ids: alloc, opts: opts, now: time.Now}
}

// entry is a normalized row and its position in the sheet.
type entry struct {
	row int
	rec record.Record
}

func (db *DB) entries(ctx context.Context, t sheet.Table, s record.Schema) ([]entry, error) {
	rows, err := db.sheets.List(ctx, t)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]entry, len(rows))
	for i, r := range rows {
		out[i] = entry{row: r.Index, rec: record.Normalize(s, r.Values)}
	}
	return out, nil
}

// insert assigns the next id to rec and appends it. An empty table gets the
// canonical header first.
func (db *DB) insert(ctx context.Context, t sheet.Table, s record.Schema, recs ...record.Record) ([]int, error) {
	unlock := db.locks.Lock(t.Key)
	defer unlock()

	header, err := db.sheets.Header(ctx, t)
	if err != nil {
		return nil, storeErr(err)
	}
	layout := record.NewLayout(s, header)

	var rows [][]string
	if len(header) == 0 {
		rows = append(rows, layout.Header())
	}
	seed := db.seeder(t, s)
	assigned := make([]int, len(recs))
	for i, rec := range recs {
		id, err := db.ids.Next(ctx, t.Key, seed(i))
		if err != nil {
			return nil, storeErr(err)
		}
		rec[record.ID] = strconv.Itoa(id)
		assigned[i] = id
		rows = append(rows, layout.Row(rec))
	}
	if err := db.sheets.Append(ctx, t, rows...); err != nil {
		return nil, storeErr(err)
	}
	return assigned, nil
}

// seeder reads t once and reports its count and highest id as if pending
// rows were already appended.
func (db *DB) seeder(t sheet.Table, s record.Schema) func(pending int) ids.Seed {
	var (
		read         bool
		count, maxID int
	)
	return func(pending int) ids.Seed {
		return func(ctx context.Context) (int, int, error) {
			if !read {
				es, err := db.entries(ctx, t, s)
				if err != nil {
					return 0, 0, err
				}
				count = len(es)
				for _, e := range es {
					maxID = max(maxID, atoi(e.rec[record.ID]))
				}
				read = true
			}
			return count + pending, maxID + pending, nil
		}
	}
}

// appendPlain appends rows that carry no id.
func (db *DB) appendPlain(ctx context.Context, t sheet.Table, s record.Schema, recs ...record.Record) error {
	unlock := db.locks.Lock(t.Key)
	defer unlock()

	header, err := db.sheets.Header(ctx, t)
	if err != nil {
		return storeErr(err)
	}
	layout := record.NewLayout(s, header)
	var rows [][]string
	if len(header) == 0 {
		rows = append(rows, layout.Header())
	}
	for _, rec := range recs {
		rows = append(rows, layout.Row(rec))
	}
	return storeErr(db.sheets.Append(ctx, t, rows...))
}

// Bootstrap creates every table that is missing, with its canonical header,
// and returns the names it created.
func (db *DB) Bootstrap(ctx context.Context) ([]string, error) {
	tables := []struct {
		t sheet.Table
		s record.Schema
	}{
		{sheet.Users, record.Users},
		{sheet.Routines, record.Routines},
		{sheet.Results, record.Results},
	}
	for _, name := range db.opts.Subjects {
		tables = append(tables, struct {
			t sheet.Table
			s record.Schema
		}{sheet.Subject(name), record.SubjectAttendance})
	}

	var created []string
	for _, tt := range tables {
		ok, err := db.sheets.EnsureTable(ctx, tt.t, tt.s.Header())
		if err != nil {
			return created, storeErr(err)
		}
		if ok {
			created = append(created, tt.t.String())
		}
	}
	return created, nil
}

// storeErr translates adapter failures into portal errors.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if sheet.IsTransient(err) {
		return fmt.Errorf("%w: %w", portal.ErrUnavailable, err)
	}
	return err
}

func notFound(what string, key any) error {
	return fmt.Errorf("%s %v: %w", what, key, portal.ErrNotFound)
}

func atoi(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	// Sheets may render whole numbers as "85.0".
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func sameID(cell string, id int) bool {
	return strings.TrimSpace(cell) == strconv.Itoa(id)
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// parseStamp reads created_at cells written by this package or by older
// tools that stored local ISO timestamps without a zone.
func parseStamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05", portal.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func isTableMissing(err error) bool { return errors.Is(err, sheet.ErrTableNotFound) }

func (db *DB) createdAt() time.Time { return db.now().UTC().Truncate(time.Second) }
