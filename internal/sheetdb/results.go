package sheetdb

import (
	"context"
	"fmt"
	"strconv"

	"eduface/internal/portal"
	"eduface/internal/record"
	"eduface/internal/sheet"
)

func resultFromRecord(rec record.Record) portal.Result {
	return portal.Result{
		ID:         atoi(rec[record.ID]),
		UserID:     atoi(rec[record.UserID]),
		Subject:    rec[record.Subject],
		Marks:      atoi(rec[record.Marks]),
		Grade:      rec[record.Grade],
		Date:       rec[record.Date],
		UploadedBy: atoi(rec[record.UploadedBy]),
		CreatedAt:  parseStamp(rec[record.CreatedAt]),
	}
}

func (db *DB) ListResults(ctx context.Context) ([]portal.Result, error) {
	return db.results(ctx, func(record.Record) bool { return true })
}

func (db *DB) UserResults(ctx context.Context, userID int) ([]portal.Result, error) {
	return db.results(ctx, func(r record.Record) bool { return sameID(r[record.UserID], userID) })
}

func (db *DB) results(ctx context.Context, keep func(record.Record) bool) ([]portal.Result, error) {
	es, err := db.entries(ctx, sheet.Results, record.Results)
	if err != nil {
		return nil, err
	}
	var out []portal.Result
	for _, e := range es {
		if keep(e.rec) {
			out = append(out, resultFromRecord(e.rec))
		}
	}
	return out, nil
}

func (db *DB) AddResult(ctx context.Context, r portal.Result) (portal.Result, error) {
	r.CreatedAt = db.createdAt()
	rec := record.Record{
		record.UserID:    strconv.Itoa(r.UserID),
		record.Subject:   r.Subject,
		record.Marks:     strconv.Itoa(r.Marks),
		record.Grade:     r.Grade,
		record.Date:      r.Date,
		record.CreatedAt: stamp(r.CreatedAt),
	}
	if r.UploadedBy > 0 {
		rec[record.UploadedBy] = strconv.Itoa(r.UploadedBy)
	}
	assigned, err := db.insert(ctx, sheet.Results, record.Results, rec)
	if err != nil {
		return portal.Result{}, fmt.Errorf("add result: %w", err)
	}
	r.ID = assigned[0]
	return r, nil
}
