package sheetdb

import (
	"context"
	"fmt"
	"strconv"

	"eduface/internal/portal"
	"eduface/internal/record"
	"eduface/internal/sheet"
)

func routineFromRecord(rec record.Record) portal.Routine {
	return portal.Routine{
		ID:             atoi(rec[record.ID]),
		UserID:         atoi(rec[record.UserID]),
		Day:            rec[record.Day],
		StartTime:      rec[record.StartTime],
		EndTime:        rec[record.EndTime],
		Subject:        rec[record.Subject],
		InstructorName: rec[record.InstructorName],
		RoomNumber:     rec[record.RoomNumber],
		CreatedAt:      parseStamp(rec[record.CreatedAt]),
	}
}

func (db *DB) ListRoutines(ctx context.Context) ([]portal.Routine, error) {
	es, err := db.entries(ctx, sheet.Routines, record.Routines)
	if err != nil {
		return nil, err
	}
	out := make([]portal.Routine, len(es))
	for i, e := range es {
		out[i] = routineFromRecord(e.rec)
	}
	return out, nil
}

// RoutinesByOwner returns the routines whose user_id equals userID.
func (db *DB) RoutinesByOwner(ctx context.Context, userID int) ([]portal.Routine, error) {
	es, err := db.entries(ctx, sheet.Routines, record.Routines)
	if err != nil {
		return nil, err
	}
	var out []portal.Routine
	for _, e := range es {
		if sameID(e.rec[record.UserID], userID) {
			out = append(out, routineFromRecord(e.rec))
		}
	}
	return out, nil
}

func (db *DB) AddRoutine(ctx context.Context, r portal.Routine) (portal.Routine, error) {
	r.CreatedAt = db.createdAt()
	rec := record.Record{
		record.UserID:         strconv.Itoa(r.UserID),
		record.Day:            r.Day,
		record.StartTime:      r.StartTime,
		record.EndTime:        r.EndTime,
		record.Subject:        r.Subject,
		record.InstructorName: r.InstructorName,
		record.RoomNumber:     r.RoomNumber,
		record.CreatedAt:      stamp(r.CreatedAt),
	}
	if r.UserID == 0 {
		rec[record.UserID] = ""
	}
	assigned, err := db.insert(ctx, sheet.Routines, record.Routines, rec)
	if err != nil {
		return portal.Routine{}, fmt.Errorf("add routine: %w", err)
	}
	r.ID = assigned[0]
	return r, nil
}

// DeleteRoutine removes the first row whose id matches. Nothing is removed
// when no row matches.
func (db *DB) DeleteRoutine(ctx context.Context, id int) error {
	unlock := db.locks.Lock(sheet.Routines.Key)
	defer unlock()

	es, err := db.entries(ctx, sheet.Routines, record.Routines)
	if err != nil {
		return err
	}
	for _, e := range es {
		if sameID(e.rec[record.ID], id) {
			if err := db.sheets.DeleteRow(ctx, sheet.Routines, e.row); err != nil {
				return fmt.Errorf("delete routine %d: %w", id, storeErr(err))
			}
			return nil
		}
	}
	return notFound("routine", id)
}
