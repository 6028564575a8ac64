package pgstore

import (
	"context"
	"fmt"

	"eduface/internal/portal"
)

const routineColumns = `id, user_id, day, start_time, end_time, subject, instructor_name, room_number, created_at`

func scanRoutine(row scanner) (portal.Routine, error) {
	var r portal.Routine
	err := row.Scan(&r.ID, &r.UserID, &r.Day, &r.StartTime, &r.EndTime, &r.Subject, &r.InstructorName, &r.RoomNumber, &r.CreatedAt)
	return r, err
}

func (s *Store) ListRoutines(ctx context.Context) ([]portal.Routine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+routineColumns+` FROM routines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", mapErr(err))
	}
	defer rows.Close()
	return collect(rows, scanRoutine)
}

func (s *Store) RoutinesByOwner(ctx context.Context, userID int) ([]portal.Routine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+routineColumns+` FROM routines WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list routines of %d: %w", userID, mapErr(err))
	}
	defer rows.Close()
	return collect(rows, scanRoutine)
}

func (s *Store) AddRoutine(ctx context.Context, r portal.Routine) (portal.Routine, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO routines (user_id, day, start_time, end_time, subject, instructor_name, room_number)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at
	`, r.UserID, r.Day, r.StartTime, r.EndTime, r.Subject, r.InstructorName, r.RoomNumber)
	if err := row.Scan(&r.ID, &r.CreatedAt); err != nil {
		return portal.Routine{}, fmt.Errorf("add routine: %w", mapErr(err))
	}
	return r, nil
}

// DeleteRoutine removes routine id, or returns portal.ErrNotFound.
func (s *Store) DeleteRoutine(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM routines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete routine %d: %w", id, mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete routine %d: %w", id, mapErr(err))
	}
	if n == 0 {
		return fmt.Errorf("routine %d: %w", id, portal.ErrNotFound)
	}
	return nil
}
