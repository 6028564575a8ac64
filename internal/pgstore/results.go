package pgstore

import (
	"context"
	"fmt"

	"eduface/internal/portal"
)

const resultColumns = `id, user_id, subject, marks, grade, date, COALESCE(uploaded_by, 0), created_at`

func scanResult(row scanner) (portal.Result, error) {
	var r portal.Result
	err := row.Scan(&r.ID, &r.UserID, &r.Subject, &r.Marks, &r.Grade, &r.Date, &r.UploadedBy, &r.CreatedAt)
	return r, err
}

func (s *Store) ListResults(ctx context.Context) ([]portal.Result, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM results ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", mapErr(err))
	}
	defer rows.Close()
	return collect(rows, scanResult)
}

func (s *Store) UserResults(ctx context.Context, userID int) ([]portal.Result, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+resultColumns+` FROM results WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list results of %d: %w", userID, mapErr(err))
	}
	defer rows.Close()
	return collect(rows, scanResult)
}

func (s *Store) AddResult(ctx context.Context, r portal.Result) (portal.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO results (user_id, subject, marks, grade, date, uploaded_by)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at
	`, r.UserID, r.Subject, r.Marks, r.Grade, r.Date, nullableID(r.UploadedBy))
	if err := row.Scan(&r.ID, &r.CreatedAt); err != nil {
		return portal.Result{}, fmt.Errorf("add result: %w", mapErr(err))
	}
	return r, nil
}
