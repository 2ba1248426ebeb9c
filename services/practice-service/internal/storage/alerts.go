package storage

import (
	"context"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
)

const alertColumns = `a.id::text, a.practice_id::text, a.response_id::text, a.is_read, COALESCE(a.note, ''), a.created_at`

// GetAlertWithOwner returns the alert and the owner of its live practice.
func (r *Repository) GetAlertWithOwner(ctx context.Context, alertID string) (model.Alert, string, error) {
	var a model.Alert
	var owner string
	err := r.pool.QueryRow(ctx, `
		SELECT `+alertColumns+`, p.owner_user_id
		FROM alerts a
		JOIN practices p ON p.id = a.practice_id
		WHERE a.id = $1 AND p.deleted_at IS NULL
	`, alertID).Scan(&a.ID, &a.PracticeID, &a.ResponseID, &a.IsRead, &a.Note, &a.CreatedAt, &owner)
	if err != nil {
		return model.Alert{}, "", notFound(err)
	}
	return a, owner, nil
}

func (r *Repository) MarkAlertRead(ctx context.Context, alertID string) (model.Alert, error) {
	var a model.Alert
	err := r.pool.QueryRow(ctx, `
		UPDATE alerts a SET is_read = true
		WHERE a.id = $1
		RETURNING `+alertColumns,
		alertID).Scan(&a.ID, &a.PracticeID, &a.ResponseID, &a.IsRead, &a.Note, &a.CreatedAt)
	return a, notFound(err)
}

func (r *Repository) UpdateAlertNote(ctx context.Context, alertID, note string) (model.Alert, error) {
	var a model.Alert
	err := r.pool.QueryRow(ctx, `
		UPDATE alerts a SET note = $2
		WHERE a.id = $1
		RETURNING `+alertColumns,
		alertID, nullIfEmpty(note)).Scan(&a.ID, &a.PracticeID, &a.ResponseID, &a.IsRead, &a.Note, &a.CreatedAt)
	return a, notFound(err)
}
