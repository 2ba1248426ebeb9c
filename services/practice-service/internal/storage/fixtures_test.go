package storage

import (
	"context"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
)

// Practices and surveys are created by other services; these fixtures stand
// in for them in integration tests.

type newPractice struct {
	OwnerUserID      string
	Name             string
	Plan             string
	StripeCustomerID string
	StripeSubID      string
}

func createPractice(ctx context.Context, r *Repository, in newPractice) (model.Practice, error) {
	return scanPractice(r.pool.QueryRow(ctx, `
		INSERT INTO practices (owner_user_id, name, plan, stripe_customer_id, stripe_subscription_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+practiceColumns,
		in.OwnerUserID, in.Name, nullIfEmpty(in.Plan), nullIfEmpty(in.StripeCustomerID), nullIfEmpty(in.StripeSubID)))
}

func createSurvey(ctx context.Context, r *Repository, s model.Survey) (model.Survey, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO surveys (practice_id, slug, title, status, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, created_at
	`, s.PracticeID, s.Slug, s.Title, s.Status, s.StartsAt, s.EndsAt).Scan(&s.ID, &s.CreatedAt)
	return s, err
}

// listSurveys includes deleted surveys.
func listSurveys(ctx context.Context, r *Repository, practiceID string) ([]model.Survey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, practice_id::text, slug, title, status, starts_at, ends_at, deleted_at, created_at
		FROM surveys
		WHERE practice_id = $1
		ORDER BY created_at, id
	`, practiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Survey
	for rows.Next() {
		var s model.Survey
		if err := rows.Scan(&s.ID, &s.PracticeID, &s.Slug, &s.Title, &s.Status, &s.StartsAt, &s.EndsAt, &s.DeletedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
