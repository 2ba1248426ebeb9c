package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/outbox"
)

const practiceColumns = `
	id::text, owner_user_id, name, COALESCE(email, ''),
	COALESCE(plan, ''), COALESCE(plan_override, ''), COALESCE(override_reason, ''), override_expires_at,
	COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''), COALESCE(subscription_status, ''), payment_failed_at,
	suspended_at, deleted_at,
	COALESCE(google_place_id, ''), COALESCE(google_review_url, ''), google_redirect_enabled,
	COALESCE(logo_url, ''), COALESCE(primary_color, ''), COALESCE(industry_category, ''), COALESCE(industry_sub_category, ''),
	created_at, updated_at`

func scanPractice(row pgx.Row) (model.Practice, error) {
	var p model.Practice
	err := row.Scan(
		&p.ID, &p.OwnerUserID, &p.Name, &p.Email,
		&p.Plan, &p.PlanOverride, &p.OverrideReason, &p.OverrideExpiresAt,
		&p.StripeCustomerID, &p.StripeSubscriptionID, &p.SubscriptionStatus, &p.PaymentFailedAt,
		&p.SuspendedAt, &p.DeletedAt,
		&p.GooglePlaceID, &p.GoogleReviewURL, &p.GoogleRedirectEnabled,
		&p.LogoURL, &p.PrimaryColor, &p.IndustryCategory, &p.IndustrySubCategory,
		&p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// GetPractice returns a non-deleted practice.
func (r *Repository) GetPractice(ctx context.Context, id string) (model.Practice, error) {
	p, err := scanPractice(r.pool.QueryRow(ctx, `
		SELECT `+practiceColumns+`
		FROM practices
		WHERE id = $1 AND deleted_at IS NULL
	`, id))
	return p, notFound(err)
}

// ListOwnedPractices returns the owner's non-deleted practices, oldest first.
func (r *Repository) ListOwnedPractices(ctx context.Context, ownerUserID string) ([]model.Practice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+practiceColumns+`
		FROM practices
		WHERE owner_user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id
	`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Practice
	for rows.Next() {
		p, err := scanPractice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type SoftDelete struct {
	PracticeID  string
	OwnerUserID string
	// EnforceMinimum rejects the delete with ErrLastPractice unless the owner
	// keeps another live practice.
	EnforceMinimum       bool
	At                   time.Time
	SubscriptionCanceled bool
	Events               []outbox.Event
}

type SoftDeleteResult struct {
	Practice        model.Practice
	ArchivedSurveys int64
}

// SoftDeletePractice stamps the practice and its live surveys with the same
// deletion time and archives the surveys.
func (r *Repository) SoftDeletePractice(ctx context.Context, in SoftDelete) (SoftDeleteResult, error) {
	var res SoftDeleteResult
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if in.EnforceMinimum {
			if err := lockOwnerMinimum(ctx, tx, in.OwnerUserID); err != nil {
				return err
			}
		}
		p, err := scanPractice(tx.QueryRow(ctx, `
			UPDATE practices
			SET deleted_at = $2,
			    subscription_status = CASE WHEN $3 THEN 'canceled' ELSE subscription_status END,
			    updated_at = now()
			WHERE id = $1 AND deleted_at IS NULL
			RETURNING `+practiceColumns,
			in.PracticeID, in.At, in.SubscriptionCanceled))
		if err != nil {
			return notFound(err)
		}
		res.Practice = p

		tag, err := tx.Exec(ctx, `
			UPDATE surveys
			SET deleted_at = $2, status = 'archived', updated_at = now()
			WHERE practice_id = $1 AND deleted_at IS NULL
		`, in.PracticeID, in.At)
		if err != nil {
			return err
		}
		res.ArchivedSurveys = tag.RowsAffected()
		return r.insertEvents(ctx, tx, in.Events)
	})
	return res, err
}

// lockOwnerMinimum row-locks the owner's live practices in id order so
// concurrent deletes for one owner serialize and see each other's result.
func lockOwnerMinimum(ctx context.Context, tx pgx.Tx, ownerUserID string) error {
	rows, err := tx.Query(ctx, `
		SELECT id::text
		FROM practices
		WHERE owner_user_id = $1 AND deleted_at IS NULL
		ORDER BY id
		FOR UPDATE
	`, ownerUserID)
	if err != nil {
		return err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}
	if len(ids) <= 1 {
		return ErrLastPractice
	}
	return nil
}

// SetSuspended stamps suspended_at (keeping an earlier stamp) or clears it
// when at is nil.
func (r *Repository) SetSuspended(ctx context.Context, practiceID string, at *time.Time, events ...outbox.Event) (model.Practice, error) {
	var p model.Practice
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		p, err = scanPractice(tx.QueryRow(ctx, `
			UPDATE practices
			SET suspended_at = CASE WHEN $2::timestamptz IS NULL THEN NULL ELSE COALESCE(suspended_at, $2) END,
			    updated_at = now()
			WHERE id = $1 AND deleted_at IS NULL
			RETURNING `+practiceColumns,
			practiceID, at))
		if err != nil {
			return notFound(err)
		}
		return r.insertEvents(ctx, tx, events)
	})
	return p, err
}

// Override is the admin override triple. An empty Plan clears all three.
type Override struct {
	Plan      string
	Reason    string
	ExpiresAt *time.Time
}

func (r *Repository) SetPlanOverride(ctx context.Context, practiceID string, o Override, events ...outbox.Event) (model.Practice, error) {
	if o.Plan == "" {
		o = Override{}
	}
	var p model.Practice
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		p, err = scanPractice(tx.QueryRow(ctx, `
			UPDATE practices
			SET plan_override = $2, override_reason = $3, override_expires_at = $4, updated_at = now()
			WHERE id = $1 AND deleted_at IS NULL
			RETURNING `+practiceColumns,
			practiceID, nullIfEmpty(o.Plan), nullIfEmpty(o.Reason), o.ExpiresAt))
		if err != nil {
			return notFound(err)
		}
		return r.insertEvents(ctx, tx, events)
	})
	return p, err
}

func (r *Repository) UpdateEmail(ctx context.Context, practiceID, email string) (model.Practice, error) {
	p, err := scanPractice(r.pool.QueryRow(ctx, `
		UPDATE practices
		SET email = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+practiceColumns,
		practiceID, nullIfEmpty(email)))
	return p, notFound(err)
}

type GoogleLink struct {
	PlaceID         string
	ReviewURL       string
	RedirectEnabled bool
}

func (r *Repository) UpdateGoogleLink(ctx context.Context, practiceID string, link GoogleLink) (model.Practice, error) {
	p, err := scanPractice(r.pool.QueryRow(ctx, `
		UPDATE practices
		SET google_place_id = $2, google_review_url = $3, google_redirect_enabled = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+practiceColumns,
		practiceID, nullIfEmpty(link.PlaceID), nullIfEmpty(link.ReviewURL), link.RedirectEnabled))
	return p, notFound(err)
}
