package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/audit"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/outbox"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/storage"
)

const (
	ActionPracticeDelete = "practice.delete"
	ActionAccountDelete  = "account.delete"
)

type Deletion struct {
	Practice        model.Practice `json:"-"`
	PracticeID      string         `json:"practice_id"`
	ArchivedSurveys int64          `json:"archived_surveys"`
}

// DeletePractice soft-deletes one practice. The owner's last live practice
// cannot be deleted. A live subscription is cancelled first; if that fails
// nothing is changed.
func (m *Manager) DeletePractice(ctx context.Context, actor model.Actor, practiceID string) (_ Deletion, err error) {
	ctx, done := m.begin(ctx, "delete_practice", practiceID)
	defer done(&err)

	p, err := m.load(ctx, actor, practiceID)
	if err != nil {
		return Deletion{}, err
	}
	owned, err := m.store.ListOwnedPractices(ctx, p.OwnerUserID)
	if err != nil {
		return Deletion{}, apperr.Internal(fmt.Errorf("list practices: %w", err))
	}
	if len(owned) <= 1 {
		return Deletion{}, apperr.ErrLastPractice
	}
	// The store re-checks under row locks; this early check spares a Stripe
	// call in the common case.
	return m.deleteOne(ctx, actor, p, ActionPracticeDelete, true)
}

func (m *Manager) deleteOne(ctx context.Context, actor model.Actor, p model.Practice, action string, keepOne bool) (Deletion, error) {
	canceled := false
	if p.HasActiveSubscription() {
		if err := m.canceler.CancelSubscription(ctx, p.ID, p.StripeSubscriptionID); err != nil {
			m.logger.Error("subscription cancel failed",
				"err", err,
				"practice_id", p.ID,
				"subscription_id", p.StripeSubscriptionID,
			)
			return Deletion{}, apperr.ErrStripeCancelFailed.Wrap(err)
		}
		canceled = true
	}

	at := m.now().UTC()
	evt, err := newEvent(outbox.PracticeDeleted, p.ID, at, map[string]any{
		"owner_user_id":         p.OwnerUserID,
		"actor_id":              actor.UserID,
		"subscription_canceled": canceled,
	})
	if err != nil {
		return Deletion{}, err
	}

	res, err := m.store.SoftDeletePractice(ctx, storage.SoftDelete{
		PracticeID:           p.ID,
		OwnerUserID:          p.OwnerUserID,
		EnforceMinimum:       keepOne,
		At:                   at,
		SubscriptionCanceled: canceled,
		Events:               []outbox.Event{evt},
	})
	if err != nil {
		if canceled {
			m.logger.Error("practice kept after subscription cancel",
				"err", err,
				"practice_id", p.ID,
				"subscription_id", p.StripeSubscriptionID,
			)
		}
		return Deletion{}, storeError(err)
	}

	m.audit.Record(ctx, audit.Entry{
		PracticeID: p.ID,
		Actor:      actor,
		Action:     action,
		Entity:     "practice",
		EntityID:   p.ID,
		Before: map[string]any{
			"deleted_at":          timeValue(p.DeletedAt),
			"subscription_status": p.SubscriptionStatus,
		},
		After: map[string]any{
			"deleted_at":          timeValue(res.Practice.DeletedAt),
			"subscription_status": res.Practice.SubscriptionStatus,
			"archived_surveys":    res.ArchivedSurveys,
		},
	})
	m.invalidate(ctx, p.ID)

	return Deletion{Practice: res.Practice, PracticeID: p.ID, ArchivedSurveys: res.ArchivedSurveys}, nil
}

// AccountDeletion reports the per-practice outcome of DeleteAccount.
type AccountDeletion struct {
	Deleted []Deletion        `json:"deleted"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// DeleteAccount soft-deletes every live practice of actor in creation order.
// A failure skips that practice and the rest are still attempted. The
// returned error is external when any cancel failed, internal otherwise.
func (m *Manager) DeleteAccount(ctx context.Context, actor model.Actor) (_ AccountDeletion, err error) {
	ctx, done := m.begin(ctx, "delete_account", "")
	defer done(&err)

	owned, err := m.store.ListOwnedPractices(ctx, actor.UserID)
	if err != nil {
		return AccountDeletion{}, apperr.Internal(fmt.Errorf("list practices: %w", err))
	}
	if len(owned) == 0 {
		return AccountDeletion{}, apperr.ErrNotFound
	}

	var out AccountDeletion
	var causes []error
	cancelFailed := false
	for _, p := range owned {
		d, err := m.deleteOne(ctx, actor, p, ActionAccountDelete, false)
		if err != nil {
			if out.Failed == nil {
				out.Failed = make(map[string]string)
			}
			out.Failed[p.ID] = apperr.From(err).Code
			if errors.Is(err, apperr.ErrStripeCancelFailed) {
				cancelFailed = true
			}
			causes = append(causes, fmt.Errorf("practice %s: %w", p.ID, err))
			continue
		}
		out.Deleted = append(out.Deleted, d)
	}

	if len(causes) == 0 {
		return out, nil
	}
	joined := errors.Join(causes...)
	m.logger.Error("account deletion incomplete",
		"err", joined,
		"user_id", actor.UserID,
		"deleted", len(out.Deleted),
		"failed", len(out.Failed),
	)
	if cancelFailed {
		return out, apperr.ErrStripeCancelFailed.Wrap(joined)
	}
	return out, apperr.Internal(joined)
}
