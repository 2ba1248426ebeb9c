package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/outbox"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/plan"
)

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

// PracticeLocator names the practice a provider event applies to. Fields are
// tried in declaration order until one matches a row.
type PracticeLocator struct {
	PracticeID     string
	SubscriptionID string
	CustomerID     string
}

func (l PracticeLocator) Empty() bool {
	return l.PracticeID == "" && l.SubscriptionID == "" && l.CustomerID == ""
}

// BillingChange is one provider event and the state it implies. Apply gets
// the locked row and returns the desired row; only billing columns persist.
type BillingChange struct {
	Event     ProviderEvent
	Locate    PracticeLocator
	Action    string
	Apply     func(model.Practice) model.Practice
	At        time.Time
	IPAddress string
	UserAgent string
}

type BillingOutcome struct {
	Duplicate bool
	Matched   bool
	Changed   bool
	Before    model.Practice
	After     model.Practice
	// AuditErr is set when the audit row could not be written. The change
	// itself still committed.
	AuditErr error
}

// ApplyBillingEvent records the provider event in the ledger and applies the
// change in one transaction. A replayed event id is reported as Duplicate
// and changes nothing.
func (r *Repository) ApplyBillingEvent(ctx context.Context, c BillingChange) (BillingOutcome, error) {
	var out BillingOutcome
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := insertProviderEvent(ctx, tx, c.Event); err != nil {
			if errors.Is(err, ErrDuplicateProviderEvent) {
				out.Duplicate = true
				return nil
			}
			return err
		}
		if c.Locate.Empty() || c.Apply == nil {
			return nil
		}

		before, err := lockPractice(ctx, tx, c.Locate)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Matched = true
		out.Before = before

		after := c.Apply(before)
		out.After = after
		if before.BillingEqual(after) {
			return nil
		}
		out.Changed = true

		if _, err := tx.Exec(ctx, `
			UPDATE practices
			SET plan = $2, stripe_customer_id = $3, stripe_subscription_id = $4,
			    subscription_status = $5, payment_failed_at = $6, updated_at = now()
			WHERE id = $1
		`, before.ID, nullIfEmpty(after.Plan), nullIfEmpty(after.StripeCustomerID), nullIfEmpty(after.StripeSubscriptionID),
			nullIfEmpty(after.SubscriptionStatus), after.PaymentFailedAt); err != nil {
			return err
		}

		out.AuditErr = r.auditInSavepoint(ctx, tx, c, before, after)

		fromTier, toTier := plan.ForPractice(before, c.At), plan.ForPractice(after, c.At)
		if fromTier != toTier {
			evt, err := outbox.NewPracticeEvent(outbox.PracticePlanChanged, before.ID, c.At, map[string]any{
				"from":              string(fromTier),
				"to":                string(toTier),
				"source":            c.Event.Provider,
				"provider_event_id": c.Event.ProviderEventID,
			})
			if err != nil {
				return err
			}
			return r.outbox.Insert(ctx, tx, evt)
		}
		return nil
	})
	return out, err
}

// auditInSavepoint keeps a failed audit insert from aborting the outer
// transaction.
func (r *Repository) auditInSavepoint(ctx context.Context, tx pgx.Tx, c BillingChange, before, after model.Practice) error {
	beforeJSON, err := json.Marshal(before.BillingSnapshot())
	if err != nil {
		return err
	}
	afterJSON, err := json.Marshal(after.BillingSnapshot())
	if err != nil {
		return err
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	err = insertAuditEvent(ctx, sp, model.AuditEvent{
		PracticeID: before.ID,
		ActorID:    c.Event.Provider,
		ActorRole:  model.RoleProvider,
		Action:     c.Action,
		Entity:     "practice",
		EntityID:   before.ID,
		Before:     beforeJSON,
		After:      afterJSON,
		IPAddress:  c.IPAddress,
		UserAgent:  c.UserAgent,
	})
	if err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func insertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	if !json.Valid(evt.Payload) {
		return errors.New("provider event payload is not valid JSON")
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, string(evt.Payload))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}

// lockPractice tries each locator step in order and locks the first row
// found. Deleted practices are included: provider truth still applies to
// them.
func lockPractice(ctx context.Context, tx pgx.Tx, loc PracticeLocator) (model.Practice, error) {
	for _, step := range loc.Steps() {
		column, value := step.lookup()
		p, err := scanPractice(tx.QueryRow(ctx, `
			SELECT `+practiceColumns+`
			FROM practices
			WHERE `+column+` = $1
			ORDER BY deleted_at NULLS FIRST, created_at
			LIMIT 1
			FOR UPDATE
		`, value))
		if err = notFound(err); !errors.Is(err, ErrNotFound) {
			return p, err
		}
	}
	return model.Practice{}, ErrNotFound
}

// Steps splits the locator into single-field locators, most specific first.
// A subscription the practice has not stored yet still resolves through its
// customer.
func (l PracticeLocator) Steps() []PracticeLocator {
	var steps []PracticeLocator
	if l.PracticeID != "" {
		steps = append(steps, PracticeLocator{PracticeID: l.PracticeID})
	}
	if l.SubscriptionID != "" {
		steps = append(steps, PracticeLocator{SubscriptionID: l.SubscriptionID})
	}
	if l.CustomerID != "" {
		steps = append(steps, PracticeLocator{CustomerID: l.CustomerID})
	}
	return steps
}

func (l PracticeLocator) lookup() (column string, value string) {
	switch {
	case l.PracticeID != "":
		return "id", l.PracticeID
	case l.SubscriptionID != "":
		return "stripe_subscription_id", l.SubscriptionID
	default:
		return "stripe_customer_id", l.CustomerID
	}
}
