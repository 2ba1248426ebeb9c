package lifecycle

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/audit"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/outbox"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/plan"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/storage"
)

const (
	ActionSuspend          = "practice.suspend"
	ActionUnsuspend        = "practice.unsuspend"
	ActionOverrideSet      = "practice.plan_override.set"
	ActionOverrideRemove   = "practice.plan_override.remove"
	ActionEmailUpdate      = "practice.email.update"
	ActionGoogleLinkUpdate = "practice.google_link.update"
)

// Suspend stamps suspended_at. An already suspended practice keeps its
// original stamp; the call is still audited. Cached pages are dropped only
// when the state changes.
func (m *Manager) Suspend(ctx context.Context, actor model.Actor, practiceID string) (_ model.Practice, err error) {
	ctx, done := m.begin(ctx, "suspend", practiceID)
	defer done(&err)

	if err := requireAdmin(actor); err != nil {
		return model.Practice{}, err
	}
	p, err := m.load(ctx, actor, practiceID)
	if err != nil {
		return model.Practice{}, err
	}
	if p.OwnerUserID == actor.UserID {
		return model.Practice{}, apperr.ErrSelfSuspend
	}

	at := m.now().UTC()
	var events []outbox.Event
	if !p.IsSuspended() {
		evt, err := newEvent(outbox.PracticeSuspended, p.ID, at, map[string]any{"actor_id": actor.UserID})
		if err != nil {
			return model.Practice{}, err
		}
		events = append(events, evt)
	}
	after, err := m.store.SetSuspended(ctx, p.ID, &at, events...)
	if err != nil {
		return model.Practice{}, storeError(err)
	}
	m.recordSuspension(ctx, actor, ActionSuspend, p, after)
	if len(events) > 0 {
		m.invalidate(ctx, p.ID)
	}
	return after, nil
}

func (m *Manager) Unsuspend(ctx context.Context, actor model.Actor, practiceID string) (_ model.Practice, err error) {
	ctx, done := m.begin(ctx, "unsuspend", practiceID)
	defer done(&err)

	if err := requireAdmin(actor); err != nil {
		return model.Practice{}, err
	}
	p, err := m.load(ctx, actor, practiceID)
	if err != nil {
		return model.Practice{}, err
	}

	var events []outbox.Event
	if p.IsSuspended() {
		evt, err := newEvent(outbox.PracticeUnsuspended, p.ID, m.now().UTC(), map[string]any{"actor_id": actor.UserID})
		if err != nil {
			return model.Practice{}, err
		}
		events = append(events, evt)
	}
	after, err := m.store.SetSuspended(ctx, p.ID, nil, events...)
	if err != nil {
		return model.Practice{}, storeError(err)
	}
	m.recordSuspension(ctx, actor, ActionUnsuspend, p, after)
	if len(events) > 0 {
		m.invalidate(ctx, p.ID)
	}
	return after, nil
}

func (m *Manager) recordSuspension(ctx context.Context, actor model.Actor, action string, before, after model.Practice) {
	m.audit.Record(ctx, audit.Entry{
		PracticeID: before.ID,
		Actor:      actor,
		Action:     action,
		Entity:     "practice",
		EntityID:   before.ID,
		Before:     map[string]any{"suspended_at": timeValue(before.SuspendedAt)},
		After:      map[string]any{"suspended_at": timeValue(after.SuspendedAt)},
	})
}

type OverrideInput struct {
	Plan      string     `json:"plan" validate:"required,oneof=free starter professional"`
	Reason    string     `json:"reason" validate:"required,oneof=beta_tester demo friend support other"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// SetPlanOverride grants a plan regardless of billing until ExpiresAt (or
// indefinitely). Expired overrides are ignored on read, never swept.
func (m *Manager) SetPlanOverride(ctx context.Context, actor model.Actor, practiceID string, in OverrideInput) (_ model.Practice, err error) {
	ctx, done := m.begin(ctx, "set_plan_override", practiceID)
	defer done(&err)

	if err := requireAdmin(actor); err != nil {
		return model.Practice{}, err
	}
	if err := m.validate.Struct(in); err != nil {
		return model.Practice{}, apperr.FromValidation(err)
	}
	now := m.now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return model.Practice{}, apperr.Validation("%s must be in the future", "expires_at")
	}
	p, err := m.load(ctx, actor, practiceID)
	if err != nil {
		return model.Practice{}, err
	}

	var expires *time.Time
	if in.ExpiresAt != nil {
		t := in.ExpiresAt.UTC()
		expires = &t
	}
	return m.applyOverride(ctx, actor, ActionOverrideSet, p, storage.Override{
		Plan:      in.Plan,
		Reason:    in.Reason,
		ExpiresAt: expires,
	}, now)
}

func (m *Manager) RemovePlanOverride(ctx context.Context, actor model.Actor, practiceID string) (_ model.Practice, err error) {
	ctx, done := m.begin(ctx, "remove_plan_override", practiceID)
	defer done(&err)

	if err := requireAdmin(actor); err != nil {
		return model.Practice{}, err
	}
	p, err := m.load(ctx, actor, practiceID)
	if err != nil {
		return model.Practice{}, err
	}
	return m.applyOverride(ctx, actor, ActionOverrideRemove, p, storage.Override{}, m.now())
}

func (m *Manager) applyOverride(ctx context.Context, actor model.Actor, action string, p model.Practice, o storage.Override, now time.Time) (model.Practice, error) {
	before := p.OverrideSnapshot()
	fromTier := plan.ForPractice(p, now)

	desired := p
	desired.PlanOverride, desired.OverrideReason, desired.OverrideExpiresAt = o.Plan, o.Reason, o.ExpiresAt
	toTier := plan.ForPractice(desired, now)

	evt, err := newEvent(outbox.PracticeOverrideChanged, p.ID, now.UTC(), map[string]any{
		"actor_id":       actor.UserID,
		"plan_override":  o.Plan,
		"reason":         o.Reason,
		"expires_at":     timeValue(o.ExpiresAt),
		"effective_from": string(fromTier),
		"effective_to":   string(toTier),
	})
	if err != nil {
		return model.Practice{}, err
	}
	after, err := m.store.SetPlanOverride(ctx, p.ID, o, evt)
	if err != nil {
		return model.Practice{}, storeError(err)
	}

	m.audit.Record(ctx, audit.Entry{
		PracticeID: p.ID,
		Actor:      actor,
		Action:     action,
		Entity:     "practice",
		EntityID:   p.ID,
		Before:     before,
		After:      after.OverrideSnapshot(),
	})
	m.invalidate(ctx, p.ID)
	return after, nil
}

type emailInput struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

func (m *Manager) UpdateEmail(ctx context.Context, actor model.Actor, practiceID, email string) (_ model.Practice, err error) {
	ctx, done := m.begin(ctx, "update_email", practiceID)
	defer done(&err)

	if err := requireAdmin(actor); err != nil {
		return model.Practice{}, err
	}
	if err := m.validate.Struct(emailInput{Email: email}); err != nil {
		return model.Practice{}, apperr.FromValidation(err)
	}
	p, err := m.load(ctx, actor, practiceID)
	if err != nil {
		return model.Practice{}, err
	}
	after, err := m.store.UpdateEmail(ctx, p.ID, email)
	if err != nil {
		return model.Practice{}, storeError(err)
	}
	m.audit.Record(ctx, audit.Entry{
		PracticeID: p.ID,
		Actor:      actor,
		Action:     ActionEmailUpdate,
		Entity:     "practice",
		EntityID:   p.ID,
		Before:     map[string]any{"email": p.Email},
		After:      map[string]any{"email": after.Email},
	})
	return after, nil
}

type GoogleLinkInput struct {
	PlaceID         string `json:"place_id" validate:"max=255"`
	ReviewURL       string `json:"review_url" validate:"required_if=RedirectEnabled true,omitempty,url,max=2048"`
	RedirectEnabled bool   `json:"redirect_enabled"`
}

// UpdateGoogleLink changes where promoters are sent to leave a review.
// Cached survey pages embed the link and are invalidated.
func (m *Manager) UpdateGoogleLink(ctx context.Context, actor model.Actor, practiceID string, in GoogleLinkInput) (_ model.Practice, err error) {
	ctx, done := m.begin(ctx, "update_google_link", practiceID)
	defer done(&err)

	if err := requireAdmin(actor); err != nil {
		return model.Practice{}, err
	}
	if err := m.validate.Struct(in); err != nil {
		return model.Practice{}, apperr.FromValidation(err)
	}
	p, err := m.load(ctx, actor, practiceID)
	if err != nil {
		return model.Practice{}, err
	}
	after, err := m.store.UpdateGoogleLink(ctx, p.ID, storage.GoogleLink{
		PlaceID:         in.PlaceID,
		ReviewURL:       in.ReviewURL,
		RedirectEnabled: in.RedirectEnabled,
	})
	if err != nil {
		return model.Practice{}, storeError(err)
	}
	m.audit.Record(ctx, audit.Entry{
		PracticeID: p.ID,
		Actor:      actor,
		Action:     ActionGoogleLinkUpdate,
		Entity:     "practice",
		EntityID:   p.ID,
		Before:     googleSnapshot(p),
		After:      googleSnapshot(after),
	})
	m.invalidate(ctx, p.ID)
	return after, nil
}

func googleSnapshot(p model.Practice) map[string]any {
	return map[string]any{
		"google_place_id":         p.GooglePlaceID,
		"google_review_url":       p.GoogleReviewURL,
		"google_redirect_enabled": p.GoogleRedirectEnabled,
	}
}
