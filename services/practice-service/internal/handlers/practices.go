package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/entitlements"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/plan"
)

type practiceView struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Email                 string     `json:"email,omitempty"`
	Plan                  string     `json:"plan"`
	EffectivePlan         string     `json:"effective_plan"`
	PlanOverride          string     `json:"plan_override,omitempty"`
	OverrideReason        string     `json:"override_reason,omitempty"`
	OverrideExpiresAt     *time.Time `json:"override_expires_at,omitempty"`
	SubscriptionStatus    string     `json:"subscription_status,omitempty"`
	PaymentFailedAt       *time.Time `json:"payment_failed_at,omitempty"`
	SuspendedAt           *time.Time `json:"suspended_at,omitempty"`
	DeletedAt             *time.Time `json:"deleted_at,omitempty"`
	GooglePlaceID         string     `json:"google_place_id,omitempty"`
	GoogleReviewURL       string     `json:"google_review_url,omitempty"`
	GoogleRedirectEnabled bool       `json:"google_redirect_enabled"`
	CreatedAt             time.Time  `json:"created_at"`
}

func viewOf(p model.Practice, now time.Time) practiceView {
	stored := p.Plan
	if stored == "" {
		stored = string(plan.Default)
	}
	return practiceView{
		ID:                    p.ID,
		Name:                  p.Name,
		Email:                 p.Email,
		Plan:                  stored,
		EffectivePlan:         string(plan.ForPractice(p, now)),
		PlanOverride:          p.PlanOverride,
		OverrideReason:        p.OverrideReason,
		OverrideExpiresAt:     p.OverrideExpiresAt,
		SubscriptionStatus:    p.SubscriptionStatus,
		PaymentFailedAt:       p.PaymentFailedAt,
		SuspendedAt:           p.SuspendedAt,
		DeletedAt:             p.DeletedAt,
		GooglePlaceID:         p.GooglePlaceID,
		GoogleReviewURL:       p.GoogleReviewURL,
		GoogleRedirectEnabled: p.GoogleRedirectEnabled,
		CreatedAt:             p.CreatedAt,
	}
}

func (h *Handler) ListPractices(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	owned, err := h.Practices.ListOwnedPractices(r.Context(), actor.UserID)
	if err != nil {
		h.fail(w, r, apperr.Internal(err))
		return
	}
	now := h.Now()
	views := make([]practiceView, 0, len(owned))
	for _, p := range owned {
		views = append(views, viewOf(p, now))
	}
	active, err := h.Tenancy.ResolveRequest(r.Context(), r, actor.UserID, r.URL.Query().Get("practice_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	activeID := ""
	if active != nil {
		activeID = active.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"practices": views, "active_practice_id": activeID})
}

// GetActivePractice resolves the tenant for this request and reports its
// entitlements. A user without practices gets 404 and is sent to onboarding.
func (h *Handler) GetActivePractice(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	p, err := h.Tenancy.ResolveRequest(r.Context(), r, actor.UserID, r.URL.Query().Get("practice_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if p == nil {
		writeError(w, r, apperr.ErrNotFound)
		return
	}
	view := viewOf(*p, h.Now())
	writeJSON(w, http.StatusOK, map[string]any{
		"practice": view,
		"limits":   entitlements.LimitsForTier(plan.Tier(view.EffectivePlan)),
	})
}

func (h *Handler) SetActivePractice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PracticeID string `json:"practice_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.PracticeID == "" {
		writeError(w, r, apperr.Validation("%s is required", "practice_id"))
		return
	}
	p, err := h.Tenancy.SetActive(r.Context(), w, mustActor(r).UserID, req.PracticeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active_practice_id": p.ID})
}

func (h *Handler) DeletePractice(w http.ResponseWriter, r *http.Request) {
	d, err := h.Lifecycle.DeletePractice(r.Context(), mustActor(r), chi.URLParam(r, "practiceID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteAccount reports per-practice outcomes alongside the error envelope
// when only some practices could be deleted.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	res, err := h.Lifecycle.DeleteAccount(r.Context(), mustActor(r))
	if err != nil {
		e := apperr.From(err)
		if e.HTTPStatus() >= http.StatusInternalServerError {
			h.Logger.Error("account deletion failed", "err", err, "code", e.Code)
		}
		tag := apperr.MatchLanguage(r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", tag.String())
		writeJSON(w, e.HTTPStatus(), map[string]any{
			"error":   e.Localize(tag),
			"code":    e.Code,
			"deleted": res.Deleted,
			"failed":  res.Failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
