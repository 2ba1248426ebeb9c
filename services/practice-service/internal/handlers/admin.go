package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/lifecycle"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
)

// practiceResult writes the updated practice or the error envelope.
func (h *Handler) practiceResult(w http.ResponseWriter, r *http.Request, p model.Practice, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p, h.Now()))
}

func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	p, err := h.Lifecycle.Suspend(r.Context(), mustActor(r), chi.URLParam(r, "practiceID"))
	h.practiceResult(w, r, p, err)
}

func (h *Handler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	p, err := h.Lifecycle.Unsuspend(r.Context(), mustActor(r), chi.URLParam(r, "practiceID"))
	h.practiceResult(w, r, p, err)
}

func (h *Handler) SetPlanOverride(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.OverrideInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Lifecycle.SetPlanOverride(r.Context(), mustActor(r), chi.URLParam(r, "practiceID"), in)
	h.practiceResult(w, r, p, err)
}

func (h *Handler) RemovePlanOverride(w http.ResponseWriter, r *http.Request) {
	p, err := h.Lifecycle.RemovePlanOverride(r.Context(), mustActor(r), chi.URLParam(r, "practiceID"))
	h.practiceResult(w, r, p, err)
}

func (h *Handler) UpdateEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Lifecycle.UpdateEmail(r.Context(), mustActor(r), chi.URLParam(r, "practiceID"), req.Email)
	h.practiceResult(w, r, p, err)
}

func (h *Handler) UpdateGoogleLink(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.GoogleLinkInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Lifecycle.UpdateGoogleLink(r.Context(), mustActor(r), chi.URLParam(r, "practiceID"), in)
	h.practiceResult(w, r, p, err)
}

func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	practiceID := chi.URLParam(r, "practiceID")
	if _, err := uuid.Parse(practiceID); err != nil {
		writeError(w, r, apperr.Validation("%s is invalid", "practice_id"))
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, apperr.Validation("%s is invalid", "limit"))
			return
		}
		limit = n
	}
	events, err := h.Practices.ListAuditEvents(r.Context(), practiceID, limit)
	if err != nil {
		h.fail(w, r, apperr.Internal(err))
		return
	}
	if events == nil {
		events = []model.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
