package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/audit"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
)

type alertView struct {
	ID         string `json:"id"`
	PracticeID string `json:"practice_id"`
	ResponseID string `json:"response_id"`
	IsRead     bool   `json:"is_read"`
	Note       string `json:"note"`
}

func alertViewOf(a model.Alert) alertView {
	return alertView{ID: a.ID, PracticeID: a.PracticeID, ResponseID: a.ResponseID, IsRead: a.IsRead, Note: a.Note}
}

func (h *Handler) MarkAlertRead(w http.ResponseWriter, r *http.Request) {
	a, err := h.Alerts.MarkRead(r.Context(), mustActor(r), chi.URLParam(r, "alertID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alertViewOf(a))
}

func (h *Handler) UpdateAlertNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.Alerts.UpdateNote(r.Context(), mustActor(r), chi.URLParam(r, "alertID"), req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alertViewOf(a))
}

// RecordLogin is called by the auth service after a successful sign-in.
func (h *Handler) RecordLogin(w http.ResponseWriter, r *http.Request) {
	var in audit.LoginEvent
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Logins.RecordLogin(r.Context(), in); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
