package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
)

// StripeWebhook is public; the signature is the authentication.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, bodyError(err))
		return
	}
	res, err := h.Billing.Handle(r.Context(), body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func bodyError(err error) *apperr.Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.ErrPayloadTooLarge
	}
	e := apperr.Validation("request body must be valid JSON")
	e.Err = err
	return e
}
