// Package handlers is the HTTP surface of the practice service.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/practicepulse/libs/auth"
	"github.com/md-rashed-zaman/practicepulse/libs/httpx"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/alerts"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/audit"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/billing"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/lifecycle"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/tenancy"
)

const maxBodyBytes = 1 << 20

type Lifecycle interface {
	DeletePractice(ctx context.Context, actor model.Actor, practiceID string) (lifecycle.Deletion, error)
	DeleteAccount(ctx context.Context, actor model.Actor) (lifecycle.AccountDeletion, error)
	Suspend(ctx context.Context, actor model.Actor, practiceID string) (model.Practice, error)
	Unsuspend(ctx context.Context, actor model.Actor, practiceID string) (model.Practice, error)
	SetPlanOverride(ctx context.Context, actor model.Actor, practiceID string, in lifecycle.OverrideInput) (model.Practice, error)
	RemovePlanOverride(ctx context.Context, actor model.Actor, practiceID string) (model.Practice, error)
	UpdateEmail(ctx context.Context, actor model.Actor, practiceID, email string) (model.Practice, error)
	UpdateGoogleLink(ctx context.Context, actor model.Actor, practiceID string, in lifecycle.GoogleLinkInput) (model.Practice, error)
}

type Webhooks interface {
	Handle(ctx context.Context, payload []byte, signature string) (billing.Result, error)
}

type Alerts interface {
	MarkRead(ctx context.Context, actor model.Actor, alertID string) (model.Alert, error)
	UpdateNote(ctx context.Context, actor model.Actor, alertID, note string) (model.Alert, error)
}

type Logins interface {
	RecordLogin(ctx context.Context, in audit.LoginEvent) error
}

type PracticeReader interface {
	ListOwnedPractices(ctx context.Context, ownerUserID string) ([]model.Practice, error)
	ListAuditEvents(ctx context.Context, practiceID string, limit int) ([]model.AuditEvent, error)
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

type Deps struct {
	Lifecycle Lifecycle
	Billing   Webhooks
	Alerts    Alerts
	Logins    Logins
	Practices PracticeReader
	Tenancy   *tenancy.Resolver
	Verifier  TokenVerifier
	Logger    *slog.Logger
	// WebhookMiddleware wraps only the public webhook route.
	WebhookMiddleware []httpx.Middleware
	Now               func() time.Time
}

type Handler struct {
	Deps
}

var _ Alerts = (*alerts.Service)(nil)

func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handler{Deps: d}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	webhook := http.Handler(http.HandlerFunc(h.StripeWebhook))
	webhook = httpx.Chain(webhook, h.WebhookMiddleware...)
	r.Method(http.MethodPost, "/api/v1/billing/webhooks/stripe", webhook)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Delete("/api/v1/account", h.DeleteAccount)
		r.Get("/api/v1/practices", h.ListPractices)
		r.Get("/api/v1/practices/active", h.GetActivePractice)
		r.Put("/api/v1/practices/active", h.SetActivePractice)
		r.Delete("/api/v1/practices/{practiceID}", h.DeletePractice)
		r.Post("/api/v1/alerts/{alertID}/read", h.MarkAlertRead)
		r.Put("/api/v1/alerts/{alertID}/note", h.UpdateAlertNote)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.RoleAdmin))
			r.Route("/api/v1/admin/practices/{practiceID}", func(r chi.Router) {
				r.Post("/suspend", h.Suspend)
				r.Delete("/suspend", h.Unsuspend)
				r.Put("/override", h.SetPlanOverride)
				r.Delete("/override", h.RemovePlanOverride)
				r.Put("/email", h.UpdateEmail)
				r.Put("/google-link", h.UpdateGoogleLink)
				r.Get("/audit", h.ListAuditEvents)
			})
		})

		r.With(requireRole(model.RoleSystem)).Post("/api/v1/internal/login-events", h.RecordLogin)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.ErrNotFound)
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError renders the error envelope in the caller's language. Causes are
// logged by the caller, never written.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	tag := apperr.MatchLanguage(r.Header.Get("Accept-Language"))
	w.Header().Set("Content-Language", tag.String())
	writeJSON(w, e.HTTPStatus(), errorBody{Error: e.Localize(tag), Code: e.Code})
}

// fail logs server-side failures with their cause and writes the envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	if e.HTTPStatus() >= http.StatusInternalServerError {
		h.Logger.Error("request failed",
			"err", err,
			"code", e.Code,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
		)
	}
	writeError(w, r, e)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return bodyError(err)
	}
	return nil
}
