// Package lifecycle owns the multi-step practice mutations: soft delete,
// account deletion, suspension, plan overrides and admin edits. Each
// operation validates, checks ownership, mutates with its outbox events in
// one transaction, then audits and triggers side effects best-effort.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/practicepulse/libs/otel"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/audit"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/cache"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/metrics"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/outbox"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Store interface {
	GetPractice(ctx context.Context, id string) (model.Practice, error)
	ListOwnedPractices(ctx context.Context, ownerUserID string) ([]model.Practice, error)
	SoftDeletePractice(ctx context.Context, in storage.SoftDelete) (storage.SoftDeleteResult, error)
	SetSuspended(ctx context.Context, practiceID string, at *time.Time, events ...outbox.Event) (model.Practice, error)
	SetPlanOverride(ctx context.Context, practiceID string, o storage.Override, events ...outbox.Event) (model.Practice, error)
	UpdateEmail(ctx context.Context, practiceID, email string) (model.Practice, error)
	UpdateGoogleLink(ctx context.Context, practiceID string, link storage.GoogleLink) (model.Practice, error)
}

// Canceler ends the provider subscription of a practice.
type Canceler interface {
	CancelSubscription(ctx context.Context, practiceID, subscriptionID string) error
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

type Manager struct {
	store    Store
	canceler Canceler
	cache    cache.Invalidator
	audit    Auditor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(store Store, canceler Canceler, inv cache.Invalidator, auditor Auditor, logger *slog.Logger, opts ...Option) *Manager {
	if inv == nil {
		inv = cache.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:    store,
		canceler: canceler,
		cache:    inv,
		audit:    auditor,
		logger:   logger,
		validate: apperr.NewValidator(),
		tracer:   otelx.Tracer("practice-service/lifecycle"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// begin starts a span and returns a finisher that records the outcome.
func (m *Manager) begin(ctx context.Context, op, practiceID string) (context.Context, func(*error)) {
	started := time.Now()
	ctx, span := m.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(attribute.String("practice.id", practiceID)))
	return ctx, func(errp *error) {
		result := "ok"
		if *errp != nil {
			result = apperr.From(*errp).Code
			span.RecordError(*errp)
			span.SetStatus(codes.Error, result)
		}
		m.metrics.LifecycleOp(op, result, time.Since(started))
		span.End()
	}
}

func parsePracticeID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation("%s is invalid", "practice_id")
	}
	return nil
}

// load returns a live practice visible to actor. Practices of other owners
// are reported as missing unless actor is an admin.
func (m *Manager) load(ctx context.Context, actor model.Actor, practiceID string) (model.Practice, error) {
	if err := parsePracticeID(practiceID); err != nil {
		return model.Practice{}, err
	}
	p, err := m.store.GetPractice(ctx, practiceID)
	if err != nil {
		return model.Practice{}, storeError(err)
	}
	if p.OwnerUserID != actor.UserID && !actor.IsAdmin() {
		return model.Practice{}, apperr.ErrNotFound
	}
	return p, nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.ErrNotFound
	case errors.Is(err, storage.ErrLastPractice):
		return apperr.ErrLastPractice
	}
	return apperr.Internal(err)
}

func requireAdmin(actor model.Actor) error {
	if !actor.IsAdmin() {
		return apperr.ErrForbidden
	}
	return nil
}

func (m *Manager) invalidate(ctx context.Context, practiceID string) {
	if err := m.cache.InvalidatePractice(context.WithoutCancel(ctx), practiceID); err != nil {
		m.logger.Warn("cache invalidation failed", "err", err, "practice_id", practiceID)
	}
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func newEvent(eventType, practiceID string, at time.Time, payload map[string]any) (outbox.Event, error) {
	evt, err := outbox.NewPracticeEvent(eventType, practiceID, at, payload)
	if err != nil {
		return outbox.Event{}, apperr.Internal(fmt.Errorf("build %s event: %w", eventType, err))
	}
	return evt, nil
}
