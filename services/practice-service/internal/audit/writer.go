// Package audit writes the append-only audit trail and login history.
// Audit writes never fail the operation they describe.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/practicepulse/libs/httpx"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/metrics"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/storage"
)

const writeTimeout = 3 * time.Second

type Sink interface {
	InsertAuditEvent(ctx context.Context, evt model.AuditEvent) error
	InsertLoginEvent(ctx context.Context, evt model.LoginEvent) error
}

// Entry describes one mutation. Before and After are marshalled as JSON.
type Entry struct {
	PracticeID string
	Actor      model.Actor
	Action     string
	Entity     string
	EntityID   string
	Before     any
	After      any
}

type Writer struct {
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewWriter(sink Sink, logger *slog.Logger, m *metrics.Metrics) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{sink: sink, logger: logger, metrics: m}
}

// Record writes e and logs any failure. It survives cancellation of ctx so a
// client disconnect after the mutation still leaves a trail.
func (w *Writer) Record(ctx context.Context, e Entry) {
	evt, err := e.event(httpx.ClientInfoFromContext(ctx))
	if err == nil {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		err = w.sink.InsertAuditEvent(wctx, evt)
		cancel()
	}
	if err != nil {
		w.metrics.AuditFailure()
		w.logger.Error("audit write failed",
			"err", err,
			"action", e.Action,
			"practice_id", e.PracticeID,
			"actor_id", e.Actor.UserID,
			"request_id", httpx.RequestIDFromContext(ctx),
		)
	}
}

func (e Entry) event(client httpx.ClientInfo) (model.AuditEvent, error) {
	before, err := marshal(e.Before)
	if err != nil {
		return model.AuditEvent{}, fmt.Errorf("marshal before: %w", err)
	}
	after, err := marshal(e.After)
	if err != nil {
		return model.AuditEvent{}, fmt.Errorf("marshal after: %w", err)
	}
	return model.AuditEvent{
		PracticeID: e.PracticeID,
		ActorID:    e.Actor.UserID,
		ActorRole:  e.Actor.Role,
		Action:     e.Action,
		Entity:     e.Entity,
		EntityID:   e.EntityID,
		Before:     before,
		After:      after,
		IPAddress:  client.IP,
		UserAgent:  client.UserAgent,
	}, nil
}

func marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// LoginEvent is a successful sign-in reported by the auth collaborator.
type LoginEvent struct {
	PracticeID string `json:"practice_id"`
	UserID     string `json:"user_id"`
	Method     string `json:"method"`
}

// RecordLogin validates and stores a login. Unlike Record the caller sees
// the error: the login row is the whole operation.
func (w *Writer) RecordLogin(ctx context.Context, in LoginEvent) error {
	if _, err := uuid.Parse(in.PracticeID); err != nil {
		return apperr.Validation("%s is invalid", "practice_id")
	}
	if in.UserID == "" {
		return apperr.Validation("%s is required", "user_id")
	}
	switch in.Method {
	case model.LoginMethodPassword, model.LoginMethodMagicLink:
	default:
		return apperr.Validation("%s must be one of: %s", "method", model.LoginMethodPassword+", "+model.LoginMethodMagicLink)
	}

	client := httpx.ClientInfoFromContext(ctx)
	err := w.sink.InsertLoginEvent(ctx, model.LoginEvent{
		PracticeID: in.PracticeID,
		UserID:     in.UserID,
		Method:     in.Method,
		IPAddress:  client.IP,
		UserAgent:  client.UserAgent,
	})
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.ErrNotFound
	}
	if err != nil {
		w.metrics.AuditFailure()
		return apperr.Internal(fmt.Errorf("insert login event: %w", err))
	}
	return nil
}
