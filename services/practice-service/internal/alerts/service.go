// Package alerts lets practice owners triage detractor alerts.
package alerts

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/audit"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/storage"
)

const ActionNoteUpdate = "alert.note.update"

type Store interface {
	GetAlertWithOwner(ctx context.Context, alertID string) (model.Alert, string, error)
	MarkAlertRead(ctx context.Context, alertID string) (model.Alert, error)
	UpdateAlertNote(ctx context.Context, alertID, note string) (model.Alert, error)
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

type Service struct {
	store Store
	audit Auditor
}

func NewService(store Store, auditor Auditor) *Service {
	return &Service{store: store, audit: auditor}
}

// authorize loads the alert and hides it from anyone but the practice owner.
func (s *Service) authorize(ctx context.Context, actor model.Actor, alertID string) (model.Alert, error) {
	if _, err := uuid.Parse(alertID); err != nil {
		return model.Alert{}, apperr.Validation("%s is invalid", "alert_id")
	}
	a, owner, err := s.store.GetAlertWithOwner(ctx, alertID)
	if err != nil {
		return model.Alert{}, storeError(err)
	}
	if owner != actor.UserID {
		return model.Alert{}, apperr.ErrNotFound
	}
	return a, nil
}

func (s *Service) MarkRead(ctx context.Context, actor model.Actor, alertID string) (model.Alert, error) {
	a, err := s.authorize(ctx, actor, alertID)
	if err != nil {
		return model.Alert{}, err
	}
	if a.IsRead {
		return a, nil
	}
	updated, err := s.store.MarkAlertRead(ctx, a.ID)
	if err != nil {
		return model.Alert{}, storeError(err)
	}
	return updated, nil
}

func (s *Service) UpdateNote(ctx context.Context, actor model.Actor, alertID, note string) (model.Alert, error) {
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > model.MaxAlertNoteLength {
		return model.Alert{}, apperr.Validation("%s must be at most %d characters", "note", model.MaxAlertNoteLength)
	}
	a, err := s.authorize(ctx, actor, alertID)
	if err != nil {
		return model.Alert{}, err
	}
	updated, err := s.store.UpdateAlertNote(ctx, a.ID, note)
	if err != nil {
		return model.Alert{}, storeError(err)
	}
	s.audit.Record(ctx, audit.Entry{
		PracticeID: a.PracticeID,
		Actor:      actor,
		Action:     ActionNoteUpdate,
		Entity:     "alert",
		EntityID:   a.ID,
		Before:     map[string]any{"note": a.Note},
		After:      map[string]any{"note": updated.Note},
	})
	return updated, nil
}

func storeError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.ErrNotFound
	}
	return apperr.Internal(err)
}
