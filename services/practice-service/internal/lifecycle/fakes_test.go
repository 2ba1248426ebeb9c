package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/audit"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/outbox"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/storage"
)

type memStore struct {
	mu        sync.Mutex
	practices map[string]model.Practice
	surveys   []model.Survey
	events    []outbox.Event
	failWrite error
	// beforeDelete runs outside the lock at the start of SoftDeletePractice.
	beforeDelete func()
}

func newMemStore(practices ...model.Practice) *memStore {
	s := &memStore{practices: make(map[string]model.Practice)}
	for _, p := range practices {
		s.practices[p.ID] = p
	}
	return s
}

func (s *memStore) GetPractice(_ context.Context, id string) (model.Practice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.practices[id]
	if !ok || p.IsDeleted() {
		return model.Practice{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *memStore) ListOwnedPractices(_ context.Context, owner string) ([]model.Practice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Practice
	for _, p := range s.practices {
		if p.OwnerUserID == owner && !p.IsDeleted() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) SoftDeletePractice(_ context.Context, in storage.SoftDelete) (storage.SoftDeleteResult, error) {
	if s.beforeDelete != nil {
		s.beforeDelete()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return storage.SoftDeleteResult{}, s.failWrite
	}
	p, ok := s.practices[in.PracticeID]
	if !ok || p.IsDeleted() {
		return storage.SoftDeleteResult{}, storage.ErrNotFound
	}
	if in.EnforceMinimum {
		live := 0
		for _, other := range s.practices {
			if other.OwnerUserID == in.OwnerUserID && !other.IsDeleted() {
				live++
			}
		}
		if live <= 1 {
			return storage.SoftDeleteResult{}, storage.ErrLastPractice
		}
	}
	at := in.At
	p.DeletedAt = &at
	if in.SubscriptionCanceled {
		p.SubscriptionStatus = "canceled"
	}
	s.practices[p.ID] = p

	var archived int64
	for i := range s.surveys {
		if s.surveys[i].PracticeID == p.ID && s.surveys[i].DeletedAt == nil {
			s.surveys[i].DeletedAt = &at
			s.surveys[i].Status = model.SurveyStatusArchived
			archived++
		}
	}
	s.events = append(s.events, in.Events...)
	return storage.SoftDeleteResult{Practice: p, ArchivedSurveys: archived}, nil
}

func (s *memStore) mutate(id string, events []outbox.Event, fn func(*model.Practice)) (model.Practice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		return model.Practice{}, s.failWrite
	}
	p, ok := s.practices[id]
	if !ok || p.IsDeleted() {
		return model.Practice{}, storage.ErrNotFound
	}
	fn(&p)
	s.practices[id] = p
	s.events = append(s.events, events...)
	return p, nil
}

func (s *memStore) SetSuspended(_ context.Context, id string, at *time.Time, events ...outbox.Event) (model.Practice, error) {
	return s.mutate(id, events, func(p *model.Practice) {
		switch {
		case at == nil:
			p.SuspendedAt = nil
		case p.SuspendedAt == nil:
			t := *at
			p.SuspendedAt = &t
		}
	})
}

func (s *memStore) SetPlanOverride(_ context.Context, id string, o storage.Override, events ...outbox.Event) (model.Practice, error) {
	if o.Plan == "" {
		o = storage.Override{}
	}
	return s.mutate(id, events, func(p *model.Practice) {
		p.PlanOverride, p.OverrideReason, p.OverrideExpiresAt = o.Plan, o.Reason, o.ExpiresAt
	})
}

func (s *memStore) UpdateEmail(_ context.Context, id, email string) (model.Practice, error) {
	return s.mutate(id, nil, func(p *model.Practice) { p.Email = email })
}

func (s *memStore) UpdateGoogleLink(_ context.Context, id string, link storage.GoogleLink) (model.Practice, error) {
	return s.mutate(id, nil, func(p *model.Practice) {
		p.GooglePlaceID, p.GoogleReviewURL, p.GoogleRedirectEnabled = link.PlaceID, link.ReviewURL, link.RedirectEnabled
	})
}

func (s *memStore) practice(id string) model.Practice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.practices[id]
}

// fakeCanceler fails for the subscription ids in fail.
type fakeCanceler struct {
	fail     map[string]bool
	canceled []string
}

func (c *fakeCanceler) CancelSubscription(_ context.Context, _ string, subscriptionID string) error {
	if c.fail[subscriptionID] {
		return errors.New("stripe: connection reset")
	}
	c.canceled = append(c.canceled, subscriptionID)
	return nil
}

type recordingAuditor struct {
	entries []audit.Entry
}

func (a *recordingAuditor) Record(_ context.Context, e audit.Entry) {
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) actions() []string {
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingCache struct {
	practices []string
	err       error
}

func (c *recordingCache) InvalidatePractice(_ context.Context, practiceID string) error {
	c.practices = append(c.practices, practiceID)
	return c.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
