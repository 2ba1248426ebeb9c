package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/plan"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	secret     = "whsec_test_secret"
	practiceID = "6f1c2d9e-3a7b-4c1e-9a5f-2b8d7e6c5a41"
)

// ledgerStore mirrors ApplyBillingEvent: ledger first, then the change.
type ledgerStore struct {
	mu        sync.Mutex
	seen      map[string]bool
	practices map[string]model.Practice
	audits    int
	calls     int
	failWith  error
}

func newLedgerStore(practices ...model.Practice) *ledgerStore {
	s := &ledgerStore{seen: map[string]bool{}, practices: map[string]model.Practice{}}
	for _, p := range practices {
		s.practices[p.ID] = p
	}
	return s
}

func (s *ledgerStore) ApplyBillingEvent(_ context.Context, c storage.BillingChange) (storage.BillingOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failWith != nil {
		return storage.BillingOutcome{}, s.failWith
	}
	if s.seen[c.Event.ProviderEventID] {
		return storage.BillingOutcome{Duplicate: true}, nil
	}
	s.seen[c.Event.ProviderEventID] = true
	if c.Apply == nil || c.Locate.Empty() {
		return storage.BillingOutcome{}, nil
	}
	before, ok := s.locate(c.Locate)
	if !ok {
		return storage.BillingOutcome{}, nil
	}
	after := c.Apply(before)
	out := storage.BillingOutcome{Matched: true, Before: before, After: after}
	if !before.BillingEqual(after) {
		out.Changed = true
		s.practices[before.ID] = after
		s.audits++
	}
	return out, nil
}

func (s *ledgerStore) locate(l storage.PracticeLocator) (model.Practice, bool) {
	for _, step := range l.Steps() {
		for _, p := range s.practices {
			switch {
			case step.PracticeID != "" && p.ID == step.PracticeID,
				step.SubscriptionID != "" && p.StripeSubscriptionID == step.SubscriptionID,
				step.CustomerID != "" && p.StripeCustomerID == step.CustomerID:
				return p, true
			}
		}
	}
	return model.Practice{}, false
}

func (s *ledgerStore) practice() model.Practice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.practices[practiceID]
}

func newProcessor(store Store) *Processor {
	return NewProcessor(store, Config{
		WebhookSecret: secret,
		PriceTiers:    map[string]plan.Tier{"price_pro_monthly": plan.Professional},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func event(t *testing.T, id, eventType string, object map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"created":     time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC).Unix(),
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return raw
}

func sign(payload []byte, key string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: key}).Header
}

func checkoutCompleted(t *testing.T, id string) []byte {
	return event(t, id, "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"object":       "checkout.session",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]any{"practice_id": practiceID, "plan": "starter"},
	})
}

func TestHandleRejectsBadSignatures(t *testing.T) {
	store := newLedgerStore(model.Practice{ID: practiceID})
	p := newProcessor(store)
	payload := checkoutCompleted(t, "evt_1")

	cases := map[string]string{
		"missing":  "",
		"tampered": sign(payload, "whsec_other"),
		"garbage":  "t=1,v1=deadbeef",
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Handle(context.Background(), payload, sig)
			require.ErrorIs(t, err, apperr.ErrInvalidSignature)
			assert.Equal(t, 400, apperr.From(err).HTTPStatus())
		})
	}

	unconfigured := NewProcessor(store, Config{}, nil, nil)
	_, err := unconfigured.Handle(context.Background(), payload, sign(payload, secret))
	assert.ErrorIs(t, err, apperr.ErrInvalidSignature)

	assert.Zero(t, store.calls)
	assert.Empty(t, store.practice().Plan)
}

func TestCheckoutCompletedIsIdempotent(t *testing.T) {
	store := newLedgerStore(model.Practice{ID: practiceID})
	p := newProcessor(store)
	payload := checkoutCompleted(t, "evt_checkout")

	res, err := p.Handle(context.Background(), payload, sign(payload, secret))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	first := store.practice()
	assert.Equal(t, "starter", first.Plan)
	assert.Equal(t, "cus_1", first.StripeCustomerID)
	assert.Equal(t, "sub_1", first.StripeSubscriptionID)
	assert.Equal(t, "active", first.SubscriptionStatus)

	res, err = p.Handle(context.Background(), payload, sign(payload, secret))
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, res.Status)
	assert.Equal(t, first, store.practice())
	assert.Equal(t, 1, store.audits)
}

func TestSubscriptionUpdatedUsesPriceMapAndStatus(t *testing.T) {
	store := newLedgerStore(model.Practice{ID: practiceID, Plan: "starter", StripeSubscriptionID: "sub_1", StripeCustomerID: "cus_1"})
	p := newProcessor(store)

	active := event(t, "evt_up", "customer.subscription.updated", map[string]any{
		"id":       "sub_1",
		"object":   "subscription",
		"customer": "cus_1",
		"status":   "active",
		"items": map[string]any{"object": "list", "data": []any{
			map[string]any{"id": "si_1", "object": "subscription_item", "price": map[string]any{"id": "price_pro_monthly", "object": "price"}},
		}},
	})
	_, err := p.Handle(context.Background(), active, sign(active, secret))
	require.NoError(t, err)
	assert.Equal(t, "professional", store.practice().Plan)

	pastDue := event(t, "evt_past_due", "customer.subscription.updated", map[string]any{
		"id": "sub_1", "object": "subscription", "customer": "cus_1", "status": "past_due",
	})
	_, err = p.Handle(context.Background(), pastDue, sign(pastDue, secret))
	require.NoError(t, err)
	assert.Equal(t, "professional", store.practice().Plan)
	assert.Equal(t, "past_due", store.practice().SubscriptionStatus)

	unpaid := event(t, "evt_unpaid", "customer.subscription.updated", map[string]any{
		"id": "sub_1", "object": "subscription", "customer": "cus_1", "status": "unpaid",
	})
	_, err = p.Handle(context.Background(), unpaid, sign(unpaid, secret))
	require.NoError(t, err)
	assert.Equal(t, "free", store.practice().Plan)
}

func TestSubscriptionDeletedResetsToFree(t *testing.T) {
	store := newLedgerStore(model.Practice{ID: practiceID, Plan: "professional", StripeSubscriptionID: "sub_1", SubscriptionStatus: "active"})
	p := newProcessor(store)

	payload := event(t, "evt_del", "customer.subscription.deleted", map[string]any{
		"id": "sub_1", "object": "subscription", "status": "canceled",
		"metadata": map[string]any{"practice_id": "not-a-uuid"},
	})
	_, err := p.Handle(context.Background(), payload, sign(payload, secret))
	require.NoError(t, err)

	got := store.practice()
	assert.Equal(t, "free", got.Plan)
	assert.Empty(t, got.StripeSubscriptionID)
	assert.Equal(t, "canceled", got.SubscriptionStatus)
}

func TestNewSubscriptionForKnownCustomerReplacesOldOne(t *testing.T) {
	store := newLedgerStore(model.Practice{ID: practiceID, Plan: "starter", StripeSubscriptionID: "sub_old", StripeCustomerID: "cus_1", SubscriptionStatus: "active"})
	p := newProcessor(store)

	created := event(t, "evt_created", "customer.subscription.created", map[string]any{
		"id":       "sub_new",
		"object":   "subscription",
		"customer": "cus_1",
		"status":   "active",
		"items": map[string]any{"object": "list", "data": []any{
			map[string]any{"id": "si_2", "object": "subscription_item", "price": map[string]any{"id": "price_pro_monthly", "object": "price"}},
		}},
	})
	res, err := p.Handle(context.Background(), created, sign(created, secret))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "professional", store.practice().Plan)
	assert.Equal(t, "sub_new", store.practice().StripeSubscriptionID)

	staleCancel := event(t, "evt_old_canceled", "customer.subscription.updated", map[string]any{
		"id": "sub_old", "object": "subscription", "customer": "cus_1", "status": "canceled",
	})
	_, err = p.Handle(context.Background(), staleCancel, sign(staleCancel, secret))
	require.NoError(t, err)

	oldDeleted := event(t, "evt_old_deleted", "customer.subscription.deleted", map[string]any{
		"id": "sub_old", "object": "subscription", "customer": "cus_1", "status": "canceled",
	})
	_, err = p.Handle(context.Background(), oldDeleted, sign(oldDeleted, secret))
	require.NoError(t, err)

	got := store.practice()
	assert.Equal(t, "professional", got.Plan)
	assert.Equal(t, "sub_new", got.StripeSubscriptionID)
	assert.Equal(t, "active", got.SubscriptionStatus)
}

func TestPaymentFailedFlagsPractice(t *testing.T) {
	store := newLedgerStore(model.Practice{ID: practiceID, Plan: "starter", StripeCustomerID: "cus_1"})
	p := newProcessor(store)

	payload := event(t, "evt_inv", "invoice.payment_failed", map[string]any{
		"id": "in_1", "object": "invoice", "customer": "cus_1",
	})
	_, err := p.Handle(context.Background(), payload, sign(payload, secret))
	require.NoError(t, err)

	got := store.practice()
	require.NotNil(t, got.PaymentFailedAt)
	assert.True(t, got.PaymentFailedAt.Equal(time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, "starter", got.Plan)
	assert.Nil(t, got.SuspendedAt)
}

func TestUnknownEventIsAcknowledged(t *testing.T) {
	store := newLedgerStore(model.Practice{ID: practiceID})
	p := newProcessor(store)

	payload := event(t, "evt_x", "customer.tax_id.created", map[string]any{"id": "txi_1", "object": "tax_id"})
	res, err := p.Handle(context.Background(), payload, sign(payload, secret))
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, res.Status)
	assert.True(t, store.seen["evt_x"])
}

func TestStoreFailureIsInternal(t *testing.T) {
	store := newLedgerStore()
	store.failWith = errors.New("db down")
	p := newProcessor(store)

	payload := checkoutCompleted(t, "evt_fail")
	_, err := p.Handle(context.Background(), payload, sign(payload, secret))
	require.ErrorIs(t, err, apperr.ErrInternal)
	assert.Equal(t, 500, apperr.From(err).HTTPStatus())
}

func TestMalformedObjectIsInternal(t *testing.T) {
	store := newLedgerStore()
	p := newProcessor(store)

	payload := event(t, "evt_bad", "customer.subscription.updated", map[string]any{
		"id": "sub_1", "object": "subscription", "items": "not-a-list",
	})
	_, err := p.Handle(context.Background(), payload, sign(payload, secret))
	assert.ErrorIs(t, err, apperr.ErrInternal)
	assert.Zero(t, store.calls)
}
