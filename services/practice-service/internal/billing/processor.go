// Package billing applies Stripe webhook events to practices and cancels
// subscriptions on their behalf.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/practicepulse/libs/httpx"
	otelx "github.com/md-rashed-zaman/practicepulse/libs/otel"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/apperr"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/metrics"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/plan"
	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const Provider = "stripe"

const (
	StatusOK        = "ok"
	StatusDuplicate = "duplicate"
	StatusIgnored   = "ignored"
)

type Store interface {
	ApplyBillingEvent(ctx context.Context, c storage.BillingChange) (storage.BillingOutcome, error)
}

type Config struct {
	WebhookSecret string
	// Tolerance bounds the age of a signed timestamp; zero uses the stripe default.
	Tolerance time.Duration
	// PriceTiers maps Stripe price ids to tiers for subscriptions without a
	// plan in their metadata.
	PriceTiers map[string]plan.Tier
}

type Result struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

type Processor struct {
	store   Store
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

func NewProcessor(store Store, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		tracer:  otelx.Tracer("practice-service/billing"),
		now:     time.Now,
	}
}

// Handle verifies and applies one webhook delivery. Signature problems are
// validation errors; anything that should make Stripe retry is internal.
func (p *Processor) Handle(ctx context.Context, payload []byte, signature string) (Result, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" || strings.TrimSpace(signature) == "" {
		p.metrics.WebhookEvent("", "invalid_signature")
		return Result{}, apperr.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, signature, p.cfg.WebhookSecret, p.tolerance()); err != nil {
		p.metrics.WebhookEvent("", "invalid_signature")
		return Result{}, apperr.ErrInvalidSignature.Wrap(err)
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance(),
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		p.metrics.WebhookEvent("", "malformed")
		return Result{}, apperr.Internal(fmt.Errorf("parse stripe event: %w", err))
	}

	eventType := string(evt.Type)
	ctx, span := p.tracer.Start(ctx, "billing.webhook", trace.WithAttributes(
		attribute.String("stripe.event_id", evt.ID),
		attribute.String("stripe.event_type", eventType),
	))
	defer span.End()

	res := Result{Status: StatusOK, EventID: evt.ID, EventType: eventType}
	change, handled, err := p.change(evt, payload)
	if err != nil {
		p.metrics.WebhookEvent(eventType, "malformed")
		p.logger.Error("stripe event payload invalid", "err", err, "provider_event_id", evt.ID, "event_type", eventType)
		span.RecordError(err)
		return Result{}, apperr.Internal(err)
	}
	if !handled {
		res.Status = StatusIgnored
	}
	client := httpx.ClientInfoFromContext(ctx)
	change.IPAddress, change.UserAgent = client.IP, client.UserAgent

	out, err := p.store.ApplyBillingEvent(ctx, change)
	if err != nil {
		p.metrics.WebhookEvent(eventType, "error")
		p.logger.Error("stripe event apply failed", "err", err, "provider_event_id", evt.ID, "event_type", eventType)
		span.RecordError(err)
		return Result{}, apperr.Internal(fmt.Errorf("apply %s: %w", eventType, err))
	}
	if out.AuditErr != nil {
		p.metrics.AuditFailure()
		p.logger.Error("billing audit write failed", "err", out.AuditErr, "provider_event_id", evt.ID, "practice_id", out.Before.ID)
	}

	switch {
	case out.Duplicate:
		res.Status = StatusDuplicate
	case handled && !out.Matched:
		p.logger.Warn("stripe event matched no practice",
			"provider_event_id", evt.ID,
			"event_type", eventType,
			"practice_id", change.Locate.PracticeID,
			"subscription_id", change.Locate.SubscriptionID,
			"customer_id", change.Locate.CustomerID,
		)
	}
	p.metrics.WebhookEvent(eventType, res.Status)
	p.logger.Info("stripe event processed",
		"provider_event_id", evt.ID,
		"event_type", eventType,
		"status", res.Status,
		"practice_id", out.Before.ID,
		"changed", out.Changed,
	)
	return res, nil
}

func (p *Processor) tolerance() time.Duration {
	if p.cfg.Tolerance > 0 {
		return p.cfg.Tolerance
	}
	return webhook.DefaultTolerance
}

// change maps evt onto a storage change. Unknown types yield a change with no
// Apply so only the ledger row is written.
func (p *Processor) change(evt stripe.Event, payload []byte) (storage.BillingChange, bool, error) {
	at := time.Unix(evt.Created, 0).UTC()
	if evt.Created == 0 {
		at = p.now().UTC()
	}
	c := storage.BillingChange{
		Event: storage.ProviderEvent{
			Provider:        Provider,
			ProviderEventID: evt.ID,
			EventType:       string(evt.Type),
			Payload:         payload,
		},
		Action: "billing." + string(evt.Type),
		At:     at,
	}
	if evt.Data == nil {
		return c, false, nil
	}

	var err error
	handled := true
	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		err = p.checkoutCompleted(&c, evt.Data.Raw)
	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		err = p.subscriptionChanged(&c, evt.Data.Raw)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		err = p.subscriptionDeleted(&c, evt.Data.Raw)
	case stripe.EventTypeInvoicePaymentFailed:
		err = p.paymentFailed(&c, evt.Data.Raw)
	default:
		handled = false
	}
	return c, handled, err
}

func (p *Processor) checkoutCompleted(c *storage.BillingChange, raw json.RawMessage) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return fmt.Errorf("checkout session: %w", err)
	}
	practiceID := practiceIDFrom(session.Metadata)
	if practiceID == "" {
		practiceID = validPracticeID(session.ClientReferenceID)
	}
	customerID := customerID(session.Customer)
	subID := ""
	if session.Subscription != nil {
		subID = session.Subscription.ID
	}
	tier, hasTier := plan.ParseTier(session.Metadata["plan"])

	c.Locate = storage.PracticeLocator{PracticeID: practiceID, SubscriptionID: subID, CustomerID: customerID}
	c.Apply = func(pr model.Practice) model.Practice {
		if customerID != "" {
			pr.StripeCustomerID = customerID
		}
		if subID != "" {
			pr.StripeSubscriptionID = subID
			if pr.SubscriptionStatus == "" || pr.SubscriptionStatus == string(stripe.SubscriptionStatusCanceled) {
				pr.SubscriptionStatus = string(stripe.SubscriptionStatusActive)
			}
		}
		if hasTier {
			pr.Plan = string(tier)
		}
		return pr
	}
	return nil
}

func (p *Processor) subscriptionChanged(c *storage.BillingChange, raw json.RawMessage) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("subscription: %w", err)
	}
	customerID := customerID(sub.Customer)
	tier, hasTier := p.subscriptionTier(&sub)
	status := sub.Status

	c.Locate = storage.PracticeLocator{PracticeID: practiceIDFrom(sub.Metadata), SubscriptionID: sub.ID, CustomerID: customerID}
	c.Apply = func(pr model.Practice) model.Practice {
		// Matched through the customer while another subscription is on file:
		// adopt a live subscription, ignore the end of a superseded one.
		if pr.StripeSubscriptionID != "" && pr.StripeSubscriptionID != sub.ID && !liveStatus(status) {
			return pr
		}
		pr.StripeSubscriptionID = sub.ID
		if customerID != "" {
			pr.StripeCustomerID = customerID
		}
		pr.SubscriptionStatus = string(status)
		switch status {
		case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
			if hasTier {
				pr.Plan = string(tier)
			}
			pr.PaymentFailedAt = nil
		case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncompleteExpired:
			pr.Plan = string(plan.Free)
		}
		return pr
	}
	return nil
}

func liveStatus(s stripe.SubscriptionStatus) bool {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
		return true
	}
	return false
}

func (p *Processor) subscriptionDeleted(c *storage.BillingChange, raw json.RawMessage) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("subscription: %w", err)
	}
	c.Locate = storage.PracticeLocator{PracticeID: practiceIDFrom(sub.Metadata), SubscriptionID: sub.ID, CustomerID: customerID(sub.Customer)}
	c.Apply = func(pr model.Practice) model.Practice {
		// A newer subscription already replaced this one.
		if pr.StripeSubscriptionID != "" && pr.StripeSubscriptionID != sub.ID {
			return pr
		}
		pr.Plan = string(plan.Free)
		pr.StripeSubscriptionID = ""
		pr.SubscriptionStatus = string(stripe.SubscriptionStatusCanceled)
		return pr
	}
	return nil
}

// paymentFailed flags the practice for dunning. Suspension is left to an
// operator.
func (p *Processor) paymentFailed(c *storage.BillingChange, raw json.RawMessage) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return fmt.Errorf("invoice: %w", err)
	}
	loc := storage.PracticeLocator{CustomerID: customerID(inv.Customer)}
	if inv.Subscription != nil {
		loc.SubscriptionID = inv.Subscription.ID
	}
	if inv.SubscriptionDetails != nil {
		loc.PracticeID = practiceIDFrom(inv.SubscriptionDetails.Metadata)
	}
	at := c.At
	c.Locate = loc
	c.Apply = func(pr model.Practice) model.Practice {
		if pr.PaymentFailedAt == nil {
			pr.PaymentFailedAt = &at
		}
		return pr
	}
	return nil
}

// subscriptionTier prefers the plan named in metadata over the price map.
func (p *Processor) subscriptionTier(sub *stripe.Subscription) (plan.Tier, bool) {
	if tier, ok := plan.ParseTier(sub.Metadata["plan"]); ok {
		return tier, true
	}
	if sub.Items == nil {
		return "", false
	}
	for _, item := range sub.Items.Data {
		if item == nil || item.Price == nil {
			continue
		}
		if tier, ok := p.cfg.PriceTiers[item.Price.ID]; ok {
			return tier, true
		}
	}
	return "", false
}

func practiceIDFrom(metadata map[string]string) string {
	return validPracticeID(metadata["practice_id"])
}

func validPracticeID(v string) string {
	v = strings.TrimSpace(v)
	if _, err := uuid.Parse(v); err != nil {
		return ""
	}
	return v
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
