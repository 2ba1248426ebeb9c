package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/subscription"
)

const defaultCancelTimeout = 10 * time.Second

type CancelerConfig struct {
	SecretKey string
	Timeout   time.Duration
	// BaseURL overrides the Stripe API endpoint, for stripe-mock or tests.
	BaseURL string
}

// StripeCanceler cancels subscriptions immediately. Requests are not retried;
// the idempotency key makes a caller's deliberate retry safe.
type StripeCanceler struct {
	client  subscription.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewStripeCanceler(cfg CancelerConfig, logger *slog.Logger) *StripeCanceler {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCancelTimeout
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     stripeLogger{logger},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	return &StripeCanceler{
		client:  subscription.Client{B: stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg), Key: cfg.SecretKey},
		timeout: timeout,
		logger:  logger,
	}
}

func CancelIdempotencyKey(practiceID, subscriptionID string) string {
	return "cancel:" + practiceID + ":" + subscriptionID
}

// CancelSubscription treats an already missing subscription as cancelled.
func (c *StripeCanceler) CancelSubscription(ctx context.Context, practiceID, subscriptionID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey(CancelIdempotencyKey(practiceID, subscriptionID))

	sub, err := c.client.Cancel(subscriptionID, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Code == stripe.ErrorCodeResourceMissing {
			c.logger.Info("stripe subscription already gone", "practice_id", practiceID, "subscription_id", subscriptionID)
			return nil
		}
		return fmt.Errorf("cancel subscription %s: %w", subscriptionID, err)
	}
	c.logger.Info("stripe subscription canceled",
		"practice_id", practiceID,
		"subscription_id", subscriptionID,
		"status", string(sub.Status),
	)
	return nil
}

// stripeLogger routes stripe-go logs through slog.
type stripeLogger struct{ l *slog.Logger }

func (s stripeLogger) Debugf(format string, v ...interface{}) {
	s.l.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (s stripeLogger) Infof(format string, v ...interface{}) {
	s.l.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (s stripeLogger) Warnf(format string, v ...interface{}) {
	s.l.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (s stripeLogger) Errorf(format string, v ...interface{}) {
	s.l.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
