// Command stripe-webhook-sim posts a signed Stripe event to a running
// practice-service so the billing ledger can be exercised without Stripe.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/practicepulse/libs/config"
	"github.com/stripe/stripe-go/v79/webhook"
)

type options struct {
	practiceID     string
	plan           string
	status         string
	subscriptionID string
	customerID     string
	eventID        string
}

func main() {
	var (
		baseURL = flag.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "practice-service base url")
		evtType = flag.String("type", config.String("STRIPE_EVENT_TYPE", "checkout.session.completed"), "stripe event type")
		secret  = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
		opts    options
	)
	flag.StringVar(&opts.practiceID, "practice-id", config.String("PRACTICE_ID", ""), "practice_id metadata")
	flag.StringVar(&opts.plan, "plan", config.String("PLAN", "starter"), "plan metadata")
	flag.StringVar(&opts.status, "status", config.String("SUBSCRIPTION_STATUS", "active"), "subscription status")
	flag.StringVar(&opts.subscriptionID, "subscription-id", config.String("SUBSCRIPTION_ID", "sub_test_123"), "stripe subscription id")
	flag.StringVar(&opts.customerID, "customer-id", config.String("CUSTOMER_ID", "cus_test_123"), "stripe customer id")
	flag.StringVar(&opts.eventID, "event-id", "", "event id; replaying one exercises idempotency")
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(opts.practiceID) == "" {
		fatal("PRACTICE_ID is required")
	}

	now := time.Now().UTC()
	if opts.eventID == "" {
		opts.eventID = fmt.Sprintf("evt_test_%d", now.UnixNano())
	}

	payload, err := buildEventJSON(*evtType, now, opts)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/billing/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("event_id=%s status=%d body=%s\n", opts.eventID, resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventType string, t time.Time, o options) ([]byte, error) {
	metadata := map[string]any{"practice_id": o.practiceID, "plan": o.plan}

	var object map[string]any
	switch eventType {
	case "checkout.session.completed":
		object = map[string]any{
			"id":                  "cs_test_123",
			"object":              "checkout.session",
			"client_reference_id": o.practiceID,
			"customer":            o.customerID,
			"subscription":        o.subscriptionID,
			"metadata":            metadata,
		}
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		object = map[string]any{
			"id":       o.subscriptionID,
			"object":   "subscription",
			"status":   o.status,
			"customer": o.customerID,
			"metadata": metadata,
		}
	case "invoice.payment_failed":
		object = map[string]any{
			"id":           "in_test_123",
			"object":       "invoice",
			"customer":     o.customerID,
			"subscription": o.subscriptionID,
			"subscription_details": map[string]any{
				"metadata": metadata,
			},
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}

	return json.Marshal(map[string]any{
		"id":          o.eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": "2024-06-20",
		"data":        map[string]any{"object": object},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
