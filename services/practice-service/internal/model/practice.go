package model

import "time"

// Override reasons an admin may record with a plan override.
const (
	OverrideReasonBetaTester = "beta_tester"
	OverrideReasonDemo       = "demo"
	OverrideReasonFriend     = "friend"
	OverrideReasonSupport    = "support"
	OverrideReasonOther      = "other"
)

func OverrideReasons() []string {
	return []string{
		OverrideReasonBetaTester,
		OverrideReasonDemo,
		OverrideReasonFriend,
		OverrideReasonSupport,
		OverrideReasonOther,
	}
}

// Practice is the tenant root. Empty strings stand for NULL text columns.
type Practice struct {
	ID          string
	OwnerUserID string
	Name        string
	Email       string

	Plan              string
	PlanOverride      string
	OverrideReason    string
	OverrideExpiresAt *time.Time

	StripeCustomerID     string
	StripeSubscriptionID string
	SubscriptionStatus   string
	PaymentFailedAt      *time.Time

	SuspendedAt *time.Time
	DeletedAt   *time.Time

	GooglePlaceID         string
	GoogleReviewURL       string
	GoogleRedirectEnabled bool

	LogoURL             string
	PrimaryColor        string
	IndustryCategory    string
	IndustrySubCategory string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Practice) IsDeleted() bool   { return p.DeletedAt != nil }
func (p Practice) IsSuspended() bool { return p.SuspendedAt != nil }

// HasActiveSubscription reports whether a provider subscription still needs
// cancelling before the practice can be removed.
func (p Practice) HasActiveSubscription() bool {
	if p.StripeSubscriptionID == "" {
		return false
	}
	switch p.SubscriptionStatus {
	case "canceled", "incomplete_expired":
		return false
	}
	return true
}

// OverrideSnapshot is the audit view of the override columns.
func (p Practice) OverrideSnapshot() map[string]any {
	return map[string]any{
		"plan_override":       nullable(p.PlanOverride),
		"override_reason":     nullable(p.OverrideReason),
		"override_expires_at": timeOrNil(p.OverrideExpiresAt),
	}
}

// BillingSnapshot is the audit view of provider-owned columns.
func (p Practice) BillingSnapshot() map[string]any {
	return map[string]any{
		"plan":                   nullable(p.Plan),
		"stripe_customer_id":     nullable(p.StripeCustomerID),
		"stripe_subscription_id": nullable(p.StripeSubscriptionID),
		"subscription_status":    nullable(p.SubscriptionStatus),
		"payment_failed_at":      timeOrNil(p.PaymentFailedAt),
	}
}

// BillingEqual compares the provider-owned columns.
func (p Practice) BillingEqual(o Practice) bool {
	return p.Plan == o.Plan &&
		p.StripeCustomerID == o.StripeCustomerID &&
		p.StripeSubscriptionID == o.StripeSubscriptionID &&
		p.SubscriptionStatus == o.SubscriptionStatus &&
		timeEqual(p.PaymentFailedAt, o.PaymentFailedAt)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
