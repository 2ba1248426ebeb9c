// Package plan decides which tier a practice is actually entitled to.
package plan

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/model"
)

type Tier string

const (
	Free         Tier = "free"
	Starter      Tier = "starter"
	Professional Tier = "professional"
)

// Default is granted when neither billing nor an override names a tier.
const Default = Free

var ordered = []Tier{Free, Starter, Professional}

// Tiers returns every tier from lowest to highest.
func Tiers() []Tier {
	out := make([]Tier, len(ordered))
	copy(out, ordered)
	return out
}

func (t Tier) String() string { return string(t) }

// Rank orders tiers; unknown tiers rank below free.
func (t Tier) Rank() int {
	for i, o := range ordered {
		if o == t {
			return i
		}
	}
	return -1
}

func (t Tier) Valid() bool { return t.Rank() >= 0 }

// ParseTier normalizes case and whitespace.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Input is the stored state the effective plan is computed from.
// OverrideExpiresAt may be nil, a time.Time, a *time.Time or a date string.
type Input struct {
	Plan              string
	Override          string
	OverrideExpiresAt any
}

// Effective returns the override while it is set and unexpired, else the
// stored plan, else the default tier. It does no I/O.
func Effective(in Input, now time.Time) Tier {
	if override := strings.TrimSpace(in.Override); override != "" {
		expires, hasExpiry, ok := parseExpiry(in.OverrideExpiresAt)
		if ok && (!hasExpiry || expires.After(now)) {
			return Tier(strings.ToLower(override))
		}
	}
	if stored := strings.TrimSpace(in.Plan); stored != "" {
		return Tier(strings.ToLower(stored))
	}
	return Default
}

// ForPractice evaluates the effective plan of a stored practice.
func ForPractice(p model.Practice, now time.Time) Tier {
	return Effective(Input{
		Plan:              p.Plan,
		Override:          p.PlanOverride,
		OverrideExpiresAt: p.OverrideExpiresAt,
	}, now)
}

// OverrideActive reports whether the practice override currently wins.
func OverrideActive(p model.Practice, now time.Time) bool {
	if p.PlanOverride == "" {
		return false
	}
	return p.OverrideExpiresAt == nil || p.OverrideExpiresAt.After(now)
}

var expiryLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseExpiry returns ok=false when v cannot be read as an instant; such an
// override is ignored rather than treated as permanent.
func parseExpiry(v any) (t time.Time, hasExpiry bool, ok bool) {
	switch e := v.(type) {
	case nil:
		return time.Time{}, false, true
	case time.Time:
		if e.IsZero() {
			return time.Time{}, false, true
		}
		return e, true, true
	case *time.Time:
		if e == nil || e.IsZero() {
			return time.Time{}, false, true
		}
		return *e, true, true
	case string:
		s := strings.TrimSpace(e)
		if s == "" {
			return time.Time{}, false, true
		}
		for _, layout := range expiryLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true, true
			}
		}
		return time.Time{}, true, false
	case *string:
		if e == nil {
			return time.Time{}, false, true
		}
		return parseExpiry(*e)
	default:
		return time.Time{}, true, false
	}
}
