// Package entitlements holds the per-tier feature limits. The table is fixed
// at compile time; callers only ever receive copies.
package entitlements

import (
	"fmt"
	"slices"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/plan"
)

// Unlimited marks a numeric limit with no ceiling.
const Unlimited = -1

// Survey template identifiers.
const (
	TemplateNPSBasic     = "nps_basic"
	TemplateNPSFollowUp  = "nps_follow_up"
	TemplateDentalVisit  = "dental_visit"
	TemplateMedicalVisit = "medical_visit"
	TemplateCustom       = "custom"
)

type Limits struct {
	Tier                 plan.Tier `json:"tier"`
	MaxLocations         int       `json:"max_locations"`
	MaxResponsesPerMonth int       `json:"max_responses_per_month"`
	HasAlerts            bool      `json:"has_alerts"`
	HasBranding          bool      `json:"has_branding"`
	HasCustomTimeFilter  bool      `json:"has_custom_time_filter"`
	Templates            []string  `json:"templates"`
}

var table = map[plan.Tier]Limits{
	plan.Free: {
		Tier:                 plan.Free,
		MaxLocations:         1,
		MaxResponsesPerMonth: 50,
		Templates:            []string{TemplateNPSBasic},
	},
	plan.Starter: {
		Tier:                 plan.Starter,
		MaxLocations:         3,
		MaxResponsesPerMonth: 500,
		HasAlerts:            true,
		Templates:            []string{TemplateNPSBasic, TemplateNPSFollowUp, TemplateDentalVisit},
	},
	plan.Professional: {
		Tier:                 plan.Professional,
		MaxLocations:         10,
		MaxResponsesPerMonth: Unlimited,
		HasAlerts:            true,
		HasBranding:          true,
		HasCustomTimeFilter:  true,
		Templates: []string{
			TemplateNPSBasic, TemplateNPSFollowUp, TemplateDentalVisit, TemplateMedicalVisit, TemplateCustom,
		},
	},
}

// LimitsForTier returns the limits for tier, or the free limits for an
// unknown tier.
func LimitsForTier(tier plan.Tier) Limits {
	l, ok := table[tier]
	if !ok {
		l = table[plan.Free]
	}
	l.Templates = slices.Clone(l.Templates)
	return l
}

// Allows reports whether tier may use the given survey template.
func Allows(tier plan.Tier, template string) bool {
	return slices.Contains(table[LimitsForTier(tier).Tier].Templates, template)
}

// WithinLimit reports whether used stays within limit.
func WithinLimit(limit, used int) bool {
	return limit == Unlimited || used <= limit
}

// Validate checks that every tier grants at least what the tier below it
// grants. It runs at startup.
func Validate() error {
	return validate(table)
}

func validate(t map[plan.Tier]Limits) error {
	tiers := plan.Tiers()
	for _, tier := range tiers {
		l, ok := t[tier]
		if !ok {
			return fmt.Errorf("entitlements: tier %q missing", tier)
		}
		if l.Tier != tier {
			return fmt.Errorf("entitlements: tier %q keyed as %q", l.Tier, tier)
		}
		if l.MaxLocations < 1 {
			return fmt.Errorf("entitlements: %s max_locations must be positive", tier)
		}
		if l.MaxResponsesPerMonth < 1 && l.MaxResponsesPerMonth != Unlimited {
			return fmt.Errorf("entitlements: %s max_responses_per_month must be positive or unlimited", tier)
		}
		if len(l.Templates) == 0 {
			return fmt.Errorf("entitlements: %s has no templates", tier)
		}
	}
	for i := 1; i < len(tiers); i++ {
		lo, hi := t[tiers[i-1]], t[tiers[i]]
		if !atLeast(hi.MaxLocations, lo.MaxLocations) {
			return fmt.Errorf("entitlements: %s max_locations below %s", hi.Tier, lo.Tier)
		}
		if !atLeast(hi.MaxResponsesPerMonth, lo.MaxResponsesPerMonth) {
			return fmt.Errorf("entitlements: %s max_responses_per_month below %s", hi.Tier, lo.Tier)
		}
		if (lo.HasAlerts && !hi.HasAlerts) || (lo.HasBranding && !hi.HasBranding) || (lo.HasCustomTimeFilter && !hi.HasCustomTimeFilter) {
			return fmt.Errorf("entitlements: %s drops a feature flag granted to %s", hi.Tier, lo.Tier)
		}
		for _, tpl := range lo.Templates {
			if !slices.Contains(hi.Templates, tpl) {
				return fmt.Errorf("entitlements: %s is missing template %q granted to %s", hi.Tier, tpl, lo.Tier)
			}
		}
	}
	return nil
}

func atLeast(a, b int) bool {
	if a == Unlimited {
		return true
	}
	if b == Unlimited {
		return false
	}
	return a >= b
}
