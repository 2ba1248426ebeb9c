package entitlements

import (
	"testing"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableIsMonotonic(t *testing.T) {
	t.Parallel()
	require.NoError(t, Validate())

	tiers := plan.Tiers()
	for i := range tiers {
		for j := i + 1; j < len(tiers); j++ {
			lo, hi := LimitsForTier(tiers[i]), LimitsForTier(tiers[j])
			assert.True(t, atLeast(hi.MaxLocations, lo.MaxLocations), "%s vs %s locations", hi.Tier, lo.Tier)
			assert.True(t, atLeast(hi.MaxResponsesPerMonth, lo.MaxResponsesPerMonth), "%s vs %s responses", hi.Tier, lo.Tier)
			assert.True(t, !lo.HasAlerts || hi.HasAlerts)
			assert.True(t, !lo.HasBranding || hi.HasBranding)
			assert.True(t, !lo.HasCustomTimeFilter || hi.HasCustomTimeFilter)
			assert.Subset(t, hi.Templates, lo.Templates)
		}
	}
}

func TestValidateRejectsRegressions(t *testing.T) {
	t.Parallel()

	broken := map[plan.Tier]Limits{}
	for k, v := range table {
		broken[k] = v
	}
	starter := broken[plan.Starter]
	starter.Templates = []string{TemplateDentalVisit}
	broken[plan.Starter] = starter
	assert.ErrorContains(t, validate(broken), "missing template")

	capped := broken[plan.Professional]
	capped.MaxResponsesPerMonth = 10
	broken[plan.Professional] = capped
	broken[plan.Starter] = table[plan.Starter]
	assert.ErrorContains(t, validate(broken), "max_responses_per_month")

	delete(broken, plan.Free)
	assert.ErrorContains(t, validate(broken), "missing")
}

func TestLimitsForTierReturnsCopies(t *testing.T) {
	t.Parallel()

	l := LimitsForTier(plan.Professional)
	l.Templates[0] = "tampered"
	l.MaxLocations = 999
	assert.Equal(t, TemplateNPSBasic, LimitsForTier(plan.Professional).Templates[0])
	assert.Equal(t, 10, LimitsForTier(plan.Professional).MaxLocations)
}

func TestUnknownTierFallsBackToFree(t *testing.T) {
	t.Parallel()

	l := LimitsForTier("enterprise")
	assert.Equal(t, plan.Free, l.Tier)
	assert.False(t, l.HasAlerts)
}

func TestAllowsAndWithinLimit(t *testing.T) {
	t.Parallel()

	assert.True(t, Allows(plan.Free, TemplateNPSBasic))
	assert.False(t, Allows(plan.Free, TemplateCustom))
	assert.True(t, Allows(plan.Professional, TemplateCustom))
	assert.False(t, Allows("gold", TemplateCustom))

	assert.True(t, WithinLimit(Unlimited, 1_000_000))
	assert.True(t, WithinLimit(50, 50))
	assert.False(t, WithinLimit(50, 51))
}
