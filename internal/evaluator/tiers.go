package evaluator

import "github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"

// tierCrossing is one (kind, tier) pair a condition newly crossed.
type tierCrossing struct {
	kind domain.ConditionKind
	tier int
}

// kindForTier maps a budget threshold tier to the alert kind it produces.
// The 100% tier is an exceeded budget; everything below is a warning.
func kindForTier(tier int) domain.ConditionKind {
	if tier >= 100 {
		return domain.KindBudgetExceeded
	}
	return domain.KindBudgetWarning
}

// crossedTiers returns the tier crossings between the previous and current
// utilization, restricted to the user's configured thresholds and ordered
// by ascending severity.
//
// Consecutive warning tiers passed in a single jump collapse to the highest
// one reached: both share the budget_warning kind and template, and the
// user cares about where the budget stands now, not each rung on the way.
// The exceeded tier is always its own crossing — kinds are never collapsed
// into each other.
func crossedTiers(prev, current float64, thresholds []int) []tierCrossing {
	var highestWarning, exceeded int
	for _, t := range thresholds {
		if prev < float64(t) && float64(t) <= current {
			if t >= 100 {
				exceeded = t
			} else if t > highestWarning {
				highestWarning = t
			}
		}
	}

	var crossings []tierCrossing
	if highestWarning > 0 {
		crossings = append(crossings, tierCrossing{kind: domain.KindBudgetWarning, tier: highestWarning})
	}
	if exceeded > 0 {
		crossings = append(crossings, tierCrossing{kind: domain.KindBudgetExceeded, tier: exceeded})
	}
	return crossings
}
