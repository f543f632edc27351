package evaluator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
)

// composeAlert builds the immutable user-facing alert for a crossed tier.
// The switch over kinds is exhaustive.
func composeAlert(cond domain.AlertCondition, kind domain.ConditionKind, tier int, dedupKey string, now time.Time) domain.Alert {
	var title, message string
	switch kind {
	case domain.KindBudgetExceeded:
		title = "Budget exceeded"
		if cond.OverAmount > 0 {
			message = fmt.Sprintf("Your budget is over its limit by $%.2f (%.0f%% used).",
				cond.OverAmount, cond.UtilizationPercentage)
		} else {
			message = fmt.Sprintf("Your budget is over its limit (%.0f%% used).",
				cond.UtilizationPercentage)
		}
	case domain.KindBudgetWarning:
		title = fmt.Sprintf("Budget at %d%%", tier)
		message = fmt.Sprintf("Your budget has reached %.0f%% of its limit. The %d%% threshold you set has been crossed.",
			cond.UtilizationPercentage, tier)
	case domain.KindCategoryOverspend:
		title = "Category overspent"
		message = fmt.Sprintf("Spending in this category is over its allocation by $%.2f.",
			cond.OverAmount)
	}

	return domain.Alert{
		ID:                    uuid.New().String(),
		Kind:                  kind,
		UserID:                cond.UserID,
		BudgetID:              cond.BudgetID,
		CategoryID:            cond.CategoryID,
		Tier:                  tier,
		UtilizationPercentage: cond.UtilizationPercentage,
		OverAmount:            cond.OverAmount,
		PeriodStart:           cond.PeriodStart,
		PeriodEnd:             cond.PeriodEnd,
		Title:                 title,
		Message:               message,
		DedupKey:              dedupKey,
		CreatedAt:             now.UTC(),
	}
}
