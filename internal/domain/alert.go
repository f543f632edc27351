package domain

import "time"

// Alert is a composed, user-facing notification derived from an
// AlertCondition plus rendering context. Immutable once created; the
// dispatcher fans it out to one DeliveryJob per enabled channel.
type Alert struct {
	ID                    string        `json:"id"`
	Kind                  ConditionKind `json:"kind"`
	UserID                string        `json:"user_id"`
	BudgetID              string        `json:"budget_id"`
	CategoryID            string        `json:"category_id,omitempty"`
	Tier                  int           `json:"tier"`
	UtilizationPercentage float64       `json:"utilization_percentage"`
	OverAmount            float64       `json:"over_amount,omitempty"`
	PeriodStart           time.Time     `json:"period_start"`
	PeriodEnd             time.Time     `json:"period_end"`
	Title                 string        `json:"title"`
	Message               string        `json:"message"`
	DedupKey              string        `json:"dedup_key"`
	CreatedAt             time.Time     `json:"created_at"`
}

// UserRoom returns the gateway room every authenticated connection of the
// alert's user auto-joins.
func (a Alert) UserRoom() string {
	return "user:" + a.UserID
}

// BudgetRoom returns the on-demand resource room for the alert's budget.
func (a Alert) BudgetRoom() string {
	return "resource:" + a.BudgetID
}
