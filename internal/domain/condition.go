package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ConditionKind enumerates the notifiable budget conditions. It is a closed
// set: every switch over ConditionKind at the dispatcher and renderer boundary
// must handle all three members.
type ConditionKind string

const (
	KindBudgetWarning     ConditionKind = "budget_warning"
	KindCategoryOverspend ConditionKind = "category_overspend"
	KindBudgetExceeded    ConditionKind = "budget_exceeded"
)

// Severity orders kinds from least to most urgent. Higher is more severe.
func (k ConditionKind) Severity() int {
	switch k {
	case KindBudgetWarning:
		return 1
	case KindCategoryOverspend:
		return 2
	case KindBudgetExceeded:
		return 3
	default:
		return 0
	}
}

// Valid reports whether k is a known condition kind.
func (k ConditionKind) Valid() bool {
	return k.Severity() > 0
}

// AlertCondition is a state-change event produced by the budget subsystem.
// It is immutable: the evaluator never modifies a condition, only derives
// alerts from it.
type AlertCondition struct {
	Kind                  ConditionKind `json:"kind"`
	UserID                string        `json:"user_id"`
	BudgetID              string        `json:"budget_id"`
	CategoryID            string        `json:"category_id,omitempty"`
	UtilizationPercentage float64       `json:"utilization_percentage"`
	OverAmount            float64       `json:"over_amount,omitempty"`
	PeriodStart           time.Time     `json:"period_start"`
	PeriodEnd             time.Time     `json:"period_end"`
}

// Validate rejects malformed conditions before they reach the evaluator.
func (c AlertCondition) Validate() error {
	if !c.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", c.Kind)}
	}
	if c.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	if c.BudgetID == "" {
		return &ValidationError{Field: "budget_id", Reason: "required"}
	}
	if c.Kind == KindCategoryOverspend && c.CategoryID == "" {
		return &ValidationError{Field: "category_id", Reason: "required for category overspend"}
	}
	if c.UtilizationPercentage < 0 {
		return &ValidationError{Field: "utilization_percentage", Reason: "must be >= 0"}
	}
	if c.PeriodStart.IsZero() || c.PeriodEnd.IsZero() {
		return &ValidationError{Field: "period", Reason: "period_start and period_end are required"}
	}
	if !c.PeriodEnd.After(c.PeriodStart) {
		return &ValidationError{Field: "period", Reason: "period_end must be after period_start"}
	}
	return nil
}

// DedupKey derives the deterministic identity of "this exact condition, this
// period, this tier". Re-crossing the same tier within the period hashes to
// the same key; crossing a new higher tier yields a new key.
func DedupKey(kind ConditionKind, budgetID, categoryID string, periodStart time.Time, tier int) string {
	canonical := fmt.Sprintf("%s|%s|%s|%s|%d",
		kind, budgetID, categoryID, periodStart.UTC().Format(time.RFC3339), tier)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// SuppressionRecord is the value stored in the suppression ledger for an
// acquired dedup key. At most one live record exists per key; the ledger's
// TTL is the only garbage collector.
type SuppressionRecord struct {
	DedupKey    string    `json:"dedup_key"`
	DeliveredAt time.Time `json:"delivered_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}
