package domain

import (
	"encoding/json"
	"time"
)

// DeliveryChannel identifies how a job reaches the user.
type DeliveryChannel string

const (
	ChannelSocket DeliveryChannel = "socket"
	ChannelEmail  DeliveryChannel = "email"
)

// JobStatus is the delivery job lifecycle state.
//
// Socket jobs are fire-and-forget: they go straight to sent or failed and
// are never retried. Email jobs are durable: persisted as pending before any
// network attempt, retried with backoff, and moved to dead after the attempt
// cap or on a permanent error.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobSent    JobStatus = "sent"
	JobFailed  JobStatus = "failed"
	JobDead    JobStatus = "dead"
)

// DeliveryJob is one channel-specific delivery of an Alert.
type DeliveryJob struct {
	ID             string          `json:"id" db:"id"`
	AlertID        string          `json:"alert_id" db:"alert_id"`
	UserID         string          `json:"user_id" db:"user_id"`
	BudgetID       string          `json:"budget_id" db:"budget_id"`
	Channel        DeliveryChannel `json:"channel" db:"channel"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
	Status         JobStatus       `json:"status" db:"status"`
	Attempts       int             `json:"attempts" db:"attempts"`
	NextAttemptAt  time.Time       `json:"next_attempt_at" db:"next_attempt_at"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	WorkerID       string          `json:"worker_id,omitempty" db:"worker_id"`
	MessageID      string          `json:"message_id,omitempty" db:"message_id"`
	LastError      string          `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// EmailPayload is the persisted payload of an email job: everything the
// worker needs to render and send without re-reading the alert.
type EmailPayload struct {
	Template string         `json:"template"`
	To       string         `json:"to"`
	Data     map[string]any `json:"data"`
}

// TemplateForKind maps an alert kind to its email template. The switch is
// exhaustive over ConditionKind.
func TemplateForKind(kind ConditionKind) string {
	switch kind {
	case KindBudgetExceeded:
		return "budget_exceeded"
	case KindBudgetWarning:
		return "budget_warning"
	case KindCategoryOverspend:
		return "category_overspend"
	default:
		return ""
	}
}
