// Package dispatcher fans a composed alert out to the user's enabled
// channels. Socket delivery is best-effort and synchronous; email delivery
// only persists a pending job here and leaves the sending to the worker
// pool. The two channels never block each other.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
)

// Pusher delivers a message to every live connection in a gateway room
// and reports how many connections received it.
type Pusher interface {
	Push(ctx context.Context, room string, message []byte) (int, error)
}

// JobStore persists delivery jobs.
type JobStore interface {
	Insert(ctx context.Context, job *domain.DeliveryJob) error
}

// EmailDirectory resolves a user's delivery address.
type EmailDirectory interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

// PreferenceGetter is the read side of the preference store.
type PreferenceGetter interface {
	Get(ctx context.Context, userID string) (domain.NotificationPreference, error)
}

// Dispatcher turns one alert into zero, one, or two delivery jobs.
type Dispatcher struct {
	prefs  PreferenceGetter
	pusher Pusher
	jobs   JobStore
	emails EmailDirectory
	now    func() time.Time
	log    *logger.Logger
}

// New creates a dispatcher. pusher may be nil in the worker binary, where
// no gateway runs; socket jobs are then recorded failed.
func New(prefs PreferenceGetter, pusher Pusher, jobs JobStore, emails EmailDirectory) *Dispatcher {
	return &Dispatcher{
		prefs:  prefs,
		pusher: pusher,
		jobs:   jobs,
		emails: emails,
		now:    time.Now,
		log:    logger.With("dispatcher"),
	}
}

// Dispatch creates one delivery job per enabled channel. A failure on one
// channel is logged and folded into the returned error, but never stops
// the other channel: the partial job list is always returned.
func (d *Dispatcher) Dispatch(ctx context.Context, alert domain.Alert) ([]domain.DeliveryJob, error) {
	pref, err := d.prefs.Get(ctx, alert.UserID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	var jobs []domain.DeliveryJob
	var errs []error

	if pref.ChannelEnabled.Socket {
		job, err := d.dispatchSocket(ctx, alert)
		if err != nil {
			d.log.Error("socket dispatch failed", "error", err.Error(), "alert_id", alert.ID)
			errs = append(errs, err)
		} else {
			jobs = append(jobs, job)
		}
	}

	if pref.ChannelEnabled.Email {
		job, err := d.dispatchEmail(ctx, alert)
		if err != nil {
			d.log.Error("email dispatch failed", "error", err.Error(), "alert_id", alert.ID)
			errs = append(errs, err)
		} else {
			jobs = append(jobs, job)
		}
	}

	return jobs, errors.Join(errs...)
}

// dispatchSocket pushes the alert to the user's room. Zero receivers means
// the user is offline: the job is recorded failed and never retried; the
// durable email path covers them.
func (d *Dispatcher) dispatchSocket(ctx context.Context, alert domain.Alert) (domain.DeliveryJob, error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		return domain.DeliveryJob{}, fmt.Errorf("encode alert: %w", err)
	}

	job := domain.DeliveryJob{
		AlertID:  alert.ID,
		UserID:   alert.UserID,
		BudgetID: alert.BudgetID,
		Channel:  domain.ChannelSocket,
		Payload:  payload,
		Attempts: 1,
	}

	delivered := 0
	if d.pusher != nil {
		delivered, err = d.pusher.Push(ctx, alert.UserRoom(), payload)
		if err != nil {
			d.log.Warn("socket push error", "error", err.Error(), "alert_id", alert.ID)
		}
	}

	if delivered > 0 {
		job.Status = domain.JobSent
	} else {
		job.Status = domain.JobFailed
		job.LastError = "no connected sockets"
	}

	if err := d.jobs.Insert(ctx, &job); err != nil {
		return domain.DeliveryJob{}, fmt.Errorf("record socket job: %w", err)
	}
	d.log.Info("socket delivery",
		"alert_id", alert.ID, "user_id", alert.UserID, "status", string(job.Status), "receivers", delivered)
	return job, nil
}

// dispatchEmail persists a pending job carrying everything the worker
// needs. The insert must land before any send attempt can happen; that is
// the whole durability story for email.
func (d *Dispatcher) dispatchEmail(ctx context.Context, alert domain.Alert) (domain.DeliveryJob, error) {
	to, err := d.emails.EmailFor(ctx, alert.UserID)
	if err != nil {
		return domain.DeliveryJob{}, fmt.Errorf("resolve address: %w", err)
	}

	template := domain.TemplateForKind(alert.Kind)
	if template == "" {
		return domain.DeliveryJob{}, &domain.ValidationError{Field: "kind", Reason: fmt.Sprintf("no template for kind %q", alert.Kind)}
	}

	payload, err := json.Marshal(domain.EmailPayload{
		Template: template,
		To:       to,
		Data: map[string]any{
			"title":       alert.Title,
			"message":     alert.Message,
			"kind":        string(alert.Kind),
			"budget_id":   alert.BudgetID,
			"category_id": alert.CategoryID,
			"tier":        alert.Tier,
			"utilization": alert.UtilizationPercentage,
			"over_amount": alert.OverAmount,
			"period_end":  alert.PeriodEnd.Format(time.RFC3339),
		},
	})
	if err != nil {
		return domain.DeliveryJob{}, fmt.Errorf("encode email payload: %w", err)
	}

	job := domain.DeliveryJob{
		AlertID:       alert.ID,
		UserID:        alert.UserID,
		BudgetID:      alert.BudgetID,
		Channel:       domain.ChannelEmail,
		Payload:       payload,
		Status:        domain.JobPending,
		NextAttemptAt: d.now().UTC(),
	}
	if err := d.jobs.Insert(ctx, &job); err != nil {
		return domain.DeliveryJob{}, fmt.Errorf("persist email job: %w", err)
	}
	d.log.Info("email job queued",
		"alert_id", alert.ID, "user_id", alert.UserID, "to", to, "template", template)
	return job, nil
}
