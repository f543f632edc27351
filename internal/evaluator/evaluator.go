package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/ledger"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
)

// PreferenceGetter is the read side of the preference store.
type PreferenceGetter interface {
	Get(ctx context.Context, userID string) (domain.NotificationPreference, error)
}

// Scheduler receives alerts deferred by quiet hours and dispatches them
// when the window closes. The ledger slot is already consumed by then, so
// the catch-up is a dispatch, not a re-evaluation.
type Scheduler interface {
	ScheduleCatchUp(at time.Time, alert domain.Alert)
}

// Options tunes evaluation policy.
type Options struct {
	// ExceededTTL suppresses budget_exceeded and category_overspend
	// re-fires. WarningTTL suppresses budget_warning re-fires.
	ExceededTTL time.Duration
	WarningTTL  time.Duration
	// QuietHoursBypass names the kinds that deliver immediately even
	// inside a quiet window. Policy, not hard-coded: defaults to
	// budget_exceeded only.
	QuietHoursBypass map[domain.ConditionKind]bool
}

func (o *Options) fill() {
	if o.ExceededTTL == 0 {
		o.ExceededTTL = 24 * time.Hour
	}
	if o.WarningTTL == 0 {
		o.WarningTTL = 12 * time.Hour
	}
	if o.QuietHoursBypass == nil {
		o.QuietHoursBypass = map[domain.ConditionKind]bool{domain.KindBudgetExceeded: true}
	}
}

// Evaluator turns alert conditions into zero or more alerts, using the
// suppression ledger as the single dedup gate.
type Evaluator struct {
	prefs       PreferenceGetter
	ledger      ledger.Ledger
	utilization UtilizationTracker
	scheduler   Scheduler
	opts        Options
	now         func() time.Time
	log         *logger.Logger
}

// New creates an evaluator.
func New(prefs PreferenceGetter, led ledger.Ledger, tracker UtilizationTracker, scheduler Scheduler, opts Options) *Evaluator {
	opts.fill()
	return &Evaluator{
		prefs:       prefs,
		ledger:      led,
		utilization: tracker,
		scheduler:   scheduler,
		opts:        opts,
		now:         time.Now,
		log:         logger.With("evaluator"),
	}
}

// Evaluate decides which alerts, if any, a condition produces. A single
// update that crosses several tiers yields one alert per crossed kind in
// ascending severity order, each with its own dedup key and ledger slot.
//
// Failures here are the caller's to log; they must never propagate back to
// the financial write that produced the condition.
func (e *Evaluator) Evaluate(ctx context.Context, cond domain.AlertCondition) ([]domain.Alert, error) {
	if err := cond.Validate(); err != nil {
		return nil, err
	}

	pref, err := e.prefs.Get(ctx, cond.UserID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	// Every channel off: skip without touching the ledger, so re-enabling
	// fires on the next real crossing instead of waiting out a stale TTL.
	if !pref.ChannelEnabled.Socket && !pref.ChannelEnabled.Email {
		return nil, nil
	}

	crossings, err := e.crossingsFor(ctx, cond, pref)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var alerts []domain.Alert
	for _, c := range crossings {
		key := domain.DedupKey(c.kind, cond.BudgetID, cond.CategoryID, cond.PeriodStart, c.tier)

		acquired, err := e.ledger.TryAcquire(ctx, key, e.ttlFor(c.kind))
		if err != nil {
			return alerts, err
		}
		if !acquired {
			continue
		}

		alert := composeAlert(cond, c.kind, c.tier, key, now)

		if pref.QuietHours != nil && pref.QuietHours.Contains(now) && !e.opts.QuietHoursBypass[c.kind] {
			// The ledger slot is consumed; deliver when the window closes.
			at := pref.QuietHours.NextEnd(now)
			e.scheduler.ScheduleCatchUp(at, alert)
			e.log.Info("alert deferred by quiet hours",
				"user_id", cond.UserID, "kind", string(c.kind), "deliver_at", at.Format(time.RFC3339))
			continue
		}

		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func (e *Evaluator) crossingsFor(ctx context.Context, cond domain.AlertCondition, pref domain.NotificationPreference) ([]tierCrossing, error) {
	if cond.Kind == domain.KindCategoryOverspend {
		// Overspend is a single fact per period, not a tier ladder.
		return []tierCrossing{{kind: domain.KindCategoryOverspend, tier: 100}}, nil
	}

	prev, err := e.utilization.Swap(ctx, cond.BudgetID, cond.PeriodStart, cond.PeriodEnd, cond.UtilizationPercentage)
	if err != nil {
		return nil, err
	}
	return crossedTiers(prev, cond.UtilizationPercentage, pref.Thresholds), nil
}

func (e *Evaluator) ttlFor(kind domain.ConditionKind) time.Duration {
	if kind == domain.KindBudgetWarning {
		return e.opts.WarningTTL
	}
	return e.opts.ExceededTTL
}
