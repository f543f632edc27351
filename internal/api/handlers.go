package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/httputil"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/preference"
)

// Event types accepted on the ingest endpoint.
const (
	EventThresholdCrossed  = "budget.threshold_crossed"
	EventCategoryOverspent = "category.overspent"
)

// ConditionQueue is the producer side of the evaluator's condition queue.
type ConditionQueue interface {
	Enqueue(ctx context.Context, cond domain.AlertCondition) error
}

// PreferenceService is the preference store's service layer.
type PreferenceService interface {
	Get(ctx context.Context, userID string) (domain.NotificationPreference, error)
	Update(ctx context.Context, userID string, update domain.PreferenceUpdate) (domain.NotificationPreference, error)
}

// DeadLister exposes the dead-letter view.
type DeadLister interface {
	ListDead(ctx context.Context, limit, offset int) ([]domain.DeliveryJob, error)
}

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	queue  ConditionQueue
	prefs  PreferenceService
	dead   DeadLister
	health HealthDeps
	log    *logger.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(queue ConditionQueue, prefs PreferenceService, dead DeadLister, health HealthDeps) *Handlers {
	return &Handlers{
		queue:  queue,
		prefs:  prefs,
		dead:   dead,
		health: health,
		log:    logger.With("api"),
	}
}

// eventRequest is the inbound shape from the budget subsystem.
type eventRequest struct {
	Type                  string    `json:"type"`
	UserID                string    `json:"user_id"`
	BudgetID              string    `json:"budget_id"`
	CategoryID            string    `json:"category_id,omitempty"`
	UtilizationPercentage float64   `json:"utilization_percentage"`
	OverAmount            float64   `json:"over_amount,omitempty"`
	PeriodStart           time.Time `json:"period_start"`
	PeriodEnd             time.Time `json:"period_end"`
}

// IngestEvent validates a budget event and queues it for evaluation.
// Returns 202: evaluation is asynchronous and its outcome never surfaces
// here.
func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	var kind domain.ConditionKind
	switch req.Type {
	case EventThresholdCrossed:
		kind = domain.KindBudgetWarning
	case EventCategoryOverspent:
		kind = domain.KindCategoryOverspend
	default:
		httputil.BadRequest(w, "unknown event type "+strconv.Quote(req.Type))
		return
	}

	cond := domain.AlertCondition{
		Kind:                  kind,
		UserID:                req.UserID,
		BudgetID:              req.BudgetID,
		CategoryID:            req.CategoryID,
		UtilizationPercentage: req.UtilizationPercentage,
		OverAmount:            req.OverAmount,
		PeriodStart:           req.PeriodStart,
		PeriodEnd:             req.PeriodEnd,
	}
	if err := cond.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := h.queue.Enqueue(r.Context(), cond); err != nil {
		h.log.Error("enqueue failed", "error", err.Error(), "user_id", cond.UserID)
		httputil.InternalError(w, err)
		return
	}
	httputil.Accepted(w, map[string]string{"status": "queued"})
}

// GetPreferences returns the user's notification preferences, defaults
// included.
func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		httputil.BadRequest(w, "user_id is required")
		return
	}

	pref, err := h.prefs.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, preference.ErrUserNotFound) {
			httputil.NotFound(w, "user not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, pref)
}

// UpdatePreferences applies a partial preference update.
func (h *Handlers) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		httputil.BadRequest(w, "user_id is required")
		return
	}

	var update domain.PreferenceUpdate
	if !httputil.Decode(w, r, &update) {
		return
	}

	pref, err := h.prefs.Update(r.Context(), userID, update)
	if err != nil {
		if errors.Is(err, preference.ErrUserNotFound) {
			httputil.NotFound(w, "user not found")
			return
		}
		if domain.IsValidation(err) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, pref)
}

// ListDeadJobs is the operator's dead-letter view, newest first.
func (h *Handlers) ListDeadJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	jobs, err := h.dead.ListDead(r.Context(), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if jobs == nil {
		jobs = []domain.DeliveryJob{}
	}
	httputil.OK(w, map[string]any{"jobs": jobs, "count": len(jobs)})
}
