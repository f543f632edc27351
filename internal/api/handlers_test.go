package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/preference"
)

type stubQueue struct {
	enqueued []domain.AlertCondition
	err      error
}

func (s *stubQueue) Enqueue(ctx context.Context, cond domain.AlertCondition) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, cond)
	return nil
}

type stubPrefService struct {
	known map[string]domain.NotificationPreference
}

func (s *stubPrefService) Get(ctx context.Context, userID string) (domain.NotificationPreference, error) {
	if p, ok := s.known[userID]; ok {
		return p, nil
	}
	return domain.NotificationPreference{}, preference.ErrUserNotFound
}

func (s *stubPrefService) Update(ctx context.Context, userID string, update domain.PreferenceUpdate) (domain.NotificationPreference, error) {
	p, ok := s.known[userID]
	if !ok {
		return domain.NotificationPreference{}, preference.ErrUserNotFound
	}
	if update.Thresholds != nil {
		if err := domain.ValidateThresholds(update.Thresholds); err != nil {
			return domain.NotificationPreference{}, err
		}
		p.Thresholds = update.Thresholds
	}
	s.known[userID] = p
	return p, nil
}

type stubDead struct {
	jobs []domain.DeliveryJob
}

func (s *stubDead) ListDead(ctx context.Context, limit, offset int) ([]domain.DeliveryJob, error) {
	return s.jobs, nil
}

func newTestHandlers(queue *stubQueue, prefs *stubPrefService, dead *stubDead) *Handlers {
	if queue == nil {
		queue = &stubQueue{}
	}
	if prefs == nil {
		prefs = &stubPrefService{known: map[string]domain.NotificationPreference{
			"user-1": domain.DefaultPreference("user-1"),
		}}
	}
	if dead == nil {
		dead = &stubDead{}
	}
	return NewHandlers(queue, prefs, dead, HealthDeps{})
}

func validEventBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"type":                   EventThresholdCrossed,
		"user_id":                "user-1",
		"budget_id":              "budget-1",
		"utilization_percentage": 85.0,
		"period_start":           time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		"period_end":             time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return body
}

func TestIngestEvent_Accepted(t *testing.T) {
	queue := &stubQueue{}
	h := newTestHandlers(queue, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(validEventBody(t)))
	rec := httptest.NewRecorder()
	h.IngestEvent(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, domain.KindBudgetWarning, queue.enqueued[0].Kind)
	assert.Equal(t, "budget-1", queue.enqueued[0].BudgetID)
}

func TestIngestEvent_OverspendMapsKind(t *testing.T) {
	queue := &stubQueue{}
	h := newTestHandlers(queue, nil, nil)

	body, _ := json.Marshal(map[string]any{
		"type":                   EventCategoryOverspent,
		"user_id":                "user-1",
		"budget_id":              "budget-1",
		"category_id":            "cat-1",
		"utilization_percentage": 110.0,
		"over_amount":            25.0,
		"period_start":           time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		"period_end":             time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.IngestEvent(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, domain.KindCategoryOverspend, queue.enqueued[0].Kind)
}

func TestIngestEvent_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown type", map[string]any{"type": "budget.deleted", "user_id": "u", "budget_id": "b"}},
		{"missing budget", map[string]any{
			"type": EventThresholdCrossed, "user_id": "u",
			"period_start": time.Now(), "period_end": time.Now().Add(time.Hour),
		}},
		{"overspend without category", map[string]any{
			"type": EventCategoryOverspent, "user_id": "u", "budget_id": "b",
			"period_start": time.Now(), "period_end": time.Now().Add(time.Hour),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &stubQueue{}
			h := newTestHandlers(queue, nil, nil)
			body, _ := json.Marshal(tt.body)

			req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			h.IngestEvent(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, queue.enqueued, "rejected events must not be queued")
		})
	}
}

func TestGetPreferences(t *testing.T) {
	h := newTestHandlers(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/notification-preferences?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	h.GetPreferences(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var pref domain.NotificationPreference
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pref))
	assert.Equal(t, []int{80, 90, 100}, pref.Thresholds)
	assert.True(t, pref.ChannelEnabled.Socket)
	assert.True(t, pref.ChannelEnabled.Email)
}

func TestGetPreferences_MissingUserID(t *testing.T) {
	h := newTestHandlers(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/notification-preferences", nil)
	rec := httptest.NewRecorder()
	h.GetPreferences(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPreferences_UnknownUser(t *testing.T) {
	h := newTestHandlers(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/notification-preferences?user_id=ghost", nil)
	rec := httptest.NewRecorder()
	h.GetPreferences(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePreferences(t *testing.T) {
	h := newTestHandlers(nil, nil, nil)

	body, _ := json.Marshal(map[string]any{"thresholds": []int{50, 75, 100}})
	req := httptest.NewRequest(http.MethodPut, "/api/notification-preferences?user_id=user-1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.UpdatePreferences(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var pref domain.NotificationPreference
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pref))
	assert.Equal(t, []int{50, 75, 100}, pref.Thresholds)
}

func TestUpdatePreferences_InvalidThresholds(t *testing.T) {
	h := newTestHandlers(nil, nil, nil)

	body, _ := json.Marshal(map[string]any{"thresholds": []int{90, 80}})
	req := httptest.NewRequest(http.MethodPut, "/api/notification-preferences?user_id=user-1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.UpdatePreferences(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListDeadJobs(t *testing.T) {
	dead := &stubDead{jobs: []domain.DeliveryJob{
		{ID: "j1", Status: domain.JobDead, LastError: "max attempts reached"},
	}}
	h := newTestHandlers(nil, nil, dead)

	req := httptest.NewRequest(http.MethodGet, "/api/delivery-jobs/dead?limit=10", nil)
	rec := httptest.NewRecorder()
	h.ListDeadJobs(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Jobs  []domain.DeliveryJob `json:"jobs"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "j1", resp.Jobs[0].ID)
}

func TestHealth_DegradedWithoutDeps(t *testing.T) {
	h := newTestHandlers(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "not_configured", status.Checks["postgres"].Status)
}

func TestRoutes_Wiring(t *testing.T) {
	h := newTestHandlers(nil, nil, nil)
	router := SetupRoutes(h, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(validEventBody(t)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
