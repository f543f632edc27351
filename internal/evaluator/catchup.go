package evaluator

import (
	"context"
	"sync"
	"time"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
)

// TimerScheduler holds quiet-hours deferrals in memory and dispatches each
// alert once its delivery time arrives. Deferrals ride inside the process
// that evaluated them; a restart drops pending timers and the next
// threshold crossing re-fires once the suppression window lapses.
type TimerScheduler struct {
	dispatcher Dispatcher
	log        *logger.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewTimerScheduler creates a scheduler that hands matured alerts to the
// given dispatcher.
func NewTimerScheduler(dispatcher Dispatcher) *TimerScheduler {
	return &TimerScheduler{
		dispatcher: dispatcher,
		log:        logger.With("catchup-scheduler"),
		timers:     make(map[string]*time.Timer),
	}
}

// ScheduleCatchUp arms a one-shot timer for the alert. A past or
// zero delivery time dispatches immediately.
func (s *TimerScheduler) ScheduleCatchUp(at time.Time, alert domain.Alert) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.timers[alert.ID] = time.AfterFunc(delay, func() {
		s.fire(alert)
	})
	s.mu.Unlock()
}

// Pending reports how many deferrals are armed.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels all armed timers. Alerts not yet fired are dropped.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *TimerScheduler) fire(alert domain.Alert) {
	s.mu.Lock()
	delete(s.timers, alert.ID)
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.dispatcher.Dispatch(ctx, alert); err != nil {
		s.log.Error("catch-up dispatch failed", "error", err.Error(), "alert_id", alert.ID)
		return
	}
	s.log.Info("delivered deferred alert", "alert_id", alert.ID, "user_id", alert.UserID, "kind", string(alert.Kind))
}
