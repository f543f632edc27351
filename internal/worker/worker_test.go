package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/mailer"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs map[string]*domain.DeliveryJob
}

func newFakeQueue(jobs ...domain.DeliveryJob) *fakeQueue {
	q := &fakeQueue{jobs: make(map[string]*domain.DeliveryJob)}
	for i := range jobs {
		j := jobs[i]
		q.jobs[j.ID] = &j
	}
	return q
}

func (q *fakeQueue) Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]domain.DeliveryJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.DeliveryJob
	now := time.Now()
	for _, j := range q.jobs {
		if len(out) >= limit {
			break
		}
		if j.Channel != domain.ChannelEmail {
			continue
		}
		if j.Status != domain.JobPending && j.Status != domain.JobFailed {
			continue
		}
		if j.NextAttemptAt.After(now) {
			continue
		}
		if j.LeaseExpiresAt != nil && j.LeaseExpiresAt.After(now) {
			continue
		}
		exp := now.Add(lease)
		j.LeaseExpiresAt = &exp
		j.WorkerID = workerID
		out = append(out, *j)
	}
	return out, nil
}

func (q *fakeQueue) MarkSent(ctx context.Context, jobID, messageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.jobs[jobID]
	j.Status = domain.JobSent
	j.MessageID = messageID
	j.Attempts++
	j.LeaseExpiresAt = nil
	return nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, jobID, errMsg string, nextAttemptAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.jobs[jobID]
	j.Status = domain.JobFailed
	j.LastError = errMsg
	j.Attempts++
	j.NextAttemptAt = nextAttemptAt
	j.LeaseExpiresAt = nil
	return nil
}

func (q *fakeQueue) MarkDead(ctx context.Context, jobID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.jobs[jobID]
	j.Status = domain.JobDead
	j.LastError = reason
	j.Attempts++
	j.LeaseExpiresAt = nil
	return nil
}

func (q *fakeQueue) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[jobID].Status, nil
}

func (q *fakeQueue) get(jobID string) domain.DeliveryJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return *q.jobs[jobID]
}

type fakeSender struct {
	mu    sync.Mutex
	err   error
	sends []mailer.Message
}

func (s *fakeSender) Send(ctx context.Context, msg mailer.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sends = append(s.sends, msg)
	return "msg-" + msg.JobID, nil
}

func (s *fakeSender) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends)
}

type fakeBudgets struct{ missing map[string]bool }

func (b *fakeBudgets) BudgetExists(ctx context.Context, budgetID string) (bool, error) {
	return !b.missing[budgetID], nil
}

func emailJob(id string, status domain.JobStatus, attempts int) domain.DeliveryJob {
	payload, _ := json.Marshal(domain.EmailPayload{
		Template: "budget_warning",
		To:       "jane@example.com",
		Data: map[string]any{
			"title":     "Budget at 90%",
			"message":   "m",
			"budget_id": "budget-1",
		},
	})
	return domain.DeliveryJob{
		ID:       id,
		AlertID:  "alert-" + id,
		UserID:   "user-1",
		BudgetID: "budget-1",
		Channel:  domain.ChannelEmail,
		Payload:  payload,
		Status:   status,
		Attempts: attempts,
	}
}

func newTestPool(q JobQueue, s mailer.Sender, b BudgetChecker, opts Options) *Pool {
	return NewPool(q, mailer.NewRenderer(), s, b, opts)
}

func TestProcess_SendsAndMarksSent(t *testing.T) {
	q := newFakeQueue(emailJob("j1", domain.JobPending, 0))
	sender := &fakeSender{}
	p := newTestPool(q, sender, &fakeBudgets{}, Options{})

	p.process(context.Background(), q.get("j1"))

	job := q.get("j1")
	if job.Status != domain.JobSent {
		t.Fatalf("status %s, want sent", job.Status)
	}
	if job.MessageID != "msg-j1" {
		t.Errorf("message id %q", job.MessageID)
	}
	if got := p.Stats().Sent; got != 1 {
		t.Errorf("sent counter %d, want 1", got)
	}
	if sender.sendCount() != 1 {
		t.Errorf("send count %d, want 1", sender.sendCount())
	}
}

func TestProcess_SkipsAlreadySentJob(t *testing.T) {
	// Models the crash-recovery race: the lease expired and a second
	// worker claimed the job, but the first worker's send landed.
	q := newFakeQueue(emailJob("j1", domain.JobPending, 0))
	sender := &fakeSender{}
	p := newTestPool(q, sender, &fakeBudgets{}, Options{})

	claimed := q.get("j1")
	q.MarkSent(context.Background(), "j1", "msg-original")

	p.process(context.Background(), claimed)

	if sender.sendCount() != 0 {
		t.Fatal("already-sent job must not be sent again")
	}
	if job := q.get("j1"); job.MessageID != "msg-original" {
		t.Errorf("message id %q, want the original send preserved", job.MessageID)
	}
}

func TestProcess_CancelsWhenBudgetDeleted(t *testing.T) {
	q := newFakeQueue(emailJob("j1", domain.JobPending, 0))
	sender := &fakeSender{}
	p := newTestPool(q, sender, &fakeBudgets{missing: map[string]bool{"budget-1": true}}, Options{})

	p.process(context.Background(), q.get("j1"))

	job := q.get("j1")
	if job.Status != domain.JobDead {
		t.Fatalf("status %s, want dead", job.Status)
	}
	if job.LastError != "cancelled" {
		t.Errorf("reason %q, want cancelled", job.LastError)
	}
	if sender.sendCount() != 0 {
		t.Error("cancelled job must not be sent")
	}
	if p.Stats().Cancelled != 1 {
		t.Errorf("cancelled counter %d, want 1", p.Stats().Cancelled)
	}
}

func TestProcess_PermanentErrorDeadLettersImmediately(t *testing.T) {
	q := newFakeQueue(emailJob("j1", domain.JobPending, 0))
	sender := &fakeSender{err: &domain.DeliveryPermanentError{Reason: "address rejected"}}
	p := newTestPool(q, sender, &fakeBudgets{}, Options{MaxAttempts: 5})

	p.process(context.Background(), q.get("j1"))

	job := q.get("j1")
	if job.Status != domain.JobDead {
		t.Fatalf("status %s, want dead on permanent error", job.Status)
	}
	if job.Attempts != 1 {
		t.Errorf("attempts %d, want 1 (no retries)", job.Attempts)
	}
}

func TestProcess_TransientErrorRetriesWithBackoff(t *testing.T) {
	q := newFakeQueue(emailJob("j1", domain.JobPending, 0))
	sender := &fakeSender{err: &domain.TransientInfraError{Op: "ses.Send", Err: errors.New("throttled")}}
	p := newTestPool(q, sender, &fakeBudgets{}, Options{MaxAttempts: 5})

	before := time.Now()
	p.process(context.Background(), q.get("j1"))

	job := q.get("j1")
	if job.Status != domain.JobFailed {
		t.Fatalf("status %s, want failed", job.Status)
	}
	if !job.NextAttemptAt.After(before) {
		t.Error("next attempt must be scheduled in the future")
	}
	if job.LeaseExpiresAt != nil {
		t.Error("lease must be released on failure")
	}
}

func TestProcess_MaxAttemptsDeadLetters(t *testing.T) {
	q := newFakeQueue(emailJob("j1", domain.JobFailed, 4))
	sender := &fakeSender{err: &domain.TransientInfraError{Op: "ses.Send", Err: errors.New("still down")}}
	p := newTestPool(q, sender, &fakeBudgets{}, Options{MaxAttempts: 5})

	p.process(context.Background(), q.get("j1"))

	job := q.get("j1")
	if job.Status != domain.JobDead {
		t.Fatalf("status %s, want dead after attempt budget spent", job.Status)
	}
	if p.Stats().Dead != 1 {
		t.Errorf("dead counter %d, want 1", p.Stats().Dead)
	}
}

func TestProcess_MalformedPayloadDeadLetters(t *testing.T) {
	job := emailJob("j1", domain.JobPending, 0)
	job.Payload = []byte("{broken")
	q := newFakeQueue(job)
	sender := &fakeSender{}
	p := newTestPool(q, sender, &fakeBudgets{}, Options{})

	p.process(context.Background(), q.get("j1"))

	if got := q.get("j1"); got.Status != domain.JobDead {
		t.Fatalf("status %s, want dead", got.Status)
	}
	if sender.sendCount() != 0 {
		t.Error("malformed job must not reach the sender")
	}
}

func TestPool_EndToEnd(t *testing.T) {
	q := newFakeQueue(
		emailJob("j1", domain.JobPending, 0),
		emailJob("j2", domain.JobPending, 0),
	)
	sender := &fakeSender{}
	p := newTestPool(q, sender, &fakeBudgets{}, Options{
		Workers:      2,
		PollInterval: 10 * time.Millisecond,
	})
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for p.Stats().Sent < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := p.Stats().Sent; got != 2 {
		t.Fatalf("sent %d, want 2", got)
	}
	for _, id := range []string{"j1", "j2"} {
		if job := q.get(id); job.Status != domain.JobSent {
			t.Errorf("job %s status %s, want sent", id, job.Status)
		}
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{10, time.Hour},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

type fakeReleaser struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeReleaser) ReleaseExpiredLeases(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 3, nil
}

func (f *fakeReleaser) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSweeper_SweepUnderLock(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	releaser := &fakeReleaser{}
	s := NewSweeper(releaser, client)
	s.sweep()
	if releaser.callCount() != 1 {
		t.Fatalf("expected one sweep, got %d", releaser.callCount())
	}

	// A peer holding the lock suppresses the sweep.
	mr.Set("lock:lease-sweep", "someone-else")
	s.sweep()
	if releaser.callCount() != 1 {
		t.Errorf("sweep must be skipped while the lock is held, got %d calls", releaser.callCount())
	}
}
