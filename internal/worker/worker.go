// Package worker is the durable email delivery pool. Workers claim
// pending jobs under a time-bounded lease, render and send them, and
// advance each job's lifecycle: sent on success, failed with backoff on
// transient errors, dead on permanent errors or attempt exhaustion.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/mailer"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
)

// JobQueue is the persistence side of the delivery pipeline.
type JobQueue interface {
	Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]domain.DeliveryJob, error)
	MarkSent(ctx context.Context, jobID, messageID string) error
	MarkFailed(ctx context.Context, jobID, errMsg string, nextAttemptAt time.Time) error
	MarkDead(ctx context.Context, jobID, reason string) error
	Status(ctx context.Context, jobID string) (domain.JobStatus, error)
}

// BudgetChecker reports whether the budget behind a job still exists.
// Deleting a budget cancels its queued notifications.
type BudgetChecker interface {
	BudgetExists(ctx context.Context, budgetID string) (bool, error)
}

// Options tunes the pool.
type Options struct {
	Workers      int
	BatchSize    int
	Lease        time.Duration
	MaxAttempts  int
	PollInterval time.Duration
}

func (o *Options) fill() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 25
	}
	if o.Lease <= 0 {
		o.Lease = 2 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Sent      int64 `json:"sent"`
	Failed    int64 `json:"failed"`
	Dead      int64 `json:"dead"`
	Cancelled int64 `json:"cancelled"`
}

// Pool claims and delivers email jobs.
type Pool struct {
	queue    JobQueue
	renderer *mailer.Renderer
	sender   mailer.Sender
	budgets  BudgetChecker
	opts     Options
	log      *logger.Logger

	sent      atomic.Int64
	failed    atomic.Int64
	dead      atomic.Int64
	cancelled atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewPool creates an email delivery pool.
func NewPool(queue JobQueue, renderer *mailer.Renderer, sender mailer.Sender, budgets BudgetChecker, opts Options) *Pool {
	opts.fill()
	return &Pool{
		queue:    queue,
		renderer: renderer,
		sender:   sender,
		budgets:  budgets,
		opts:     opts,
		log:      logger.With("email-worker"),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)

	p.log.Info("starting email workers",
		"workers", p.opts.Workers, "batch_size", p.opts.BatchSize, "lease", p.opts.Lease.String())
	for i := 0; i < p.opts.Workers; i++ {
		workerID := fmt.Sprintf("email-%s-%d", uuid.New().String()[:8], i)
		p.wg.Add(1)
		go p.run(ctx, workerID)
	}
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

// Stats returns the pool's delivery counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Sent:      p.sent.Load(),
		Failed:    p.failed.Load(),
		Dead:      p.dead.Load(),
		Cancelled: p.cancelled.Load(),
	}
}

func (p *Pool) run(ctx context.Context, workerID string) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		jobs, err := p.queue.Claim(ctx, workerID, p.opts.BatchSize, p.opts.Lease)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Error("claim failed", "error", err.Error(), "worker_id", workerID)
			}
			continue
		}
		for _, job := range jobs {
			if ctx.Err() != nil {
				return
			}
			p.process(ctx, job)
		}
	}
}

// process runs one claimed job through cancellation, idempotence, render,
// send, and lifecycle bookkeeping.
func (p *Pool) process(ctx context.Context, job domain.DeliveryJob) {
	// A crashed worker may have sent this job after its lease expired but
	// before it marked the row. Re-read before spending a send.
	status, err := p.queue.Status(ctx, job.ID)
	if err != nil {
		p.log.Error("status re-read failed", "error", err.Error(), "job_id", job.ID)
		return
	}
	if status == domain.JobSent || status == domain.JobDead {
		return
	}

	exists, err := p.budgets.BudgetExists(ctx, job.BudgetID)
	if err != nil {
		p.retryOrBury(ctx, job, fmt.Errorf("budget check: %w", err))
		return
	}
	if !exists {
		if err := p.queue.MarkDead(ctx, job.ID, "cancelled"); err != nil {
			p.log.Error("mark cancelled failed", "error", err.Error(), "job_id", job.ID)
			return
		}
		p.cancelled.Add(1)
		p.log.Info("job cancelled, budget deleted", "job_id", job.ID, "budget_id", job.BudgetID)
		return
	}

	var payload domain.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		// Undecodable payloads never improve with retries.
		p.bury(ctx, job, fmt.Sprintf("malformed payload: %v", err))
		return
	}

	subject, html, err := p.renderer.Render(payload.Template, payload.Data)
	if err != nil {
		p.bury(ctx, job, fmt.Sprintf("render: %v", err))
		return
	}

	messageID, err := p.sender.Send(ctx, mailer.Message{
		To:      payload.To,
		Subject: subject,
		HTML:    html,
		JobID:   job.ID,
	})
	if err != nil {
		if domain.IsPermanentDelivery(err) {
			p.bury(ctx, job, err.Error())
			return
		}
		p.retryOrBury(ctx, job, err)
		return
	}

	if err := p.queue.MarkSent(ctx, job.ID, messageID); err != nil {
		p.log.Error("mark sent failed", "error", err.Error(), "job_id", job.ID)
		return
	}
	p.sent.Add(1)
	p.log.Info("delivered", "job_id", job.ID, "to", payload.To, "message_id", messageID, "attempt", job.Attempts+1)
}

// retryOrBury schedules another attempt with exponential backoff, or
// dead-letters the job once the attempt budget is spent.
func (p *Pool) retryOrBury(ctx context.Context, job domain.DeliveryJob, cause error) {
	attempt := job.Attempts + 1
	if attempt >= p.opts.MaxAttempts {
		p.bury(ctx, job, fmt.Sprintf("max attempts reached: %v", cause))
		return
	}

	next := time.Now().UTC().Add(backoff(attempt))
	if err := p.queue.MarkFailed(ctx, job.ID, cause.Error(), next); err != nil {
		p.log.Error("mark failed failed", "error", err.Error(), "job_id", job.ID)
		return
	}
	p.failed.Add(1)
	p.log.Warn("delivery failed, will retry",
		"job_id", job.ID, "attempt", attempt, "next_attempt_at", next.Format(time.RFC3339), "error", cause.Error())
}

func (p *Pool) bury(ctx context.Context, job domain.DeliveryJob, reason string) {
	if err := p.queue.MarkDead(ctx, job.ID, reason); err != nil {
		p.log.Error("mark dead failed", "error", err.Error(), "job_id", job.ID)
		return
	}
	p.dead.Add(1)
	p.log.Warn("job dead-lettered", "job_id", job.ID, "reason", reason)
}

// backoff doubles per attempt from 30s, capped at an hour.
func backoff(attempt int) time.Duration {
	d := 30 * time.Second
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= time.Hour {
			return time.Hour
		}
	}
	return d
}
