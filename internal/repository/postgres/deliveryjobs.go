package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
)

// DeliveryJobRepo is the durable delivery job queue. Email jobs are
// persisted here before any send attempt; workers claim them with a
// time-bounded lease so a crashed worker's claim expires and another
// worker resumes the job.
type DeliveryJobRepo struct{ db *sql.DB }

// NewDeliveryJobRepo creates a Postgres-backed delivery job repository.
func NewDeliveryJobRepo(db *sql.DB) *DeliveryJobRepo { return &DeliveryJobRepo{db: db} }

// Insert persists a new delivery job. Socket jobs arrive already in a
// terminal state; email jobs arrive pending.
func (r *DeliveryJobRepo) Insert(ctx context.Context, job *domain.DeliveryJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_jobs
			(id, alert_id, user_id, budget_id, channel, payload, status,
			 attempts, next_attempt_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, job.ID, job.AlertID, job.UserID, job.BudgetID, job.Channel, job.Payload,
		job.Status, job.Attempts, job.NextAttemptAt, job.LastError, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery job: %w", err)
	}
	return nil
}

// Claim leases a batch of due email jobs for the given worker. The claim
// predicate doubles as lease recovery: a job whose lease has expired is
// claimable again even though another worker once held it.
func (r *DeliveryJobRepo) Claim(ctx context.Context, workerID string, limit int, lease time.Duration) ([]domain.DeliveryJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE delivery_jobs
			SET worker_id = $1,
			    lease_expires_at = NOW() + $2 * INTERVAL '1 second',
			    updated_at = NOW()
			WHERE id IN (
				SELECT id FROM delivery_jobs
				WHERE channel = 'email'
				  AND status IN ('pending', 'failed')
				  AND next_attempt_at <= NOW()
				  AND (lease_expires_at IS NULL OR lease_expires_at < NOW())
				ORDER BY next_attempt_at ASC
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, alert_id, user_id, budget_id, channel, payload,
			          status, attempts, next_attempt_at, created_at
		)
		SELECT id, alert_id, user_id, budget_id, channel, payload,
		       status, attempts, next_attempt_at, created_at
		FROM claimed
	`, workerID, int(lease.Seconds()), limit)
	if err != nil {
		return nil, fmt.Errorf("claim delivery jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.DeliveryJob
	for rows.Next() {
		var job domain.DeliveryJob
		if err := rows.Scan(
			&job.ID, &job.AlertID, &job.UserID, &job.BudgetID, &job.Channel,
			&job.Payload, &job.Status, &job.Attempts, &job.NextAttemptAt, &job.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery job: %w", err)
		}
		job.WorkerID = workerID
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkSent finalizes a successful delivery.
func (r *DeliveryJobRepo) MarkSent(ctx context.Context, jobID, messageID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE delivery_jobs
		SET status = 'sent', message_id = $2, attempts = attempts + 1,
		    lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, jobID, messageID)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// MarkFailed records a retryable failure and schedules the next attempt.
// The lease is released so any worker may pick it up when due.
func (r *DeliveryJobRepo) MarkFailed(ctx context.Context, jobID, errMsg string, nextAttemptAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE delivery_jobs
		SET status = 'failed', last_error = $2, attempts = attempts + 1,
		    next_attempt_at = $3, lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, jobID, errMsg, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// MarkDead moves a job to the dead-letter state. Terminal: never retried,
// visible in the operator dead-letter view.
func (r *DeliveryJobRepo) MarkDead(ctx context.Context, jobID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE delivery_jobs
		SET status = 'dead', last_error = $2, attempts = attempts + 1,
		    lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, jobID, reason)
	if err != nil {
		return fmt.Errorf("mark dead: %w", err)
	}
	return nil
}

// Status re-reads a job's current status. Used by workers to skip jobs a
// previous crashed attempt actually delivered.
func (r *DeliveryJobRepo) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	var status domain.JobStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM delivery_jobs WHERE id = $1`, jobID,
	).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("job status: %w", err)
	}
	return status, nil
}

// ListDead returns dead-lettered jobs for the operator view, newest first.
func (r *DeliveryJobRepo) ListDead(ctx context.Context, limit, offset int) ([]domain.DeliveryJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, alert_id, user_id, budget_id, channel, payload,
		       status, attempts, last_error, created_at, updated_at
		FROM delivery_jobs
		WHERE status = 'dead'
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list dead jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.DeliveryJob
	for rows.Next() {
		var job domain.DeliveryJob
		if err := rows.Scan(
			&job.ID, &job.AlertID, &job.UserID, &job.BudgetID, &job.Channel,
			&job.Payload, &job.Status, &job.Attempts, &job.LastError,
			&job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan dead job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ReleaseExpiredLeases clears stale worker claims. The claim predicate
// already treats an expired lease as claimable; this sweep exists so
// operators can see how many jobs crashed workers left behind.
func (r *DeliveryJobRepo) ReleaseExpiredLeases(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE delivery_jobs
		SET worker_id = '', lease_expires_at = NULL, updated_at = NOW()
		WHERE status IN ('pending', 'failed')
		  AND lease_expires_at IS NOT NULL
		  AND lease_expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("release expired leases: %w", err)
	}
	return res.RowsAffected()
}
