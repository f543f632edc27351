package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
)

func TestDeliveryJobRepo_InsertAssignsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO delivery_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := &domain.DeliveryJob{
		AlertID:  "3f0a2c6e-0000-0000-0000-000000000001",
		UserID:   "user-1",
		BudgetID: "budget-1",
		Channel:  domain.ChannelEmail,
		Payload:  json.RawMessage(`{"template":"budget_exceeded"}`),
		Status:   domain.JobPending,
	}
	repo := NewDeliveryJobRepo(db)
	if err := repo.Insert(context.Background(), job); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if job.ID == "" {
		t.Error("expected Insert to assign an ID")
	}
	if job.CreatedAt.IsZero() || job.NextAttemptAt.IsZero() {
		t.Error("expected Insert to stamp timestamps")
	}
}

func TestDeliveryJobRepo_ClaimScansBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "alert_id", "user_id", "budget_id", "channel", "payload",
		"status", "attempts", "next_attempt_at", "created_at",
	}).
		AddRow("job-1", "alert-1", "user-1", "budget-1", "email",
			[]byte(`{"template":"budget_warning"}`), "pending", 0, now, now).
		AddRow("job-2", "alert-2", "user-2", "budget-2", "email",
			[]byte(`{"template":"budget_exceeded"}`), "failed", 2, now, now)

	mock.ExpectQuery("WITH claimed AS").
		WithArgs("worker-a", 120, 50).
		WillReturnRows(rows)

	repo := NewDeliveryJobRepo(db)
	jobs, err := repo.Claim(context.Background(), "worker-a", 50, 2*time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].WorkerID != "worker-a" {
		t.Errorf("expected worker id stamped, got %q", jobs[0].WorkerID)
	}
	if jobs[1].Attempts != 2 {
		t.Errorf("expected attempts preserved, got %d", jobs[1].Attempts)
	}
}

func TestDeliveryJobRepo_MarkTransitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("SET status = 'sent'").
		WithArgs("job-1", "ses-msg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET status = 'failed'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET status = 'dead'").
		WithArgs("job-3", "mailbox does not exist").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewDeliveryJobRepo(db)
	ctx := context.Background()

	if err := repo.MarkSent(ctx, "job-1", "ses-msg-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := repo.MarkFailed(ctx, "job-2", "timeout", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := repo.MarkDead(ctx, "job-3", "mailbox does not exist"); err != nil {
		t.Fatalf("MarkDead: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeliveryJobRepo_ReleaseExpiredLeases(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("SET worker_id = ''").
		WillReturnResult(sqlmock.NewResult(0, 3))

	repo := NewDeliveryJobRepo(db)
	n, err := repo.ReleaseExpiredLeases(context.Background())
	if err != nil {
		t.Fatalf("ReleaseExpiredLeases: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 released, got %d", n)
	}
}
