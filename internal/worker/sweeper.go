package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/distlock"
	"github.com/spanexx/personal-finance-dashboard-sub004/internal/pkg/logger"
)

// LeaseReleaser clears expired leases left behind by crashed workers.
type LeaseReleaser interface {
	ReleaseExpiredLeases(ctx context.Context) (int64, error)
}

// Sweeper periodically releases expired job leases. The claim predicate
// already treats an expired lease as claimable; the sweeper keeps the
// table tidy and the recovery visible in the logs. A Redis lock ensures
// only one process sweeps per tick.
type Sweeper struct {
	queue LeaseReleaser
	rdb   *redis.Client
	cron  *cron.Cron
	log   *logger.Logger
}

// NewSweeper creates a sweeper. rdb may be nil in single-process
// deployments, in which case the lock is skipped.
func NewSweeper(queue LeaseReleaser, rdb *redis.Client) *Sweeper {
	return &Sweeper{
		queue: queue,
		rdb:   rdb,
		cron:  cron.New(),
		log:   logger.With("lease-sweeper"),
	}
}

// Start schedules the sweep every two minutes.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc("@every 2m", s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.rdb != nil {
		lock := distlock.New(s.rdb, "lease-sweep", time.Minute)
		ok, err := lock.TryAcquire(ctx)
		if err != nil {
			s.log.Error("sweep lock error", "error", err.Error())
			return
		}
		if !ok {
			return
		}
		defer lock.Release(ctx)
	}

	released, err := s.queue.ReleaseExpiredLeases(ctx)
	if err != nil {
		s.log.Error("lease sweep failed", "error", err.Error())
		return
	}
	if released > 0 {
		s.log.Info("released expired leases", "count", released)
	}
}
