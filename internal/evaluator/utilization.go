package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
)

// UtilizationTracker remembers the last seen utilization per budget period
// so "which tiers did this update cross" is well-defined even though
// inbound events only carry the current percentage.
type UtilizationTracker interface {
	// Swap stores current and returns the previously stored utilization
	// for the budget period, or 0 if none was recorded.
	Swap(ctx context.Context, budgetID string, periodStart, periodEnd time.Time, current float64) (float64, error)
}

// RedisUtilizationTracker stores utilization marks in the shared Redis so
// every evaluator process sees the same history. Entries expire a day
// after the budget period ends.
type RedisUtilizationTracker struct {
	client *redis.Client
}

// NewRedisUtilizationTracker creates a tracker on an existing client.
func NewRedisUtilizationTracker(client *redis.Client) *RedisUtilizationTracker {
	return &RedisUtilizationTracker{client: client}
}

func (t *RedisUtilizationTracker) Swap(ctx context.Context, budgetID string, periodStart, periodEnd time.Time, current float64) (float64, error) {
	key := fmt.Sprintf("util:%s:%d", budgetID, periodStart.UTC().Unix())
	ttl := time.Until(periodEnd.Add(24 * time.Hour))
	if ttl <= 0 {
		ttl = time.Hour
	}

	old, err := t.client.SetArgs(ctx, key, strconv.FormatFloat(current, 'f', -1, 64), redis.SetArgs{
		Get: true,
		TTL: ttl,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, &domain.TransientInfraError{Op: "utilization.Swap", Err: err}
	}

	prev, err := strconv.ParseFloat(old, 64)
	if err != nil {
		return 0, nil
	}
	return prev, nil
}
