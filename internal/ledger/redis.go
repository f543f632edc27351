package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
)

const keyPrefix = "suppress:"

// opTimeout bounds every ledger call so a slow Redis never stalls the
// evaluator indefinitely.
const opTimeout = 3 * time.Second

// RedisLedger is the production Ledger backed by a shared Redis instance.
// SET NX with TTL gives atomic create-if-absent; key expiry is the garbage
// collector, so there is no delete path.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger creates a ledger on an existing Redis client.
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

// TryAcquire implements Ledger.
func (l *RedisLedger) TryAcquire(ctx context.Context, dedupKey string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	value, _ := encodeRecord(dedupKey, time.Now(), ttl)
	ok, err := l.client.SetNX(ctx, keyPrefix+dedupKey, value, ttl).Result()
	if err != nil {
		return false, &domain.TransientInfraError{Op: "ledger.TryAcquire", Err: err}
	}
	return ok, nil
}

// Peek implements Ledger.
func (l *RedisLedger) Peek(ctx context.Context, dedupKey string) (*domain.SuppressionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := l.client.Get(ctx, keyPrefix+dedupKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.TransientInfraError{Op: "ledger.Peek", Err: err}
	}

	var rec domain.SuppressionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode suppression record %s: %w", dedupKey, err)
	}
	return &rec, nil
}
