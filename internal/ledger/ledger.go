// Package ledger implements the suppression ledger: the shared record of
// "already delivered for condition X" that keeps concurrent evaluator
// instances from double-firing the same alert.
//
// The ledger is the only gate. TryAcquire is an atomic create-if-absent with
// TTL, linearizable across processes because it is a single Redis SET NX.
// Peek exists for diagnostics only and must never be used for gating; a
// GET-then-SET sequence would reintroduce the check-then-act race the ledger
// exists to remove.
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
)

// Ledger is the narrow atomic interface the evaluator gates on.
type Ledger interface {
	// TryAcquire atomically creates the suppression record for dedupKey if
	// absent and returns true. If a live record already exists it returns
	// false. Exactly one concurrent caller wins per key.
	TryAcquire(ctx context.Context, dedupKey string, ttl time.Duration) (bool, error)

	// Peek returns the live record for dedupKey, or nil if none exists.
	// Diagnostics only — never used for gating.
	Peek(ctx context.Context, dedupKey string) (*domain.SuppressionRecord, error)
}

func encodeRecord(key string, now time.Time, ttl time.Duration) ([]byte, domain.SuppressionRecord) {
	rec := domain.SuppressionRecord{
		DedupKey:    key,
		DeliveredAt: now.UTC(),
		ExpiresAt:   now.UTC().Add(ttl),
	}
	data, _ := json.Marshal(rec)
	return data, rec
}
