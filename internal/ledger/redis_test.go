package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupLedger(t *testing.T) (*RedisLedger, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisLedger(client), mr
}

func TestTryAcquire_FirstCallerWins(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	ok, err := l.TryAcquire(ctx, "key-1", time.Hour)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !ok {
		t.Fatal("expected first acquire to win")
	}

	ok, err = l.TryAcquire(ctx, "key-1", time.Hour)
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if ok {
		t.Error("expected second acquire to lose")
	}
}

func TestTryAcquire_DistinctKeysIndependent(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		ok, err := l.TryAcquire(ctx, key, time.Hour)
		if err != nil {
			t.Fatalf("TryAcquire(%s): %v", key, err)
		}
		if !ok {
			t.Errorf("expected acquire for %s to win", key)
		}
	}
}

func TestTryAcquire_ExactlyOneConcurrentWinner(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	const callers = 32
	var wins int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := l.TryAcquire(ctx, "contended", time.Hour)
			if err != nil {
				t.Errorf("TryAcquire: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
}

func TestTryAcquire_ReacquireAfterExpiry(t *testing.T) {
	l, mr := setupLedger(t)
	ctx := context.Background()

	ok, _ := l.TryAcquire(ctx, "ttl-key", time.Minute)
	if !ok {
		t.Fatal("expected first acquire to win")
	}

	mr.FastForward(61 * time.Second)

	ok, err := l.TryAcquire(ctx, "ttl-key", time.Minute)
	if err != nil {
		t.Fatalf("TryAcquire after expiry: %v", err)
	}
	if !ok {
		t.Error("expected re-acquire after TTL expiry to win")
	}
}

func TestPeek_ReturnsLiveRecord(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	if ok, _ := l.TryAcquire(ctx, "peeked", 12*time.Hour); !ok {
		t.Fatal("expected acquire to win")
	}

	rec, err := l.Peek(ctx, "peeked")
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a live record")
	}
	if rec.DedupKey != "peeked" {
		t.Errorf("unexpected dedup key %q", rec.DedupKey)
	}
	if rec.DeliveredAt.Before(before) {
		t.Errorf("delivered_at %v too old", rec.DeliveredAt)
	}
	if !rec.ExpiresAt.After(rec.DeliveredAt) {
		t.Error("expires_at should be after delivered_at")
	}
}

func TestPeek_MissingKeyReturnsNil(t *testing.T) {
	l, _ := setupLedger(t)

	rec, err := l.Peek(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}
