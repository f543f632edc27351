package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestTryAcquire_SecondHolderBlocked(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	a := New(client, "sweep", time.Minute)
	b := New(client, "sweep", time.Minute)

	ok, err := a.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	ok, err = b.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Error("expected second holder to be blocked")
	}
}

func TestRelease_AllowsReacquire(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	a := New(client, "sweep", time.Minute)
	if ok, _ := a.TryAcquire(ctx); !ok {
		t.Fatal("expected acquire to succeed")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	b := New(client, "sweep", time.Minute)
	ok, err := b.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("reacquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRelease_DoesNotStealForeignLock(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	a := New(client, "sweep", time.Minute)
	b := New(client, "sweep", time.Minute)

	if ok, _ := a.TryAcquire(ctx); !ok {
		t.Fatal("expected acquire to succeed")
	}

	// b never held the lock; releasing must not free a's claim.
	if err := b.Release(ctx); err != nil {
		t.Fatalf("foreign release: %v", err)
	}

	c := New(client, "sweep", time.Minute)
	ok, _ := c.TryAcquire(ctx)
	if ok {
		t.Error("lock should still be held by a")
	}
}
