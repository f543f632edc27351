// Package distlock provides a Redis-backed distributed lock used to ensure
// single-runner maintenance jobs (lease recovery sweeps) execute on only one
// worker process at a time.
package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a single-use distributed lock with a TTL. A Lock instance is owned
// by one goroutine; concurrent holders need separate instances.
//
// Ownership is tracked with a random token so Release never deletes a lock
// that expired and was re-acquired by another process.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// New creates a lock on the given key.
func New(client *redis.Client, key string, ttl time.Duration) *Lock {
	b := make([]byte, 16)
	rand.Read(b)
	return &Lock{
		client: client,
		key:    "lock:" + key,
		token:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// TryAcquire attempts to take the lock without blocking. Returns true on
// success.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release drops the lock if this instance still owns it.
func (l *Lock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	return err
}
