// Package coordination guards pipeline runs across processes with a Redis lock.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRunLockKey = "digesthub:pipeline:run"
	DefaultLockTTL    = 10 * time.Minute
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RunLock is a SETNX lock owned by a random token.
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRunLock(client *redis.Client, key string, ttl time.Duration) *RunLock {
	if key == "" {
		key = DefaultRunLockKey
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RunLock{client: client, key: key, ttl: ttl}
}

// Lease is one successful acquisition.
type Lease struct {
	lock  *RunLock
	token string
}

// Acquire takes the lock without waiting; ErrLockNotAcquired if someone else holds it.
func (l *RunLock) Acquire(ctx context.Context) (*Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lease{lock: l, token: token}, nil
}

func (le *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, le.lock.client, []string{le.lock.key}, le.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", le.lock.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend resets the TTL while the lease is still ours.
func (le *Lease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, le.lock.client, []string{le.lock.key}, le.token, le.lock.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend %s: %w", le.lock.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
