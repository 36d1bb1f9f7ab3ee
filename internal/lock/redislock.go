// Package lock provides short-lived per-key mutual exclusion on Redis. The
// reward wheel takes one per user so concurrent spins cannot both pass the
// daily allowance check.
package lock

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock stays held by someone else for the whole wait.
var ErrNotAcquired = errors.New("lock: not acquired")

// unlock deletes the key only while it still carries our token, so a holder
// whose TTL lapsed cannot free a lock someone else now owns.
var unlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

const (
	defaultTTL     = 30 * time.Second
	defaultBackoff = 50 * time.Millisecond
)

// Locker takes SET NX leases under Prefix.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	Prefix       string
}

// WithLock runs fn under the lock for key, waiting as long as ctx allows.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	return l.WithLockWait(ctx, key, ttl, 0, fn)
}

// WithLockWait runs fn under the lock for key. Acquisition gives up with
// ErrNotAcquired after wait; a non-positive wait retries until ctx is done.
// fn receives the caller's ctx, not the acquisition deadline.
func (l Locker) WithLockWait(ctx context.Context, key string, ttl, wait time.Duration, fn func(context.Context) error) error {
	switch {
	case l.R == nil:
		return errors.New("lock: redis client not configured")
	case fn == nil:
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	key = l.Prefix + key
	token := uuid.NewString()

	acquireCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	if err := l.acquire(acquireCtx, key, token, ttl); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return ErrNotAcquired
		}
		return err
	}
	defer func() {
		_ = unlock.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// jitter spreads out callers that collided on the same key
		pause := backoff/2 + rand.N(backoff/2+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}
