package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/greenmart/internal/lock"
)

func newLocker(t *testing.T, prefix string) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 4 * time.Millisecond, Prefix: prefix}, mr
}

func TestWithLockSerialisesSameKey(t *testing.T) {
	locker, _ := newLocker(t, "greenmart:lock:")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "spin:shopper-1", time.Second, func(context.Context) error {
				n := inside.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, peak.Load())
}

func TestWithLockWaitGivesUp(t *testing.T) {
	locker, mr := newLocker(t, "lock:")
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "spin:shopper-2", time.Second, func(context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	require.True(t, mr.Exists("lock:spin:shopper-2"))

	called := false
	err := locker.WithLockWait(context.Background(), "spin:shopper-2", time.Second, 30*time.Millisecond, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.False(t, called)

	close(done)
	require.Eventually(t, func() bool { return !mr.Exists("lock:spin:shopper-2") }, time.Second, 5*time.Millisecond)
}

func TestWithLockWaitHonoursCallerCancel(t *testing.T) {
	locker, mr := newLocker(t, "")
	mr.Set("spin:shopper-3", "someone-else")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	err := locker.WithLockWait(ctx, "spin:shopper-3", time.Second, time.Second, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	locker, mr := newLocker(t, "")
	err := locker.WithLock(context.Background(), "spin:shopper-4", time.Second, func(context.Context) error {
		// lease lapsed and another spin took over
		mr.Set("spin:shopper-4", "new-owner")
		return nil
	})
	require.NoError(t, err)
	got, err := mr.Get("spin:shopper-4")
	require.NoError(t, err)
	require.Equal(t, "new-owner", got)
}

func TestCallbackKeepsCallerContext(t *testing.T) {
	locker, mr := newLocker(t, "")
	err := locker.WithLockWait(context.Background(), "k", time.Second, time.Millisecond, func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return ctx.Err()
	})
	require.NoError(t, err)
	require.False(t, mr.Exists("k"))
}
