package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestWithLockRunsAndReleases(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisLocker(rdb, time.Second)
	key := AppointmentKey(uuid.New())

	ran := false
	err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(key))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(key))
}

func TestWithLockPropagatesFnError(t *testing.T) {
	_, rdb := newTestRedis(t)
	locker := NewRedisLocker(rdb, time.Second)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "lock:test", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWithLockNotAcquiredWhileHeld(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisLocker(rdb, time.Second)
	require.NoError(t, mr.Set("lock:held", "someone-else"))

	err := locker.WithLock(context.Background(), "lock:held", func(ctx context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// another holder's token must survive
	v, _ := mr.Get("lock:held")
	assert.Equal(t, "someone-else", v)
}

func TestWithLockSerialisesCriticalSections(t *testing.T) {
	_, rdb := newTestRedis(t)
	locker := &redisLocker{client: rdb, ttl: time.Second, attempts: 50, backoff: 5 * time.Millisecond}

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locker.WithLock(context.Background(), "lock:serial", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				if n > atomic.LoadInt32(&maxInside) {
					atomic.StoreInt32(&maxInside, n)
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}

func TestRateLimiterCooldown(t *testing.T) {
	_, rdb := newTestRedis(t)
	limiter := NewRateLimiter(rdb, "otp", time.Minute, time.Hour, 5)
	ctx := context.Background()

	require.NoError(t, limiter.Allow(ctx, "p:q"))

	err := limiter.Allow(ctx, "p:q")
	require.ErrorIs(t, err, ErrRateLimited)

	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Greater(t, le.RetryAfter, time.Duration(0))

	// other subjects are unaffected
	assert.NoError(t, limiter.Allow(ctx, "p:other"))
}

func TestRateLimiterBlocksAfterWindowCap(t *testing.T) {
	_, rdb := newTestRedis(t)
	limiter := NewRateLimiter(rdb, "otp", 0, time.Hour, 2)
	ctx := context.Background()

	require.NoError(t, limiter.Allow(ctx, "s"))
	require.NoError(t, limiter.Allow(ctx, "s"))
	assert.ErrorIs(t, limiter.Allow(ctx, "s"), ErrRateLimited)
	// blocked even though the counter would otherwise be inspected again
	assert.ErrorIs(t, limiter.Allow(ctx, "s"), ErrRateLimited)
}
