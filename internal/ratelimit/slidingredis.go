package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter implements a sliding window rate limiter backed by Redis sorted sets.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Allow registers an event for the given key and returns whether it is within
// the limit. Rejected events are not kept in the window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (allowed bool, remaining int, reset time.Time, err error) {
	now := l.now()
	if l.Client == nil || limit <= 0 || window <= 0 {
		return true, limit, now.Add(window), nil
	}
	redisKey := l.Prefix + key
	member := fmt.Sprintf("%s:%s", key, uuid.NewString())

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", cutoff(now, window))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.Expire(ctx, redisKey, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, now.Add(window), err
	}

	current := int(countCmd.Val())
	reset = resetAt(oldestCmd.Val(), now, window)
	if current > limit {
		if err := l.Client.ZRem(ctx, redisKey, member).Err(); err != nil {
			return false, 0, reset, err
		}
		return false, 0, reset, nil
	}
	return true, limit - current, reset, nil
}

// Remaining reports how many events are still allowed in the window without recording one.
func (l Limiter) Remaining(ctx context.Context, key string, window time.Duration, limit int) (remaining int, reset time.Time, err error) {
	now := l.now()
	if l.Client == nil || limit <= 0 || window <= 0 {
		return limit, now.Add(window), nil
	}
	redisKey := l.Prefix + key
	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", cutoff(now, window))
	countCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, now.Add(window), err
	}
	return max(0, limit-int(countCmd.Val())), resetAt(oldestCmd.Val(), now, window), nil
}

// Record adds an event to the window unconditionally.
func (l Limiter) Record(ctx context.Context, key string, window time.Duration) error {
	if l.Client == nil || window <= 0 {
		return nil
	}
	now := l.now()
	redisKey := l.Prefix + key
	pipe := l.Client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: fmt.Sprintf("%s:%s", key, uuid.NewString())})
	pipe.Expire(ctx, redisKey, window)
	_, err := pipe.Exec(ctx)
	return err
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func cutoff(now time.Time, window time.Duration) string {
	return strconv.FormatInt(now.Add(-window).UnixNano(), 10)
}

func resetAt(oldest []redis.Z, now time.Time, window time.Duration) time.Time {
	if len(oldest) == 0 {
		return now.Add(window)
	}
	return time.Unix(0, int64(oldest[0].Score)).Add(window)
}
