package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRateLimited = errors.New("rate limited")

// LimitError reports how long the caller has to wait.
type LimitError struct {
	RetryAfter time.Duration
	Reason     string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s; retry after %d seconds", e.Reason, int(e.RetryAfter.Seconds()))
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RateLimiter throttles repeated requests for the same subject: a cooldown
// between two requests and a cap per window, after which the subject is
// blocked for three windows.
type RateLimiter struct {
	client      *redis.Client
	prefix      string
	cooldown    time.Duration
	window      time.Duration
	maxInWindow int
}

func NewRateLimiter(client *redis.Client, prefix string, cooldown, window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		client:      client,
		prefix:      prefix,
		cooldown:    cooldown,
		window:      window,
		maxInWindow: max,
	}
}

func (l *RateLimiter) Allow(ctx context.Context, subject string) error {
	blockKey := fmt.Sprintf("%s:block:%s", l.prefix, subject)
	lastKey := fmt.Sprintf("%s:last:%s", l.prefix, subject)
	countKey := fmt.Sprintf("%s:count:%s", l.prefix, subject)

	if ttl, err := l.client.PTTL(ctx, blockKey).Result(); err == nil && ttl > 0 {
		return &LimitError{RetryAfter: ttl, Reason: "too many requests"}
	}

	if ttl, err := l.client.PTTL(ctx, lastKey).Result(); err == nil && ttl > 0 {
		return &LimitError{RetryAfter: ttl, Reason: "request issued too recently"}
	}

	cnt, err := l.client.Incr(ctx, countKey).Result()
	if err != nil {
		return fmt.Errorf("rate limit counter: %w", err)
	}
	if cnt == 1 {
		_ = l.client.Expire(ctx, countKey, l.window).Err()
	}

	if int(cnt) > l.maxInWindow {
		block := l.window * 3
		_ = l.client.Set(ctx, blockKey, "1", block).Err()
		return &LimitError{RetryAfter: block, Reason: "too many requests"}
	}

	if l.cooldown > 0 {
		_ = l.client.Set(ctx, lastKey, "1", l.cooldown).Err()
	}
	return nil
}
