package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	domainerrors "licensepay.backend/internal/domain/errors"
	"licensepay.backend/pkg/redis"
)

// RateLimiter enforces a true rolling-window request budget per key using a
// Redis sorted set as a sliding log: each allowed call is recorded at its
// own timestamp, and any call older than the window is evicted before the
// remaining count is checked. Unlike a fixed-bucket counter (one counter
// per calendar window), this can't let two bursts of maxRequests land
// back-to-back across a bucket boundary.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
}

// NewRateLimiter builds a RateLimiter allowing maxRequests per rolling
// window, keyed per caller-supplied identifier (account alias, checkout
// type, ...).
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{maxRequests: maxRequests, window: window}
}

// Allow evicts log entries older than the rolling window for key, then
// reports whether a new call is within budget. Returns
// domainerrors.RateLimited when the window is already full.
func (l *RateLimiter) Allow(ctx context.Context, key string) error {
	now := time.Now()
	logKey := fmt.Sprintf("gateway:ratelimit:%s", key)
	windowStart := now.Add(-l.window)

	if err := redis.ZRemRangeByScore(ctx, logKey, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10)); err != nil {
		return domainerrors.ExternalProvider("rate limiter unavailable", err)
	}

	count, err := redis.ZCard(ctx, logKey)
	if err != nil {
		return domainerrors.ExternalProvider("rate limiter unavailable", err)
	}
	if int(count) >= l.maxRequests {
		return domainerrors.RateLimited(fmt.Sprintf("provider call rate exceeded for %s", key))
	}

	nowNanos := now.UnixNano()
	member := fmt.Sprintf("%d:%s", nowNanos, uuid.NewString())
	if err := redis.ZAddNow(ctx, logKey, member, nowNanos); err != nil {
		return domainerrors.ExternalProvider("rate limiter unavailable", err)
	}
	// Self-expire the log so an idle key doesn't accumulate forever.
	_ = redis.Expire(ctx, logKey, l.window+5*time.Second)

	return nil
}
