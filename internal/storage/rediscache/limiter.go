package rediscache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed window request counter shared by every API replica.
type Limiter struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewLimiter returns a Limiter storing counters under prefix.
func NewLimiter(rdb redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "shopkart:ratelimit:"
	}
	return &Limiter{rdb: rdb, prefix: prefix}
}

// Allow counts one request for key in the window containing now.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (remaining int, resetAt time.Time, allowed bool, err error) {
	start := now.Truncate(window)
	resetAt = start.Add(window)
	k := l.prefix + key + ":" + start.UTC().Format("20060102T150405")

	var incr *redis.IntCmd
	if _, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.PExpire(ctx, k, window)
		return nil
	}); err != nil {
		return 0, resetAt, false, errors.Wrap(err, "incr")
	}

	n := int(incr.Val())
	if n > limit {
		return 0, resetAt, false, nil
	}
	return limit - n, resetAt, true, nil
}
