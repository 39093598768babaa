// Package rediscache holds the Redis-backed caches and counters.
package rediscache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config describes a Redis connection.
type Config struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	PoolTimeout time.Duration
}

// Enabled reports whether a Redis address is configured.
func (c Config) Enabled() bool { return c.Addr != "" }

const connectAttempts = 5

// NewClient connects to Redis, retrying the initial ping a few times while
// the server comes up.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	lg := zctx.From(ctx).With(
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize),
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		PoolTimeout: cfg.PoolTimeout,
	})

	var err error
	for i := range connectAttempts {
		if err = rdb.Ping(ctx).Err(); err == nil {
			lg.Info("Connected to Redis")
			return rdb, nil
		}
		lg.Warn("Redis not ready, retrying", zap.Int("retry", i+1), zap.Error(err))

		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	_ = rdb.Close()
	return nil, errors.Wrap(err, "ping redis")
}

// Ping returns a readiness check for the client.
func Ping(rdb redis.UniversalClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
