package rediscache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/shopkart/internal/domain/settings"
)

// DefaultSettingsKey is the hash holding the cached settings rows.
const DefaultSettingsKey = "shopkart:settings"

// loadedField marks a populated hash so an empty settings table is still a
// cache hit.
const loadedField = "\x00loaded"

var _ settings.Cache = (*SettingsCache)(nil)

// SettingsCache stores the raw settings map in a Redis hash.
type SettingsCache struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
}

// NewSettingsCache returns a cache under key. A zero ttl keeps entries until
// invalidated.
func NewSettingsCache(rdb redis.UniversalClient, key string, ttl time.Duration) *SettingsCache {
	if key == "" {
		key = DefaultSettingsKey
	}
	return &SettingsCache{rdb: rdb, key: key, ttl: ttl}
}

// Get returns the cached map. The bool is false on a miss.
func (c *SettingsCache) Get(ctx context.Context) (map[string]string, bool, error) {
	values, err := c.rdb.HGetAll(ctx, c.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "hgetall")
	}
	if _, ok := values[loadedField]; !ok {
		return nil, false, nil
	}
	delete(values, loadedField)
	return values, true, nil
}

// Set replaces the cached map.
func (c *SettingsCache) Set(ctx context.Context, values map[string]string) error {
	fields := make([]any, 0, 2*len(values)+2)
	fields = append(fields, loadedField, "1")
	for k, v := range values {
		fields = append(fields, k, v)
	}

	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, c.key)
		p.HSet(ctx, c.key, fields...)
		if c.ttl > 0 {
			p.Expire(ctx, c.key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "store settings")
	}
	return nil
}

// Invalidate drops the cached map.
func (c *SettingsCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		return errors.Wrap(err, "del")
	}
	return nil
}
