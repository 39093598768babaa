package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
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

func TestSettingsCache_RoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewSettingsCache(rdb, "", time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, map[string]string{"store_name": "Acme", "maintenance_mode": "true"}))
	assert.True(t, mr.Exists(DefaultSettingsKey))
	assert.Equal(t, time.Minute, mr.TTL(DefaultSettingsKey))

	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"store_name": "Acme", "maintenance_mode": "true"}, got)

	require.NoError(t, c.Invalidate(ctx))
	_, ok, err = c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettingsCache_EmptyMapIsHit(t *testing.T) {
	_, rdb := newTestRedis(t)
	c := NewSettingsCache(rdb, "s", 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, map[string]string{}))
	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestSettingsCache_SetReplacesStaleFields(t *testing.T) {
	_, rdb := newTestRedis(t)
	c := NewSettingsCache(rdb, "s", 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, c.Set(ctx, map[string]string{"a": "3"}))

	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{"a": "3"}, got)
}

func TestSettingsCache_Expiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewSettingsCache(rdb, "s", time.Second)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, map[string]string{"a": "1"}))
	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettingsCache_ServerDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewSettingsCache(rdb, "s", 0)
	mr.Close()

	_, _, err := c.Get(context.Background())
	require.Error(t, err)
}

func TestLimiter_Allow(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewLimiter(rdb, "")
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)

	for i := range 3 {
		remaining, resetAt, ok, err := l.Allow(ctx, "10.0.0.1", 3, time.Minute, now)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
		assert.Equal(t, 2-i, remaining)
		assert.Equal(t, time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC), resetAt)
	}

	_, _, ok, err := l.Allow(ctx, "10.0.0.1", 3, time.Minute, now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = l.Allow(ctx, "10.0.0.2", 3, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, ok, "other keys are independent")

	_, _, ok, err = l.Allow(ctx, "10.0.0.1", 3, time.Minute, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "next window starts fresh")
}
