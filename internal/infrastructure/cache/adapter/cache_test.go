package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-mensajeria/internal/infrastructure/cache/port"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "presence:u1")
	assert.ErrorIs(t, err, port.ErrMiss)

	require.NoError(t, c.Set(ctx, "presence:u1", "u1_u2", time.Minute))
	v, err := c.Get(ctx, "presence:u1")
	require.NoError(t, err)
	assert.Equal(t, "u1_u2", v)

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "presence:u1")
	assert.ErrorIs(t, err, port.ErrMiss)

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	n, err := c.Del(ctx, "a", "missing")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NoError(t, c.Ping(ctx))
}

func TestNewRedisClientRequiresURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "")
	require.Error(t, err)
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Second))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	now = now.Add(time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, port.ErrMiss)

	require.NoError(t, c.Set(ctx, "forever", "v", 0))
	now = now.Add(24 * time.Hour)
	_, err = c.Get(ctx, "forever")
	require.NoError(t, err)

	n, err := c.Del(ctx, "forever", "k")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
