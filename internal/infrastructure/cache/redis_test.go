package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/backend/internal/domain"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client, "pricelens:")
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache_SetAndGet(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	want := cachedPrice{ConsoleName: "Playstation 2", ProductName: "Final Fantasy X", Confidence: 80}
	require.NoError(t, c.Set(ctx, "price:ps2:ffx", want, time.Hour))

	assert.True(t, mr.Exists("pricelens:price:ps2:ffx"), "key is stored under the prefix")

	var got cachedPrice
	require.NoError(t, c.Get(ctx, "price:ps2:ffx", &got))
	assert.Equal(t, want, got)
}

func TestRedisCache_Miss(t *testing.T) {
	c, _ := newTestRedisCache(t)

	var got cachedPrice
	err := c.Get(context.Background(), "absent", &got)
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", "v", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("pricelens:short"))

	mr.FastForward(2 * time.Minute)

	var got string
	assert.ErrorIs(t, c.Get(ctx, "short", &got), domain.ErrCacheMiss)
}

func TestRedisCache_DeleteAndExists(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 42, time.Minute))

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "k"))

	ok, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Unavailable(t *testing.T) {
	c, mr := newTestRedisCache(t)
	mr.Close()

	var got string
	err := c.Get(context.Background(), "k", &got)
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
}

func TestNewRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(context.Background(), "redis://"+mr.Addr()+"/0", "p:")
	require.NoError(t, err)
	defer c.Close()

	_, err = NewRedisCache(context.Background(), "not a url", "p:")
	assert.Error(t, err)
}
