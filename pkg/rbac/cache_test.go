package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/authapi/pkg/models"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

var samplePerms = []models.Permission{
	{ID: 1, TeamID: 2, Type: "billing.view", ObjectID: "invoice-1"},
	{ID: 3, TeamID: 2, Type: "billing.edit", ObjectID: "invoice-1"},
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(2, time.Minute, nil)

	_, err := cache.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, 1, Generation{}, samplePerms))
	got, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, samplePerms, got)

	// callers cannot mutate the cached slice
	got[0].Type = "changed"
	again, _ := cache.Get(ctx, 1)
	assert.Equal(t, "billing.view", again[0].Type)

	require.NoError(t, cache.Set(ctx, 2, Generation{}, nil))
	require.NoError(t, cache.Set(ctx, 3, Generation{}, nil))
	_, err = cache.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss, "least recently used entry is evicted")

	require.NoError(t, cache.Invalidate(ctx))
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_DropsSetFromOldGeneration(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, time.Minute, nil)

	gen, err := cache.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx))

	require.NoError(t, cache.Set(ctx, 1, gen, samplePerms))
	_, err = cache.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)

	gen, err = cache.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen.Local)
	require.NoError(t, cache.Set(ctx, 1, gen, samplePerms))
	_, err = cache.Get(ctx, 1)
	assert.NoError(t, err)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, 10*time.Millisecond, nil)
	require.NoError(t, cache.Set(ctx, 1, Generation{}, samplePerms))

	assert.Eventually(t, func() bool {
		_, err := cache.Get(ctx, 1)
		return err == ErrCacheMiss
	}, time.Second, 5*time.Millisecond)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	cache := NewRedisCache(client, time.Minute, nil)

	_, err := cache.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrCacheMiss)

	gen, err := cache.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, 7, gen, samplePerms))
	assert.True(t, mr.Exists("authapi:perms:0:7"))
	assert.Equal(t, time.Minute, mr.TTL("authapi:perms:0:7"))

	got, err := cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, samplePerms[1].ID, got[1].ID)

	require.NoError(t, cache.Invalidate(ctx))
	_, err = cache.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrCacheMiss)

	// a set resolved before the invalidation lands under the dead generation
	require.NoError(t, cache.Set(ctx, 7, gen, samplePerms))
	_, err = cache.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrCacheMiss)

	gen, err = cache.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen.Shared)
	require.NoError(t, cache.Set(ctx, 7, gen, nil))
	assert.True(t, mr.Exists("authapi:perms:1:7"))
	got, err = cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	cache := NewRedisCache(client, time.Minute, nil)

	require.NoError(t, mr.Set("authapi:perms:0:5", "{not json"))
	_, err := cache.Get(ctx, 5)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.False(t, mr.Exists("authapi:perms:0:5"))
}

func TestRedisCache_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)
	cache := NewRedisCache(client, time.Minute, nil)
	mr.Close()

	_, err := cache.Get(ctx, 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
	assert.Error(t, cache.Invalidate(ctx))
}

func TestTieredCache(t *testing.T) {
	ctx := context.Background()
	_, client := setupRedis(t)
	l1 := NewMemoryCache(10, time.Minute, nil)
	l2 := NewRedisCache(client, time.Minute, nil)
	cache := NewTieredCache(l1, l2)

	require.NoError(t, l2.Set(ctx, 1, Generation{}, samplePerms))
	got, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, l1.Len(), "l2 hit fills l1")

	gen, err := cache.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, 2, gen, samplePerms[:1]))
	_, err = l2.Get(ctx, 2)
	assert.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx))
	assert.Equal(t, 0, l1.Len())
	_, err = cache.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)

	// both levels drop a set resolved before the invalidation
	require.NoError(t, cache.Set(ctx, 2, gen, samplePerms))
	assert.Equal(t, 0, l1.Len())
	_, err = cache.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	cache, client, err := NewCache(ctx, DefaultCacheConfig(), nil)
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.IsType(t, &MemoryCache{}, cache)

	mr, _ := setupRedis(t)
	cfg := DefaultCacheConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	cache, client, err = NewCache(ctx, cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()
	assert.IsType(t, &TieredCache{}, cache)

	cfg.RedisURL = "://bad"
	_, _, err = NewCache(ctx, cfg, nil)
	assert.Error(t, err)
}
