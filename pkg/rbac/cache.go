package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/observability"
)

// ErrCacheMiss is returned by PermissionCache.Get when nothing is cached
var ErrCacheMiss = errors.New("permission cache miss")

// Invalidator drops every cached permission set. Mutating services depend on
// this alone.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Generation identifies the cache contents between two invalidations.
// Local counts invalidations of the process cache, Shared those of Redis.
type Generation struct {
	Local  uint64
	Shared int64
}

// PermissionCache caches the effective permissions of a user. Callers read
// the Generation before resolving a permission set and pass it to Set; an
// invalidation in between makes Set a no-op, so a set resolved before a
// revoke is never cached after it.
type PermissionCache interface {
	Invalidator
	Get(ctx context.Context, userID int64) ([]models.Permission, error)
	Generation(ctx context.Context) (Generation, error)
	Set(ctx context.Context, userID int64, gen Generation, perms []models.Permission) error
}

// CacheConfig configures NewCache
type CacheConfig struct {
	Size     int           `yaml:"size"`
	TTL      time.Duration `yaml:"ttl"`
	RedisURL string        `yaml:"redis_url"`
}

// DefaultCacheConfig returns the default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Size: 10000,
		TTL:  time.Minute,
	}
}

// NewCache builds the configured cache: an LRU, backed by Redis when
// RedisURL is set. The Redis client is returned so callers can health check
// and close it; it is nil without Redis.
func NewCache(ctx context.Context, cfg CacheConfig, metrics *observability.Metrics) (PermissionCache, *redis.Client, error) {
	l1 := NewMemoryCache(cfg.Size, cfg.TTL, metrics)
	if cfg.RedisURL == "" {
		return l1, nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewTieredCache(l1, NewRedisCache(client, cfg.TTL, metrics)), client, nil
}

// MemoryCache is a process-local expirable LRU keyed by user id
type MemoryCache struct {
	mu      sync.Mutex
	gen     uint64
	cache   *lru.LRU[int64, []models.Permission]
	metrics *observability.Metrics
}

// NewMemoryCache creates an LRU holding up to size users for ttl
func NewMemoryCache(size int, ttl time.Duration, metrics *observability.Metrics) *MemoryCache {
	if size < 1 {
		size = 1
	}
	return &MemoryCache{
		cache:   lru.NewLRU[int64, []models.Permission](size, nil, ttl),
		metrics: metrics,
	}
}

func (c *MemoryCache) Get(ctx context.Context, userID int64) ([]models.Permission, error) {
	perms, ok := c.cache.Get(userID)
	if !ok {
		c.metrics.CacheMiss("l1")
		return nil, ErrCacheMiss
	}
	c.metrics.CacheHit("l1")
	return clonePermissions(perms), nil
}

func (c *MemoryCache) Generation(ctx context.Context) (Generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Generation{Local: c.gen}, nil
}

// Set stores perms unless the cache was invalidated after gen was read
func (c *MemoryCache) Set(ctx context.Context, userID int64, gen Generation, perms []models.Permission) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen.Local != c.gen {
		return nil
	}
	c.cache.Add(userID, clonePermissions(perms))
	return nil
}

// Invalidate purges every entry. Entries are keyed by user while mutations
// are keyed by team or organization, so there is no narrower key to drop.
func (c *MemoryCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Purge()
	return nil
}

// Len reports the number of cached users
func (c *MemoryCache) Len() int {
	return c.cache.Len()
}

const (
	redisKeyPrefix     = "authapi:perms:"
	redisGenerationKey = redisKeyPrefix + "gen"
)

// RedisCache shares cached permission sets between replicas. Invalidation
// bumps a generation counter that is part of every key, so stale entries
// are never read again and age out through their TTL.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewRedisCache creates a Redis-backed cache
func NewRedisCache(client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, metrics: metrics}
}

func (c *RedisCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, redisGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) key(gen int64, userID int64) string {
	return redisKeyPrefix + strconv.FormatInt(gen, 10) + ":" + strconv.FormatInt(userID, 10)
}

func (c *RedisCache) Generation(ctx context.Context) (Generation, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return Generation{}, err
	}
	return Generation{Shared: gen}, nil
}

func (c *RedisCache) Get(ctx context.Context, userID int64) ([]models.Permission, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, err
	}

	key := c.key(gen, userID)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.CacheMiss("l2")
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var perms []models.Permission
	if err := json.Unmarshal(data, &perms); err != nil {
		// corrupt entry
		c.client.Del(ctx, key)
		c.metrics.CacheMiss("l2")
		return nil, ErrCacheMiss
	}
	c.metrics.CacheHit("l2")
	return perms, nil
}

// Set writes under gen. After an invalidation that key is never read again.
func (c *RedisCache) Set(ctx context.Context, userID int64, gen Generation, perms []models.Permission) error {
	if perms == nil {
		perms = []models.Permission{}
	}
	data, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	if err := c.client.Set(ctx, c.key(gen.Shared, userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, redisGenerationKey).Err(); err != nil {
		return fmt.Errorf("redis incr generation failed: %w", err)
	}
	return nil
}

// TieredCache reads through a local cache to a shared one. Other replicas'
// invalidations reach the local level only when its entries expire.
type TieredCache struct {
	l1 PermissionCache
	l2 PermissionCache
}

// NewTieredCache combines a local and a shared cache
func NewTieredCache(l1, l2 PermissionCache) *TieredCache {
	return &TieredCache{l1: l1, l2: l2}
}

func (c *TieredCache) Get(ctx context.Context, userID int64) ([]models.Permission, error) {
	if perms, err := c.l1.Get(ctx, userID); err == nil {
		return perms, nil
	}
	local, err := c.l1.Generation(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := c.l2.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	_ = c.l1.Set(ctx, userID, local, perms)
	return perms, nil
}

func (c *TieredCache) Generation(ctx context.Context) (Generation, error) {
	local, err := c.l1.Generation(ctx)
	if err != nil {
		return Generation{}, err
	}
	shared, err := c.l2.Generation(ctx)
	if err != nil {
		return Generation{}, err
	}
	return Generation{Local: local.Local, Shared: shared.Shared}, nil
}

func (c *TieredCache) Set(ctx context.Context, userID int64, gen Generation, perms []models.Permission) error {
	_ = c.l1.Set(ctx, userID, gen, perms)
	return c.l2.Set(ctx, userID, gen, perms)
}

func (c *TieredCache) Invalidate(ctx context.Context) error {
	_ = c.l1.Invalidate(ctx)
	return c.l2.Invalidate(ctx)
}

// InvalidateAfterMutation drops cached permission sets after a successful
// write. Failures are logged and swallowed: the write already happened.
func InvalidateAfterMutation(ctx context.Context, cache Invalidator, metrics *observability.Metrics) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to invalidate permission cache")
		return
	}
	metrics.CacheInvalidated()
}

func clonePermissions(perms []models.Permission) []models.Permission {
	out := make([]models.Permission, len(perms))
	copy(out, perms)
	return out
}
