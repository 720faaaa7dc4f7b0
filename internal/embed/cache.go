// Package embed caches embedding vectors in memory or in Redis so repeated
// questions and unchanged pages skip the embedding deployment.
package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Aman-CERP/pagemind/internal/config"
	"github.com/Aman-CERP/pagemind/internal/store"
)

// DefaultCacheSize is the number of vectors kept by the in-memory cache.
const DefaultCacheSize = 256

// Cache stores vectors by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
	Close() error
}

// NewCache builds the cache selected by cfg.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", config.CacheLRU:
		return NewLRUCache(cfg.Size), nil
	case config.CacheNone:
		return NopCache{}, nil
	case config.CacheRedis:
		var ttl time.Duration
		if cfg.TTL != "" {
			d, err := time.ParseDuration(cfg.TTL)
			if err != nil {
				return nil, fmt.Errorf("invalid cache ttl %q: %w", cfg.TTL, err)
			}
			ttl = d
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisCache(client, ttl), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// LRUCache is a bounded in-process cache.
type LRUCache struct {
	cache *lru.Cache[string, []float32]
}

// NewLRUCache creates an LRU cache holding up to size vectors.
func NewLRUCache(size int) *LRUCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, _ := lru.New[string, []float32](size)
	return &LRUCache{cache: c}
}

func (c *LRUCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := c.cache.Get(key)
	return v, ok, nil
}

func (c *LRUCache) Set(_ context.Context, key string, vec []float32) error {
	c.cache.Add(key, vec)
	return nil
}

// Len returns the number of cached vectors.
func (c *LRUCache) Len() int { return c.cache.Len() }

func (c *LRUCache) Close() error {
	c.cache.Purge()
	return nil
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]float32, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, string, []float32) error        { return nil }
func (NopCache) Close() error                                         { return nil }

// RedisCache shares vectors between processes through Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache wraps client. A zero ttl keeps entries until evicted.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "pagemind:embed:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get from cache: %w", err)
	}
	vec, err := store.DecodeEmbedding(b)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	if err := c.client.Set(ctx, c.prefix+key, store.EncodeEmbedding(vec), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
