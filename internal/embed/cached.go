package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/pagemind/internal/config"
	"github.com/Aman-CERP/pagemind/internal/llm"
)

// CachedEmbedder wraps an llm.Embedder with a vector cache. Cache failures
// are logged and fall through to the embedder. Concurrent misses for the
// same key share one embedder call.
type CachedEmbedder struct {
	inner  llm.Embedder
	cache  Cache
	logger *slog.Logger
	group  singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	onLookup func(hit bool)
}

var _ llm.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder creates a cached embedder. A nil cache disables caching.
func NewCachedEmbedder(inner llm.Embedder, cache Cache, logger *slog.Logger) *CachedEmbedder {
	if cache == nil {
		cache = NopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{inner: inner, cache: cache, logger: logger}
}

// OnLookup registers fn to be called after every cache lookup. It must be
// set before the embedder is shared.
func (c *CachedEmbedder) OnLookup(fn func(hit bool)) {
	c.onLookup = fn
}

// CacheKey identifies a vector by deployment and text.
func CacheKey(s config.Settings, text string) string {
	combined := s.Endpoint + "\x00" + s.EmbeddingDeployment + "\x00" + text
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Embed returns a cached vector when present, otherwise embeds and caches.
func (c *CachedEmbedder) Embed(ctx context.Context, s config.Settings, text string) ([]float32, error) {
	key := CacheKey(s, text)

	vec, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("embedding_cache_get_failed", slog.String("error", err.Error()))
	}
	if c.onLookup != nil {
		c.onLookup(ok)
	}
	if ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (any, error) {
		vec, err := c.inner.Embed(ctx, s, text)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(ctx, key, vec); err != nil {
			c.logger.Warn("embedding_cache_set_failed", slog.String("error", err.Error()))
		}
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// Stats returns cache hit and miss counts.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close closes the cache.
func (c *CachedEmbedder) Close() error {
	return c.cache.Close()
}
