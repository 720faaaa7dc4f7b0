package preflight

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Aman-CERP/pagemind/internal/config"
)

// CheckSettings reports missing Azure OpenAI fields and a malformed
// endpoint. Analysis and asks refuse to run until it passes.
func (c *Checker) CheckSettings(s config.Settings) CheckResult {
	result := CheckResult{
		Name:     "settings",
		Required: true,
	}

	if missing := s.Missing(); len(missing) > 0 {
		result.Status = StatusFail
		result.Message = "missing " + strings.Join(missing, ", ")
		result.Details = "Run 'pagemind settings set' or set PAGEMIND_AZURE_ENDPOINT and related variables"
		return result
	}

	u, err := url.Parse(s.Endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("endpoint %q is not an http(s) URL", s.Endpoint)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (chat %s, embeddings %s)", u.Host, s.ChatDeployment, s.EmbeddingDeployment)
	return result
}

// CheckSources verifies every watched source file can be read. A missing
// file is a warning since browsers create them lazily.
func (c *Checker) CheckSources(sources []config.WatchSource) CheckResult {
	result := CheckResult{Name: "sources"}

	if len(sources) == 0 {
		result.Status = StatusPass
		result.Message = "none configured"
		return result
	}

	var bad []string
	for _, src := range sources {
		f, err := os.Open(src.Path)
		if err != nil {
			bad = append(bad, fmt.Sprintf("%s %s: %v", src.Kind, src.Path, err))
			continue
		}
		_ = f.Close()
	}
	if len(bad) > 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d of %d unreadable", len(bad), len(sources))
		result.Details = strings.Join(bad, "; ")
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d readable", len(sources))
	return result
}

// CheckCache pings Redis when it backs the embedding cache. An unreachable
// cache only disables caching, so the check is not required.
func (c *Checker) CheckCache(ctx context.Context, cfg config.CacheConfig) CheckResult {
	result := CheckResult{Name: "embedding_cache"}

	if cfg.Backend != config.CacheRedis {
		backend := cfg.Backend
		if backend == "" {
			backend = config.CacheLRU
		}
		result.Status = StatusPass
		result.Message = backend
		return result
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = client.Close() }()

	pctx, cancel := context.WithTimeout(ctx, c.redisTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("redis %s unreachable", cfg.RedisAddr)
		result.Details = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = "redis " + cfg.RedisAddr
	return result
}
