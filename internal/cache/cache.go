package cache

import (
	"context"
	"fmt"

	"github.com/anime-shed/image-eval-go/internal/analyzer"
	"github.com/anime-shed/image-eval-go/internal/config"
	"github.com/anime-shed/image-eval-go/internal/logger"
)

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// New builds the cache selected by the configuration. It returns a nil cache
// for the "none" backend. When Redis is unreachable the pipeline degrades to
// running without a cache rather than failing.
func New(ctx context.Context, cfg config.CacheConfig) (analyzer.MetricCache, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemoryCache(cfg.MemoryEntries, cfg.TTL), nil
	case BackendRedis:
		c, err := NewRedisCache(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			logger.WithError(err).Warn("Redis connection failed, metric cache disabled")
			return nil, nil
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
