package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anime-shed/image-eval-go/internal/logger"
	"github.com/anime-shed/image-eval-go/pkg/models"
)

const (
	// Redis connection defaults
	defaultPoolSize   = 10
	connectionTimeout = 5 * time.Second

	keyPrefix = "imgeval:metrics:"
)

// RedisOptions configures the Redis-backed cache
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache shares metric records between processes through Redis.
// Records are stored as JSON so infinite PSNR values survive.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// cachedRecord is the stored form of a record
type cachedRecord struct {
	Metrics     models.MetricValues `json:"metrics"`
	Diagnostics models.Diagnostics  `json:"diagnostics"`
}

// NewRedisCache connects to Redis and verifies the connection with a ping
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: defaultPoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisCacheWithClient(client, opts.TTL), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get implements analyzer.MetricCache
func (c *RedisCache) Get(ctx context.Context, key string) (models.MetricRecord, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return models.MetricRecord{}, false, nil
	}
	if err != nil {
		c.errors.Add(1)
		return models.MetricRecord{}, false, fmt.Errorf("redis get: %w", err)
	}

	var stored cachedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		// a corrupt entry behaves like a miss and is overwritten on Set
		c.errors.Add(1)
		logger.WithField("key", key).WithError(err).Warn("Discarding unreadable cache entry")
		return models.MetricRecord{}, false, nil
	}
	c.hits.Add(1)
	return models.RecordFromValues(stored.Metrics, stored.Diagnostics), true, nil
}

// Set implements analyzer.MetricCache
func (c *RedisCache) Set(ctx context.Context, key string, record models.MetricRecord) error {
	data, err := json.Marshal(cachedRecord{Metrics: record.Values(), Diagnostics: record.Diagnostics()})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		c.errors.Add(1)
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Stats returns lookup counters
func (c *RedisCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errors.Load()}
}

// Close releases the Redis connection pool
func (c *RedisCache) Close() error {
	return c.client.Close()
}
