package cache

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/image-eval-go/internal/config"
	"github.com/anime-shed/image-eval-go/pkg/models"
)

func sampleRecord(ssim float64) models.MetricRecord {
	return models.MetricRecord{SSIM: ssim, PSNR: math.Inf(1), BrisqueBase: 40, BrisqueImproved: 35}
}

func TestMemoryCacheGetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(4, 0)

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", sampleRecord(0.9)))
	rec, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.9, rec.SSIM)
	assert.True(t, math.IsInf(rec.PSNR, 1))

	assert.Equal(t, Stats{Hits: 1, Misses: 1, Entries: 1}, c.Stats())
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, 0)

	require.NoError(t, c.Set(ctx, "a", sampleRecord(0.1)))
	require.NoError(t, c.Set(ctx, "b", sampleRecord(0.2)))
	_, _, _ = c.Get(ctx, "a") // a becomes most recent
	require.NoError(t, c.Set(ctx, "c", sampleRecord(0.3)))

	assert.Equal(t, 2, c.Len())
	_, ok, _ := c.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryCacheOverwrite(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, 0)
	require.NoError(t, c.Set(ctx, "a", sampleRecord(0.1)))
	require.NoError(t, c.Set(ctx, "a", sampleRecord(0.5)))

	rec, ok, _ := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 0.5, rec.SSIM)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(4, 50*time.Millisecond)

	require.NoError(t, c.Set(ctx, "a", sampleRecord(0.1)))
	_, ok, _ := c.Get(ctx, "a")
	assert.True(t, ok)

	time.Sleep(120 * time.Millisecond)
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok, "expired records are misses")
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, config.CacheConfig{Backend: BackendNone})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(ctx, config.CacheConfig{Backend: BackendMemory, MemoryEntries: 8})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
	assert.Implements(t, (*StatsReporter)(nil), c)

	_, err = New(ctx, config.CacheConfig{Backend: "memcached"})
	assert.Error(t, err)
}

func TestNewDegradesWhenRedisIsUnreachable(t *testing.T) {
	c, err := New(context.Background(), config.CacheConfig{Backend: BackendRedis, RedisAddr: "127.0.0.1:1"})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestRedisCacheReportsErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisCacheWithClient(client, time.Minute)
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Set(context.Background(), "k", sampleRecord(0.5)))
	assert.Equal(t, int64(2), c.Stats().Errors)
}
