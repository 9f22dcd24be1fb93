// Package cache stores finished metric records keyed by the content of both
// images, so re-running a batch over unchanged files skips evaluation.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/anime-shed/image-eval-go/pkg/models"
)

// DefaultMemoryEntries bounds the in-process cache
const DefaultMemoryEntries = 1024

// MemoryCache is a bounded LRU cache with an optional TTL
type MemoryCache struct {
	lru *expirable.LRU[string, models.MetricRecord]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCache creates a cache holding at most maxEntries records.
// A ttl of zero keeps records until they are evicted.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, models.MetricRecord](maxEntries, nil, ttl),
	}
}

// Get implements analyzer.MetricCache
func (c *MemoryCache) Get(_ context.Context, key string) (models.MetricRecord, bool, error) {
	rec, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return models.MetricRecord{}, false, nil
	}
	c.hits.Add(1)
	return rec, true, nil
}

// Set implements analyzer.MetricCache
func (c *MemoryCache) Set(_ context.Context, key string, record models.MetricRecord) error {
	c.lru.Add(key, record)
	return nil
}

// Len returns the number of cached records
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Stats returns hit and miss counters
func (c *MemoryCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.lru.Len()}
}

// Stats are cache lookup counters
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Errors  int64 `json:"errors"`
	Entries int   `json:"entries,omitempty"`
}

// StatsReporter is implemented by caches that count their lookups
type StatsReporter interface {
	Stats() Stats
}
