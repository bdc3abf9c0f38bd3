package cachemanager

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/spmbatch/internal/log"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// InMemoryCacheManager is the concrete implementation of the CacheManager
// interface backed by an in-process cache with TTL eviction.
type InMemoryCacheManager[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache
}

// NewInMemoryCacheManager initializes the in-memory cache. The useCase
// label only appears in log entries.
func NewInMemoryCacheManager[K ~string, V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get retrieves an item from the cache by its key.
func (c *InMemoryCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zero V

	value, found := c.cache.Get(string(key))
	if !found {
		return zero, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value",
			"use_case", c.useCase, "key", key)
		return zero, false
	}

	log.Debug(log.CatCache, "cache hit", "use_case", c.useCase, "key", key)
	return v, true
}

// Set stores a value under key for ttl.
func (c *InMemoryCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	c.cache.Set(string(key), value, ttl)
}

// Delete removes values by key.
func (c *InMemoryCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	for _, key := range keys {
		c.cache.Delete(string(key))
	}
	return nil
}

// Flush drops every cached value.
func (c *InMemoryCacheManager[K, V]) Flush(ctx context.Context) error {
	c.cache.Flush()
	return nil
}

var _ CacheManager[string, any] = (*InMemoryCacheManager[string, any])(nil)
