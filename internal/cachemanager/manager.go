// Package cachemanager provides a small generic caching layer for
// provider-backed lookups that are stable within a poll interval, such as
// the gradient inventory. Row-model data is deliberately never cached; the
// registry re-reads it on every reconciliation.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is the generic cache contract.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}

// GetOrLoad reads through the cache: on a miss the loader runs and its
// result is cached for ttl. Loader errors are returned uncached.
func GetOrLoad[K comparable, V any](
	ctx context.Context,
	cache CacheManager[K, V],
	key K,
	ttl time.Duration,
	load func(ctx context.Context) (V, error),
) (V, error) {
	if value, ok := cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	cache.Set(ctx, key, value, ttl)
	return value, nil
}
