package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheManager_GetSet(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, []string]("test", DefaultExpiration, DefaultCleanupInterval)

	_, found := cache.Get(ctx, "missing")
	assert.False(t, found)

	cache.Set(ctx, "gradients", []string{"Gray", "Spectral"}, time.Minute)
	got, found := cache.Get(ctx, "gradients")
	require.True(t, found)
	assert.Equal(t, []string{"Gray", "Spectral"}, got)
}

func TestInMemoryCacheManager_Delete(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "a", 1, time.Minute)
	cache.Set(ctx, "b", 2, time.Minute)
	require.NoError(t, cache.Delete(ctx, "a", "b"))

	_, found := cache.Get(ctx, "a")
	assert.False(t, found)
}

func TestInMemoryCacheManager_Flush(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "a", 1, time.Minute)
	require.NoError(t, cache.Flush(ctx))
	_, found := cache.Get(ctx, "a")
	assert.False(t, found)
}

func TestInMemoryCacheManager_Expiration(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("test", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "short", 1, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	_, found := cache.Get(ctx, "short")
	assert.False(t, found)
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)

	loads := 0
	load := func(context.Context) (string, error) {
		loads++
		return "value", nil
	}

	got, err := GetOrLoad[string, string](ctx, cache, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	// Second read comes from the cache.
	_, err = GetOrLoad[string, string](ctx, cache, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)

	boom := errors.New("boom")
	loads := 0
	load := func(context.Context) (string, error) {
		loads++
		if loads == 1 {
			return "", boom
		}
		return "ok", nil
	}

	_, err := GetOrLoad[string, string](ctx, cache, "k", time.Minute, load)
	require.ErrorIs(t, err, boom)

	got, err := GetOrLoad[string, string](ctx, cache, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
