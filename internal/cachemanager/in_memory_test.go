package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type blob struct {
	Key   string
	Value string
}

func TestInMemoryCacheManager_GetExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, blob]("blobs", DefaultExpiration, DefaultCleanupInterval)
	want := blob{Key: "tagsync.registry", Value: "{}"}
	cache.Set(context.Background(), "doc", want, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "doc")
	require.True(t, ok)
	require.Equal(t, want, got)
	require.Equal(t, 1, cache.ItemCount())
}

func TestInMemoryCacheManager_Miss(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("blobs", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "absent")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_WrongTypeIsMiss(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("blobs", DefaultExpiration, DefaultCleanupInterval)
	cache.cache.Set("k", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "k")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_Expiry(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("blobs", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "k", "v", 20*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := cache.Get(context.Background(), "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("blobs", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(ctx, "a", "1", DefaultExpiration)
	cache.Set(ctx, "b", "2", DefaultExpiration)
	cache.Set(ctx, "c", "3", DefaultExpiration)

	cache.Delete(ctx, "a", "b")
	_, ok := cache.Get(ctx, "a")
	require.False(t, ok)
	require.Equal(t, 1, cache.ItemCount())

	cache.Flush(ctx)
	require.Zero(t, cache.ItemCount())
}
