package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache serves reads from a CacheManager and falls back to a loader on miss.
// Loader errors are returned as-is and never cached.
type ReadThroughCache[K ~string, V any] struct {
	cache   CacheManager[K, V]
	load    func(ctx context.Context, key K) (V, error)
	ttl     time.Duration
	sliding bool
	skip    bool
}

// ReadThroughOptions tunes a ReadThroughCache.
type ReadThroughOptions struct {
	TTL time.Duration
	// Sliding restarts an entry's TTL on every hit.
	Sliding bool
	// Disabled bypasses the cache and always calls the loader.
	Disabled bool
}

func NewReadThroughCache[K ~string, V any](
	cache CacheManager[K, V],
	load func(ctx context.Context, key K) (V, error),
	opts ReadThroughOptions,
) *ReadThroughCache[K, V] {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &ReadThroughCache[K, V]{
		cache:   cache,
		load:    load,
		ttl:     ttl,
		sliding: opts.Sliding,
		skip:    opts.Disabled,
	}
}

func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if r.skip {
		return r.load(ctx, key)
	}

	var (
		value V
		ok    bool
	)
	if r.sliding {
		value, ok = r.cache.GetWithRefresh(ctx, key, r.ttl)
	} else {
		value, ok = r.cache.Get(ctx, key)
	}
	if ok {
		return value, nil
	}

	value, err := r.load(ctx, key)
	if err != nil {
		return value, err
	}
	r.cache.Set(ctx, key, value, r.ttl)
	return value, nil
}

// Put stores a value the caller just wrote to the backing source.
func (r *ReadThroughCache[K, V]) Put(ctx context.Context, key K, value V) {
	if r.skip {
		return
	}
	r.cache.Set(ctx, key, value, r.ttl)
}

// Invalidate drops keys so the next Get reloads them.
func (r *ReadThroughCache[K, V]) Invalidate(ctx context.Context, keys ...K) {
	r.cache.Delete(ctx, keys...)
}
