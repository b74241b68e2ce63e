package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Loader fronts a Cache with a load function. Concurrent misses for the same
// key share one call to load.
type Loader[T any] struct {
	cache Cache[T]
	group singleflight.Group
	load  func(ctx context.Context, key string) (T, error)
}

func NewLoader[T any](c Cache[T], load func(ctx context.Context, key string) (T, error)) *Loader[T] {
	return &Loader[T]{cache: c, load: load}
}

// Get returns the cached value for key, loading it on a miss. Load errors are
// not cached.
func (l *Loader[T]) Get(ctx context.Context, key string) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		gen := l.cache.Generation(key)
		v, err := l.load(ctx, key)
		if err != nil {
			return v, err
		}
		// An Invalidate during the load makes v stale for later callers.
		l.cache.SetIfGeneration(key, v, gen)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops key and forgets any in-flight load so the next Get
// reloads. A load already running still answers its own callers but its
// result is not cached.
func (l *Loader[T]) Invalidate(key string) {
	l.group.Forget(key)
	l.cache.Delete(key)
}
