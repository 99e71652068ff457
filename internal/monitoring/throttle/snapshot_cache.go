// Package throttle keeps dashboard polling from turning into node traffic.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces a fresh value.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// SnapshotCache caches the result of an expensive fan-out for a short TTL.
// Concurrent misses share a single load. A zero or negative TTL disables
// caching but still collapses concurrent loads.
type SnapshotCache[T any] struct {
	load LoadFunc[T]
	ttl  time.Duration

	group singleflight.Group

	mu       sync.RWMutex
	cached   T
	cachedAt time.Time
	valid    bool
}

// NewSnapshotCache creates a new cache with the given TTL.
func NewSnapshotCache[T any](load LoadFunc[T], ttl time.Duration) *SnapshotCache[T] {
	return &SnapshotCache[T]{load: load, ttl: ttl}
}

// Get returns the cached value if within TTL, otherwise loads a fresh one.
// Failed loads are not cached.
func (c *SnapshotCache[T]) Get(ctx context.Context) (T, error) {
	if v, ok := c.fresh(); ok {
		return v, nil
	}

	// The shared load must not die with whichever caller started it.
	loadCtx := context.WithoutCancel(ctx)
	res, err, _ := c.group.Do("snapshot", func() (any, error) {
		if v, ok := c.fresh(); ok {
			return v, nil
		}
		v, err := c.load(loadCtx)
		if err != nil {
			return v, err
		}
		c.Put(v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Put stores v as the current value. The poller uses it to prime the cache.
func (c *SnapshotCache[T]) Put(v T) {
	c.mu.Lock()
	c.cached = v
	c.cachedAt = time.Now()
	c.valid = true
	c.mu.Unlock()
}

// Age reports how old the cached value is, and false if there is none.
func (c *SnapshotCache[T]) Age() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid {
		return 0, false
	}
	return time.Since(c.cachedAt), true
}

// Invalidate clears the cache, forcing the next call to fetch fresh data.
func (c *SnapshotCache[T]) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.cachedAt = time.Time{}
	c.mu.Unlock()
}

func (c *SnapshotCache[T]) fresh() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.valid && c.ttl > 0 && time.Since(c.cachedAt) < c.ttl {
		return c.cached, true
	}
	var zero T
	return zero, false
}
