// Package cache provides a TTL read-through cache with pluggable storage.
//
// Freshness is decided by the cache, not the backend: an entry is stale once
// now - FetchedAt >= TTL. Backends only persist entries (and may expire them
// lazily after a retention window).
package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	logx "matchbot/pkg/logx"
)

const DefaultTTL = 10 * time.Minute

// Entry is a cached value with the time it was fetched.
type Entry[V any] struct {
	Value     V         `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store persists entries by key. Get reports ok=false on a miss.
type Store[V any] interface {
	Get(ctx context.Context, key string) (e Entry[V], ok bool, err error)
	Set(ctx context.Context, key string, e Entry[V]) error
}

// Observer receives hit/miss accounting.
type Observer interface {
	ObserveLookup(hit bool)
}

type Cache[V any] struct {
	store Store[V]
	ttl   time.Duration
	now   func() time.Time
	log   logx.Logger
	obs   Observer
	group singleflight.Group
}

type Option[V any] func(*Cache[V])

func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		if now != nil {
			c.now = now
		}
	}
}

func WithObserver[V any](o Observer) Option[V] {
	return func(c *Cache[V]) { c.obs = o }
}

func WithLogger[V any](log logx.Logger) Option[V] {
	return func(c *Cache[V]) { c.log = log }
}

func New[V any](store Store[V], ttl time.Duration, opts ...Option[V]) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache[V]{store: store, ttl: ttl, now: time.Now, log: logx.Nop()}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c
}

// Stale reports whether e has outlived the TTL at now.
func (c *Cache[V]) Stale(e Entry[V], now time.Time) bool {
	return now.Sub(e.FetchedAt) >= c.ttl
}

// GetOrPopulate returns the cached value for key while fresh. Otherwise it
// calls load; a successful result replaces the entry, a failure is returned
// and nothing is cached. Concurrent loads of one key share a single call.
//
// The shared load runs without the caller's cancellation, so one caller
// giving up never fails the others. Each caller still stops waiting when its
// own ctx ends.
func (c *Cache[V]) GetOrPopulate(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	if e, ok := c.lookup(ctx, key); ok {
		c.observe(true)
		return e.Value, nil
	}
	c.observe(false)

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// Another caller may have populated while we waited on the group.
		if e, ok := c.lookup(loadCtx, key); ok {
			return e.Value, nil
		}
		val, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(loadCtx, key, Entry[V]{Value: val, FetchedAt: c.now()}); err != nil {
			c.log.Warn("cache store failed", logx.String("key", key), logx.Err(err))
		}
		return val, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Peek returns the stored entry regardless of freshness.
func (c *Cache[V]) Peek(ctx context.Context, key string) (Entry[V], bool, error) {
	return c.store.Get(ctx, key)
}

func (c *Cache[V]) lookup(ctx context.Context, key string) (Entry[V], bool) {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil {
		// Backend trouble degrades to a miss.
		if !errors.Is(err, context.Canceled) {
			c.log.Warn("cache read failed", logx.String("key", key), logx.Err(err))
		}
		return Entry[V]{}, false
	}
	if !ok || c.Stale(e, c.now()) {
		return Entry[V]{}, false
	}
	return e, true
}

func (c *Cache[V]) observe(hit bool) {
	if c.obs != nil {
		c.obs.ObserveLookup(hit)
	}
}
