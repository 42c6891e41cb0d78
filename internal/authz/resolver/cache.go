// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

package resolver

import (
	"container/list"
	"context"
	"sync"
)

type contextKey string

const cacheContextKey contextKey = "resolver_cache"

// DefaultCacheSize bounds the entries kept per request.
const DefaultCacheSize = 128

type cacheEntry struct {
	key   string
	value any
}

// requestCache is a small LRU shared by every lookup made for one request.
type requestCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	lru      *list.List
}

func newRequestCache(capacity int) *requestCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &requestCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (c *requestCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	entry, ok := elem.Value.(*cacheEntry)
	if !ok {
		return nil, false
	}
	return entry.value, true
}

func (c *requestCache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		if entry, ok := elem.Value.(*cacheEntry); ok {
			entry.value = value
		}
		return
	}
	c.items[key] = c.lru.PushFront(&cacheEntry{key: key, value: value})

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			if old, ok := oldest.Value.(*cacheEntry); ok {
				delete(c.items, old.key)
			}
		}
	}
}

// WithCache attaches a fresh request-scoped cache to ctx. Lookups through
// Cached resolvers share it until ctx is discarded; nothing outlives the
// request.
func WithCache(ctx context.Context) context.Context {
	if _, ok := ctx.Value(cacheContextKey).(*requestCache); ok {
		return ctx
	}
	return context.WithValue(ctx, cacheContextKey, newRequestCache(DefaultCacheSize))
}

func cacheFrom(ctx context.Context) (*requestCache, bool) {
	c, ok := ctx.Value(cacheContextKey).(*requestCache)
	return c, ok
}
