// Package cache holds small in-process caches for hot-path lookups.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultSize = 1024

// Cache is a bounded key/value store. Entries may be evicted at any time,
// so callers must be able to rebuild a missing value.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Len() int
}

type lruCache[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
}

// NewLRU returns a cache holding at most size entries. A non-positive ttl
// keeps entries until they are evicted by size.
func NewLRU[K comparable, V any](size int, ttl time.Duration) Cache[K, V] {
	if size <= 0 {
		size = defaultSize
	}
	return &lruCache[K, V]{lru: expirable.NewLRU[K, V](size, nil, ttl)}
}

func (c *lruCache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

func (c *lruCache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

func (c *lruCache[K, V]) Len() int {
	return c.lru.Len()
}
