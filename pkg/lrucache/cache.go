// Package lrucache is a fixed-capacity LRU cache whose entries also expire a
// fixed time after they were stored. It is safe for concurrent use.
package lrucache

import (
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp and expire entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache maps keys to values with LRU eviction past capacity and TTL expiry on
// read.
type Cache[K comparable, V any] struct {
	mu  sync.Mutex
	lru *simplelru.LRU[K, entry[V]]
	ttl time.Duration
	now func() time.Time
}

// New builds a cache holding at most capacity entries, each valid for ttl.
func New[K comparable, V any](capacity int, ttl time.Duration, opts ...Option) (*Cache[K, V], error) {
	if capacity <= 0 {
		return nil, errors.New("capacity must be positive")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	lru, err := simplelru.NewLRU[K, entry[V]](capacity, nil)
	if err != nil {
		return nil, err
	}
	return &Cache[K, V]{lru: lru, ttl: ttl, now: o.now}, nil
}

// Get returns the value for key and marks it most recently used. An entry
// older than the TTL is removed and reported as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.expired(e) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, evicting the least recently used entry when the
// cache is full.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry[V]{value: value, storedAt: c.now()})
}

// Remove drops key and reports whether it was present.
func (c *Cache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the stored keys from least to most recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Purge empties the cache.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// PurgeExpired removes every entry past its TTL and returns how many were
// dropped. Recency of the surviving entries is not touched.
func (c *Cache[K, V]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if ok && c.expired(e) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

func (c *Cache[K, V]) expired(e entry[V]) bool {
	return c.now().Sub(e.storedAt) >= c.ttl
}
