// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

// Package cache provides a thread-safe in-memory TTL cache.
//
// The broker runs three independent instances: request state (10 minutes),
// fetch tokens (5 minutes before completion, 30 seconds after), and access
// tokens (upstream validity minus 10 seconds). Entries are checked for
// expiration on read, and a background sweep removes stale entries so the
// maps do not grow unbounded between reads.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is applied by Set when no explicit TTL is given.
const DefaultTTL = 15 * time.Minute

// sweepInterval controls how often the background cleanup runs.
const sweepInterval = time.Minute

// entry is a cached value with its expiration deadline.
type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Cache is a string-keyed TTL cache holding values of type T.
// Safe for concurrent use by any number of request handlers.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	ttl     time.Duration

	statsMu sync.Mutex
	stats   Stats
}

// Stats tracks cache effectiveness counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// New creates a cache whose Set default TTL is the given duration.
// A zero or negative ttl falls back to DefaultTTL. The background sweep
// goroutine runs for the cache lifetime; caches are created once at startup
// and live as long as the process.
func New[T any](ttl time.Duration) *Cache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache[T]{
		entries: make(map[string]entry[T]),
		ttl:     ttl,
	}
	go c.sweepLoop()
	return c
}

// Get returns the value stored under key, or the zero value and false when
// the key is unknown or its TTL has elapsed. Expired entries are removed on
// read.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	var zero T
	if !ok {
		c.recordMiss()
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, still := c.entries[key]; still && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.recordMiss()
		return zero, false
	}
	c.recordHit()
	return e.value, true
}

// Has reports whether key currently resolves to a live entry.
func (c *Cache[T]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set stores value under key with the cache's default TTL, overwriting any
// previous entry.
func (c *Cache[T]) Set(key string, value T) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL, overwriting any
// previous entry and resetting its deadline.
func (c *Cache[T]) SetWithTTL(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	c.entries[key] = entry[T]{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Delete removes key. No-op when the key is absent.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries currently held, including entries whose
// TTL has elapsed but which have not been swept yet.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetStats returns a snapshot of the effectiveness counters.
func (c *Cache[T]) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// sweepLoop periodically removes expired entries.
func (c *Cache[T]) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.sweep()
	}
}

// sweep removes all expired entries.
func (c *Cache[T]) sweep() {
	now := time.Now()
	c.mu.Lock()
	var evicted int64
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	c.mu.Unlock()

	if evicted > 0 {
		c.statsMu.Lock()
		c.stats.Evictions += evicted
		c.statsMu.Unlock()
	}
}

func (c *Cache[T]) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
}

func (c *Cache[T]) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
}
