package cache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry represents a cached item with expiration
type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is an in-memory LRU cache with TTL support
type MemoryCache struct {
	cache *lru.Cache[string, *cacheEntry]
	ttl   time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMemoryCache creates a new in-memory cache holding at most size entries
func NewMemoryCache(size int, ttl time.Duration) (*MemoryCache, error) {
	return newMemoryCache(size, ttl, time.Now)
}

func newMemoryCache(size int, ttl time.Duration, now func() time.Time) (*MemoryCache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive")
	}

	cache, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, err
	}

	mc := &MemoryCache{
		cache: cache,
		ttl:   ttl,
		now:   now,
		stop:  make(chan struct{}),
	}

	mc.wg.Add(1)
	go mc.cleanupLoop()

	return mc, nil
}

// Get retrieves a value from the cache
func (mc *MemoryCache) Get(key string) ([]byte, bool) {
	entry, ok := mc.cache.Get(key)
	if !ok {
		return nil, false
	}

	if mc.now().After(entry.expiresAt) {
		mc.cache.Remove(key)
		return nil, false
	}

	return entry.data, true
}

// Set stores a value in the cache
func (mc *MemoryCache) Set(key string, value []byte) {
	mc.cache.Add(key, &cacheEntry{
		data:      value,
		expiresAt: mc.now().Add(mc.ttl),
	})
}

// Len returns the number of entries, including expired ones not yet removed
func (mc *MemoryCache) Len() int {
	return mc.cache.Len()
}

// Close stops the cleanup goroutine
func (mc *MemoryCache) Close() {
	mc.stopOnce.Do(func() {
		close(mc.stop)
	})
	mc.wg.Wait()
}

// cleanupLoop periodically removes expired entries
func (mc *MemoryCache) cleanupLoop() {
	defer mc.wg.Done()

	interval := mc.ttl / 2
	if interval <= 0 {
		interval = mc.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-mc.stop:
			return
		case <-ticker.C:
			mc.removeExpired()
		}
	}
}

// removeExpired removes all expired entries from the cache
func (mc *MemoryCache) removeExpired() {
	now := mc.now()
	for _, key := range mc.cache.Keys() {
		entry, ok := mc.cache.Peek(key)
		if ok && now.After(entry.expiresAt) {
			mc.cache.Remove(key)
		}
	}
}

// NoopCache is a cache that does nothing (used when caching is disabled)
type NoopCache struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

// Get always returns not found
func (nc *NoopCache) Get(key string) ([]byte, bool) {
	return nil, false
}

// Set does nothing
func (nc *NoopCache) Set(key string, value []byte) {}

// Len always returns 0
func (nc *NoopCache) Len() int { return 0 }

// Close does nothing
func (nc *NoopCache) Close() {}
