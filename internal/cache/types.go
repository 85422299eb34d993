// Package cache stores results of idempotent remote methods on the client side.
package cache

import "encoding/json"

// Cache defines the interface for RPC result caching
type Cache interface {
	// Get retrieves a cached result by key
	// Returns the cached data and true if found, nil and false otherwise
	Get(key string) ([]byte, bool)

	// Set stores a result in the cache with the given key
	Set(key string, value []byte)

	// Len returns the number of live entries
	Len() int

	// Close releases any resources held by the cache
	Close()
}

// Policy decides which calls may be served from the cache
type Policy struct {
	methods map[string]bool
}

// NewPolicy creates a policy allowing the given methods
func NewPolicy(methods []string) *Policy {
	p := &Policy{methods: make(map[string]bool, len(methods))}
	for _, m := range methods {
		p.methods[m] = true
	}
	return p
}

// IsCacheable reports whether method results may be cached
func (p *Policy) IsCacheable(method string) bool {
	if p == nil {
		return false
	}
	return p.methods[method]
}

// Key returns the cache key for a call, or "" if the call is not cacheable
func (p *Policy) Key(method string, params json.RawMessage) string {
	if !p.IsCacheable(method) {
		return ""
	}
	return GenerateCacheKey(method, params)
}
