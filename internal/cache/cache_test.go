package cache

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryCache_GetSet(t *testing.T) {
	mc, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	defer mc.Close()

	_, ok := mc.Get("get:x")
	assert.False(t, ok)

	mc.Set("get:x", []byte(`{"id":"u1"}`))
	data, ok := mc.Get("get:x")
	require.True(t, ok)
	assert.Equal(t, `{"id":"u1"}`, string(data))
	assert.Equal(t, 1, mc.Len())
}

func TestMemoryCache_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	mc, err := newMemoryCache(10, time.Hour, clock.Now)
	require.NoError(t, err)
	defer mc.Close()

	mc.Set("k", []byte("1"))
	clock.Advance(30 * time.Minute)
	_, ok := mc.Get("k")
	assert.True(t, ok)

	clock.Advance(31 * time.Minute)
	_, ok = mc.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, mc.Len())
}

func TestMemoryCache_RemoveExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	mc, err := newMemoryCache(10, time.Hour, clock.Now)
	require.NoError(t, err)
	defer mc.Close()

	mc.Set("old", []byte("1"))
	clock.Advance(50 * time.Minute)
	mc.Set("new", []byte("2"))
	clock.Advance(20 * time.Minute)

	mc.removeExpired()
	assert.Equal(t, 1, mc.Len())
	_, ok := mc.Get("new")
	assert.True(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc, err := NewMemoryCache(2, time.Minute)
	require.NoError(t, err)
	defer mc.Close()

	mc.Set("a", []byte("1"))
	mc.Set("b", []byte("2"))
	mc.Get("a")
	mc.Set("c", []byte("3"))

	_, ok := mc.Get("b")
	assert.False(t, ok)
	_, ok = mc.Get("a")
	assert.True(t, ok)
}

func TestMemoryCache_InvalidConfig(t *testing.T) {
	_, err := NewMemoryCache(0, time.Minute)
	assert.Error(t, err)
	_, err = NewMemoryCache(10, 0)
	assert.Error(t, err)
}

func TestGenerateCacheKey_Normalizes(t *testing.T) {
	a := GenerateCacheKey("get", json.RawMessage(`{"id":"u1","n":1}`))
	b := GenerateCacheKey("get", json.RawMessage(`{ "n": 1, "id": "u1" }`))
	c := GenerateCacheKey("get", json.RawMessage(`{"id":"U1","n":1}`))
	d := GenerateCacheKey("getAll", json.RawMessage(`{"id":"u1","n":1}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Contains(t, a, "get:")
}

func TestGenerateCacheKey_LargeIntegers(t *testing.T) {
	a := GenerateCacheKey("get", json.RawMessage(`{"n":9007199254740993}`))
	b := GenerateCacheKey("get", json.RawMessage(`{"n":9007199254740992}`))
	assert.NotEqual(t, a, b)
}

func TestPolicy(t *testing.T) {
	p := NewPolicy([]string{"get", "getAll"})

	assert.True(t, p.IsCacheable("get"))
	assert.False(t, p.IsCacheable("delete"))
	assert.Empty(t, p.Key("delete", nil))
	assert.Equal(t, GenerateCacheKey("get", nil), p.Key("get", nil))

	var nilPolicy *Policy
	assert.False(t, nilPolicy.IsCacheable("get"))
}

func TestNoopCache(t *testing.T) {
	nc := NewNoopCache()
	nc.Set("k", []byte("v"))
	_, ok := nc.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, nc.Len())
	nc.Close()
}
