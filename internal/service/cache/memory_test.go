package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/internal/domain"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemoryStore(maxSize int) (*MemoryStore, *fakeClock) {
	clock := newFakeClock()
	s := NewMemoryStore(config.MemoryCacheConfig{MaxSize: maxSize})
	s.now = clock.Now
	return s, clock
}

func testPolicy(uri string) *domain.Policy {
	return &domain.Policy{URIPattern: uri, Method: "GET", Roles: []string{"USER"}}
}

func TestMemoryStore_SetAndGet(t *testing.T) {
	s, _ := newTestMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", testPolicy("/a"), time.Hour))

	got, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "/a", got.URIPattern)

	// Returned value is a copy.
	got.URIPattern = "/mutated"
	again, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "/a", again.URIPattern)
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	s, _ := newTestMemoryStore(10)

	got, found, err := s.Get(context.Background(), "missing")

	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestMemoryStore_Get_Expired(t *testing.T) {
	s, clock := newTestMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", testPolicy("/a"), time.Hour))

	clock.Advance(59 * time.Minute)
	_, found, _ := s.Get(ctx, "k")
	assert.True(t, found)

	clock.Advance(time.Minute)
	_, found, _ = s.Get(ctx, "k")
	assert.False(t, found)

	n, _ := s.Len(ctx)
	assert.Zero(t, n)
}

func TestMemoryStore_Set_NilIgnored(t *testing.T) {
	s, _ := newTestMemoryStore(10)

	require.NoError(t, s.Set(context.Background(), "k", nil, time.Hour))

	n, _ := s.Len(context.Background())
	assert.Zero(t, n)
}

func TestMemoryStore_Set_UpdateExisting(t *testing.T) {
	s, clock := newTestMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", testPolicy("/a"), time.Minute))
	require.NoError(t, s.Set(ctx, "k", testPolicy("/b"), time.Hour))

	clock.Advance(30 * time.Minute)
	got, found, _ := s.Get(ctx, "k")
	require.True(t, found)
	assert.Equal(t, "/b", got.URIPattern)

	n, _ := s.Len(ctx)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_Eviction_LRU(t *testing.T) {
	s, _ := newTestMemoryStore(2)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", testPolicy("/a"), time.Hour))
	require.NoError(t, s.Set(ctx, "b", testPolicy("/b"), time.Hour))

	// Touch "a" so "b" becomes least recently used.
	_, _, _ = s.Get(ctx, "a")
	require.NoError(t, s.Set(ctx, "c", testPolicy("/c"), time.Hour))

	_, foundA, _ := s.Get(ctx, "a")
	_, foundB, _ := s.Get(ctx, "b")
	_, foundC, _ := s.Get(ctx, "c")
	assert.True(t, foundA)
	assert.False(t, foundB)
	assert.True(t, foundC)
}

func TestMemoryStore_Clear(t *testing.T) {
	s, _ := newTestMemoryStore(10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("k%d", i), testPolicy("/x"), time.Hour))
	}

	n, _ := s.Len(ctx)
	assert.Equal(t, 3, n)

	require.NoError(t, s.Clear(ctx))
	n, _ = s.Len(ctx)
	assert.Zero(t, n)
}

func TestMemoryStore_CleanupExpired(t *testing.T) {
	s, clock := newTestMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", testPolicy("/a"), time.Minute))
	require.NoError(t, s.Set(ctx, "long", testPolicy("/b"), time.Hour))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, s.cleanupExpired())

	n, _ := s.Len(ctx)
	assert.Equal(t, 1, n)
	assert.Zero(t, s.cleanupExpired())
}

func TestMemoryStore_StartCleanup(t *testing.T) {
	s := NewMemoryStore(config.MemoryCacheConfig{MaxSize: 10, CleanupInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Set(ctx, "k", testPolicy("/a"), time.Millisecond))
	s.StartCleanup(ctx)

	assert.Eventually(t, func() bool {
		n, _ := s.Len(ctx)
		return n == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore(config.MemoryCacheConfig{MaxSize: 50})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i*j)%80)
				_ = s.Set(ctx, key, testPolicy("/x"), time.Hour)
				_, _, _ = s.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	n, _ := s.Len(ctx)
	assert.LessOrEqual(t, n, 50)
	assert.True(t, s.Healthy(ctx))
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(config.CacheConfig{Store: StoreMemory, Memory: config.MemoryCacheConfig{MaxSize: 5}})
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, s.Name())

	s, err = NewStore(config.CacheConfig{Store: StoreRedis, Redis: config.RedisCacheConfig{Addresses: []string{"127.0.0.1:1"}}})
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, s.Name())
	assert.NoError(t, s.Close())

	_, err = NewStore(config.CacheConfig{Store: "memcached"})
	assert.Error(t, err)
}

func BenchmarkMemoryStore_Get(b *testing.B) {
	s := NewMemoryStore(config.MemoryCacheConfig{MaxSize: 1000})
	ctx := context.Background()
	_ = s.Set(ctx, "k", testPolicy("/a"), time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = s.Get(ctx, "k")
	}
}
