package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/authz-gateway/internal/config"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "policies::")
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestRedisStore_SetAndGet(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "policies::GET1", testPolicy("/v1/users"), time.Hour))

	assert.True(t, mr.Exists("policies::GET1"))
	assert.Equal(t, time.Hour, mr.TTL("policies::GET1"))

	got, found, err := s.Get(ctx, "policies::GET1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "/v1/users", got.URIPattern)
	assert.Equal(t, []string{"USER"}, got.Roles)
}

func TestRedisStore_Get_Miss(t *testing.T) {
	s, _ := newTestRedisStore(t)

	got, found, err := s.Get(context.Background(), "policies::nothing")

	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestRedisStore_Get_CorruptValueIsMiss(t *testing.T) {
	s, mr := newTestRedisStore(t)
	require.NoError(t, mr.Set("policies::GET1", "not-json"))

	_, found, err := s.Get(context.Background(), "policies::GET1")

	assert.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "policies::GET1", testPolicy("/a"), time.Hour))

	mr.FastForward(59 * time.Minute)
	_, found, _ := s.Get(ctx, "policies::GET1")
	assert.True(t, found)

	mr.FastForward(2 * time.Minute)
	_, found, _ = s.Get(ctx, "policies::GET1")
	assert.False(t, found)
}

func TestRedisStore_ClearAndLen_OnlyPrefixed(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	for _, key := range []string{"policies::GET1", "policies::POST1", "policies::GET2"} {
		require.NoError(t, s.Set(ctx, key, testPolicy("/a"), time.Hour))
	}
	require.NoError(t, mr.Set("unrelated", "value"))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.Clear(ctx))

	n, err = s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	assert.True(t, s.Healthy(ctx))
	mr.Close()

	assert.False(t, s.Healthy(ctx))
	_, found, err := s.Get(ctx, "policies::GET1")
	assert.Error(t, err)
	assert.False(t, found)
	assert.Error(t, s.Set(ctx, "policies::GET1", testPolicy("/a"), time.Hour))
}

func TestNewRedisStore_SingleAddress(t *testing.T) {
	mr := miniredis.RunT(t)

	s := NewRedisStore(config.RedisCacheConfig{Addresses: []string{mr.Addr()}, PoolSize: 2}, "p::")
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	_, isSingle := s.client.(*redis.Client)
	assert.True(t, isSingle)
}
