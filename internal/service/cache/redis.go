package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/internal/domain"
	"github.com/your-org/authz-gateway/pkg/logger"
)

const scanBatch = 100

// RedisStore keeps policies as JSON values with a Redis-side TTL, so every
// gateway replica shares one cache.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a Redis store. Several addresses select a cluster
// client. keyPrefix scopes Clear and Len.
func NewRedisStore(cfg config.RedisCacheConfig, keyPrefix string) *RedisStore {
	var client redis.UniversalClient

	if len(cfg.Addresses) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addresses,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	} else {
		addr := "localhost:6379"
		if len(cfg.Addresses) > 0 {
			addr = cfg.Addresses[0]
		}
		client = redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	return NewRedisStoreFromClient(client, keyPrefix)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// Name returns the store name.
func (s *RedisStore) Name() string {
	return StoreRedis
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get retrieves a policy from Redis. Undecodable values count as misses.
func (s *RedisStore) Get(ctx context.Context, key string) (*domain.Policy, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var policy domain.Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		logger.Debug("redis cache unmarshal error", logger.String("key", key), logger.Err(err))
		return nil, false, nil
	}

	return &policy, true, nil
}

// Set stores a policy with the given TTL in a single SET command.
func (s *RedisStore) Set(ctx context.Context, key string, policy *domain.Policy, ttl time.Duration) error {
	if policy == nil {
		return nil
	}

	data, err := json.Marshal(policy)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, data, ttl).Err()
}

// Clear removes all keys with the configured prefix. Keys are deleted one
// command each inside a pipeline so cluster slots never mix.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.scan(ctx, func(keys []string) error {
		pipe := s.client.Pipeline()
		for _, key := range keys {
			pipe.Del(ctx, key)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Len counts keys with the configured prefix.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	err := s.scan(ctx, func(keys []string) error {
		n += len(keys)
		return nil
	})
	return n, err
}

// scan calls fn with batches of prefixed keys, visiting every master when
// the client is a cluster client.
func (s *RedisStore) scan(ctx context.Context, fn func(keys []string) error) error {
	cluster, ok := s.client.(*redis.ClusterClient)
	if !ok {
		return scanNode(ctx, s.client, s.keyPrefix, fn)
	}

	var mu sync.Mutex
	return cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		return scanNode(ctx, node, s.keyPrefix, func(keys []string) error {
			mu.Lock()
			defer mu.Unlock()
			return fn(keys)
		})
	})
}

func scanNode(ctx context.Context, client redis.Cmdable, prefix string, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			return err
		}

		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Healthy checks if Redis is reachable.
func (s *RedisStore) Healthy(ctx context.Context) bool {
	return s.Ping(ctx) == nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
