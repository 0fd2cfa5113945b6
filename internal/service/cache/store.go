// Package cache memoizes matched policies per (method, subject) key.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/internal/domain"
)

// Store names.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Store is a key/value backing store for policies. A miss is reported as
// (nil, false, nil); errors are reserved for the store being unusable.
type Store interface {
	Get(ctx context.Context, key string) (*domain.Policy, bool, error)
	Set(ctx context.Context, key string, policy *domain.Policy, ttl time.Duration) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Healthy(ctx context.Context) bool
	Close() error
	Name() string
}

// NewStore builds the store selected by cfg.Store.
func NewStore(cfg config.CacheConfig) (Store, error) {
	switch cfg.Store {
	case StoreMemory, "":
		return NewMemoryStore(cfg.Memory), nil
	case StoreRedis:
		return NewRedisStore(cfg.Redis, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown cache store %q", cfg.Store)
	}
}
