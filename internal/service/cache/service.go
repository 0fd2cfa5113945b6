package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/internal/domain"
	"github.com/your-org/authz-gateway/pkg/logger"
	"github.com/your-org/authz-gateway/pkg/tracing"
)

// Observer receives hit/miss notifications.
type Observer interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// Key identifies one cached policy lookup.
type Key struct {
	Method    string
	SubjectID string
	Path      string
}

// FetchFunc loads the policy on a miss. A nil result is never cached.
type FetchFunc func(ctx context.Context) *domain.Policy

// Service is the policy cache: read-through with a TTL, backed by a Store.
// Concurrent misses on the same key each call fetch; last write wins.
type Service struct {
	store       Store
	ttl         time.Duration
	keyPrefix   string
	includePath bool
	observer    Observer

	hits   atomic.Int64
	misses atomic.Int64
}

// NewService creates a policy cache over store.
func NewService(store Store, cfg config.CacheConfig, observer Observer) *Service {
	return &Service{
		store:       store,
		ttl:         cfg.TTL(),
		keyPrefix:   cfg.KeyPrefix,
		includePath: cfg.KeyIncludesPath,
		observer:    observer,
	}
}

// Start verifies the store and starts background maintenance.
func (s *Service) Start(ctx context.Context) error {
	switch st := s.store.(type) {
	case *MemoryStore:
		st.StartCleanup(ctx)
	case *RedisStore:
		if err := st.Ping(ctx); err != nil {
			// Not fatal: errors degrade to misses until Redis comes back.
			logger.Warn("redis cache connection failed", logger.Err(err))
		}
	}

	logger.Info("policy cache started",
		logger.String("store", s.store.Name()),
		logger.Duration("ttl", s.ttl),
		logger.Bool("key_includes_path", s.includePath),
	)
	return nil
}

// Stop releases the store.
func (s *Service) Stop() error {
	return s.store.Close()
}

// KeyFor builds the store key: prefix + method + subject [+ path].
func (s *Service) KeyFor(k Key) string {
	var b strings.Builder
	b.Grow(len(s.keyPrefix) + len(k.Method) + len(k.SubjectID) + len(k.Path))
	b.WriteString(s.keyPrefix)
	b.WriteString(k.Method)
	b.WriteString(k.SubjectID)
	if s.includePath {
		b.WriteString(k.Path)
	}
	return b.String()
}

// Resolve returns the cached policy for k, or calls fetch and stores a
// non-nil result. Store failures behave like misses and dropped writes.
func (s *Service) Resolve(ctx context.Context, k Key, fetch FetchFunc) *domain.Policy {
	key := s.KeyFor(k)

	policy, found, err := s.store.Get(ctx, key)
	if err != nil {
		logger.WithContext(ctx).Debug("policy cache get failed", logger.String("key", key), logger.Err(err))
	}
	tracing.RecordCacheLookup(ctx, s.store.Name(), found)
	if found {
		s.hits.Add(1)
		if s.observer != nil {
			s.observer.RecordCacheHit()
		}
		return policy
	}

	s.misses.Add(1)
	if s.observer != nil {
		s.observer.RecordCacheMiss()
	}

	policy = fetch(ctx)
	if policy == nil {
		return nil
	}

	if err := s.store.Set(ctx, key, policy, s.ttl); err != nil {
		logger.WithContext(ctx).Debug("policy cache set failed", logger.String("key", key), logger.Err(err))
	}
	return policy
}

// Clear removes every cached policy.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	logger.WithContext(ctx).Info("policy cache cleared", logger.String("store", s.store.Name()))
	return nil
}

// Stats holds cache statistics.
type Stats struct {
	Store    string  `json:"store"`
	Size     int     `json:"size"`
	Capacity int     `json:"capacity,omitempty"`
	TTL      string  `json:"ttl"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
}

// Stats returns cache statistics. Size is -1 when the store cannot count.
func (s *Service) Stats(ctx context.Context) Stats {
	hits, misses := s.hits.Load(), s.misses.Load()

	stats := Stats{
		Store:  s.store.Name(),
		TTL:    s.ttl.String(),
		Hits:   hits,
		Misses: misses,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}

	size, err := s.store.Len(ctx)
	if err != nil {
		logger.WithContext(ctx).Debug("policy cache size unavailable", logger.Err(err))
		size = -1
	}
	stats.Size = size

	if m, ok := s.store.(*MemoryStore); ok {
		stats.Capacity = m.Capacity()
	}
	return stats
}

// Healthy reports whether the backing store is usable.
func (s *Service) Healthy(ctx context.Context) bool {
	return s.store.Healthy(ctx)
}
