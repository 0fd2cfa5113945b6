package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/internal/domain"
	"github.com/your-org/authz-gateway/pkg/logger"
)

// MemoryStore implements an in-memory LRU store with per-entry TTL.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	cleanup  time.Duration
	items    map[string]*list.Element
	order    *list.List // LRU order
	now      func() time.Time
}

// memoryEntry represents a single cache entry.
type memoryEntry struct {
	key       string
	policy    domain.Policy
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(cfg config.MemoryCacheConfig) *MemoryStore {
	return &MemoryStore{
		capacity: cfg.MaxSize,
		cleanup:  cfg.CleanupInterval,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Name returns the store name.
func (s *MemoryStore) Name() string {
	return StoreMemory
}

// Get retrieves a policy from the store.
func (s *MemoryStore) Get(_ context.Context, key string) (*domain.Policy, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}

	entry := elem.Value.(*memoryEntry)
	if !s.now().Before(entry.expiresAt) {
		s.removeElement(elem)
		return nil, false, nil
	}

	s.order.MoveToFront(elem)

	// Return a copy to prevent mutation
	policy := entry.policy
	return &policy, true, nil
}

// Set stores a policy with the given TTL.
func (s *MemoryStore) Set(_ context.Context, key string, policy *domain.Policy, ttl time.Duration) error {
	if policy == nil || s.capacity <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(ttl)

	if elem, ok := s.items[key]; ok {
		s.order.MoveToFront(elem)
		entry := elem.Value.(*memoryEntry)
		entry.policy = *policy
		entry.expiresAt = expiresAt
		return nil
	}

	if s.order.Len() >= s.capacity {
		s.evictOldest()
	}

	elem := s.order.PushFront(&memoryEntry{
		key:       key,
		policy:    *policy,
		expiresAt: expiresAt,
	})
	s.items[key] = elem
	return nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.order.Init()
	return nil
}

// Len returns the number of stored entries, expired ones included until
// the next cleanup.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.order.Len(), nil
}

// Capacity returns the maximum number of entries.
func (s *MemoryStore) Capacity() int {
	return s.capacity
}

// Healthy always reports true.
func (s *MemoryStore) Healthy(context.Context) bool {
	return true
}

// Close is a no-op; the cleanup goroutine stops with its context.
func (s *MemoryStore) Close() error {
	return nil
}

// StartCleanup starts a background goroutine removing expired entries.
func (s *MemoryStore) StartCleanup(ctx context.Context) {
	if s.cleanup <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.cleanup)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired()
			}
		}
	}()

	logger.Debug("memory cache cleanup started", logger.Duration("interval", s.cleanup))
}

func (s *MemoryStore) evictOldest() {
	if elem := s.order.Back(); elem != nil {
		s.removeElement(elem)
	}
}

func (s *MemoryStore) removeElement(elem *list.Element) {
	s.order.Remove(elem)
	delete(s.items, elem.Value.(*memoryEntry).key)
}

func (s *MemoryStore) cleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var toRemove []*list.Element

	for elem := s.order.Back(); elem != nil; elem = elem.Prev() {
		if !now.Before(elem.Value.(*memoryEntry).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		s.removeElement(elem)
	}

	if len(toRemove) > 0 {
		logger.Debug("memory cache cleanup completed", logger.Int("removed", len(toRemove)))
	}
	return len(toRemove)
}
