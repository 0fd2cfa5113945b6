package policy

import (
	"container/list"
	"regexp"
	"strings"
	"sync"

	"github.com/your-org/authz-gateway/internal/domain"
	"github.com/your-org/authz-gateway/pkg/logger"
)

// DefaultPatternCacheSize is the default maximum number of cached patterns.
const DefaultPatternCacheSize = 1000

// Matcher selects the policy governing a request: first policy whose method
// is equal and whose URI pattern equals the path or fully matches it as a
// regular expression. Compiled patterns are kept in an LRU cache.
type Matcher struct {
	mu       sync.Mutex
	cache    map[string]*patternCacheEntry
	order    *list.List // LRU order: front = most recently used
	capacity int
}

// patternCacheEntry holds a cached pattern with its LRU list element. A nil
// regex records a pattern that failed to compile.
type patternCacheEntry struct {
	regex   *regexp.Regexp
	key     string
	element *list.Element
}

// NewMatcher creates a Matcher with the default cache capacity.
func NewMatcher() *Matcher {
	return NewMatcherWithCapacity(DefaultPatternCacheSize)
}

// NewMatcherWithCapacity creates a Matcher with the given cache capacity.
func NewMatcherWithCapacity(capacity int) *Matcher {
	if capacity <= 0 {
		capacity = DefaultPatternCacheSize
	}
	return &Matcher{
		cache:    make(map[string]*patternCacheEntry),
		order:    list.New(),
		capacity: capacity,
	}
}

var defaultMatcher = NewMatcher()

// Match runs the default process-wide Matcher.
func Match(method, path string, policies []domain.Policy) *domain.Policy {
	return defaultMatcher.Match(method, path, policies)
}

// Match returns a pointer to the first policy in policies that governs
// method and path, or nil. path may carry a "?query" suffix; the literal
// comparison uses the bare path while patterns are tried against both the
// bare path and path?query.
func (m *Matcher) Match(method, path string, policies []domain.Policy) *domain.Policy {
	bare, query, hasQuery := strings.Cut(path, "?")

	for i := range policies {
		p := &policies[i]
		if p.Method != method {
			continue
		}
		if p.URIPattern == bare {
			return p
		}

		re := m.compiled(p.URIPattern)
		if re == nil {
			continue
		}
		if re.MatchString(bare) || (hasQuery && query != "" && re.MatchString(path)) {
			return p
		}
	}
	return nil
}

// compiled returns the anchored regex for pattern, or nil when pattern is
// not valid RE2 syntax.
func (m *Matcher) compiled(pattern string) *regexp.Regexp {
	m.mu.Lock()
	if entry, ok := m.cache[pattern]; ok {
		m.order.MoveToFront(entry.element)
		m.mu.Unlock()
		return entry.regex
	}
	m.mu.Unlock()

	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		logger.Debug("policy uri pattern is not a valid regular expression",
			logger.String("pattern", pattern),
			logger.Err(err),
		)
		re = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check in case another goroutine compiled it
	if existing, ok := m.cache[pattern]; ok {
		m.order.MoveToFront(existing.element)
		return existing.regex
	}

	for m.order.Len() >= m.capacity {
		m.evictOldest()
	}

	entry := &patternCacheEntry{regex: re, key: pattern}
	entry.element = m.order.PushFront(entry)
	m.cache[pattern] = entry

	return re
}

// evictOldest removes the least recently used entry from cache.
// Must be called with the lock held.
func (m *Matcher) evictOldest() {
	oldest := m.order.Back()
	if oldest == nil {
		return
	}
	entry := oldest.Value.(*patternCacheEntry)
	delete(m.cache, entry.key)
	m.order.Remove(oldest)
}

// cached returns the number of cached patterns.
func (m *Matcher) cached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
