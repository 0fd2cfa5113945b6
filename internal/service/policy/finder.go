// Package policy selects the policy governing a request.
package policy

import (
	"context"
	"strings"

	"github.com/your-org/authz-gateway/internal/domain"
	"github.com/your-org/authz-gateway/internal/service/cache"
	"github.com/your-org/authz-gateway/pkg/logger"
)

// Source fetches policies from the authentication service. Failures are
// reported as absence.
type Source interface {
	FindPolicies(ctx context.Context, resourceServerID string) []domain.Policy
	FindClient(ctx context.Context, clientID string) *domain.Client
}

// Cache memoizes matched policies.
type Cache interface {
	Resolve(ctx context.Context, key cache.Key, fetch cache.FetchFunc) *domain.Policy
}

// Finder resolves the policy for (resource server, method, path) through
// the cache, fetching and matching on a miss.
type Finder struct {
	source   Source
	cache    Cache
	matcher  *Matcher
	scope    domain.PolicyScope
	clientID string
}

// FinderOption is a functional option for configuring the finder.
type FinderOption func(*Finder)

// WithMatcher replaces the process-wide matcher.
func WithMatcher(m *Matcher) FinderOption {
	return func(f *Finder) {
		f.matcher = m
	}
}

// NewFinder creates a Finder. In ScopeClient mode every lookup goes through
// clientID; in ScopeResourceServer mode through the resource server id.
func NewFinder(source Source, c Cache, scope domain.PolicyScope, clientID string, opts ...FinderOption) *Finder {
	f := &Finder{
		source:   source,
		cache:    c,
		matcher:  defaultMatcher,
		scope:    scope,
		clientID: clientID,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find returns the policy governing the request or nil. path is the
// rewritten upstream path and may carry a "?query" suffix.
func (f *Finder) Find(ctx context.Context, resourceServerID, method, path string) *domain.Policy {
	subject := f.subject(resourceServerID)
	bare, _, _ := strings.Cut(path, "?")

	key := cache.Key{Method: method, SubjectID: subject, Path: bare}
	return f.cache.Resolve(ctx, key, func(ctx context.Context) *domain.Policy {
		return f.fetch(ctx, subject, method, path)
	})
}

func (f *Finder) subject(resourceServerID string) string {
	if f.scope == domain.ScopeClient {
		return f.clientID
	}
	return resourceServerID
}

func (f *Finder) fetch(ctx context.Context, subject, method, path string) *domain.Policy {
	var policies []domain.Policy

	switch f.scope {
	case domain.ScopeClient:
		client := f.source.FindClient(ctx, subject)
		if client == nil {
			return nil
		}
		policies = client.Policies
	default:
		policies = f.source.FindPolicies(ctx, subject)
	}

	if len(policies) == 0 {
		return nil
	}

	policy := f.matcher.Match(method, path, policies)
	if policy == nil {
		logger.WithContext(ctx).Debug("no policy matches request",
			logger.String("subject", subject),
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("policies", len(policies)),
		)
		return nil
	}

	// Detach from the fetched slice.
	matched := *policy
	return &matched
}
