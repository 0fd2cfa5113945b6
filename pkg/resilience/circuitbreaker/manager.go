// Package circuitbreaker provides circuit breaker functionality using sony/gobreaker.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"

	"github.com/sony/gobreaker/v2"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/pkg/logger"
)

// State represents the circuit breaker state.
type State = gobreaker.State

// States
const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Option configures a Manager.
type Option func(*Manager)

// WithSuccessClassifier sets the function deciding whether an error returned
// by a protected call counts as a success. Errors it accepts are still
// returned to the caller but do not move the breaker towards open.
func WithSuccessClassifier(fn func(err error) bool) Option {
	return func(m *Manager) {
		m.isSuccessful = fn
	}
}

// WithStateChangeHook registers a callback invoked on every state transition.
func WithStateChangeHook(fn func(name string, from, to State)) Option {
	return func(m *Manager) {
		m.onStateChange = fn
	}
}

// Manager manages one circuit breaker per protected operation, all sharing
// the same settings.
type Manager struct {
	cfg           config.CircuitBreakerConfig
	isSuccessful  func(err error) bool
	onStateChange func(name string, from, to State)
	breakers      map[string]*gobreaker.CircuitBreaker[any]
	mu            sync.RWMutex
}

// NewManager creates a new circuit breaker manager.
func NewManager(cfg config.CircuitBreakerConfig, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enabled reports whether calls are protected at all.
func (m *Manager) Enabled() bool {
	return m.cfg.Enabled
}

// Get returns or creates a circuit breaker for the given name.
func (m *Manager) Get(name string) *gobreaker.CircuitBreaker[any] {
	m.mu.RLock()
	cb, exists := m.breakers[name]
	m.mu.RUnlock()

	if exists {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, exists = m.breakers[name]; exists {
		return cb
	}

	cb = m.createBreaker(name)
	m.breakers[name] = cb
	return cb
}

func (m *Manager) createBreaker(name string) *gobreaker.CircuitBreaker[any] {
	threshold := m.cfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:         name,
		MaxRequests:  m.cfg.MaxRequests,
		Interval:     m.cfg.Interval,
		Timeout:      m.cfg.Timeout,
		IsSuccessful: m.isSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				logger.String("service", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
			if m.onStateChange != nil {
				m.onStateChange(name, from, to)
			}
		},
	})
}

// Execute executes fn with circuit breaker protection. When the manager is
// disabled fn runs unprotected.
func (m *Manager) Execute(ctx context.Context, name string, fn func() (any, error)) (any, error) {
	if !m.cfg.Enabled {
		return fn()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Get(name).Execute(fn)
}

// States returns the state of every breaker created so far.
func (m *Manager) States() map[string]gobreaker.State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]gobreaker.State, len(m.breakers))
	for name, cb := range m.breakers {
		states[name] = cb.State()
	}
	return states
}

// IsRejected reports whether err was produced by the breaker itself rather
// than by the protected call.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
