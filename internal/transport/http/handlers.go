package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/your-org/authz-gateway/internal/service/cache"
	"github.com/your-org/authz-gateway/pkg/logger"
	"github.com/your-org/authz-gateway/pkg/resilience/circuitbreaker"
)

// CacheService defines the policy cache operations exposed to operators.
type CacheService interface {
	Healthy(ctx context.Context) bool
	Clear(ctx context.Context) error
	Stats(ctx context.Context) cache.Stats
}

// BreakerStates reports the auth service circuit breakers.
type BreakerStates interface {
	States() map[string]circuitbreaker.State
}

// Handler serves the gateway's own endpoints.
type Handler struct {
	cache    CacheService
	breakers BreakerStates
	version  string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithBreakers lists breaker states on the readiness endpoint. They are
// informational: an open breaker does not make the gateway unready.
func WithBreakers(b BreakerStates) HandlerOption {
	return func(h *Handler) {
		h.breakers = b
	}
}

// NewHandler creates a new Handler.
func NewHandler(cacheService CacheService, version string, opts ...HandlerOption) *Handler {
	h := &Handler{
		cache:   cacheService,
		version: version,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles liveness checks. It never depends on collaborators.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, &HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now(),
	})
}

// Ready reports whether the policy cache store is usable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]CheckResult)

	status, statusCode := "ready", http.StatusOK
	if h.cache.Healthy(r.Context()) {
		checks["policy_cache"] = CheckResult{Status: "healthy"}
	} else {
		checks["policy_cache"] = CheckResult{Status: "unhealthy", Message: "policy cache store unavailable"}
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}

	if h.breakers != nil {
		for name, state := range h.breakers.States() {
			check := CheckResult{Status: state.String()}
			if state == circuitbreaker.StateOpen {
				check.Message = "auth service calls short-circuited"
			}
			checks["circuit_breaker."+name] = check
		}
	}

	h.writeJSON(w, statusCode, &HealthResponse{
		Status:    status,
		Checks:    checks,
		Version:   h.version,
		Timestamp: time.Now(),
	})
}

// CacheClear handles POST of the cache clear endpoint.
func (h *Handler) CacheClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := logger.RequestIDFromContext(ctx)
	stats := h.cache.Stats(ctx)

	if err := h.cache.Clear(ctx); err != nil {
		logger.WithContext(ctx).Error("policy cache clear failed", logger.Err(err))
		h.writeError(w, http.StatusInternalServerError, "CACHE_CLEAR_FAILED", "failed to clear policy cache", requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, &CacheClearResponse{
		Cleared:   true,
		Store:     stats.Store,
		Timestamp: time.Now(),
	})
}

// CacheStats handles GET of the cache stats endpoint.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.writeJSON(w, http.StatusOK, FromCacheStats(h.cache.Stats(ctx), h.cache.Healthy(ctx)))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.Err(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	h.writeJSON(w, status, &ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID,
	})
}
