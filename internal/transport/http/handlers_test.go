package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/authz-gateway/internal/service/cache"
	"github.com/your-org/authz-gateway/pkg/resilience/circuitbreaker"
)

// mockCacheService implements CacheService for testing.
type mockCacheService struct {
	healthy  bool
	clearErr error
	cleared  int
	stats    cache.Stats
}

func (m *mockCacheService) Healthy(_ context.Context) bool {
	return m.healthy
}

func (m *mockCacheService) Clear(_ context.Context) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	m.cleared++
	return nil
}

func (m *mockCacheService) Stats(_ context.Context) cache.Stats {
	return m.stats
}

type staticBreakers map[string]circuitbreaker.State

func (s staticBreakers) States() map[string]circuitbreaker.State { return s }

func TestHandler_Health(t *testing.T) {
	h := NewHandler(&mockCacheService{healthy: false}, "1.2.3")

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
}

func TestHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		healthy    bool
		wantStatus int
		wantBody   string
	}{
		{"store healthy", true, http.StatusOK, "ready"},
		{"store down", false, http.StatusServiceUnavailable, "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&mockCacheService{healthy: tt.healthy}, "test")

			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantBody, resp.Status)
			assert.Contains(t, resp.Checks, "policy_cache")
		})
	}
}

func TestHandler_Ready_ListsBreakers(t *testing.T) {
	h := NewHandler(&mockCacheService{healthy: true}, "test",
		WithBreakers(staticBreakers{"auth_service": circuitbreaker.StateOpen}))

	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	// An open breaker is reported but does not take the gateway out of rotation.
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Checks, "circuit_breaker.auth_service")
	assert.Equal(t, "open", resp.Checks["circuit_breaker.auth_service"].Status)
	assert.NotEmpty(t, resp.Checks["circuit_breaker.auth_service"].Message)
}

func TestHandler_CacheClear(t *testing.T) {
	svc := &mockCacheService{stats: cache.Stats{Store: cache.StoreRedis}}
	h := NewHandler(svc, "test")

	rec := httptest.NewRecorder()
	h.CacheClear(rec, httptest.NewRequest(http.MethodPost, "/admin/cache/clear", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.cleared)

	var resp CacheClearResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Cleared)
	assert.Equal(t, cache.StoreRedis, resp.Store)
}

func TestHandler_CacheClear_Error(t *testing.T) {
	h := NewHandler(&mockCacheService{clearErr: errors.New("connection refused")}, "test")

	rec := httptest.NewRecorder()
	h.CacheClear(rec, httptest.NewRequest(http.MethodPost, "/admin/cache/clear", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CACHE_CLEAR_FAILED", resp.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestHandler_CacheStats(t *testing.T) {
	h := NewHandler(&mockCacheService{
		healthy: true,
		stats:   cache.Stats{Store: cache.StoreMemory, Size: 3, Capacity: 10, TTL: "1h0m0s", Hits: 3, Misses: 1, HitRate: 0.75},
	}, "test")

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/admin/cache/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp CacheStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Size)
	assert.Equal(t, 10, resp.Capacity)
	assert.Equal(t, 0.75, resp.HitRate)
	assert.True(t, resp.Healthy)
}
