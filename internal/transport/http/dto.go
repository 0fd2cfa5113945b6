package http

import (
	"time"

	"github.com/your-org/authz-gateway/internal/service/cache"
)

// HealthResponse represents a health/readiness check response.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult represents the result of a single check.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the body of operational endpoint failures. Authorization
// rejections use httputil.ErrorResponseWriter instead.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CacheClearResponse represents the response of a cache clear.
type CacheClearResponse struct {
	Cleared   bool      `json:"cleared"`
	Store     string    `json:"store"`
	Timestamp time.Time `json:"timestamp"`
}

// CacheStatsResponse represents the policy cache statistics.
type CacheStatsResponse struct {
	Store     string    `json:"store"`
	Size      int       `json:"size"`
	Capacity  int       `json:"capacity,omitempty"`
	TTL       string    `json:"ttl"`
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	HitRate   float64   `json:"hit_rate"`
	Healthy   bool      `json:"healthy"`
	Timestamp time.Time `json:"timestamp"`
}

// FromCacheStats converts cache statistics to a response.
func FromCacheStats(s cache.Stats, healthy bool) *CacheStatsResponse {
	return &CacheStatsResponse{
		Store:     s.Store,
		Size:      s.Size,
		Capacity:  s.Capacity,
		TTL:       s.TTL,
		Hits:      s.Hits,
		Misses:    s.Misses,
		HitRate:   s.HitRate,
		Healthy:   healthy,
		Timestamp: time.Now(),
	}
}
