package authz

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/your-org/authz-gateway/internal/domain"
	"github.com/your-org/authz-gateway/pkg/logger"
)

// Middleware authorizes requests for one resource server. It expects the
// resource server prefix to be stripped already. Client-supplied identity
// headers are always removed; on Forward the engine's headers are set, on
// Reject the status is written and next is not called.
func (e *Engine) Middleware(resourceServerID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range domain.IdentityHeaders {
				r.Header.Del(h)
			}

			requestID := logger.RequestIDFromContext(r.Context())
			if requestID == "" {
				requestID = uuid.NewString()
			}

			result := e.Evaluate(r.Context(), Request{
				ResourceServerID: resourceServerID,
				Method:           r.Method,
				Path:             r.URL.Path,
				Query:            r.URL.RawQuery,
				Authorization:    r.Header.Get("Authorization"),
				RequestID:        requestID,
			})

			if !result.Forwarded() {
				e.errors.WriteError(w, r, result.StatusCode)
				return
			}

			for k, v := range result.Headers {
				r.Header.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}
