package logger

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// validRequestID limits inbound request ids to something safe to log.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestIDMiddleware assigns every request a fresh UUID, stores it in the
// request context and logger, and echoes it on the response. A well-formed
// inbound X-Request-Id is kept on the logger as client_request_id only; it
// never becomes the gateway's id.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := WithRequestID(r.Context(), requestID)

		if inbound := r.Header.Get(RequestIDHeader); validRequestID.MatchString(inbound) {
			ctx = ToContext(ctx, WithContext(ctx).With(zap.String("client_request_id", inbound)))
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
