package httputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/pkg/logger"
)

// ErrorData holds the fields of a rejection body.
type ErrorData struct {
	StatusCode int       `json:"status"`
	Status     string    `json:"-"`
	Message    string    `json:"message"`
	RequestID  string    `json:"request_id,omitempty"`
	Path       string    `json:"path,omitempty"`
	Method     string    `json:"method,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorResponseWriter writes rejection responses in the configured format.
type ErrorResponseWriter struct {
	format string
	now    func() time.Time
}

// NewErrorResponseWriter creates a new error response writer.
func NewErrorResponseWriter(cfg config.ErrorResponseConfig) *ErrorResponseWriter {
	return &ErrorResponseWriter{
		format: cfg.Format,
		now:    time.Now,
	}
}

// WriteError writes a rejection with statusCode. The body only carries the
// status text, so every 401 looks the same whichever stage rejected it.
func (w *ErrorResponseWriter) WriteError(rw http.ResponseWriter, r *http.Request, statusCode int) {
	data := w.buildErrorData(r, statusCode)

	switch w.format {
	case config.ErrorFormatNone:
		rw.WriteHeader(data.StatusCode)
	case config.ErrorFormatText:
		w.writeText(rw, data)
	default:
		w.writeJSON(rw, data)
	}
}

func (w *ErrorResponseWriter) buildErrorData(r *http.Request, statusCode int) ErrorData {
	return ErrorData{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Message:    http.StatusText(statusCode),
		RequestID:  getRequestID(r),
		Path:       r.URL.Path,
		Method:     r.Method,
		Timestamp:  w.now().UTC(),
	}
}

func (w *ErrorResponseWriter) writeJSON(rw http.ResponseWriter, data ErrorData) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(data.StatusCode)

	response := map[string]any{
		"error":     toSnakeCase(data.Status),
		"status":    data.StatusCode,
		"message":   data.Message,
		"path":      data.Path,
		"method":    data.Method,
		"timestamp": data.Timestamp.Format(time.RFC3339),
	}
	if data.RequestID != "" {
		response["request_id"] = data.RequestID
	}

	if err := json.NewEncoder(rw).Encode(response); err != nil {
		logger.Debug("failed to write error response", logger.Err(err))
	}
}

func (w *ErrorResponseWriter) writeText(rw http.ResponseWriter, data ErrorData) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(data.StatusCode)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %s", data.StatusCode, data.Message)
	if data.RequestID != "" {
		fmt.Fprintf(&buf, " [request_id=%s]", data.RequestID)
	}
	buf.WriteString("\n")
	_, _ = buf.WriteTo(rw)
}

// getRequestID prefers the id assigned by the request id middleware.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(logger.RequestIDHeader)
}

// toSnakeCase converts "Bad Request" to "bad_request".
func toSnakeCase(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}

// DefaultErrorResponseWriter returns a writer with the JSON format.
func DefaultErrorResponseWriter() *ErrorResponseWriter {
	return NewErrorResponseWriter(config.ErrorResponseConfig{Format: config.ErrorFormatJSON})
}
