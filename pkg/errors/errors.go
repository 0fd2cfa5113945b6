package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Authorization failure taxonomy.
var (
	ErrPolicyNotFound = errors.New("policy not found")
	ErrMissingToken   = errors.New("access token is missing")
	ErrInvalidSession = errors.New("session is invalid or inactive")
	ErrForbidden      = errors.New("insufficient roles or permissions")

	// ErrUpstreamUnavailable covers network, status and decoding failures when
	// talking to the authentication service. It never leaves the client
	// boundary: callers observe it only as an absent policy or session.
	ErrUpstreamUnavailable = errors.New("authentication service unavailable")

	// Configuration errors
	ErrConfigInvalid = errors.New("invalid configuration")
)

// GatewayError represents a structured gateway error.
type GatewayError struct {
	// Code is the error code
	Code string `json:"code"`

	// Message is the error message
	Message string `json:"message"`

	// Cause is the underlying error
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// New creates a new GatewayError.
func New(code, message string, cause error) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error codes
const (
	CodePolicyNotFound      = "POLICY_NOT_FOUND"
	CodeMissingToken        = "MISSING_TOKEN"
	CodeInvalidSession      = "INVALID_SESSION"
	CodeForbidden           = "FORBIDDEN"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
)

// Upstream wraps a failure of an authentication service call.
func Upstream(operation string, cause error) *GatewayError {
	return New(CodeUpstreamUnavailable, operation, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, cause))
}

// HTTPStatus maps a taxonomy error to the status returned to the caller.
// Every authentication-stage failure maps to 401 so the failing stage is not
// observable from outside.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrPolicyNotFound),
		errors.Is(err, ErrMissingToken),
		errors.Is(err, ErrInvalidSession),
		errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
