package domain

import (
	"net/http"

	"github.com/your-org/authz-gateway/pkg/errors"
)

// Outcome labels the terminal state of one authorization evaluation.
type Outcome string

const (
	OutcomePolicyNotFound  Outcome = "policy_not_found"
	OutcomePublicAccess    Outcome = "public_access"
	OutcomeMissingToken    Outcome = "invalid_access_token"
	OutcomeSessionNotFound Outcome = "session_not_found"
	OutcomeInactiveSession Outcome = "inactive_session"
	OutcomeProtectedAccess Outcome = "protected_access"
	OutcomeForbidden       Outcome = "forbidden"
)

// Outcomes lists every outcome in state machine order.
var Outcomes = []Outcome{
	OutcomePolicyNotFound,
	OutcomePublicAccess,
	OutcomeMissingToken,
	OutcomeSessionNotFound,
	OutcomeInactiveSession,
	OutcomeProtectedAccess,
	OutcomeForbidden,
}

// Err returns the taxonomy error behind a rejecting outcome, nil otherwise.
func (o Outcome) Err() error {
	switch o {
	case OutcomePolicyNotFound:
		return errors.ErrPolicyNotFound
	case OutcomeMissingToken:
		return errors.ErrMissingToken
	case OutcomeSessionNotFound, OutcomeInactiveSession:
		return errors.ErrInvalidSession
	case OutcomeForbidden:
		return errors.ErrForbidden
	default:
		return nil
	}
}

// Verdict is the tag of a Result.
type Verdict int

const (
	// VerdictReject ends the request with Result.StatusCode.
	VerdictReject Verdict = iota
	// VerdictForward sends the request upstream with Result.Headers applied.
	VerdictForward
)

// Identity headers set on forwarded requests.
const (
	HeaderRequestID = "X-Request-Id"
	HeaderUserID    = "X-User-Id"
	HeaderSessionID = "X-Session-Id"
)

// IdentityHeaders are removed from every inbound request before the gateway
// sets its own values, so callers cannot impersonate a subject.
var IdentityHeaders = []string{HeaderUserID, HeaderSessionID}

// Result is the outcome of the authorization pipeline:
// Forward(headers) or Reject(status).
type Result struct {
	Verdict    Verdict
	Outcome    Outcome
	StatusCode int
	Headers    map[string]string
	Policy     *Policy
}

// Forward builds a forwarding result.
func Forward(outcome Outcome, policy *Policy, headers map[string]string) Result {
	return Result{
		Verdict:    VerdictForward,
		Outcome:    outcome,
		StatusCode: http.StatusOK,
		Headers:    headers,
		Policy:     policy,
	}
}

// Reject builds a rejecting result with the status mapped from the outcome.
func Reject(outcome Outcome, policy *Policy) Result {
	return Result{
		Verdict:    VerdictReject,
		Outcome:    outcome,
		StatusCode: errors.HTTPStatus(outcome.Err()),
		Policy:     policy,
	}
}

// Forwarded reports whether the request may continue upstream.
func (r Result) Forwarded() bool {
	return r.Verdict == VerdictForward
}
