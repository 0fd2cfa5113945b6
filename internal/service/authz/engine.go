// Package authz decides whether a request may reach its resource server.
//
// Evaluation is a fixed sequence: policy lookup, public check, token
// presence, introspection, then role and permission check. The first
// failing stage rejects the request; every terminal state is recorded
// exactly once.
package authz

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/internal/domain"
	"github.com/your-org/authz-gateway/pkg/httputil"
	"github.com/your-org/authz-gateway/pkg/logger"
	"github.com/your-org/authz-gateway/pkg/tracing"
)

// PolicyFinder resolves the policy governing a request.
type PolicyFinder interface {
	Find(ctx context.Context, resourceServerID, method, path string) *domain.Policy
}

// Introspector validates access tokens against the authentication service.
type Introspector interface {
	Introspect(ctx context.Context, accessToken string) *domain.Introspection
}

// DecisionRecorder receives one event per evaluation.
type DecisionRecorder interface {
	RecordDecision(resourceServer string, outcome domain.Outcome, d time.Duration)
}

// Request is the part of an inbound request the engine looks at. Path is
// the rewritten upstream path, without the resource server prefix.
type Request struct {
	ResourceServerID string
	Method           string
	Path             string
	Query            string
	Authorization    string
	RequestID        string
}

// target is the path used for policy matching, with the query when present.
func (r Request) target() string {
	if r.Query == "" {
		return r.Path
	}
	return r.Path + "?" + r.Query
}

// Engine evaluates requests. It holds no per-request state.
type Engine struct {
	finder       PolicyFinder
	introspector Introspector
	metrics      DecisionRecorder
	tracer       *tracing.Provider
	errors       *httputil.ErrorResponseWriter

	publicRequestID  bool
	forwardSessionID bool
}

// Option is a functional option for configuring the engine.
type Option func(*Engine)

// WithMetrics records every decision.
func WithMetrics(r DecisionRecorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// WithTracing wraps each evaluation in a span.
func WithTracing(p *tracing.Provider) Option {
	return func(e *Engine) {
		e.tracer = p
	}
}

// WithErrorWriter sets how rejections are written by Middleware.
func WithErrorWriter(w *httputil.ErrorResponseWriter) Option {
	return func(e *Engine) {
		e.errors = w
	}
}

// NewEngine creates an engine. Header forwarding follows cfg.
func NewEngine(finder PolicyFinder, introspector Introspector, cfg config.GatewayConfig, opts ...Option) *Engine {
	e := &Engine{
		finder:           finder,
		introspector:     introspector,
		errors:           httputil.DefaultErrorResponseWriter(),
		publicRequestID:  cfg.PublicRequestID,
		forwardSessionID: cfg.ForwardSessionID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the authorization pipeline for req.
func (e *Engine) Evaluate(ctx context.Context, req Request) (result domain.Result) {
	start := time.Now()

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.StartSpan(ctx, "authz.evaluate")
		defer func() {
			span.SetAttributes(
				tracing.AttrResourceServer.String(req.ResourceServerID),
				tracing.AttrOutcome.String(string(result.Outcome)),
			)
			if result.Policy != nil {
				span.SetAttributes(
					tracing.AttrPolicyURI.String(result.Policy.URIPattern),
					tracing.AttrPolicyPublic.Bool(result.Policy.IsPublic),
				)
			}
			if result.Outcome == domain.OutcomeProtectedAccess {
				span.SetAttributes(tracing.AttrSubjectID.String(result.Headers[domain.HeaderUserID]))
			}
			span.End()
		}()
	}

	result = e.evaluate(ctx, req)

	if e.metrics != nil {
		e.metrics.RecordDecision(req.ResourceServerID, result.Outcome, time.Since(start))
	}
	logger.WithContext(ctx).Debug("authorization decision",
		logger.String("resource_server", req.ResourceServerID),
		logger.String("method", req.Method),
		logger.String("path", req.Path),
		logger.String("outcome", string(result.Outcome)),
		logger.Int("status", result.StatusCode),
	)
	return result
}

func (e *Engine) evaluate(ctx context.Context, req Request) domain.Result {
	policy := e.finder.Find(ctx, req.ResourceServerID, req.Method, req.target())
	if policy == nil {
		return domain.Reject(domain.OutcomePolicyNotFound, nil)
	}

	if policy.IsPublic {
		headers := map[string]string{}
		if e.publicRequestID && req.RequestID != "" {
			headers[domain.HeaderRequestID] = req.RequestID
		}
		return domain.Forward(domain.OutcomePublicAccess, policy, headers)
	}

	if req.Authorization == "" {
		return domain.Reject(domain.OutcomeMissingToken, policy)
	}

	introspection := e.introspector.Introspect(ctx, req.Authorization)
	if introspection == nil {
		return domain.Reject(domain.OutcomeSessionNotFound, policy)
	}
	if !introspection.Active {
		logger.WithContext(ctx).Info("inactive session",
			logger.String("sub", introspection.SubjectID),
			logger.String("sid", introspection.SessionID),
		)
		return domain.Reject(domain.OutcomeInactiveSession, policy)
	}

	if !introspection.Authorizes(policy) {
		return domain.Reject(domain.OutcomeForbidden, policy)
	}

	headers := map[string]string{
		domain.HeaderUserID: introspection.SubjectID,
	}
	if req.RequestID != "" {
		headers[domain.HeaderRequestID] = req.RequestID
	}
	if e.forwardSessionID && introspection.SessionID != "" {
		headers[domain.HeaderSessionID] = introspection.SessionID
	}
	return domain.Forward(domain.OutcomeProtectedAccess, policy, headers)
}
