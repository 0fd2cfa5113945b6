// Package authclient talks to the authentication service: policy discovery
// and access token introspection. Every failure collapses to absence so
// callers fail closed.
package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/internal/domain"
	"github.com/your-org/authz-gateway/internal/service/metrics"
	"github.com/your-org/authz-gateway/pkg/errors"
	"github.com/your-org/authz-gateway/pkg/logger"
	"github.com/your-org/authz-gateway/pkg/resilience/circuitbreaker"
	"github.com/your-org/authz-gateway/pkg/tracing"
)

// BreakerName names the circuit breaker guarding the authentication service.
const BreakerName = "auth_service"

// maxBodySize bounds decoded response bodies.
const maxBodySize = 1 << 20

// Recorder receives one event per outbound call.
type Recorder interface {
	RecordAuthServiceCall(operation, result string, d time.Duration)
}

// statusError is a definitive non-2xx answer from the authentication service.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// malformedError wraps a body that could not be decoded.
type malformedError struct {
	err error
}

func (e *malformedError) Error() string {
	return "malformed response body: " + e.err.Error()
}

func (e *malformedError) Unwrap() error {
	return e.err
}

// abandonedError marks a call cut short because the caller's own context
// ended. It says nothing about the authentication service.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string {
	return "caller gave up: " + e.err.Error()
}

func (e *abandonedError) Unwrap() error {
	return e.err
}

// Client is the authentication service client.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	breaker *circuitbreaker.Manager
	metrics Recorder
	tracer  *tracing.Provider
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithCircuitBreaker protects calls with the given manager. It should be
// built with IsBreakerSuccess as its success classifier.
func WithCircuitBreaker(m *circuitbreaker.Manager) Option {
	return func(cl *Client) {
		cl.breaker = m
	}
}

// WithMetrics records every call.
func WithMetrics(r Recorder) Option {
	return func(cl *Client) {
		cl.metrics = r
	}
}

// WithTracing creates a client span per call and propagates trace context.
func WithTracing(p *tracing.Provider) Option {
	return func(cl *Client) {
		cl.tracer = p
	}
}

// New creates a client for cfg.BaseURL.
func New(cfg config.AuthServiceConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConns
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Transport: transport},
		timeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsBreakerSuccess reports whether err should leave the breaker closed:
// definitive answers (4xx, undecodable bodies) are the service working, and
// calls abandoned by their caller are not held against it.
func IsBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var ae *abandonedError
	if errors.As(err, &ae) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code < http.StatusInternalServerError
	}
	var me *malformedError
	return errors.As(err, &me)
}

// FindPolicies returns the policies of a resource server, or nil on any failure.
func (c *Client) FindPolicies(ctx context.Context, resourceServerID string) []domain.Policy {
	var policies []domain.Policy
	path := "/v1/resources/" + url.PathEscape(resourceServerID) + "/policies"

	if err := c.get(ctx, metrics.OperationSearchPolicies, path, "", &policies); err != nil {
		logger.WithContext(ctx).Info("search policies failed",
			logger.String("resource_server", resourceServerID),
			logger.Err(err),
		)
		return nil
	}
	return policies
}

// FindClient returns the client record with its ordered policies, or nil on
// any failure.
func (c *Client) FindClient(ctx context.Context, clientID string) *domain.Client {
	var client domain.Client
	path := "/v1/clients/" + url.PathEscape(clientID)

	if err := c.get(ctx, metrics.OperationSearchClient, path, "", &client); err != nil {
		logger.WithContext(ctx).Info("search client failed",
			logger.String("client_id", clientID),
			logger.Err(err),
		)
		return nil
	}
	return &client
}

// Introspect validates accessToken, sent verbatim as the Authorization
// header. It returns nil on any non-success answer or failure.
func (c *Client) Introspect(ctx context.Context, accessToken string) *domain.Introspection {
	var introspection domain.Introspection

	if err := c.get(ctx, metrics.OperationIntrospect, "/v1/oauth/introspect", accessToken, &introspection); err != nil {
		logger.WithContext(ctx).Info("introspection failed",
			logger.String("token", logger.MaskToken(accessToken)),
			logger.Err(err),
		)
		return nil
	}
	return &introspection
}

// get performs one bounded GET and decodes a 2xx JSON body into out.
func (c *Client) get(ctx context.Context, operation, path, authorization string, out any) (err error) {
	start := time.Now()
	caller := ctx

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.startSpan(ctx, operation, path)
		defer func() {
			span.SetAttributes(tracing.AttrAuthResult.String(resultLabel(err)))
			tracing.RecordError(span, err)
			span.End()
		}()
	}

	call := func() (any, error) {
		err := c.do(ctx, path, authorization, out)
		if err != nil && caller.Err() != nil {
			return nil, &abandonedError{err: err}
		}
		return nil, err
	}

	if c.breaker != nil {
		_, err = c.breaker.Execute(ctx, BreakerName, call)
	} else {
		_, err = call()
	}

	if c.metrics != nil {
		c.metrics.RecordAuthServiceCall(operation, resultLabel(err), time.Since(start))
	}
	if err != nil {
		return errors.Upstream(operation, err)
	}
	return nil
}

func (c *Client) startSpan(ctx context.Context, operation, path string) (context.Context, trace.Span) {
	return c.tracer.StartSpan(ctx, "auth_service."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			tracing.AttrAuthOperation.String(operation),
			semconv.URLPath(path),
		),
	)
}

func (c *Client) do(ctx context.Context, path, authorization string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if id := logger.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(logger.RequestIDHeader, id)
	}
	if c.tracer != nil {
		tracing.InjectTraceContext(ctx, req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return &statusError{code: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return &malformedError{err: err}
	}
	return nil
}

func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultSuccess
	}
	if circuitbreaker.IsRejected(err) {
		return metrics.ResultCircuitOpen
	}
	var ae *abandonedError
	if errors.As(err, &ae) {
		return metrics.ResultAbandoned
	}
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return metrics.ResultNotFound
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return metrics.ResultTimeout
	}
	return metrics.ResultError
}
