package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/authz-gateway/internal/domain"
)

// Auth service operations.
const (
	OperationSearchPolicies = "search_policies"
	OperationSearchClient   = "search_client"
	OperationIntrospect     = "introspect"
)

// Auth service call results.
const (
	ResultSuccess     = "success"
	ResultNotFound    = "not_found"
	ResultError       = "error"
	ResultTimeout     = "timeout"
	ResultCircuitOpen = "circuit_open"
	ResultAbandoned   = "abandoned"
)

// Recorder holds all Prometheus metrics of the gateway.
type Recorder struct {
	registry *prometheus.Registry

	// Authorization metrics
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec

	// Auth service metrics
	AuthServiceRequestsTotal   *prometheus.CounterVec
	AuthServiceRequestDuration *prometheus.HistogramVec
	AuthServiceCircuitState    *prometheus.GaugeVec

	// Cache metrics
	CacheRequestsTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewRecorder creates all metrics and registers them with reg. A nil reg gets
// a fresh registry carrying the Go and process collectors.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "authorization",
				Name:      "decisions_total",
				Help:      "Total number of authorization decisions by terminal outcome",
			},
			[]string{"resource_server", "outcome"},
		),
		DecisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "authorization",
				Name:      "duration_seconds",
				Help:      "Authorization evaluation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 2},
			},
			[]string{"resource_server", "outcome"},
		),

		AuthServiceRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "auth_service",
				Name:      "requests_total",
				Help:      "Total number of authentication service calls",
			},
			[]string{"operation", "result"},
		),
		AuthServiceRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "auth_service",
				Name:      "request_duration_seconds",
				Help:      "Authentication service call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		AuthServiceCircuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "auth_service",
				Name:      "circuit_state",
				Help:      "Authentication service circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"breaker"},
		),

		CacheRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "policy_cache",
				Name:      "requests_total",
				Help:      "Total number of policy cache lookups",
			},
			[]string{"result"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

// Registry returns the registry the metrics are registered with.
func (m *Recorder) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordDecision records one terminal authorization outcome.
func (m *Recorder) RecordDecision(resourceServer string, outcome domain.Outcome, d time.Duration) {
	m.DecisionsTotal.WithLabelValues(resourceServer, string(outcome)).Inc()
	m.DecisionDuration.WithLabelValues(resourceServer, string(outcome)).Observe(d.Seconds())
}

// RecordAuthServiceCall records one authentication service call.
func (m *Recorder) RecordAuthServiceCall(operation, result string, d time.Duration) {
	m.AuthServiceRequestsTotal.WithLabelValues(operation, result).Inc()
	m.AuthServiceRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetCircuitState updates the breaker state gauge.
func (m *Recorder) SetCircuitState(breaker string, state int) {
	m.AuthServiceCircuitState.WithLabelValues(breaker).Set(float64(state))
}

// RecordCacheHit records a policy cache hit.
func (m *Recorder) RecordCacheHit() {
	m.CacheRequestsTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a policy cache miss.
func (m *Recorder) RecordCacheMiss() {
	m.CacheRequestsTotal.WithLabelValues("miss").Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Recorder) RecordHTTPRequest(route, method string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
