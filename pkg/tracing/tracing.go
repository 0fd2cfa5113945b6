// Package tracing exports gateway spans over OTLP and names the attributes
// attached to them.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultServiceName = "authz-gateway"

// Config holds tracing configuration.
type Config struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled" jsonschema:"description=Export spans to an OTLP collector.,default=false"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint" jsonschema:"description=OTLP gRPC collector endpoint.,example=localhost:4317"`
	Insecure       bool          `mapstructure:"insecure" yaml:"insecure" jsonschema:"description=Plaintext connection to the collector.,default=true"`
	ServiceName    string        `mapstructure:"service_name" yaml:"service_name" jsonschema:"default=authz-gateway"`
	ServiceVersion string        `mapstructure:"service_version" yaml:"service_version" jsonschema:"description=Defaults to the build version."`
	Environment    string        `mapstructure:"environment" yaml:"environment" jsonschema:"default=development"`
	SampleRate     float64       `mapstructure:"sample_rate" yaml:"sample_rate" jsonschema:"description=Fraction of traces kept (0 to 1).,default=1.0"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout" jsonschema:"default=5s"`
	ExportTimeout  time.Duration `mapstructure:"export_timeout" yaml:"export_timeout" jsonschema:"default=30s"`
}

// Span attributes set by the gateway.
const (
	// Decision
	AttrResourceServer = attribute.Key("gateway.resource_server")
	AttrOutcome        = attribute.Key("gateway.outcome")
	AttrPolicyURI      = attribute.Key("gateway.policy.uri")
	AttrPolicyPublic   = attribute.Key("gateway.policy.public")
	AttrSubjectID      = attribute.Key("enduser.id")
	AttrRoute          = attribute.Key("http.route")

	// Authentication service calls
	AttrAuthOperation = attribute.Key("auth_service.operation")
	AttrAuthResult    = attribute.Key("auth_service.result")

	// Policy cache
	AttrCacheHit   = attribute.Key("gateway.cache.hit")
	AttrCacheStore = attribute.Key("gateway.cache.store")
)

// EventCacheLookup is added to the active span on every policy cache lookup.
const EventCacheLookup = "policy_cache.lookup"

// Provider owns the tracer used by the gateway. A disabled provider starts
// no spans.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider connects to the OTLP collector and installs the provider and
// W3C propagators globally.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, err
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	batch := []sdktrace.BatchSpanProcessorOption{}
	if cfg.BatchTimeout > 0 {
		batch = append(batch, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batch...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return NewProviderFromTracerProvider(tp, cfg.ServiceName), nil
}

func newExporter(ctx context.Context, cfg Config) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
	}
	if cfg.Insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	return otlptracegrpc.New(ctx, opts...)
}

// sampler maps a 0..1 rate; zero keeps everything, which is the default.
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0 || rate >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// NewProviderFromTracerProvider wraps an existing TracerProvider. The global
// provider and propagator are left untouched.
func NewProviderFromTracerProvider(tp *sdktrace.TracerProvider, name string) *Provider {
	return &Provider{tp: tp, tracer: tp.Tracer(name)}
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool {
	return p.tracer != nil
}

// StartSpan starts a span, or returns ctx unchanged with its current span
// when tracing is disabled.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if p.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.tracer.Start(ctx, name, opts...)
}

// RecordCacheLookup notes a policy cache lookup on the span active in ctx.
// It is a no-op when ctx carries no recording span.
func RecordCacheLookup(ctx context.Context, store string, hit bool) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(EventCacheLookup, trace.WithAttributes(
		AttrCacheStore.String(store),
		AttrCacheHit.Bool(hit),
	))
}

// RecordError records err on span.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
}
