// Package app provides application lifecycle management and dependency injection.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/internal/service/authclient"
	"github.com/your-org/authz-gateway/internal/service/authz"
	"github.com/your-org/authz-gateway/internal/service/cache"
	"github.com/your-org/authz-gateway/internal/service/metrics"
	"github.com/your-org/authz-gateway/internal/service/policy"
	httpTransport "github.com/your-org/authz-gateway/internal/transport/http"
	"github.com/your-org/authz-gateway/pkg/httputil"
	"github.com/your-org/authz-gateway/pkg/logger"
	"github.com/your-org/authz-gateway/pkg/resilience/circuitbreaker"
	"github.com/your-org/authz-gateway/pkg/tracing"
)

// BuildInfo holds application build information.
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

// App represents the application with all its services and dependencies.
type App struct {
	cfg *config.Config

	httpServer *httpTransport.Server
	routes     *httpTransport.RouteRegistry

	// Services
	cacheService *cache.Service
	authClient   *authclient.Client
	finder       *policy.Finder
	engine       *authz.Engine

	// Resilience components
	circuitBreaker *circuitbreaker.Manager

	// Observability
	metrics         *metrics.Recorder
	registry        *prometheus.Registry
	tracingProvider *tracing.Provider

	// Build info
	buildInfo BuildInfo
}

// Option is a functional option for configuring the App.
type Option func(*App)

// WithBuildInfo sets the build information.
func WithBuildInfo(info BuildInfo) Option {
	return func(a *App) {
		a.buildInfo = info
	}
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) {
		a.registry = reg
	}
}

// New creates a new App instance with the given configuration and options.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	app := &App{
		cfg: cfg,
		buildInfo: BuildInfo{
			Version:   "dev",
			BuildTime: "unknown",
			GitCommit: "unknown",
		},
	}

	// Apply options
	for _, opt := range opts {
		opt(app)
	}

	return app, nil
}

// Initialize initializes all application services.
func (a *App) Initialize(ctx context.Context) error {
	var err error

	// Initialize tracing
	tracingCfg := a.cfg.Tracing
	if tracingCfg.ServiceVersion == "" {
		tracingCfg.ServiceVersion = a.buildInfo.Version
	}
	a.tracingProvider, err = tracing.NewProvider(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if a.tracingProvider.Enabled() {
		logger.Info("tracing initialized",
			logger.String("endpoint", tracingCfg.Endpoint),
			logger.Float64("sample_rate", tracingCfg.SampleRate),
		)
	}

	a.metrics = metrics.NewRecorder(a.registry)

	// Circuit breaker guarding the authentication service
	a.circuitBreaker = circuitbreaker.NewManager(a.cfg.Resilience.CircuitBreaker,
		circuitbreaker.WithSuccessClassifier(authclient.IsBreakerSuccess),
		circuitbreaker.WithStateChangeHook(func(name string, _, to circuitbreaker.State) {
			a.metrics.SetCircuitState(name, int(to))
		}),
	)
	if a.circuitBreaker.Enabled() {
		a.circuitBreaker.Get(authclient.BreakerName)
		a.metrics.SetCircuitState(authclient.BreakerName, int(circuitbreaker.StateClosed))
		logger.Info("circuit breaker initialized",
			logger.Int("failure_threshold", int(a.cfg.Resilience.CircuitBreaker.FailureThreshold)),
		)
	}

	// Initialize policy cache
	store, err := cache.NewStore(a.cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache store: %w", err)
	}
	a.cacheService = cache.NewService(store, a.cfg.Cache, a.metrics)
	if err := a.cacheService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cache service: %w", err)
	}

	// Authentication service client, policy finder and engine
	a.authClient = authclient.New(a.cfg.Auth,
		authclient.WithCircuitBreaker(a.circuitBreaker),
		authclient.WithMetrics(a.metrics),
		authclient.WithTracing(a.tracingProvider),
	)
	a.finder = policy.NewFinder(a.authClient, a.cacheService, a.cfg.Gateway.Scope(), a.cfg.Gateway.ClientID)

	errorWriter := httputil.NewErrorResponseWriter(a.cfg.ErrorResponse)
	a.engine = authz.NewEngine(a.finder, a.authClient, a.cfg.Gateway,
		authz.WithMetrics(a.metrics),
		authz.WithTracing(a.tracingProvider),
		authz.WithErrorWriter(errorWriter),
	)

	// Route table
	a.routes, err = httpTransport.NewRouteRegistry(a.cfg.Gateway.ResourceServerList(), a.engine,
		httpTransport.WithProxyErrorWriter(errorWriter))
	if err != nil {
		return fmt.Errorf("failed to build routes: %w", err)
	}

	// HTTP server
	var handlerOpts []httpTransport.HandlerOption
	if a.circuitBreaker.Enabled() {
		handlerOpts = append(handlerOpts, httpTransport.WithBreakers(a.circuitBreaker))
	}
	a.httpServer = httpTransport.NewServer(
		httpTransport.ServerConfig{
			HTTP:      a.cfg.Server.HTTP,
			Endpoints: a.cfg.Endpoints,
		},
		httpTransport.NewHandler(a.cacheService, a.buildInfo.Version, handlerOpts...),
		a.routes,
		httpTransport.WithMetrics(a.metrics),
		httpTransport.WithTracing(a.tracingProvider),
	)

	logger.Info("application initialized",
		logger.String("version", a.buildInfo.Version),
		logger.String("commit", a.buildInfo.GitCommit),
		logger.String("policy_scope", a.cfg.Gateway.PolicyScope),
		logger.String("cache_store", store.Name()),
		logger.Int("resource_servers", len(a.routes.Routes())),
	)

	return nil
}

// Start starts all application services.
func (a *App) Start() error {
	if a.httpServer == nil {
		return fmt.Errorf("application is not initialized")
	}

	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("HTTP server error", logger.Err(err))
		}
	}()

	logger.Info("application started",
		logger.String("http_addr", a.cfg.Server.HTTP.Addr),
	)
	return nil
}

// Shutdown gracefully shuts down all application services.
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutting down application")

	// Stop accepting traffic first
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown HTTP server", logger.Err(err))
		}
	}

	// Stop cache service
	if a.cacheService != nil {
		if err := a.cacheService.Stop(); err != nil {
			logger.Error("failed to stop cache service", logger.Err(err))
		}
	}

	// Shutdown tracing provider (last to capture all spans)
	if a.tracingProvider != nil {
		if err := a.tracingProvider.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown tracing provider", logger.Err(err))
		}
	}

	logger.Info("application shutdown complete")
	return nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Handler()
}

// Healthy returns true if all critical services are healthy.
func (a *App) Healthy(ctx context.Context) bool {
	return a.cacheService != nil && a.cacheService.Healthy(ctx)
}

// Metrics returns the metrics recorder.
func (a *App) Metrics() *metrics.Recorder {
	return a.metrics
}
