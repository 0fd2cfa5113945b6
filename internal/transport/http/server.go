package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/internal/service/metrics"
	"github.com/your-org/authz-gateway/pkg/logger"
	"github.com/your-org/authz-gateway/pkg/tracing"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	handler    *Handler
	routes     *RouteRegistry
	metrics    *metrics.Recorder
	tracer     *tracing.Provider
	cfg        config.HTTPServerConfig
	endpoints  config.EndpointsConfig
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics records HTTP metrics and serves the metrics endpoint from m.
func WithMetrics(m *metrics.Recorder) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTracing adds server spans for every request.
func WithTracing(p *tracing.Provider) ServerOption {
	return func(s *Server) {
		s.tracer = p
	}
}

// ServerConfig holds all configuration needed for the HTTP server.
type ServerConfig struct {
	HTTP      config.HTTPServerConfig
	Endpoints config.EndpointsConfig
}

// NewServer creates a new HTTP server.
func NewServer(cfg ServerConfig, handler *Handler, routes *RouteRegistry, opts ...ServerOption) *Server {
	server := &Server{
		handler:   handler,
		routes:    routes,
		cfg:       cfg.HTTP,
		endpoints: cfg.Endpoints,
	}

	// Apply functional options
	for _, opt := range opts {
		opt(server)
	}

	router := chi.NewRouter()

	// Middleware stack (order matters)
	router.Use(logger.RequestIDMiddleware)
	router.Use(middleware.RealIP)
	if server.tracer != nil && server.tracer.Enabled() {
		router.Use(tracing.Middleware(server.tracer))
	}
	router.Use(middleware.Recoverer)
	router.Use(requestLogger)
	if server.metrics != nil {
		router.Use(server.metrics.HTTPMiddleware)
	}

	server.registerRoutes(router)

	server.httpServer = &http.Server{
		Addr:           cfg.HTTP.Addr,
		Handler:        router,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	return server
}

// registerRoutes registers operational endpoints, then resource server routes.
func (s *Server) registerRoutes(r chi.Router) {
	ep := s.endpoints
	h := s.handler

	if ep.Health != "" {
		r.Get(ep.Health, h.Health)
	}
	if ep.Ready != "" {
		r.Get(ep.Ready, h.Ready)
	}
	if ep.Metrics != "" && s.metrics != nil {
		r.Handle(ep.Metrics, s.metrics.Handler())
	}

	if ep.AdminEnabled {
		if ep.CacheClear != "" {
			r.Post(ep.CacheClear, h.CacheClear)
		}
		if ep.CacheStats != "" {
			r.Get(ep.CacheStats, h.CacheStats)
		}
	}

	if s.routes != nil {
		s.routes.Mount(r)
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logger.Info("starting HTTP server",
		logger.String("addr", s.cfg.Addr),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Serve serves on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	if err := s.httpServer.Serve(l); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger is a middleware that logs HTTP requests.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(start)),
			logger.String("remote_addr", r.RemoteAddr),
		}
		if traceID := tracing.TraceIDFromContext(r.Context()); traceID != "" {
			fields = append(fields, logger.String("trace_id", traceID))
		}
		logger.WithContext(r.Context()).Info("http request", fields...)
	})
}
