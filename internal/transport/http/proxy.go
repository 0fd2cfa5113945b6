package http

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/your-org/authz-gateway/internal/domain"
	errorresp "github.com/your-org/authz-gateway/pkg/httputil"
	"github.com/your-org/authz-gateway/pkg/logger"
)

// ProxyOption is a functional option for configuring upstream proxies.
type ProxyOption func(*proxyOptions)

type proxyOptions struct {
	transport http.RoundTripper
	errors    *errorresp.ErrorResponseWriter
}

// WithTransport replaces the upstream transport.
func WithTransport(rt http.RoundTripper) ProxyOption {
	return func(o *proxyOptions) {
		o.transport = rt
	}
}

// WithProxyErrorWriter sets how upstream failures are written.
func WithProxyErrorWriter(w *errorresp.ErrorResponseWriter) ProxyOption {
	return func(o *proxyOptions) {
		o.errors = w
	}
}

// defaultTransport creates the upstream transport.
func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewUpstreamProxy creates a reverse proxy to rs.UpstreamHost. The inbound
// path is expected to have the resource server prefix stripped already.
// Status codes and bodies from the upstream are relayed verbatim; transport
// failures become 502.
func NewUpstreamProxy(rs domain.ResourceServer, opts ...ProxyOption) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(rs.UpstreamHost)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %s: %w", rs.UpstreamHost, err)
	}

	o := proxyOptions{
		transport: defaultTransport(),
		errors:    errorresp.DefaultErrorResponseWriter(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: o.transport,
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WithContext(r.Context()).Error("proxy error",
			logger.String("resource_server", rs.ID),
			logger.String("upstream", rs.UpstreamHost),
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		o.errors.WriteError(w, r, http.StatusBadGateway)
	}

	proxy.ModifyResponse = func(resp *http.Response) error {
		if id := logger.RequestIDFromContext(resp.Request.Context()); id != "" {
			resp.Header.Set(logger.RequestIDHeader, id)
		}
		return nil
	}

	return proxy, nil
}
