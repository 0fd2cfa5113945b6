package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/your-org/authz-gateway/internal/domain"
	"github.com/your-org/authz-gateway/pkg/logger"
)

// Authorizer builds the authorization middleware for one resource server.
type Authorizer interface {
	Middleware(resourceServerID string) func(http.Handler) http.Handler
}

// Route binds a resource server prefix to its authorized upstream handler.
type Route struct {
	ResourceServer domain.ResourceServer
	Prefix         string
	Target         *url.URL
	Handler        http.Handler
}

// RouteRegistry is the static route table, built once at startup.
type RouteRegistry struct {
	routes []*Route
}

// NewRouteRegistry builds one route per resource server: strip prefix,
// authorize, proxy upstream. Duplicate ids or prefixes are rejected.
func NewRouteRegistry(servers []domain.ResourceServer, authorizer Authorizer, opts ...ProxyOption) (*RouteRegistry, error) {
	reg := &RouteRegistry{routes: make([]*Route, 0, len(servers))}
	ids := make(map[string]struct{}, len(servers))
	prefixes := make(map[string]struct{}, len(servers))

	for _, rs := range servers {
		prefix := strings.TrimRight(rs.PathPrefix, "/")
		if prefix == "" || !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("resource server %s: invalid path prefix %q", rs.ID, rs.PathPrefix)
		}
		if _, ok := ids[rs.ID]; ok {
			return nil, fmt.Errorf("duplicate resource server id %q", rs.ID)
		}
		if _, ok := prefixes[prefix]; ok {
			return nil, fmt.Errorf("duplicate path prefix %q", prefix)
		}
		ids[rs.ID] = struct{}{}
		prefixes[prefix] = struct{}{}

		target, err := url.Parse(rs.UpstreamHost)
		if err != nil {
			return nil, fmt.Errorf("resource server %s: invalid upstream URL: %w", rs.ID, err)
		}
		proxy, err := NewUpstreamProxy(rs, opts...)
		if err != nil {
			return nil, err
		}

		rs.PathPrefix = prefix
		reg.routes = append(reg.routes, &Route{
			ResourceServer: rs,
			Prefix:         prefix,
			Target:         target,
			Handler:        stripPrefix(rs, authorizer.Middleware(rs.ID)(proxy)),
		})
	}

	return reg, nil
}

// Routes returns the route table in configuration order.
func (reg *RouteRegistry) Routes() []*Route {
	return reg.routes
}

// Mount registers every route on r. chi matches mounts per path segment, so
// "/api/first" never serves "/api/firstly".
func (reg *RouteRegistry) Mount(r chi.Router) {
	for _, rt := range reg.routes {
		r.Mount(rt.Prefix, rt.Handler)
		logger.Info("route mounted",
			logger.String("resource_server", rt.ResourceServer.ID),
			logger.String("prefix", rt.Prefix),
			logger.String("upstream", rt.Target.String()),
		)
	}
}

// stripPrefix rewrites "{prefix}/{segment}" to "/{segment}" before calling next.
func stripPrefix(rs domain.ResourceServer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r2 := new(http.Request)
		*r2 = *r
		r2.URL = new(url.URL)
		*r2.URL = *r.URL
		r2.URL.Path = rs.StripPrefix(r.URL.Path)
		if r.URL.RawPath != "" {
			r2.URL.RawPath = rs.StripPrefix(r.URL.RawPath)
		}
		next.ServeHTTP(w, r2)
	})
}
