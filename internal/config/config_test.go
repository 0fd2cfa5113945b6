package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/your-org/authz-gateway/internal/domain"
	gwerrors "github.com/your-org/authz-gateway/pkg/errors"
)

const minimalConfig = `
auth:
  base_url: http://auth:8080
gateway:
  resource_servers:
    - id: "1"
      path_prefix: /api/first
      upstream_host: http://first:8080
`

// writeConfig writes content to a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// validConfig returns a configuration that passes validation.
func validConfig() *Config {
	return &Config{
		Endpoints: EndpointsConfig{
			Health:       "/health",
			Ready:        "/ready",
			Metrics:      "/metrics",
			AdminEnabled: true,
			CacheClear:   "/admin/cache/clear",
			CacheStats:   "/admin/cache/stats",
		},
		Gateway: GatewayConfig{
			PolicyScope: string(domain.ScopeResourceServer),
			ResourceServers: []ResourceServerConfig{
				{ID: "1", PathPrefix: "/api/first", UpstreamHost: "http://first:8080"},
				{ID: "2", PathPrefix: "/api/second", UpstreamHost: "http://second:8080"},
			},
		},
		Auth:          AuthServiceConfig{BaseURL: "http://auth:8080", Timeout: time.Second},
		Cache:         CacheConfig{Store: "memory", TTLHours: 1, Memory: MemoryCacheConfig{MaxSize: 10}},
		ErrorResponse: ErrorResponseConfig{Format: ErrorFormatJSON},
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	// Server defaults
	assert.Equal(t, ":8080", cfg.Server.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.HTTP.ShutdownTimeout)
	assert.Equal(t, 1<<20, cfg.Server.HTTP.MaxHeaderBytes)

	// Gateway defaults
	assert.Equal(t, domain.ScopeResourceServer, cfg.Gateway.Scope())
	assert.True(t, cfg.Gateway.PublicRequestID)
	assert.True(t, cfg.Gateway.ForwardSessionID)

	// Auth defaults
	assert.Equal(t, 2*time.Second, cfg.Auth.Timeout)

	// Cache defaults
	assert.Equal(t, "memory", cfg.Cache.Store)
	assert.Equal(t, time.Hour, cfg.Cache.TTL())
	assert.Equal(t, "policies::", cfg.Cache.KeyPrefix)
	assert.False(t, cfg.Cache.KeyIncludesPath)
	assert.Equal(t, 10000, cfg.Cache.Memory.MaxSize)

	// Resilience defaults
	assert.False(t, cfg.Resilience.CircuitBreaker.Enabled)
	assert.Equal(t, uint32(5), cfg.Resilience.CircuitBreaker.FailureThreshold)

	// Endpoints and logging defaults
	assert.Equal(t, "/metrics", cfg.Endpoints.Metrics)
	assert.Equal(t, "json", cfg.ErrorResponse.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_CustomValues(t *testing.T) {
	content := `
server:
  http:
    addr: ":9000"
auth:
  base_url: https://auth.internal
  timeout: 500ms
cache:
  store: redis
  ttl_hours: 6
  redis:
    addresses: ["redis:6379"]
gateway:
  policy_scope: client
  client_id: gateway-client
  forward_session_id: false
  resource_servers:
    - id: users
      path_prefix: /api/users/
      upstream_host: http://users:8080
    - id: orders
      path_prefix: /api/orders
      upstream_host: http://orders:8080
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.HTTP.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Auth.Timeout)
	assert.Equal(t, "redis", cfg.Cache.Store)
	assert.Equal(t, 6*time.Hour, cfg.Cache.TTL())
	assert.Equal(t, []string{"redis:6379"}, cfg.Cache.Redis.Addresses)
	assert.Equal(t, domain.ScopeClient, cfg.Gateway.Scope())
	assert.Equal(t, "gateway-client", cfg.Gateway.ClientID)
	assert.False(t, cfg.Gateway.ForwardSessionID)

	servers := cfg.Gateway.ResourceServerList()
	require.Len(t, servers, 2)
	assert.Equal(t, domain.ResourceServer{ID: "users", PathPrefix: "/api/users", UpstreamHost: "http://users:8080"}, servers[0])
	assert.Equal(t, "orders", servers[1].ID)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("GATEWAY_AUTH_BASE_URL", "http://auth-from-env:9000")
	t.Setenv("GATEWAY_CACHE_TTL_HOURS", "12")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://auth-from-env:9000", cfg.Auth.BaseURL)
	assert.Equal(t, 12*time.Hour, cfg.Cache.TTL())
}

func TestLoad_InvalidConfig(t *testing.T) {
	content := `
gateway:
  resource_servers: []
`
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, err.Error(), "auth.base_url")
	assert.Contains(t, err.Error(), "gateway.resource_servers")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "relative auth url",
			mutate: func(c *Config) { c.Auth.BaseURL = "auth:8080" },
			field:  "auth.base_url",
		},
		{
			name:   "zero timeout",
			mutate: func(c *Config) { c.Auth.Timeout = 0 },
			field:  "auth.timeout",
		},
		{
			name:   "zero ttl",
			mutate: func(c *Config) { c.Cache.TTLHours = 0 },
			field:  "cache.ttl_hours",
		},
		{
			name:   "unknown store",
			mutate: func(c *Config) { c.Cache.Store = "memcached" },
			field:  "cache.store",
		},
		{
			name: "redis without addresses",
			mutate: func(c *Config) {
				c.Cache.Store = "redis"
				c.Cache.Redis.Addresses = nil
			},
			field: "cache.redis.addresses",
		},
		{
			name:   "unknown scope",
			mutate: func(c *Config) { c.Gateway.PolicyScope = "tenant" },
			field:  "gateway.policy_scope",
		},
		{
			name:   "client scope without client id",
			mutate: func(c *Config) { c.Gateway.PolicyScope = string(domain.ScopeClient) },
			field:  "gateway.client_id",
		},
		{
			name:   "duplicate ids",
			mutate: func(c *Config) { c.Gateway.ResourceServers[1].ID = "1" },
			field:  "gateway.resource_servers",
		},
		{
			name:   "duplicate prefixes",
			mutate: func(c *Config) { c.Gateway.ResourceServers[1].PathPrefix = "/api/first/" },
			field:  "gateway.resource_servers",
		},
		{
			name:   "prefix without slash",
			mutate: func(c *Config) { c.Gateway.ResourceServers[0].PathPrefix = "api" },
			field:  "gateway.resource_servers[0].path_prefix",
		},
		{
			name:   "root prefix",
			mutate: func(c *Config) { c.Gateway.ResourceServers[0].PathPrefix = "/" },
			field:  "gateway.resource_servers[0].path_prefix",
		},
		{
			name:   "prefix shadows admin endpoint",
			mutate: func(c *Config) { c.Gateway.ResourceServers[0].PathPrefix = "/admin" },
			field:  "gateway.resource_servers[0].path_prefix",
		},
		{
			name:   "invalid upstream",
			mutate: func(c *Config) { c.Gateway.ResourceServers[0].UpstreamHost = "first:8080" },
			field:  "gateway.resource_servers[0].upstream_host",
		},
		{
			name:   "unknown error format",
			mutate: func(c *Config) { c.ErrorResponse.Format = "xml" },
			field:  "error_response.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)

			assert.ErrorIs(t, err, gwerrors.ErrConfigInvalid)

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)

			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_AdminDisabledFreesPrefix(t *testing.T) {
	cfg := validConfig()
	cfg.Endpoints.AdminEnabled = false
	cfg.Gateway.ResourceServers[0].PathPrefix = "/admin"

	assert.NoError(t, Validate(cfg))
}

func TestConfig_YAML_RedactsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Redis.Password = "s3cret"

	data, err := cfg.YAML()
	require.NoError(t, err)

	assert.NotContains(t, string(data), "s3cret")
	assert.Equal(t, "s3cret", cfg.Cache.Redis.Password)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "gateway")
}
