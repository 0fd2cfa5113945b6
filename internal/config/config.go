package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/your-org/authz-gateway/internal/domain"
	"github.com/your-org/authz-gateway/pkg/logger"
	"github.com/your-org/authz-gateway/pkg/tracing"
)

// EnvPrefix prefixes environment variable overrides (GATEWAY_AUTH_BASE_URL, ...).
const EnvPrefix = "GATEWAY"

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" yaml:"server" jsonschema:"description=HTTP listener settings."`
	Endpoints     EndpointsConfig     `mapstructure:"endpoints" yaml:"endpoints" jsonschema:"description=Operational endpoint paths."`
	Gateway       GatewayConfig       `mapstructure:"gateway" yaml:"gateway" jsonschema:"description=Resource servers and policy scoping."`
	Auth          AuthServiceConfig   `mapstructure:"auth" yaml:"auth" jsonschema:"description=Authentication service client."`
	Cache         CacheConfig         `mapstructure:"cache" yaml:"cache" jsonschema:"description=Policy cache."`
	Resilience    ResilienceConfig    `mapstructure:"resilience" yaml:"resilience" jsonschema:"description=Protection of authentication service calls."`
	ErrorResponse ErrorResponseConfig `mapstructure:"error_response" yaml:"error_response" jsonschema:"description=Body format of 401/403 responses."`
	Tracing       tracing.Config      `mapstructure:"tracing" yaml:"tracing" jsonschema:"description=OpenTelemetry tracing."`
	Logging       logger.Config       `mapstructure:"logging" yaml:"logging" jsonschema:"description=Application logging."`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	HTTP HTTPServerConfig `mapstructure:"http" yaml:"http"`
}

// HTTPServerConfig holds HTTP server configuration.
type HTTPServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" jsonschema:"default=:8080"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes" yaml:"max_header_bytes"`
}

// EndpointsConfig holds the paths of gateway-owned endpoints. They must not
// overlap any resource server prefix.
type EndpointsConfig struct {
	Health       string `mapstructure:"health" yaml:"health" jsonschema:"default=/health"`
	Ready        string `mapstructure:"ready" yaml:"ready" jsonschema:"default=/ready"`
	Metrics      string `mapstructure:"metrics" yaml:"metrics" jsonschema:"default=/metrics"`
	AdminEnabled bool   `mapstructure:"admin_enabled" yaml:"admin_enabled" jsonschema:"default=true"`
	CacheClear   string `mapstructure:"cache_clear" yaml:"cache_clear" jsonschema:"default=/admin/cache/clear"`
	CacheStats   string `mapstructure:"cache_stats" yaml:"cache_stats" jsonschema:"default=/admin/cache/stats"`
}

// GatewayConfig holds the route table and the policy scoping mode.
type GatewayConfig struct {
	// PolicyScope: "resource_server" looks policies up per resource server,
	// "client" looks them up through ClientID.
	PolicyScope string `mapstructure:"policy_scope" yaml:"policy_scope" jsonschema:"enum=resource_server,enum=client,default=resource_server"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id" jsonschema:"description=Shared API client id. Required when policy_scope is client."`

	// PublicRequestID stamps X-Request-Id on requests forwarded through public policies.
	PublicRequestID bool `mapstructure:"public_request_id" yaml:"public_request_id" jsonschema:"default=true"`

	// ForwardSessionID adds X-Session-Id on authenticated forwards.
	ForwardSessionID bool `mapstructure:"forward_session_id" yaml:"forward_session_id" jsonschema:"default=true"`

	ResourceServers []ResourceServerConfig `mapstructure:"resource_servers" yaml:"resource_servers"`
}

// ResourceServerConfig holds one upstream registration.
type ResourceServerConfig struct {
	ID           string `mapstructure:"id" yaml:"id" jsonschema:"required"`
	PathPrefix   string `mapstructure:"path_prefix" yaml:"path_prefix" jsonschema:"required,example=/api/users"`
	UpstreamHost string `mapstructure:"upstream_host" yaml:"upstream_host" jsonschema:"required,example=http://users:8080"`
}

// AuthServiceConfig holds the authentication service client configuration.
type AuthServiceConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url" jsonschema:"required,example=http://auth:8080"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout" jsonschema:"description=Bound on every policy and introspection call.,default=2s"`
	MaxIdleConns int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns" jsonschema:"default=100"`
}

// CacheConfig holds policy cache configuration.
type CacheConfig struct {
	// Store is the backing store: memory or redis.
	Store    string `mapstructure:"store" yaml:"store" jsonschema:"enum=memory,enum=redis,default=memory"`
	TTLHours int    `mapstructure:"ttl_hours" yaml:"ttl_hours" jsonschema:"description=Policy cache TTL in hours.,default=1"`

	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix" jsonschema:"default=policies::"`

	// KeyIncludesPath appends the request path to the cache key.
	KeyIncludesPath bool `mapstructure:"key_includes_path" yaml:"key_includes_path" jsonschema:"default=false"`

	Memory MemoryCacheConfig `mapstructure:"memory" yaml:"memory"`
	Redis  RedisCacheConfig  `mapstructure:"redis" yaml:"redis"`
}

// TTL returns the configured policy TTL.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// MemoryCacheConfig holds in-memory store configuration.
type MemoryCacheConfig struct {
	MaxSize         int           `mapstructure:"max_size" yaml:"max_size" jsonschema:"default=10000"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval" jsonschema:"default=1m"`
}

// RedisCacheConfig holds Redis configuration.
type RedisCacheConfig struct {
	Addresses    []string      `mapstructure:"addresses" yaml:"addresses"`
	Password     string        `mapstructure:"password" yaml:"password"`
	DB           int           `mapstructure:"db" yaml:"db"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// ResilienceConfig holds resilience configuration.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds the authentication service breaker settings.
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled" jsonschema:"description=Short-circuit auth service calls after repeated outages. Off means every request retries.,default=false"`
	MaxRequests      uint32        `mapstructure:"max_requests" yaml:"max_requests" jsonschema:"description=Requests allowed through in half-open state.,default=3"`
	Interval         time.Duration `mapstructure:"interval" yaml:"interval" jsonschema:"description=Closed-state window after which counts reset.,default=60s"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout" jsonschema:"description=Open-state duration before half-open.,default=30s"`
	FailureThreshold uint32        `mapstructure:"failure_threshold" yaml:"failure_threshold" jsonschema:"description=Consecutive failures that open the breaker.,default=5"`
}

// Error response formats.
const (
	ErrorFormatJSON = "json"
	ErrorFormatText = "text"
	ErrorFormatNone = "none"
)

// ErrorResponseConfig holds the reject response format.
type ErrorResponseConfig struct {
	Format string `mapstructure:"format" yaml:"format" jsonschema:"enum=json,enum=text,enum=none,default=json"`
}

// Scope returns the policy scope as a domain value.
func (g GatewayConfig) Scope() domain.PolicyScope {
	return domain.PolicyScope(g.PolicyScope)
}

// ResourceServerList converts the configured entries to domain values.
func (g GatewayConfig) ResourceServerList() []domain.ResourceServer {
	servers := make([]domain.ResourceServer, 0, len(g.ResourceServers))
	for _, rs := range g.ResourceServers {
		servers = append(servers, domain.ResourceServer{
			ID:           rs.ID,
			PathPrefix:   strings.TrimRight(rs.PathPrefix, "/"),
			UpstreamHost: rs.UpstreamHost,
		})
	}
	return servers
}

// Load loads configuration from file and environment, then validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/gateway")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// YAML renders the effective configuration with secrets redacted.
func (c *Config) YAML() ([]byte, error) {
	redacted := *c
	if redacted.Cache.Redis.Password != "" {
		redacted.Cache.Redis.Password = "***"
	}
	return yaml.Marshal(&redacted)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.read_timeout", "10s")
	v.SetDefault("server.http.write_timeout", "30s")
	v.SetDefault("server.http.idle_timeout", "120s")
	v.SetDefault("server.http.shutdown_timeout", "30s")
	v.SetDefault("server.http.max_header_bytes", 1<<20) // 1MB

	// Endpoints defaults
	v.SetDefault("endpoints.health", "/health")
	v.SetDefault("endpoints.ready", "/ready")
	v.SetDefault("endpoints.metrics", "/metrics")
	v.SetDefault("endpoints.admin_enabled", true)
	v.SetDefault("endpoints.cache_clear", "/admin/cache/clear")
	v.SetDefault("endpoints.cache_stats", "/admin/cache/stats")

	// Gateway defaults
	v.SetDefault("gateway.policy_scope", string(domain.ScopeResourceServer))
	v.SetDefault("gateway.client_id", "")
	v.SetDefault("gateway.public_request_id", true)
	v.SetDefault("gateway.forward_session_id", true)

	// Auth service defaults (empty base_url is registered so env overrides apply)
	v.SetDefault("auth.base_url", "")
	v.SetDefault("auth.timeout", "2s")
	v.SetDefault("auth.max_idle_conns", 100)

	// Cache defaults
	v.SetDefault("cache.store", "memory")
	v.SetDefault("cache.ttl_hours", 1)
	v.SetDefault("cache.key_prefix", "policies::")
	v.SetDefault("cache.key_includes_path", false)
	v.SetDefault("cache.memory.max_size", 10000)
	v.SetDefault("cache.memory.cleanup_interval", "1m")
	v.SetDefault("cache.redis.addresses", []string{"localhost:6379"})
	v.SetDefault("cache.redis.pool_size", 10)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "500ms")
	v.SetDefault("cache.redis.write_timeout", "500ms")

	// Resilience defaults
	v.SetDefault("resilience.circuit_breaker.enabled", false)
	v.SetDefault("resilience.circuit_breaker.max_requests", 3)
	v.SetDefault("resilience.circuit_breaker.interval", "60s")
	v.SetDefault("resilience.circuit_breaker.timeout", "30s")
	v.SetDefault("resilience.circuit_breaker.failure_threshold", 5)

	// Error response defaults
	v.SetDefault("error_response.format", ErrorFormatJSON)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "authz-gateway")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.batch_timeout", "5s")
	v.SetDefault("tracing.export_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_caller", true)
}
