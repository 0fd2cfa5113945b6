package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/your-org/authz-gateway/internal/domain"
	"github.com/your-org/authz-gateway/pkg/errors"
)

// ValidationError contains detailed information about a validation error.
type ValidationError struct {
	Field   string
	Message string
	Details []string
}

func (e ValidationError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s\n    - %s", e.Field, e.Message, strings.Join(e.Details, "\n    - "))
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Unwrap makes every validation failure match errors.ErrConfigInvalid.
func (e ValidationErrors) Unwrap() error {
	return errors.ErrConfigInvalid
}

// ConfigValidator validates configuration.
type ConfigValidator struct {
	errors ValidationErrors
}

// NewConfigValidator creates a new ConfigValidator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// Validate runs every check against cfg.
func Validate(cfg *Config) error {
	return NewConfigValidator().Validate(cfg)
}

// Validate validates cfg and returns ValidationErrors when any check fails.
func (v *ConfigValidator) Validate(cfg *Config) error {
	v.errors = nil

	v.validateAuth(cfg.Auth)
	v.validateCache(cfg.Cache)
	v.validateScope(cfg.Gateway)
	v.validateResourceServers(cfg.Gateway, cfg.Endpoints)
	v.validateErrorResponse(cfg.ErrorResponse)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *ConfigValidator) add(field, message string, details ...string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message, Details: details})
}

func (v *ConfigValidator) validateAuth(cfg AuthServiceConfig) {
	if cfg.BaseURL == "" {
		v.add("auth.base_url", "is required")
	} else if !isHTTPURL(cfg.BaseURL) {
		v.add("auth.base_url", fmt.Sprintf("%q is not an absolute http(s) URL", cfg.BaseURL))
	}
	if cfg.Timeout <= 0 {
		v.add("auth.timeout", "must be greater than zero")
	}
}

func (v *ConfigValidator) validateCache(cfg CacheConfig) {
	if cfg.TTLHours <= 0 {
		v.add("cache.ttl_hours", "must be at least 1")
	}

	switch cfg.Store {
	case "memory":
		if cfg.Memory.MaxSize <= 0 {
			v.add("cache.memory.max_size", "must be greater than zero")
		}
	case "redis":
		if len(cfg.Redis.Addresses) == 0 {
			v.add("cache.redis.addresses", "at least one address is required for the redis store")
		}
	default:
		v.add("cache.store", fmt.Sprintf("unknown store %q", cfg.Store), "memory", "redis")
	}
}

func (v *ConfigValidator) validateScope(cfg GatewayConfig) {
	scope := cfg.Scope()
	if !scope.Valid() {
		v.add("gateway.policy_scope", fmt.Sprintf("unknown scope %q", cfg.PolicyScope),
			string(domain.ScopeResourceServer), string(domain.ScopeClient))
		return
	}
	if scope == domain.ScopeClient && cfg.ClientID == "" {
		v.add("gateway.client_id", "is required when policy_scope is client")
	}
}

// validateResourceServers checks ids, prefixes and upstream hosts. Prefixes
// must be unique and must not shadow the gateway's own endpoints.
func (v *ConfigValidator) validateResourceServers(cfg GatewayConfig, endpoints EndpointsConfig) {
	if len(cfg.ResourceServers) == 0 {
		v.add("gateway.resource_servers", "at least one resource server is required")
		return
	}

	ids := make(map[string][]string)
	prefixes := make(map[string][]string)

	for i, rs := range cfg.ResourceServers {
		field := fmt.Sprintf("gateway.resource_servers[%d]", i)

		if rs.ID == "" {
			v.add(field+".id", "is required")
		}
		ids[rs.ID] = append(ids[rs.ID], field)

		prefix := strings.TrimRight(rs.PathPrefix, "/")
		switch {
		case rs.PathPrefix == "":
			v.add(field+".path_prefix", "is required")
		case !strings.HasPrefix(rs.PathPrefix, "/"):
			v.add(field+".path_prefix", fmt.Sprintf("%q must start with /", rs.PathPrefix))
		case prefix == "":
			v.add(field+".path_prefix", "the root prefix would shadow every gateway endpoint")
		default:
			prefixes[prefix] = append(prefixes[prefix], field)
			for _, ep := range endpoints.paths() {
				if pathUnder(ep, prefix) {
					v.add(field+".path_prefix", fmt.Sprintf("%q shadows gateway endpoint %q", prefix, ep))
				}
			}
		}

		if rs.UpstreamHost == "" {
			v.add(field+".upstream_host", "is required")
		} else if !isHTTPURL(rs.UpstreamHost) {
			v.add(field+".upstream_host", fmt.Sprintf("%q is not an absolute http(s) URL", rs.UpstreamHost))
		}
	}

	for id, fields := range ids {
		if id != "" && len(fields) > 1 {
			sort.Strings(fields)
			v.add("gateway.resource_servers", fmt.Sprintf("id %q is used by multiple resource servers", id), fields...)
		}
	}
	for prefix, fields := range prefixes {
		if len(fields) > 1 {
			sort.Strings(fields)
			v.add("gateway.resource_servers", fmt.Sprintf("path prefix %q is used by multiple resource servers", prefix), fields...)
		}
	}
}

func (v *ConfigValidator) validateErrorResponse(cfg ErrorResponseConfig) {
	switch cfg.Format {
	case ErrorFormatJSON, ErrorFormatText, ErrorFormatNone:
	default:
		v.add("error_response.format", fmt.Sprintf("unknown format %q", cfg.Format),
			ErrorFormatJSON, ErrorFormatText, ErrorFormatNone)
	}
}

func (e EndpointsConfig) paths() []string {
	paths := []string{e.Health, e.Ready, e.Metrics}
	if e.AdminEnabled {
		paths = append(paths, e.CacheClear, e.CacheStats)
	}
	out := paths[:0]
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func pathUnder(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
