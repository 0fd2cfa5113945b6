// Package schema provides JSON Schema generation for the gateway configuration
// and for the policy documents served by the authentication service.
package schema

import (
	"encoding/json"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/your-org/authz-gateway/internal/config"
	"github.com/your-org/authz-gateway/internal/domain"
)

// SchemaType represents the type of schema to generate.
type SchemaType string

const (
	SchemaTypeConfig   SchemaType = "config"
	SchemaTypePolicies SchemaType = "policies"
)

const schemaBaseURL = "https://github.com/your-org/authz-gateway/schemas/"

// Generator generates JSON schemas.
type Generator struct {
	config   *jsonschema.Reflector
	policies *jsonschema.Reflector
}

// NewGenerator creates a new schema generator.
func NewGenerator() *Generator {
	base := func() *jsonschema.Reflector {
		return &jsonschema.Reflector{
			// Only fields tagged jsonschema:"required" are required; the rest have defaults.
			RequiredFromJSONSchemaTags: true,
			Namer:                      definitionName,
			Mapper:                     durationMapper,
		}
	}

	cfg := base()
	cfg.FieldNameTag = "mapstructure"

	return &Generator{config: cfg, policies: base()}
}

// definitionName names $defs entries in snake_case. Types from other
// packages are prefixed so logger.Config and tracing.Config do not collide
// with config.Config.
func definitionName(t reflect.Type) string {
	name := toSnakeCase(t.Name())
	if pkg := path.Base(t.PkgPath()); pkg != "config" && pkg != "domain" {
		return pkg + "_" + name
	}
	return name
}

func durationMapper(t reflect.Type) *jsonschema.Schema {
	if t == reflect.TypeOf(time.Duration(0)) {
		return &jsonschema.Schema{
			Type:        "string",
			Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
			Description: "Duration string (e.g., '30s', '5m', '1h')",
			Examples:    []interface{}{"500ms", "2s", "1m"},
		}
	}
	return nil
}

// Generate generates a JSON schema for the specified type. Unknown types
// fall back to the config schema.
func (g *Generator) Generate(schemaType SchemaType) ([]byte, error) {
	var schema *jsonschema.Schema

	switch schemaType {
	case SchemaTypePolicies:
		schema = g.generatePoliciesSchema()
	default:
		schema = g.generateConfigSchema()
	}

	return json.MarshalIndent(schema, "", "  ")
}

func (g *Generator) generateConfigSchema() *jsonschema.Schema {
	schema := g.config.Reflect(&config.Config{})

	schema.Title = "Authz Gateway Configuration"
	schema.Description = "Configuration of the authorization gateway.\n\n" +
		"Every scalar option can be overridden with an environment variable named " +
		config.EnvPrefix + "_<PATH>, e.g. " + config.EnvPrefix + "_AUTH_BASE_URL for auth.base_url."
	schema.ID = schemaBaseURL + "config.schema.json"

	schema.Examples = []interface{}{
		map[string]interface{}{
			"auth": map[string]interface{}{
				"base_url": "http://auth:8080",
				"timeout":  "2s",
			},
			"cache": map[string]interface{}{
				"store":     "memory",
				"ttl_hours": 1,
			},
			"gateway": map[string]interface{}{
				"policy_scope": "resource_server",
				"resource_servers": []interface{}{
					map[string]interface{}{"id": "1", "path_prefix": "/api/first", "upstream_host": "http://first:8080"},
					map[string]interface{}{"id": "2", "path_prefix": "/api/second", "upstream_host": "http://second:8080"},
				},
			},
		},
	}

	return schema
}

// generatePoliciesSchema describes GET /v1/resources/{id}/policies responses.
func (g *Generator) generatePoliciesSchema() *jsonschema.Schema {
	item := g.policies.Reflect(&domain.Policy{})

	schema := &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          schemaBaseURL + "policies.schema.json",
		Title:       "Resource Server Policies",
		Description: "Policies returned by the authentication service for one resource server.\n\n" +
			"uri is an exact path or a regular expression matched against the whole path. " +
			"The public flag is accepted as is_public or isPublic.",
		Type:        "array",
		Items:       &jsonschema.Schema{Ref: "#/$defs/policy"},
		Definitions: item.Definitions,
	}
	return schema
}

// toSnakeCase converts PascalCase type names to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(s[i-1])
			if prev >= 'a' && prev <= 'z' {
				result.WriteByte('_')
			} else if i+1 < len(s) {
				next := rune(s[i+1])
				if next >= 'a' && next <= 'z' && prev >= 'A' && prev <= 'Z' {
					result.WriteByte('_')
				}
			}
		}
		if r >= 'A' && r <= 'Z' {
			result.WriteRune(r + 32)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// GetAvailableSchemas returns list of available schema types.
func GetAvailableSchemas() []SchemaType {
	return []SchemaType{SchemaTypeConfig, SchemaTypePolicies}
}

// ParseSchemaType parses a string to SchemaType.
func ParseSchemaType(s string) (SchemaType, bool) {
	switch strings.ToLower(s) {
	case "config":
		return SchemaTypeConfig, true
	case "policies":
		return SchemaTypePolicies, true
	default:
		return "", false
	}
}
