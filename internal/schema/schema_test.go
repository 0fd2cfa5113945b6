package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generate(t *testing.T, st SchemaType) map[string]interface{} {
	t.Helper()

	data, err := NewGenerator().Generate(st)
	require.NoError(t, err)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &schema))
	return schema
}

func TestGenerator_Generate_ConfigSchema(t *testing.T) {
	schema := generate(t, SchemaTypeConfig)

	assert.Contains(t, schema, "$schema")
	assert.Equal(t, "Authz Gateway Configuration", schema["title"])
	assert.Contains(t, schema["description"], "GATEWAY_")

	defs, ok := schema["$defs"].(map[string]interface{})
	require.True(t, ok)
	for _, name := range []string{"config", "gateway_config", "resource_server_config", "cache_config", "logger_config", "tracing_config"} {
		assert.Contains(t, defs, name)
	}

	// Properties use the mapstructure names.
	cacheCfg := defs["cache_config"].(map[string]interface{})
	props := cacheCfg["properties"].(map[string]interface{})
	assert.Contains(t, props, "ttl_hours")
	assert.Contains(t, props, "key_includes_path")

	rs := defs["resource_server_config"].(map[string]interface{})
	assert.ElementsMatch(t, []interface{}{"id", "path_prefix", "upstream_host"}, rs["required"])
}

func TestGenerator_Generate_DurationsAreStrings(t *testing.T) {
	schema := generate(t, SchemaTypeConfig)

	defs := schema["$defs"].(map[string]interface{})
	auth := defs["auth_service_config"].(map[string]interface{})
	timeout := auth["properties"].(map[string]interface{})["timeout"].(map[string]interface{})

	assert.Equal(t, "string", timeout["type"])
	assert.Contains(t, timeout, "pattern")
}

func TestGenerator_Generate_PoliciesSchema(t *testing.T) {
	schema := generate(t, SchemaTypePolicies)

	assert.Equal(t, "array", schema["type"])
	assert.Equal(t, "Resource Server Policies", schema["title"])

	defs := schema["$defs"].(map[string]interface{})
	policy := defs["policy"].(map[string]interface{})
	props := policy["properties"].(map[string]interface{})
	for _, name := range []string{"uri", "method", "is_public", "roles", "permissions"} {
		assert.Contains(t, props, name)
	}
}

func TestGenerator_Generate_DefaultType(t *testing.T) {
	schema := generate(t, "")

	assert.Equal(t, "Authz Gateway Configuration", schema["title"])
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Config", "config"},
		{"HTTPServerConfig", "http_server_config"},
		{"AuthServiceConfig", "auth_service_config"},
		{"ResourceServerConfig", "resource_server_config"},
		{"Policy", "policy"},
		{"JSONData", "json_data"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, toSnakeCase(tt.input))
		})
	}
}

func TestParseSchemaType(t *testing.T) {
	tests := []struct {
		input       string
		expected    SchemaType
		expectValid bool
	}{
		{"config", SchemaTypeConfig, true},
		{"CONFIG", SchemaTypeConfig, true},
		{"policies", SchemaTypePolicies, true},
		{"Policies", SchemaTypePolicies, true},
		{"rules", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, valid := ParseSchemaType(tt.input)
			assert.Equal(t, tt.expectValid, valid)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGetAvailableSchemas(t *testing.T) {
	assert.Equal(t, []SchemaType{SchemaTypeConfig, SchemaTypePolicies}, GetAvailableSchemas())
}
