// Package help documents the environment variables that override configuration.
package help

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// EnvVar describes one environment override.
type EnvVar struct {
	Name        string // e.g. GATEWAY_AUTH_BASE_URL
	ConfigPath  string // e.g. auth.base_url
	Type        string
	Description string
	Default     string
	Example     string
	Required    bool
}

// Extract walks cfg's mapstructure tags and returns every scalar leaf as an
// environment variable named prefix_PATH. Lists of structs are reported once,
// since they can only be set from the file.
func Extract(prefix string, cfg any) []EnvVar {
	var vars []EnvVar
	walk(reflect.TypeOf(cfg), "", func(path string, t reflect.Type, tag string) {
		ev := EnvVar{
			Name:       envName(prefix, path),
			ConfigPath: path,
			Type:       typeName(t),
		}
		if tag != "" {
			ev.Description = tagValue(tag, "description")
			ev.Default = tagValue(tag, "default")
			ev.Example = tagValue(tag, "example")
			ev.Required = hasFlag(tag, "required")
		}
		vars = append(vars, ev)
	})

	sort.Slice(vars, func(i, j int) bool {
		return vars[i].Name < vars[j].Name
	})
	return vars
}

func walk(t reflect.Type, prefix string, visit func(path string, t reflect.Type, tag string)) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("mapstructure")
		if name == "" || name == "-" {
			continue
		}

		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			walk(ft, path, visit)
			continue
		}
		visit(path, ft, field.Tag.Get("jsonschema"))
	}
}

func envName(prefix, path string) string {
	name := strings.ToUpper(strings.ReplaceAll(path, ".", "_"))
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

// tagValue extracts key=value from a jsonschema tag. Escaped commas ("\,")
// belong to the value.
func tagValue(tag, key string) string {
	for _, part := range splitTag(tag) {
		if v, ok := strings.CutPrefix(part, key+"="); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func hasFlag(tag, flag string) bool {
	for _, part := range splitTag(tag) {
		if part == flag {
			return true
		}
	}
	return false
}

func splitTag(tag string) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(tag); i++ {
		switch {
		case tag[i] == '\\' && i+1 < len(tag) && tag[i+1] == ',':
			cur.WriteByte(',')
			i++
		case tag[i] == ',':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(tag[i])
		}
	}
	return append(parts, cur.String())
}

func typeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if t.PkgPath() == "time" && t.Name() == "Duration" {
			return "duration"
		}
		return "int"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "uint"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.String:
		return "string"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Struct {
			return "list"
		}
		return "[]" + typeName(t.Elem())
	default:
		return t.String()
	}
}

// Format renders vars grouped by top-level section.
func Format(vars []EnvVar) string {
	var sb strings.Builder
	section := ""

	for _, v := range vars {
		top, _, _ := strings.Cut(v.ConfigPath, ".")
		if top != section {
			section = top
			fmt.Fprintf(&sb, "\n[%s]\n", section)
		}

		fmt.Fprintf(&sb, "  %s (%s)", v.Name, v.Type)
		if v.Required {
			sb.WriteString(" required")
		}
		sb.WriteString("\n")
		if v.Description != "" {
			fmt.Fprintf(&sb, "      %s\n", v.Description)
		}
		if v.Default != "" {
			fmt.Fprintf(&sb, "      default: %s\n", v.Default)
		}
		if v.Example != "" {
			fmt.Fprintf(&sb, "      example: %s\n", v.Example)
		}
	}
	return sb.String()
}
