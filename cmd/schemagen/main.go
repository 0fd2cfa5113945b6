// Package main writes the JSON schemas to stdout.
//
// Usage:
//
//	go run ./cmd/schemagen [config|policies]
//
// The gateway binary exposes the same output through -schema.
package main

import (
	"fmt"
	"os"

	"github.com/your-org/authz-gateway/internal/schema"
)

func main() {
	schemaType := "config"
	if len(os.Args) > 1 {
		schemaType = os.Args[1]
	}

	st, ok := schema.ParseSchemaType(schemaType)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown schema type: %s\n", schemaType)
		fmt.Fprintf(os.Stderr, "Available types: %v\n", schema.GetAvailableSchemas())
		os.Exit(1)
	}

	data, err := schema.NewGenerator().Generate(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(data))
}
