// Schema Generator
//
// Generates JSON Schema files for the HTTP API request and response types so
// clients can validate payloads against the same definitions the server uses.
//
// Usage:
//
//	go run ./cmd/schema-gen [output-dir]
//
// Output:
//
//	<output-dir>/queue.json
//	<output-dir>/status.json
//	<output-dir>/config.json
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kosarica/chunk-service/internal/aggregator"
	"github.com/kosarica/chunk-service/internal/callbacks"
	"github.com/kosarica/chunk-service/internal/handlers"
	"github.com/kosarica/chunk-service/internal/http/ratelimit"
	"github.com/kosarica/chunk-service/internal/settings"
	"github.com/kosarica/chunk-service/internal/taskqueue"
)

// SchemaGroup represents a group of related schemas
type SchemaGroup struct {
	Name   string
	Types  []any
	Output string
}

func main() {
	outputDir := "./schemas"
	if len(os.Args) > 1 {
		outputDir = os.Args[1]
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	for _, group := range schemaGroups() {
		schema := generateGroupSchema(group)
		outputPath := filepath.Join(outputDir, group.Output)

		if err := writeSchema(schema, outputPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", group.Output, err)
			os.Exit(1)
		}

		fmt.Printf("Generated %s\n", outputPath)
	}

	fmt.Println("Schema generation complete!")
}

func schemaGroups() []SchemaGroup {
	return []SchemaGroup{
		{
			Name: "queue",
			Types: []any{
				// Request types
				handlers.EnqueueRequest{},
				handlers.BulkChunk{},
				handlers.BulkEnqueueRequest{},
				// Response types
				handlers.EnqueueResponse{},
				handlers.BulkEnqueueResponse{},
				handlers.ProcessResponse{},
				taskqueue.Snapshot{},
			},
			Output: "queue.json",
		},
		{
			Name: "status",
			Types: []any{
				handlers.FinalResultResponse{},
				handlers.DebugResponse{},
				handlers.DeliveriesResponse{},
				aggregator.ChunkStatus{},
				aggregator.Metrics{},
				ratelimit.Snapshot{},
				// Webhook body posted to callback_url
				callbacks.Payload{},
			},
			Output: "status.json",
		},
		{
			Name: "config",
			Types: []any{
				settings.UpdateInput{},
				settings.View{},
			},
			Output: "config.json",
		},
	}
}

// generateGroupSchema creates a combined schema with all types in a group
func generateGroupSchema(group SchemaGroup) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference: false,
		ExpandedStruct: false,
	}

	// Create combined definitions
	definitions := make(map[string]any)

	for _, t := range group.Types {
		schema := reflector.Reflect(t)

		// Get the type name from the schema
		typeName := ""
		if schema.Ref != "" {
			// Extract type name from $ref like "#/$defs/BasketItem"
			typeName = filepath.Base(schema.Ref)
		}

		// Add all definitions from this type's schema
		for name, def := range schema.Definitions {
			definitions[name] = def
		}

		// If there's a main type, add it to definitions too
		if typeName != "" && schema.Definitions[typeName] != nil {
			definitions[typeName] = schema.Definitions[typeName]
		}
	}

	return map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         fmt.Sprintf("https://kosarica.hr/schemas/chunk-service/%s.json", group.Name),
		"title":       fmt.Sprintf("%s API Types", capitalize(group.Name)),
		"description": fmt.Sprintf("JSON Schema for %s API types generated from Go structs", group.Name),
		"$defs":       definitions,
	}
}

// writeSchema writes a schema to a JSON file
func writeSchema(schema map[string]any, path string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
