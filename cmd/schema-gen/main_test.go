package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGroupSchemas(t *testing.T) {
	for _, group := range schemaGroups() {
		t.Run(group.Name, func(t *testing.T) {
			schema := generateGroupSchema(group)

			defs, ok := schema["$defs"].(map[string]any)
			require.True(t, ok)
			assert.NotEmpty(t, defs)
			assert.Equal(t, "https://kosarica.hr/schemas/chunk-service/"+group.Name+".json", schema["$id"])
		})
	}
}

func TestQueueSchemaIncludesRequestTypes(t *testing.T) {
	schema := generateGroupSchema(schemaGroups()[0])
	defs := schema["$defs"].(map[string]any)

	for _, name := range []string{"EnqueueRequest", "BulkEnqueueRequest", "BulkChunk", "Snapshot"} {
		assert.Contains(t, defs, name)
	}
}

func TestWriteSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, writeSchema(map[string]any{"title": "Queue API Types"}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "Queue API Types", parsed["title"])
}
