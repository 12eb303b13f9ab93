package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEngineFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.json")
	doc := `{
		"flow_id": 1,
		"name": "cli-demo",
		"settings": {"execution_mode": "development", "track_history": false},
		"nodes": [
			{"id": 1, "kind": "select", "settings": {"columns": [{"original_name": "a", "keep": true}]}, "cache_flag": false}
		],
		"edges": []
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	engine, err := loadEngine(path)
	require.NoError(t, err)
	require.Len(t, engine.NodeIDs(), 1)
}

func TestLoadEngineFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	doc := `
flow_id: 1
name: cli-demo-yaml
settings:
  execution_mode: development
  track_history: false
nodes:
  - id: 1
    kind: select
    settings:
      columns:
        - original_name: a
          keep: true
    cache_flag: false
edges: []
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	engine, err := loadEngine(path)
	require.NoError(t, err)
	require.Len(t, engine.NodeIDs(), 1)
}

func TestLoadEngineMissingFile(t *testing.T) {
	_, err := loadEngine(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
