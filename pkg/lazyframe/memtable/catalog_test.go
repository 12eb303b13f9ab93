package memtable

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeJSONRows(t *testing.T, rows []map[string]any) string {
	t.Helper()
	data, err := json.Marshal(rows)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rows.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLocalCatalogScanAndPreview(t *testing.T) {
	path := writeJSONRows(t, []map[string]any{
		{"id": 1.0, "name": "alice", "active": true},
		{"id": 2.0, "name": "bob", "active": false},
	})

	cat := NewLocalCatalog(NewBackend())

	sch, err := cat.PreviewSchema(context.Background(), path, "json", nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"id", "name", "active"}, sch.Names())

	h, err := cat.Scan(context.Background(), path, "", nil)
	require.NoError(t, err)
	tbl, err := h.Collect(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.NumRows())
}

func TestLocalCatalogRejectsUnsupportedFormat(t *testing.T) {
	cat := NewLocalCatalog(NewBackend())
	_, err := cat.PreviewSchema(context.Background(), "whatever.csv", "csv", nil)
	require.Error(t, err)
}

func TestLocalCatalogMissingFile(t *testing.T) {
	cat := NewLocalCatalog(NewBackend())
	_, err := cat.Scan(context.Background(), filepath.Join(t.TempDir(), "missing.json"), "json", nil)
	require.Error(t, err)
}

func TestLocalCatalogResolveConnectionAlwaysFails(t *testing.T) {
	cat := NewLocalCatalog(NewBackend())
	_, err := cat.ResolveConnection(context.Background(), "anything")
	require.Error(t, err)
}

func TestInferFieldTypeIntegerFloatHeuristic(t *testing.T) {
	rows := []map[string]any{{"n": 3.0}, {"n": 4.0}}
	require.Equal(t, "int64", string(inferFieldType(rows, "n")))

	rows2 := []map[string]any{{"n": 3.5}}
	require.Equal(t, "float64", string(inferFieldType(rows2, "n")))
}
