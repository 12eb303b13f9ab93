package memtable

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// LocalCatalog is the reference SourceCatalog: it resolves every
// location as a path on the local filesystem and understands one wire
// format, a JSON array of row objects, matching the encoding Backend's
// Sink already writes. It has no notion of connections; ResolveConnection
// always fails, since BackendLocal reads never call it.
type LocalCatalog struct {
	backend *Backend
}

// NewLocalCatalog builds a LocalCatalog sharing backend's expression
// cache with every handle it produces.
func NewLocalCatalog(backend *Backend) *LocalCatalog {
	return &LocalCatalog{backend: backend}
}

func (c *LocalCatalog) readRows(location, format string) (schema.Schema, []map[string]any, error) {
	if format != "" && format != "json" {
		return nil, nil, fmt.Errorf("local catalog: unsupported format %q (only json)", format)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, nil, fmt.Errorf("local catalog: read %s: %w", location, err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, nil, fmt.Errorf("local catalog: decode %s: %w", location, err)
	}
	return inferSchema(rows), rows, nil
}

// PreviewSchema infers a schema from the target file without handing
// back a usable Handle, the schema-propagation-only path.
func (c *LocalCatalog) PreviewSchema(ctx context.Context, location, format string, options map[string]any) (schema.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sch, _, err := c.readRows(location, format)
	return sch, err
}

// Scan loads the target file into an in-memory Handle.
func (c *LocalCatalog) Scan(ctx context.Context, location, format string, options map[string]any) (lazyframe.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sch, rows, err := c.readRows(location, format)
	if err != nil {
		return nil, err
	}
	return c.backend.FromRows(sch, rows), nil
}

// ResolveConnection always fails: LocalCatalog only serves
// nodekind.BackendLocal, which never resolves a named connection.
func (c *LocalCatalog) ResolveConnection(ctx context.Context, name string) (any, error) {
	return nil, fmt.Errorf("local catalog: no connection %q (only local backend is supported)", name)
}

func inferSchema(rows []map[string]any) schema.Schema {
	order := []string{}
	seen := map[string]bool{}
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
		}
	}
	sch := make(schema.Schema, 0, len(order))
	for _, name := range order {
		sch = append(sch, schema.Field{Name: name, Type: inferFieldType(rows, name)})
	}
	return sch
}

func inferFieldType(rows []map[string]any, col string) schema.LogicalType {
	for _, r := range rows {
		v, ok := r[col]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case bool:
			return schema.Bool
		case string:
			return schema.String
		case float64:
			if val == float64(int64(val)) {
				return schema.Int64
			}
			return schema.Float64
		}
	}
	return schema.String
}
