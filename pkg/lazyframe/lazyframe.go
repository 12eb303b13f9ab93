// Package lazyframe defines the LazyFrameHandle contract: the single seam
// through which the graph engine touches tabular data. The engine never
// inspects a Handle's internals; it only calls the methods declared here.
// One concrete backend ships in the memtable subpackage.
package lazyframe

import (
	"context"

	"github.com/flowfile/flowfile/pkg/schema"
)

// SortKey pairs a column with a sort direction.
type SortKey struct {
	Column     string
	Descending bool
}

// JoinHow enumerates the supported join kinds.
type JoinHow string

const (
	JoinInner JoinHow = "inner"
	JoinLeft  JoinHow = "left"
	JoinRight JoinHow = "right"
	JoinFull  JoinHow = "full"
	JoinSemi  JoinHow = "semi"
	JoinAnti  JoinHow = "anti"
	JoinCross JoinHow = "cross"
)

// UniqueStrategy enumerates how Unique resolves duplicate groups.
type UniqueStrategy string

const (
	UniqueFirst UniqueStrategy = "first"
	UniqueLast  UniqueStrategy = "last"
	UniqueAny   UniqueStrategy = "any"
	UniqueNone  UniqueStrategy = "none"
)

// Aggregation enumerates group-by and pivot aggregation functions.
type Aggregation string

const (
	AggSum     Aggregation = "sum"
	AggMax     Aggregation = "max"
	AggMin     Aggregation = "min"
	AggMedian  Aggregation = "median"
	AggMean    Aggregation = "mean"
	AggCount   Aggregation = "count"
	AggNUnique Aggregation = "n_unique"
	AggFirst   Aggregation = "first"
	AggLast    Aggregation = "last"
	AggConcat  Aggregation = "concat"
)

// AggExpr names one aggregation to compute and the output column it
// produces.
type AggExpr struct {
	Column     string
	Aggregator Aggregation
	OutputName string
}

// WriteMode controls sink's behavior when the target already has data.
type WriteMode string

const (
	WriteOverwrite WriteMode = "overwrite"
	WriteAppend    WriteMode = "append"
	WriteErrorIfExists WriteMode = "error_if_exists"
)

// JoinKeyPair is one (left_col, right_col) equality key.
type JoinKeyPair struct {
	Left  string
	Right string
}

// Handle is an opaque, not-yet-materialized tabular computation plus its
// statically known schema. All transform methods are lazy: they return a
// new Handle and never touch data. Only Collect, Sink, and the cache
// methods perform I/O or materialization.
type Handle interface {
	Schema() schema.Schema

	Select(cols []string) (Handle, error)
	Rename(mapping map[string]string) (Handle, error)
	Filter(predicate string) (Handle, error)
	WithColumns(exprs map[string]string) (Handle, error)
	Sort(keys []SortKey) (Handle, error)
	GroupBy(keys []string, aggs []AggExpr) (Handle, error)
	Join(other Handle, keys []JoinKeyPair, how JoinHow, verifyIntegrity bool) (Handle, error)
	Concat(others []Handle) (Handle, error)
	Pivot(index []string, pivotCol, valueCol string, aggs []Aggregation) (Handle, error)
	Unpivot(indexCols, valueCols []string) (Handle, error)
	Unique(subset []string, strategy UniqueStrategy) (Handle, error)
	Head(n int) (Handle, error)
	Sample(n int, seed int64) (Handle, error)
	WithRowID(name string, offset int64) (Handle, error)

	// Collect materializes up to limit rows (0 means unlimited) and
	// returns an in-memory tabular buffer.
	Collect(ctx context.Context, limit int) (*Table, error)

	// Sink writes the materialized result to the given location.
	Sink(ctx context.Context, location, format string, mode WriteMode) error

	// Identity is the content identity used for cache addressing; it is
	// independent of the fingerprint the graph computes, but two handles
	// built from identical plans over identical sources share an
	// identity.
	Identity() string
}

// Cache is the opaque content-addressed persistence surface backing
// write_to_cache / read_from_cache.
type Cache interface {
	WriteToCache(ctx context.Context, id string, h Handle) error
	ReadFromCache(ctx context.Context, id string) (Handle, bool, error)
	Evict(id string)
}

// Table is a materialized, in-memory tabular buffer: the result of
// Collect. Columns are stored positionally, matching Schema's order.
type Table struct {
	SchemaVal schema.Schema
	Columns   []Column
}

// Column is a single materialized column's values, one per row, using
// Go's dynamic typing (int64, float64, bool, string, nil for null).
type Column []any

// NumRows reports the row count, or 0 if the table has no columns.
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0])
}

// Row returns the i'th row as a name->value map.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.SchemaVal))
	for ci, f := range t.SchemaVal {
		row[f.Name] = t.Columns[ci][i]
	}
	return row
}

// SourceCatalog is the ingestion interface external collaborators supply
// for read/write node kinds: schema preview, a lazy scan, and credential
// resolution for cloud/database/Unity-Catalog variants. The core never
// stores or inspects the resolved credentials.
type SourceCatalog interface {
	PreviewSchema(ctx context.Context, location, format string, options map[string]any) (schema.Schema, error)
	Scan(ctx context.Context, location, format string, options map[string]any) (Handle, error)
	ResolveConnection(ctx context.Context, name string) (any, error)
}

// CodeSandbox executes a polars_code-equivalent user expression block
// against named input handles and returns the resulting handle. The
// sandbox owns stdout/stderr capture; the core only consumes the handle
// and the returned log lines.
type CodeSandbox interface {
	Run(ctx context.Context, code string, inputs map[string]Handle) (Handle, []string, error)
}
