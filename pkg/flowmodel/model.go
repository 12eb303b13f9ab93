// Package flowmodel holds Flowfile's static data model: the graph-unique
// node, the typed settings payload each node kind carries, and the edges
// between nodes. It has no knowledge of execution or data; pure shape.
package flowmodel

import "github.com/flowfile/flowfile/pkg/schema"

// Kind discriminates the transformation kinds a node can be; the
// fourteen built-in kinds are the constants below.
type Kind string

// Read and write each cover every storage backend (local, cloud,
// database, Unity Catalog) through one Kind; the backend is a field on
// the node's settings (nodekind.ReadWriteBackend), not a separate Kind,
// since every backend shares the same arity, inputs, and schema-preview
// mechanics and differs only in where bytes come from or go.
const (
	KindRead       Kind = "read"
	KindWrite      Kind = "write"
	KindSelect     Kind = "select"
	KindFilter     Kind = "filter"
	KindJoin       Kind = "join"
	KindGroupBy    Kind = "group_by"
	KindPivot      Kind = "pivot"
	KindUnpivot    Kind = "unpivot"
	KindSort       Kind = "sort"
	KindUnique     Kind = "unique"
	KindRecordID   Kind = "record_id"
	KindFormula    Kind = "formula"
	KindPolarsCode Kind = "polars_code"
	KindConcat     Kind = "concat"
)

// InputLabel names a node's input slot.
type InputLabel string

const (
	LabelMain  InputLabel = "main"
	LabelLeft  InputLabel = "left"
	LabelRight InputLabel = "right"
)

// Arity is the (min, max) count a node kind accepts on one input label.
// Max of -1 means unbounded.
type Arity struct {
	Min int
	Max int
}

const Unbounded = -1

// Accepts reports whether count connections on this label are legal.
func (a Arity) Accepts(count int) bool {
	if count < a.Min {
		return false
	}
	if a.Max == Unbounded {
		return true
	}
	return count <= a.Max
}

// Settings is the typed configuration payload for one node kind. Each
// kind's settings type implements this; validation happens against the
// kind's own schema, not a generic map.
type Settings interface {
	// Kind returns the node kind this settings payload belongs to.
	Kind() Kind
	// Validate checks the payload in isolation (no access to upstream
	// schema). Structural/shape errors surface here; column-existence
	// errors surface later from SchemaAfter.
	Validate() error
	// Clone returns an independent deep copy.
	Clone() Settings
	// Fingerprint contributes this settings payload's normalized,
	// stable representation to the node's fingerprint.
	Fingerprint() string
}

// Position is opaque editor metadata, ignored by execution.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Connection is one resolved input wire into a node, from the node's own
// point of view.
type Connection struct {
	SourceID int64      `json:"source_id"`
	Label    InputLabel `json:"label"`
}

// Node is one DAG vertex's static data: configuration and wiring. The
// runtime state machine, cached handle, and computed schema live
// alongside this in the graph package's runtimeNode, not here — Node
// itself is serializable and side-effect free.
type Node struct {
	ID          int64
	Kind        Kind
	Settings    Settings
	Inputs      []Connection
	CacheFlag   bool
	Position    Position
	Description string
}

// Clone returns an independent deep copy of the node.
func (n *Node) Clone() *Node {
	cp := *n
	if n.Settings != nil {
		cp.Settings = n.Settings.Clone()
	}
	cp.Inputs = append([]Connection(nil), n.Inputs...)
	return &cp
}

// Edge is a directed connection between two nodes, labelled by which
// input slot on the target it fills.
type Edge struct {
	SourceID int64
	TargetID int64
	Label    InputLabel
}

// FlowSettings carries per-flow execution configuration: mode, whether
// to track history, and an optional filesystem path for the document.
type FlowSettings struct {
	ExecutionMode string `json:"execution_mode" yaml:"execution_mode"` // e.g. "development", "production"
	TrackHistory  bool   `json:"track_history" yaml:"track_history"`
	FilePath      string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}

// NodeState is the per-node lifecycle state.
type NodeState string

const (
	StateUnconfigured NodeState = "unconfigured"
	StateConfigured   NodeState = "configured"
	StateComputing    NodeState = "computing"
	StateReady        NodeState = "ready"
	StateStale        NodeState = "stale"
	StateError        NodeState = "error"
)

// ResultDescriptor summarizes a node's computed result without exposing
// the lazy handle itself, suitable for returning from public APIs.
type ResultDescriptor struct {
	NodeID   int64
	Schema   schema.Schema
	RowCount int // -1 when unknown
	Err      error
	Identity string
}
