package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// catalogKey threads a lazyframe.SourceCatalog through the context for
// read/write nodes, mirroring polars_code's sandbox injection.
type catalogKey struct{}

// WithCatalog attaches a SourceCatalog to ctx for read/write nodes.
func WithCatalog(ctx context.Context, cat lazyframe.SourceCatalog) context.Context {
	return context.WithValue(ctx, catalogKey{}, cat)
}

func catalogFrom(ctx context.Context) (lazyframe.SourceCatalog, bool) {
	c, ok := ctx.Value(catalogKey{}).(lazyframe.SourceCatalog)
	return c, ok
}

// ReadWriteBackend discriminates the storage variant a read/write node
// targets; it is orthogonal to the node's Kind (local/cloud/database/
// Unity-Catalog are all modeled as one settings shape with this field,
// since they differ only in which connection the catalog resolves).
type ReadWriteBackend string

const (
	BackendLocal        ReadWriteBackend = "local"
	BackendCloud        ReadWriteBackend = "cloud"
	BackendDatabase     ReadWriteBackend = "database"
	BackendUnityCatalog ReadWriteBackend = "unity_catalog"
)

// ReadSettings configures the read node kind (and its cloud/database/
// Unity-Catalog variants via Backend).
type ReadSettings struct {
	Backend        ReadWriteBackend `json:"backend"`
	Location       string           `json:"location"`
	Format         string           `json:"format"`
	Options        map[string]any   `json:"options,omitempty"`
	ConnectionName string           `json:"connection_name,omitempty"`
}

func (s *ReadSettings) Kind() flowmodel.Kind { return flowmodel.KindRead }

func (s *ReadSettings) Validate() error {
	if s.Location == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindRead, Field: "location", Msg: "required"}
	}
	if s.Format == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindRead, Field: "format", Msg: "required"}
	}
	if s.Backend != BackendLocal && s.ConnectionName == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindRead, Field: "connection_name", Msg: "required for non-local backends"}
	}
	return nil
}

func (s *ReadSettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *ReadSettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindRead), s) }

// WriteSettings configures the write node kind (and its variants).
type WriteSettings struct {
	Backend        ReadWriteBackend     `json:"backend"`
	Location       string               `json:"location"`
	Format         string               `json:"format"`
	Options        map[string]any       `json:"options,omitempty"`
	ConnectionName string               `json:"connection_name,omitempty"`
	Mode           lazyframe.WriteMode  `json:"mode"`
}

func (s *WriteSettings) Kind() flowmodel.Kind { return flowmodel.KindWrite }

func (s *WriteSettings) Validate() error {
	if s.Location == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindWrite, Field: "location", Msg: "required"}
	}
	if s.Format == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindWrite, Field: "format", Msg: "required"}
	}
	if s.Backend != BackendLocal && s.ConnectionName == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindWrite, Field: "connection_name", Msg: "required for non-local backends"}
	}
	return nil
}

func (s *WriteSettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *WriteSettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindWrite), s) }

func registerReadWrite(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindRead,
		Arity:       noInputs(),
		NewSettings: func() flowmodel.Settings { return &ReadSettings{Backend: BackendLocal} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			// Read's schema can only be produced via the catalog's
			// preview call, which requires a context; FlowGraph's
			// schema propagation pass therefore calls previewReadSchema
			// directly with its own context rather than routing through
			// this pure-signature hook. See graph.schemaAfter.
			return nil, errNeedsCatalog
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			s := settings.(*ReadSettings)
			cat, ok := catalogFrom(ctx)
			if !ok {
				return nil, &flowmodel.EvalError{Kind: flowmodel.EvalIO, Reason: "no source catalog configured for this run"}
			}
			h, err := cat.Scan(ctx, s.Location, s.Format, s.Options)
			if err != nil {
				return nil, &flowmodel.EvalError{Kind: flowmodel.EvalIO, Reason: "scan failed", Cause: err}
			}
			return h, nil
		},
	})
	r.Register(Definition{
		Kind:        flowmodel.KindWrite,
		Arity:       mainOnly(1, 1),
		NewSettings: func() flowmodel.Settings { return &WriteSettings{Backend: BackendLocal, Mode: lazyframe.WriteOverwrite} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			in, ok := singleMain(inputs)
			if !ok {
				return nil, fmt.Errorf("write: expected exactly one main input")
			}
			return in.Clone(), nil
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			h, ok := singleMainHandle(inputs)
			if !ok {
				return nil, fmt.Errorf("write: expected exactly one main input")
			}
			s := settings.(*WriteSettings)
			if err := h.Sink(ctx, s.Location, s.Format, s.Mode); err != nil {
				return nil, &flowmodel.EvalError{Kind: flowmodel.EvalIO, Reason: "sink failed", Cause: err}
			}
			return h, nil
		},
	})
}

// errNeedsCatalog signals that a read node's schema can only be derived
// with a live catalog; FlowGraph special-cases this rather than treating
// it as an ordinary SchemaError, since it is not a user mistake.
var errNeedsCatalog = fmt.Errorf("read: schema requires a source catalog preview call")

// PreviewReadSchema resolves a read node's schema via the catalog,
// called by FlowGraph's schema propagation pass for KindRead nodes
// instead of the registry's ordinary SchemaAfter hook.
func PreviewReadSchema(ctx context.Context, settings flowmodel.Settings) (schema.Schema, error) {
	s, ok := settings.(*ReadSettings)
	if !ok {
		return nil, fmt.Errorf("PreviewReadSchema: settings is not *ReadSettings")
	}
	cat, ok := catalogFrom(ctx)
	if !ok {
		return nil, errNeedsCatalog
	}
	return cat.PreviewSchema(ctx, s.Location, s.Format, s.Options)
}
