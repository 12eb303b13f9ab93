// Package nodekind is the registry of Flowfile's transformation kinds.
// Each kind registers a Definition bundling its arity declaration, a
// constructor for its settings type, a pure schema function, and a
// compute function, so FlowGraph can propagate schemas without
// executing anything.
package nodekind

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// Inputs bundles the resolved upstream handles for one compute call,
// keyed by input label; a label may carry more than one handle (e.g.
// concat's unbounded main).
type Inputs map[flowmodel.InputLabel][]lazyframe.Handle

// SchemaInputs bundles upstream schemas for one schema_after call.
type SchemaInputs map[flowmodel.InputLabel][]schema.Schema

// Definition is everything the graph and scheduler need to know about
// one node kind.
type Definition struct {
	Kind        flowmodel.Kind
	Arity       map[flowmodel.InputLabel]flowmodel.Arity
	NewSettings func() flowmodel.Settings
	SchemaAfter func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error)
	Compute     func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error)
}

// Registry is a thread-safe map of Kind to Definition, adapted from the
// executor registry idiom: a simple RWMutex-guarded map with a narrow
// interface.
type Registry struct {
	mu    sync.RWMutex
	defs  map[flowmodel.Kind]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[flowmodel.Kind]Definition)}
}

// Register adds or replaces the Definition for its Kind.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Kind] = def
}

// Get retrieves the Definition for kind.
func (r *Registry) Get(kind flowmodel.Kind) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[kind]
	if !ok {
		return Definition{}, fmt.Errorf("nodekind: no definition registered for kind %q", kind)
	}
	return d, nil
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind flowmodel.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[kind]
	return ok
}

// Kinds lists every registered kind.
func (r *Registry) Kinds() []flowmodel.Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]flowmodel.Kind, 0, len(r.defs))
	for k := range r.defs {
		out = append(out, k)
	}
	return out
}

// NewDefaultRegistry builds a Registry with every built-in kind
// registered, the composition root used by production callers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	registerSelect(r)
	registerFilter(r)
	registerJoin(r)
	registerGroupBy(r)
	registerPivot(r)
	registerUnpivot(r)
	registerSort(r)
	registerUnique(r)
	registerRecordID(r)
	registerFormula(r)
	registerPolarsCode(r)
	registerConcat(r)
	registerReadWrite(r)
	return r
}

func mainOnly(min, max int) map[flowmodel.InputLabel]flowmodel.Arity {
	return map[flowmodel.InputLabel]flowmodel.Arity{
		flowmodel.LabelMain: {Min: min, Max: max},
	}
}

func leftRight() map[flowmodel.InputLabel]flowmodel.Arity {
	return map[flowmodel.InputLabel]flowmodel.Arity{
		flowmodel.LabelLeft:  {Min: 1, Max: 1},
		flowmodel.LabelRight: {Min: 1, Max: 1},
	}
}

func noInputs() map[flowmodel.InputLabel]flowmodel.Arity {
	return map[flowmodel.InputLabel]flowmodel.Arity{}
}

func singleMain(inputs SchemaInputs) (schema.Schema, bool) {
	list := inputs[flowmodel.LabelMain]
	if len(list) != 1 {
		return nil, false
	}
	return list[0], true
}

func singleMainHandle(inputs Inputs) (lazyframe.Handle, bool) {
	list := inputs[flowmodel.LabelMain]
	if len(list) != 1 {
		return nil, false
	}
	return list[0], true
}
