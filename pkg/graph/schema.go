package graph

import (
	"context"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/nodekind"
	"github.com/flowfile/flowfile/pkg/schema"
)

// markStale flips a node and every transitive descendant to Stale and
// drops their cached results, without touching schema. Callers run this
// before recomputeSchemas so the state machine reflects staleness even
// if schema recomputation itself fails.
func (g *FlowGraph) markStale(root int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	visited := map[int64]bool{}
	var walk func(id int64)
	walk = func(id int64) {
		if visited[id] {
			return
		}
		visited[id] = true
		if rn, ok := g.nodes[id]; ok {
			if rn.state == flowmodel.StateReady || rn.state == flowmodel.StateError {
				rn.state = flowmodel.StateStale
			}
			rn.result = nil
			rn.resultErr = nil
		}
		for _, e := range g.edges {
			if e.SourceID == id {
				walk(e.TargetID)
			}
		}
	}
	walk(root)
}

// recomputeSchemas recomputes schema_after for root and every transitive
// descendant, in topological order, so a mutation's effect propagates
// forward exactly once per affected node.
func (g *FlowGraph) recomputeSchemas(ctx context.Context, root int64) {
	g.recomputeDescendantSchemas(ctx, []int64{root})
}

func (g *FlowGraph) recomputeDescendantSchemas(ctx context.Context, roots []int64) {
	g.mu.Lock()
	order, err := g.topoLocked()
	if err != nil {
		g.mu.Unlock()
		return
	}
	affected := map[int64]bool{}
	var mark func(id int64)
	mark = func(id int64) {
		if affected[id] {
			return
		}
		affected[id] = true
		for _, e := range g.edges {
			if e.SourceID == id {
				mark(e.TargetID)
			}
		}
	}
	for _, r := range roots {
		mark(r)
	}
	g.mu.Unlock()

	for _, id := range order {
		if !affected[id] {
			continue
		}
		g.recomputeOneSchema(ctx, id)
	}
}

// recomputeOneSchema computes a single node's schema_after from its
// upstream nodes' already-current schemas. It never returns an error to
// the caller: failures are recorded on the node itself as a schema error
// or upstream-schema error, consistent with the invariant that every
// node has either a valid schema or a schema error, never neither.
func (g *FlowGraph) recomputeOneSchema(ctx context.Context, id int64) {
	g.mu.Lock()
	rn, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return
	}
	kind := rn.node.Kind
	settings := rn.node.Settings
	inputs := nodekind.SchemaInputs{}
	upstreamErr := int64(0)
	hasUpstreamErr := false
	for _, c := range rn.node.Inputs {
		up, ok := g.nodes[c.SourceID]
		if !ok {
			continue
		}
		if up.schemaErr != nil {
			upstreamErr = c.SourceID
			hasUpstreamErr = true
			break
		}
		inputs[c.Label] = append(inputs[c.Label], up.schema)
	}
	g.mu.Unlock()

	if hasUpstreamErr {
		g.setSchemaResult(id, nil, &flowmodel.UpstreamSchemaError{NodeID: id, Upstream: upstreamErr})
		return
	}

	var sch schema.Schema
	var err error
	if kind == flowmodel.KindRead {
		readCtx := ctx
		if g.catalog != nil {
			readCtx = nodekind.WithCatalog(ctx, g.catalog)
		}
		sch, err = nodekind.PreviewReadSchema(readCtx, settings)
	} else {
		def, derr := g.registry.Get(kind)
		if derr != nil {
			err = derr
		} else {
			sch, err = def.SchemaAfter(settings, inputs)
		}
	}

	if err != nil {
		g.setSchemaResult(id, nil, &flowmodel.SchemaError{NodeID: id, Reason: err.Error()})
		return
	}
	g.setSchemaResult(id, sch, nil)
}

func (g *FlowGraph) setSchemaResult(id int64, sch schema.Schema, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rn, ok := g.nodes[id]
	if !ok {
		return
	}
	rn.schema = sch
	rn.schemaErr = err
	if err != nil {
		rn.state = flowmodel.StateError
	} else if rn.state == flowmodel.StateError {
		rn.state = flowmodel.StateConfigured
	}
}
