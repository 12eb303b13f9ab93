// This file is the scheduler-facing surface: accessors and mutators the
// wave-based executor uses to drive a run without reaching into
// FlowGraph's internals directly.
package graph

import (
	"context"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
)

// NodeKind returns a node's kind.
func (g *FlowGraph) NodeKind(id int64) (flowmodel.Kind, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rn, ok := g.nodes[id]
	if !ok {
		return "", &flowmodel.NotFoundError{Kind: "node", ID: id}
	}
	return rn.node.Kind, nil
}

// NodeSettings returns a node's current settings payload.
func (g *FlowGraph) NodeSettings(id int64) (flowmodel.Settings, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rn, ok := g.nodes[id]
	if !ok {
		return nil, &flowmodel.NotFoundError{Kind: "node", ID: id}
	}
	return rn.node.Settings, nil
}

// NodeCacheFlag reports whether a node has caching enabled.
func (g *FlowGraph) NodeCacheFlag(id int64) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rn, ok := g.nodes[id]
	if !ok {
		return false, &flowmodel.NotFoundError{Kind: "node", ID: id}
	}
	return rn.node.CacheFlag, nil
}

// NodeSchemaErr reports a node's current schema error, if any.
func (g *FlowGraph) NodeSchemaErr(id int64) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rn, ok := g.nodes[id]
	if !ok {
		return &flowmodel.NotFoundError{Kind: "node", ID: id}
	}
	return rn.schemaErr
}

// NodeInputsByLabel resolves a node's already-computed upstream handles,
// grouped by input label, for the scheduler to pass into Compute. It
// returns an error if any upstream result is missing (not yet computed
// or failed).
func (g *FlowGraph) NodeInputsByLabel(id int64) (map[flowmodel.InputLabel][]lazyframe.Handle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rn, ok := g.nodes[id]
	if !ok {
		return nil, &flowmodel.NotFoundError{Kind: "node", ID: id}
	}
	out := map[flowmodel.InputLabel][]lazyframe.Handle{}
	for _, c := range rn.node.Inputs {
		up, ok := g.nodes[c.SourceID]
		if !ok {
			return nil, &flowmodel.NotFoundError{Kind: "node", ID: c.SourceID}
		}
		if up.resultErr != nil {
			return nil, &flowmodel.EvalError{NodeID: id, Kind: flowmodel.EvalUpstream, Reason: "upstream node failed", Cause: up.resultErr}
		}
		if up.result == nil {
			return nil, &flowmodel.EvalError{NodeID: id, Kind: flowmodel.EvalUpstream, Reason: "upstream node has no result yet"}
		}
		out[c.Label] = append(out[c.Label], up.result)
	}
	return out, nil
}

// SetNodeState transitions a node's state machine value directly; used
// by the scheduler to mark Computing/Ready/Error/Stale as a run
// progresses.
func (g *FlowGraph) SetNodeState(id int64, state flowmodel.NodeState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rn, ok := g.nodes[id]; ok {
		rn.state = state
	}
}

// NodeState returns a node's current state.
func (g *FlowGraph) NodeState(id int64) (flowmodel.NodeState, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rn, ok := g.nodes[id]
	if !ok {
		return "", &flowmodel.NotFoundError{Kind: "node", ID: id}
	}
	return rn.state, nil
}

// SetNodeResult records a node's computed handle (or failure) and moves
// its state to Ready or Error accordingly.
func (g *FlowGraph) SetNodeResult(id int64, result lazyframe.Handle, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rn, ok := g.nodes[id]
	if !ok {
		return
	}
	rn.result = result
	rn.resultErr = err
	if err != nil {
		rn.state = flowmodel.StateError
		return
	}
	rn.state = flowmodel.StateReady
	if result != nil {
		rn.schema = result.Schema()
		rn.schemaErr = nil
	}
}

// NodeResult returns a node's last computed handle and error, if any.
func (g *FlowGraph) NodeResult(id int64) (lazyframe.Handle, error, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rn, ok := g.nodes[id]
	if !ok {
		return nil, nil, &flowmodel.NotFoundError{Kind: "node", ID: id}
	}
	return rn.result, rn.resultErr, nil
}

// CacheLookup returns a previously stored handle for a fingerprint, if
// present.
func (g *FlowGraph) CacheLookup(ctx context.Context, fingerprint string) (lazyframe.Handle, bool) {
	h, ok, err := g.cache.ReadFromCache(ctx, fingerprint)
	if err != nil {
		return nil, false
	}
	return h, ok
}

// CacheStore records a computed handle under its fingerprint.
func (g *FlowGraph) CacheStore(ctx context.Context, fingerprint string, h lazyframe.Handle) {
	_ = g.cache.WriteToCache(ctx, fingerprint, h)
}
