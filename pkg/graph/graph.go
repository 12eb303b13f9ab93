// Package graph implements FlowGraph: the mutating surface that owns a
// flow's nodes and edges, enforces its structural invariants, propagates
// schemas, and exposes the traversal and caching primitives the
// scheduler and code generator build on.
package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/flowmodel/document"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/lazyframe/memtable"
	"github.com/flowfile/flowfile/pkg/nodekind"
	"github.com/flowfile/flowfile/pkg/schema"
	"github.com/rs/zerolog"
)

var flowIDCounter int64

// NextFlowID returns a fresh process-unique flow id.
func NextFlowID() int64 { return atomic.AddInt64(&flowIDCounter, 1) }

type runtimeNode struct {
	node        *flowmodel.Node
	state       flowmodel.NodeState
	schema      schema.Schema
	schemaErr   error
	result      lazyframe.Handle
	resultErr   error
	fingerprint string
}

// FlowGraph owns one flow's live node/edge state.
type FlowGraph struct {
	mu   sync.RWMutex
	busy sync.Mutex

	id       int64
	name     string
	settings flowmodel.FlowSettings

	registry *nodekind.Registry
	catalog  lazyframe.SourceCatalog
	log      zerolog.Logger

	nodes      map[int64]*runtimeNode
	edges      []flowmodel.Edge
	nextNodeID int64

	running bool

	cache lazyframe.Cache

	history historyManager
}

// historyManager is the subset of *history.Manager FlowGraph needs; kept
// as an interface here so graph never imports history (history imports
// nothing of graph's — it depends only on the Snapshotable interface,
// which FlowGraph satisfies structurally).
type historyManager interface {
	Capture(reason string) error
	CaptureIfChanged(preHash, reason string) error
	CurrentHash() (string, error)
	Undo() error
	Redo() error
}

// New constructs an empty flow graph. catalog may be nil if no read/write
// nodes will be used. cache may be nil to use a plain in-process map.
// history may be nil to disable undo/redo tracking regardless of
// settings.TrackHistory.
func New(id int64, name string, settings flowmodel.FlowSettings, registry *nodekind.Registry, catalog lazyframe.SourceCatalog, cache lazyframe.Cache, history historyManager, log zerolog.Logger) *FlowGraph {
	if cache == nil {
		cache = memtable.NewMemoryCache()
	}
	g := &FlowGraph{
		id:       id,
		name:     name,
		settings: settings,
		registry: registry,
		catalog:  catalog,
		log:      log.With().Int64("flow_id", id).Logger(),
		nodes:    make(map[int64]*runtimeNode),
		cache:    cache,
		history:  history,
	}
	g.captureHistory("initial")
	return g
}

// SetHistory attaches (or replaces) the history manager a graph reports
// its mutations to. It exists because the manager's constructor needs a
// reference to the very graph it will be attached to — a one-step tie a
// single constructor call can't express. Attaching seeds the manager's
// undo stack with the graph's state at attachment time, so undoing back
// past the first tracked mutation lands on that baseline rather than
// erroring one step short of it.
func (g *FlowGraph) SetHistory(h historyManager) {
	g.history = h
	g.captureHistory("initial")
}

func (g *FlowGraph) ID() int64                       { return g.id }
func (g *FlowGraph) Name() string                    { return g.name }
func (g *FlowGraph) Settings() flowmodel.FlowSettings { return g.settings }
func (g *FlowGraph) Registry() *nodekind.Registry    { return g.registry }

func (g *FlowGraph) checkNotBusy(op string) error {
	g.busy.Lock()
	defer g.busy.Unlock()
	if g.running {
		return &flowmodel.BusyError{Op: op}
	}
	return nil
}

// BeginRun marks the graph as busy for the duration of a run. It fails
// with BusyError if a run is already in flight.
func (g *FlowGraph) BeginRun() error {
	g.busy.Lock()
	defer g.busy.Unlock()
	if g.running {
		return &flowmodel.BusyError{Op: "run"}
	}
	g.running = true
	return nil
}

// EndRun clears the busy flag.
func (g *FlowGraph) EndRun() {
	g.busy.Lock()
	g.running = false
	g.busy.Unlock()
}

// AddNode creates a new node of the given kind, assigning a fresh id.
func (g *FlowGraph) AddNode(ctx context.Context, kind flowmodel.Kind, initial flowmodel.Settings) (int64, error) {
	if err := g.checkNotBusy("add_node"); err != nil {
		return 0, err
	}
	def, err := g.registry.Get(kind)
	if err != nil {
		return 0, err
	}
	settings := initial
	if settings == nil {
		settings = def.NewSettings()
	}
	if err := settings.Validate(); err != nil {
		return 0, err
	}

	g.mu.Lock()
	g.nextNodeID++
	id := g.nextNodeID
	g.nodes[id] = &runtimeNode{
		node: &flowmodel.Node{
			ID:       id,
			Kind:     kind,
			Settings: settings,
		},
		state: flowmodel.StateUnconfigured,
	}
	g.mu.Unlock()

	g.captureHistory("add_node")
	g.recomputeSchemas(ctx, id)
	return id, nil
}

// DeleteNode removes a node and every incident edge.
func (g *FlowGraph) DeleteNode(ctx context.Context, id int64) error {
	if err := g.checkNotBusy("delete_node"); err != nil {
		return err
	}
	g.mu.Lock()
	if _, ok := g.nodes[id]; !ok {
		g.mu.Unlock()
		return &flowmodel.NotFoundError{Kind: "node", ID: id}
	}
	delete(g.nodes, id)
	kept := g.edges[:0:0]
	var descendants []int64
	for _, e := range g.edges {
		if e.SourceID == id || e.TargetID == id {
			if e.SourceID == id {
				descendants = append(descendants, e.TargetID)
			}
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
	for _, n := range g.nodes {
		n.node.Inputs = filterConnections(n.node.Inputs, id)
	}
	g.mu.Unlock()

	g.captureHistory("delete_node")
	for _, d := range descendants {
		g.markStale(d)
	}
	g.recomputeDescendantSchemas(ctx, descendants)
	return nil
}

func filterConnections(conns []flowmodel.Connection, removedSourceID int64) []flowmodel.Connection {
	out := conns[:0:0]
	for _, c := range conns {
		if c.SourceID == removedSourceID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Connect wires source's output into target's input label.
func (g *FlowGraph) Connect(ctx context.Context, source, target int64, label flowmodel.InputLabel) error {
	if err := g.checkNotBusy("connect"); err != nil {
		return err
	}
	g.mu.Lock()
	srcNode, ok := g.nodes[source]
	if !ok {
		g.mu.Unlock()
		return &flowmodel.NotFoundError{Kind: "node", ID: source}
	}
	tgtNode, ok := g.nodes[target]
	if !ok {
		g.mu.Unlock()
		return &flowmodel.NotFoundError{Kind: "node", ID: target}
	}
	_ = srcNode

	for _, c := range tgtNode.node.Inputs {
		if c.SourceID == source && c.Label == label {
			g.mu.Unlock()
			return nil // duplicate connection is a no-op
		}
	}

	if g.pathExists(target, source) {
		g.mu.Unlock()
		return &flowmodel.CycleError{Source: source, Target: target}
	}

	def, err := g.registry.Get(tgtNode.node.Kind)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	arity, ok := def.Arity[label]
	if !ok {
		g.mu.Unlock()
		return &flowmodel.ArityError{Target: target, Label: label, Max: 0}
	}
	current := 0
	for _, c := range tgtNode.node.Inputs {
		if c.Label == label {
			current++
		}
	}
	if !arity.Accepts(current + 1) {
		g.mu.Unlock()
		return &flowmodel.ArityError{Target: target, Label: label, Max: arity.Max}
	}

	tgtNode.node.Inputs = append(tgtNode.node.Inputs, flowmodel.Connection{SourceID: source, Label: label})
	g.edges = append(g.edges, flowmodel.Edge{SourceID: source, TargetID: target, Label: label})
	g.mu.Unlock()

	g.captureHistory("connect")
	g.markStale(target)
	g.recomputeSchemas(ctx, target)
	return nil
}

// Disconnect removes a wire; the inverse of Connect.
func (g *FlowGraph) Disconnect(ctx context.Context, source, target int64, label flowmodel.InputLabel) error {
	if err := g.checkNotBusy("disconnect"); err != nil {
		return err
	}
	g.mu.Lock()
	tgtNode, ok := g.nodes[target]
	if !ok {
		g.mu.Unlock()
		return &flowmodel.NotFoundError{Kind: "node", ID: target}
	}
	found := false
	newInputs := tgtNode.node.Inputs[:0:0]
	for _, c := range tgtNode.node.Inputs {
		if c.SourceID == source && c.Label == label && !found {
			found = true
			continue
		}
		newInputs = append(newInputs, c)
	}
	tgtNode.node.Inputs = newInputs

	newEdges := g.edges[:0:0]
	removed := false
	for _, e := range g.edges {
		if !removed && e.SourceID == source && e.TargetID == target && e.Label == label {
			removed = true
			continue
		}
		newEdges = append(newEdges, e)
	}
	g.edges = newEdges
	g.mu.Unlock()

	if !found {
		return &flowmodel.NotFoundError{Kind: "edge", ID: target}
	}
	g.captureHistory("disconnect")
	g.markStale(target)
	g.recomputeSchemas(ctx, target)
	return nil
}

// UpdateSettings validates and applies a new settings payload to a node.
// A settings update whose fingerprint equals the previous one is a
// no-op: no history entry, no re-propagation.
func (g *FlowGraph) UpdateSettings(ctx context.Context, id int64, payload flowmodel.Settings) error {
	if err := g.checkNotBusy("update_settings"); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	rn, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return &flowmodel.NotFoundError{Kind: "node", ID: id}
	}
	if rn.node.Settings != nil && rn.node.Settings.Fingerprint() == payload.Fingerprint() {
		g.mu.Unlock()
		return nil
	}
	rn.node.Settings = payload
	if rn.state == flowmodel.StateUnconfigured {
		rn.state = flowmodel.StateConfigured
	}
	rn.result = nil
	rn.resultErr = nil
	g.mu.Unlock()

	g.captureHistory("update_settings")
	g.markStale(id)
	g.recomputeSchemas(ctx, id)
	return nil
}

// pathExists reports whether a directed path from `from` to `to` exists
// in the current edge set; callers must hold g.mu.
func (g *FlowGraph) pathExists(from, to int64) bool {
	visited := map[int64]bool{}
	var dfs func(n int64) bool
	dfs = func(n int64) bool {
		if n == to {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for _, e := range g.edges {
			if e.SourceID == n && dfs(e.TargetID) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}

// TopologicalOrder returns a deterministic topological ordering, ties
// broken by ascending id.
func (g *FlowGraph) TopologicalOrder() ([]int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.topoLocked()
}

func (g *FlowGraph) topoLocked() ([]int64, error) {
	indegree := make(map[int64]int, len(g.nodes))
	adj := make(map[int64][]int64, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = 0
	}
	for _, e := range g.edges {
		indegree[e.TargetID]++
		adj[e.SourceID] = append(adj[e.SourceID], e.TargetID)
	}

	var ready []int64
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	order := make([]int64, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, m := range adj[n] {
			indegree[m]--
			if indegree[m] == 0 {
				ready = append(ready, m)
			}
		}
	}
	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("graph: cycle detected during topological sort")
	}
	return order, nil
}

// Waves groups TopologicalOrder into dependency waves: each wave's nodes
// have all dependencies satisfied by earlier waves and can run in
// parallel with each other.
func (g *FlowGraph) Waves() ([][]int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	depth := make(map[int64]int, len(g.nodes))
	adj := make(map[int64][]int64)
	indegree := make(map[int64]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = 0
	}
	for _, e := range g.edges {
		indegree[e.TargetID]++
		adj[e.SourceID] = append(adj[e.SourceID], e.TargetID)
	}
	var queue []int64
	for id, d := range indegree {
		if d == 0 {
			depth[id] = 0
			queue = append(queue, id)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })
	processed := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		processed++
		for _, m := range adj[n] {
			if depth[n]+1 > depth[m] {
				depth[m] = depth[n] + 1
			}
			indegree[m]--
			if indegree[m] == 0 {
				queue = append(queue, m)
				sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })
			}
		}
	}
	if processed != len(g.nodes) {
		return nil, fmt.Errorf("graph: cycle detected while computing waves")
	}
	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	waves := make([][]int64, maxDepth+1)
	for id, d := range depth {
		waves[d] = append(waves[d], id)
	}
	for _, w := range waves {
		sort.Slice(w, func(i, j int) bool { return w[i] < w[j] })
	}
	return waves, nil
}

// ClearCache drops cached handles, forcing recomputation. nodeID == nil
// clears every entry.
func (g *FlowGraph) ClearCache(nodeID *int64) error {
	if err := g.checkNotBusy("clear_cache"); err != nil {
		return err
	}
	if nodeID == nil {
		g.mu.Lock()
		for _, n := range g.nodes {
			if n.fingerprint != "" {
				g.cache.Evict(n.fingerprint)
			}
			n.result = nil
			n.resultErr = nil
		}
		g.mu.Unlock()
		return nil
	}
	g.mu.Lock()
	rn, ok := g.nodes[*nodeID]
	if ok {
		if rn.fingerprint != "" {
			g.cache.Evict(rn.fingerprint)
		}
		rn.result = nil
		rn.resultErr = nil
	}
	g.mu.Unlock()
	if !ok {
		return &flowmodel.NotFoundError{Kind: "node", ID: *nodeID}
	}
	return nil
}

func (g *FlowGraph) captureHistory(reason string) {
	if g.history == nil || !g.settings.TrackHistory {
		return
	}
	if err := g.history.Capture(reason); err != nil {
		g.log.Warn().Err(err).Str("reason", reason).Msg("history capture failed")
	}
}

// Undo restores the state before the most recent mutation.
func (g *FlowGraph) Undo() error {
	if err := g.checkNotBusy("undo"); err != nil {
		return err
	}
	if g.history == nil {
		return fmt.Errorf("graph: history tracking is disabled for this flow")
	}
	return g.history.Undo()
}

// Redo mirrors Undo.
func (g *FlowGraph) Redo() error {
	if err := g.checkNotBusy("redo"); err != nil {
		return err
	}
	if g.history == nil {
		return fmt.Errorf("graph: history tracking is disabled for this flow")
	}
	return g.history.Redo()
}

// Snapshot implements history.Snapshotable by serializing to the
// document format.
func (g *FlowGraph) Snapshot() ([]byte, error) {
	doc := g.ToDocument()
	return document.Marshal(doc)
}

// Restore implements history.Snapshotable by loading a previously
// captured document back into the live graph.
func (g *FlowGraph) Restore(raw []byte) error {
	doc, err := document.Unmarshal(raw, g.registry)
	if err != nil {
		return err
	}
	return g.LoadDocument(context.Background(), doc)
}

// NodeIDs returns every live node id, unordered.
func (g *FlowGraph) NodeIDs() []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]int64, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	return out
}

// Describe returns a snapshot of one node's public state.
func (g *FlowGraph) Describe(id int64) (*flowmodel.ResultDescriptor, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rn, ok := g.nodes[id]
	if !ok {
		return nil, &flowmodel.NotFoundError{Kind: "node", ID: id}
	}
	desc := &flowmodel.ResultDescriptor{NodeID: id, Schema: rn.schema, Err: rn.schemaErr, RowCount: -1}
	if rn.resultErr != nil {
		desc.Err = rn.resultErr
	}
	if rn.result != nil {
		desc.Identity = rn.result.Identity()
	}
	return desc, nil
}
