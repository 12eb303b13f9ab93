// Package flowfile is the public facade over the graph, scheduler,
// history, and code generation packages: the thin root-level API a
// consumer imports, wrapping the internal engine behind a handful of
// factory functions.
package flowfile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowfile/flowfile/internal/config"
	"github.com/flowfile/flowfile/internal/logging"
	"github.com/flowfile/flowfile/pkg/codegen"
	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/flowmodel/document"
	"github.com/flowfile/flowfile/pkg/graph"
	"github.com/flowfile/flowfile/pkg/history"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/nodekind"
	"github.com/flowfile/flowfile/pkg/scheduler"
	"github.com/rs/zerolog"
)

// Engine is one running flow: its graph, scheduler, and history manager
// wired together, plus the cancellation state for an in-flight run.
type Engine struct {
	g       *graph.FlowGraph
	sched   *scheduler.Scheduler
	history *history.Manager

	runMu  sync.Mutex
	cancel context.CancelFunc
}

// Option configures a new Engine.
type Option func(*engineOptions)

type engineOptions struct {
	registry  *nodekind.Registry
	catalog   lazyframe.SourceCatalog
	sandbox   lazyframe.CodeSandbox
	cache     lazyframe.Cache
	log       zerolog.Logger
	trackHist bool
	histDepth int
	mode      string
}

// WithCatalog supplies the source catalog read/write nodes resolve
// against.
func WithCatalog(cat lazyframe.SourceCatalog) Option {
	return func(o *engineOptions) { o.catalog = cat }
}

// WithSandbox supplies the code sandbox polars_code nodes execute
// against.
func WithSandbox(sb lazyframe.CodeSandbox) Option {
	return func(o *engineOptions) { o.sandbox = sb }
}

// WithCache supplies a persistent lazyframe.Cache; the default is an
// in-process map that does not outlive the Engine.
func WithCache(c lazyframe.Cache) Option {
	return func(o *engineOptions) { o.cache = c }
}

// WithLogger overrides the zerolog logger components are built with.
func WithLogger(log zerolog.Logger) Option {
	return func(o *engineOptions) { o.log = log }
}

// WithRegistry overrides the node kind registry; the default carries
// every built-in kind.
func WithRegistry(reg *nodekind.Registry) Option {
	return func(o *engineOptions) { o.registry = reg }
}

// WithHistory enables or disables undo/redo tracking and its max depth.
func WithHistory(enabled bool, maxDepth int) Option {
	return func(o *engineOptions) { o.trackHist = enabled; o.histDepth = maxDepth }
}

func resolveOptions(opts []Option) *engineOptions {
	cfg, _ := config.Load()
	o := &engineOptions{
		registry:  nodekind.NewDefaultRegistry(),
		log:       logging.New(cfg.Logging),
		trackHist: cfg.History.TrackByDefault,
		histDepth: cfg.History.MaxDepth,
		mode:      "development",
	}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// NewFlow creates an empty named flow.
func NewFlow(name string, opts ...Option) *Engine {
	o := resolveOptions(opts)
	settings := flowmodel.FlowSettings{ExecutionMode: o.mode, TrackHistory: o.trackHist}
	g := graph.New(graph.NextFlowID(), name, settings, o.registry, o.catalog, o.cache, nil, o.log)

	e := &Engine{g: g}
	if o.trackHist {
		e.history = history.New(g, o.histDepth, time.Now)
		g.SetHistory(e.history)
	}
	e.sched = scheduler.New(g, o.catalog, o.sandbox, o.log)
	return e
}

// LoadFlow decodes a document and builds a live Engine from it.
func LoadFlow(ctx context.Context, data []byte, opts ...Option) (*Engine, error) {
	o := resolveOptions(opts)
	doc, err := document.Unmarshal(data, o.registry)
	if err != nil {
		return nil, fmt.Errorf("flowfile: load flow: %w", err)
	}

	flowID := doc.FlowID
	if flowID == 0 {
		flowID = graph.NextFlowID()
	}
	g := graph.New(flowID, doc.Name, doc.Settings, o.registry, o.catalog, o.cache, nil, o.log)

	e := &Engine{g: g}
	if doc.Settings.TrackHistory || o.trackHist {
		e.history = history.New(g, o.histDepth, time.Now)
		g.SetHistory(e.history)
	}
	if err := g.LoadDocument(ctx, doc); err != nil {
		return nil, err
	}
	e.sched = scheduler.New(g, o.catalog, o.sandbox, o.log)
	return e, nil
}

// SaveFlow serializes the engine's current state to the document format.
func (e *Engine) SaveFlow() ([]byte, error) {
	return document.Marshal(e.g.ToDocument())
}

// AddNode creates a new node of kind, returning its id.
func (e *Engine) AddNode(ctx context.Context, kind flowmodel.Kind, settings flowmodel.Settings) (int64, error) {
	return e.g.AddNode(ctx, kind, settings)
}

// DeleteNode removes a node and its incident edges.
func (e *Engine) DeleteNode(ctx context.Context, id int64) error {
	return e.g.DeleteNode(ctx, id)
}

// Connect wires source's output into target's input label.
func (e *Engine) Connect(ctx context.Context, source, target int64, label flowmodel.InputLabel) error {
	return e.g.Connect(ctx, source, target, label)
}

// Disconnect removes a wire.
func (e *Engine) Disconnect(ctx context.Context, source, target int64, label flowmodel.InputLabel) error {
	return e.g.Disconnect(ctx, source, target, label)
}

// UpdateSettings applies a new settings payload to a node.
func (e *Engine) UpdateSettings(ctx context.Context, id int64, settings flowmodel.Settings) error {
	return e.g.UpdateSettings(ctx, id, settings)
}

// ClearCache drops cached results, forcing recomputation on the next run.
func (e *Engine) ClearCache(nodeID *int64) error {
	return e.g.ClearCache(nodeID)
}

// Undo restores the state before the most recent mutation.
func (e *Engine) Undo() error { return e.g.Undo() }

// Redo mirrors Undo.
func (e *Engine) Redo() error { return e.g.Redo() }

// Describe returns one node's schema/result summary.
func (e *Engine) Describe(id int64) (*flowmodel.ResultDescriptor, error) {
	return e.g.Describe(id)
}

// NodeIDs returns every live node id, ascending.
func (e *Engine) NodeIDs() []int64 {
	ids := e.g.NodeIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GenerateCode renders the current flow as an equivalent Go program.
func (e *Engine) GenerateCode() (string, error) {
	return codegen.Generate(e.g.ToDocument())
}

// Run executes the whole graph synchronously, blocking until every wave
// completes, the context is cancelled, or a node failure stops the run.
func (e *Engine) Run(ctx context.Context, sink scheduler.EventSink, opts scheduler.RunOptions) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.runMu.Lock()
	e.cancel = cancel
	e.runMu.Unlock()
	defer func() {
		e.runMu.Lock()
		e.cancel = nil
		e.runMu.Unlock()
		cancel()
	}()
	return e.sched.Run(runCtx, sink, opts)
}

// RunAsync starts a run in a goroutine and returns immediately with the
// eventual error delivered on the returned channel. Cancel stops it.
func (e *Engine) RunAsync(ctx context.Context, sink scheduler.EventSink, opts scheduler.RunOptions) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx, sink, opts)
	}()
	return done
}

// Cancel stops the run currently in flight, if any. It is a no-op if no
// run is active.
func (e *Engine) Cancel() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Subscribe adapts a plain callback into an EventSink, the shape most
// embedders reach for first.
func Subscribe(fn func(scheduler.Event)) scheduler.EventSink {
	return scheduler.EventSinkFunc(fn)
}
