// Package scheduler drives one run of a flow graph: wave-based parallel
// execution with bounded concurrency, per-node timeouts, cooperative
// cancellation, cache discipline, and a monotonic event stream, built
// around a goroutine-per-node DAG executor.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/graph"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/nodekind"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrRunFailed is returned by Run when at least one node failed and
// ContinueOnError was not set, after the full event stream (including
// run_finished) has already been emitted.
var ErrRunFailed = errors.New("scheduler: run completed with node failures")

// EventType discriminates the run event stream.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventRunFinished   EventType = "run_finished"
	EventNodeStarted   EventType = "node_started"
	EventNodeFinished  EventType = "node_finished"
	EventNodeFailed    EventType = "node_failed"
	EventLog           EventType = "log"
)

// Event is one entry in a run's event stream. Seq is strictly
// increasing within a run and is the ordering guarantee callers rely on
// instead of wall-clock timestamps.
type Event struct {
	Seq       int64
	RunID     string
	Type      EventType
	Timestamp time.Time

	NodeID      int64
	Fingerprint string
	RowCount    *int
	Err         error

	Level   string
	Message string

	Status string // set on run_finished: "completed" | "completed_with_errors" | "cancelled"
}

// EventSink receives a run's event stream. Implementations must not
// block the scheduler for long; Emit is called synchronously from
// whichever goroutine produced the event.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// RunOptions configures one Run call.
type RunOptions struct {
	// MaxParallelism bounds concurrent node execution within a wave; 0
	// means unbounded (one goroutine per node in the wave).
	MaxParallelism int
	// NodeTimeout bounds a single node's Compute call; 0 means no
	// per-node timeout beyond the run's own context.
	NodeTimeout time.Duration
	// ContinueOnError lets independent branches keep running after one
	// node fails; when false, the first node failure cancels the run.
	ContinueOnError bool
}

// Scheduler executes runs against one FlowGraph.
type Scheduler struct {
	g       *graph.FlowGraph
	catalog lazyframe.SourceCatalog
	sandbox lazyframe.CodeSandbox
	log     zerolog.Logger

	seq atomic.Int64
}

// New builds a Scheduler bound to g. catalog and sandbox may be nil if
// the flow has no read/write or polars_code nodes.
func New(g *graph.FlowGraph, catalog lazyframe.SourceCatalog, sandbox lazyframe.CodeSandbox, log zerolog.Logger) *Scheduler {
	return &Scheduler{g: g, catalog: catalog, sandbox: sandbox, log: log}
}

func (s *Scheduler) emit(sink EventSink, runID string, e Event) {
	if sink == nil {
		return
	}
	e.RunID = runID
	e.Seq = s.seq.Add(1)
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	sink.Emit(e)
}

// Run executes the whole graph in topological waves. It returns BusyError
// immediately if another run is already in flight. Every event it emits
// carries the same RunID, a fresh uuid distinguishing this run's event
// stream from any other's in a sink fed by multiple engines.
func (s *Scheduler) Run(ctx context.Context, sink EventSink, opts RunOptions) error {
	runID := uuid.NewString()

	if err := s.g.BeginRun(); err != nil {
		return err
	}
	defer s.g.EndRun()

	if err := s.g.RecomputeFingerprints(); err != nil {
		s.emit(sink, runID, Event{Type: EventRunFinished, Status: "completed_with_errors", Err: err})
		return err
	}

	waves, err := s.g.Waves()
	if err != nil {
		s.emit(sink, runID, Event{Type: EventRunFinished, Status: "completed_with_errors", Err: err})
		return err
	}

	s.emit(sink, runID, Event{Type: EventRunStarted})

	anyFailed := false
	cancelled := false

waveLoop:
	for waveIdx, wave := range waves {
		select {
		case <-ctx.Done():
			cancelled = true
			s.skipWaves(sink, runID, waves[waveIdx:], flowmodel.EvalCancelled, "run cancelled before wave started")
			break waveLoop
		default:
		}

		failedHere := s.runWave(ctx, sink, runID, wave, opts)
		if failedHere {
			anyFailed = true
			if !opts.ContinueOnError {
				s.skipWaves(sink, runID, waves[waveIdx+1:], flowmodel.EvalUpstream, "upstream wave failed")
				break waveLoop
			}
		}
	}

	status := "completed"
	switch {
	case cancelled:
		status = "cancelled"
	case anyFailed:
		status = "completed_with_errors"
	}
	s.emit(sink, runID, Event{Type: EventRunFinished, Status: status})

	if cancelled {
		return ctx.Err()
	}
	if anyFailed && !opts.ContinueOnError {
		return ErrRunFailed
	}
	return nil
}

// runWave executes every node in a wave concurrently, bounded by
// opts.MaxParallelism, and reports whether any node in the wave failed.
func (s *Scheduler) runWave(ctx context.Context, sink EventSink, runID string, wave []int64, opts RunOptions) bool {
	limit := opts.MaxParallelism
	if limit <= 0 {
		limit = len(wave)
	}
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	var failed atomic.Bool

	for _, id := range wave {
		select {
		case <-ctx.Done():
			s.skipNode(sink, runID, id)
			continue
		default:
		}

		wg.Add(1)
		go func(nodeID int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := s.runNode(ctx, sink, runID, nodeID, opts); err != nil {
				failed.Store(true)
			}
		}(id)
	}
	wg.Wait()
	return failed.Load()
}

func (s *Scheduler) skipNode(sink EventSink, runID string, id int64) {
	err := &flowmodel.EvalError{NodeID: id, Kind: flowmodel.EvalCancelled, Reason: "run cancelled before node started"}
	s.g.SetNodeResult(id, nil, err)
	s.emit(sink, runID, Event{Type: EventNodeFailed, NodeID: id, Err: err})
}

// skipWaves records an EvalError of the given kind for every node in
// every wave in waves, used when the run stops partway through: nodes
// in waves that never got a chance to run must not be left with no
// result at all.
func (s *Scheduler) skipWaves(sink EventSink, runID string, waves [][]int64, kind flowmodel.EvalErrorKind, reason string) {
	for _, wave := range waves {
		for _, id := range wave {
			err := &flowmodel.EvalError{NodeID: id, Kind: kind, Reason: reason}
			s.g.SetNodeResult(id, nil, err)
			s.emit(sink, runID, Event{Type: EventNodeFailed, NodeID: id, Err: err})
		}
	}
}

// runNode computes (or serves from cache) a single node, threading
// sandbox/catalog collaborators through the context and honoring the
// node-level timeout.
func (s *Scheduler) runNode(ctx context.Context, sink EventSink, runID string, id int64, opts RunOptions) error {
	if schemaErr := s.g.NodeSchemaErr(id); schemaErr != nil {
		s.g.SetNodeResult(id, nil, &flowmodel.EvalError{NodeID: id, Kind: flowmodel.EvalUpstream, Reason: "node has a schema error", Cause: schemaErr})
		s.emit(sink, runID, Event{Type: EventNodeFailed, NodeID: id, Err: schemaErr})
		return schemaErr
	}

	fingerprint, err := s.g.Fingerprint(id)
	if err != nil {
		s.g.SetNodeResult(id, nil, err)
		s.emit(sink, runID, Event{Type: EventNodeFailed, NodeID: id, Err: err})
		return err
	}

	cacheFlag, _ := s.g.NodeCacheFlag(id)
	if cacheFlag {
		if cached, ok := s.g.CacheLookup(ctx, fingerprint); ok {
			s.g.SetNodeResult(id, cached, nil)
			s.emit(sink, runID, Event{Type: EventNodeFinished, NodeID: id, Fingerprint: fingerprint})
			return nil
		}
	}

	s.g.SetNodeState(id, flowmodel.StateComputing)
	s.emit(sink, runID, Event{Type: EventNodeStarted, NodeID: id, Fingerprint: fingerprint})

	inputs, err := s.g.NodeInputsByLabel(id)
	if err != nil {
		s.g.SetNodeResult(id, nil, err)
		s.emit(sink, runID, Event{Type: EventNodeFailed, NodeID: id, Fingerprint: fingerprint, Err: err})
		return err
	}

	kind, err := s.g.NodeKind(id)
	if err != nil {
		return err
	}
	settings, err := s.g.NodeSettings(id)
	if err != nil {
		return err
	}
	def, err := s.g.Registry().Get(kind)
	if err != nil {
		s.g.SetNodeResult(id, nil, err)
		s.emit(sink, runID, Event{Type: EventNodeFailed, NodeID: id, Fingerprint: fingerprint, Err: err})
		return err
	}

	nodeCtx := ctx
	var cancel context.CancelFunc
	if opts.NodeTimeout > 0 {
		nodeCtx, cancel = context.WithTimeout(ctx, opts.NodeTimeout)
		defer cancel()
	}
	if s.sandbox != nil {
		nodeCtx = nodekind.WithSandbox(nodeCtx, s.sandbox)
	}
	if s.catalog != nil {
		nodeCtx = nodekind.WithCatalog(nodeCtx, s.catalog)
	}

	handle, computeErr := def.Compute(nodeCtx, settings, inputs)
	if computeErr != nil {
		wrapped := wrapComputeError(id, nodeCtx, computeErr)
		s.g.SetNodeResult(id, nil, wrapped)
		s.emit(sink, runID, Event{Type: EventNodeFailed, NodeID: id, Fingerprint: fingerprint, Err: wrapped})
		return wrapped
	}

	s.g.SetNodeResult(id, handle, nil)
	if cacheFlag {
		s.g.CacheStore(ctx, fingerprint, handle)
	}
	s.emit(sink, runID, Event{Type: EventNodeFinished, NodeID: id, Fingerprint: fingerprint})
	return nil
}

func wrapComputeError(id int64, ctx context.Context, err error) error {
	if _, ok := err.(*flowmodel.EvalError); ok {
		return err
	}
	if ctx.Err() == context.DeadlineExceeded {
		return &flowmodel.EvalError{NodeID: id, Kind: flowmodel.EvalTimeout, Reason: "node exceeded its timeout", Cause: err}
	}
	if ctx.Err() == context.Canceled {
		return &flowmodel.EvalError{NodeID: id, Kind: flowmodel.EvalCancelled, Reason: "run cancelled", Cause: err}
	}
	return &flowmodel.EvalError{NodeID: id, Kind: flowmodel.EvalInternal, Reason: "compute failed", Cause: err}
}
