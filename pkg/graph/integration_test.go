package graph

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/flowmodel/document"
	"github.com/flowfile/flowfile/pkg/history"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/lazyframe/memtable"
	"github.com/flowfile/flowfile/pkg/nodekind"
	"github.com/flowfile/flowfile/pkg/scheduler"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeRowsFile(t *testing.T, rows []map[string]any) string {
	t.Helper()
	data, err := json.Marshal(rows)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rows.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newCatalogGraph(catalog *memtable.LocalCatalog) *FlowGraph {
	reg := nodekind.NewDefaultRegistry()
	return New(1, "scenario", flowmodel.FlowSettings{}, reg, catalog, nil, nil, zerolog.Nop())
}

// Scenario 1: filter then group-by drops non-positive amounts and sums
// the remainder per region.
func TestScenarioFilterThenGroupBy(t *testing.T) {
	path := writeRowsFile(t, []map[string]any{
		{"region": "N", "amt": 100.0},
		{"region": "S", "amt": 0.0},
		{"region": "N", "amt": 50.0},
	})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	g := newCatalogGraph(catalog)
	ctx := context.Background()

	readID, err := g.AddNode(ctx, flowmodel.KindRead, &nodekind.ReadSettings{
		Backend: nodekind.BackendLocal, Location: path, Format: "json",
	})
	require.NoError(t, err)
	filterID, err := g.AddNode(ctx, flowmodel.KindFilter, &nodekind.FilterSettings{
		Mode: nodekind.FilterBasic, Column: "amt", Operator: nodekind.OpGreaterThan, Value: 0,
	})
	require.NoError(t, err)
	require.NoError(t, g.Connect(ctx, readID, filterID, flowmodel.LabelMain))
	groupID, err := g.AddNode(ctx, flowmodel.KindGroupBy, &nodekind.GroupBySettings{
		Entries: []nodekind.GroupByEntry{
			{OldName: "region", Aggregation: nodekind.AggGroupBy, NewName: "region"},
			{OldName: "amt", Aggregation: lazyframe.AggSum, NewName: "total"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, g.Connect(ctx, filterID, groupID, flowmodel.LabelMain))

	sched := scheduler.New(g, catalog, nil, zerolog.Nop())
	require.NoError(t, sched.Run(ctx, nil, scheduler.RunOptions{}))

	h, resultErr, err := g.NodeResult(groupID)
	require.NoError(t, err)
	require.NoError(t, resultErr)
	tbl, err := h.Collect(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.NumRows())
}

// Scenario 2: a self-join with a duplicated key and integrity
// verification enabled fails the join node without touching the
// upstream nodes' own results.
func TestScenarioSelfJoinIntegrityViolation(t *testing.T) {
	path := writeRowsFile(t, []map[string]any{
		{"k": 1.0, "v": "a"},
		{"k": 1.0, "v": "b"},
	})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	g := newCatalogGraph(catalog)
	ctx := context.Background()

	readID, err := g.AddNode(ctx, flowmodel.KindRead, &nodekind.ReadSettings{
		Backend: nodekind.BackendLocal, Location: path, Format: "json",
	})
	require.NoError(t, err)
	joinID, err := g.AddNode(ctx, flowmodel.KindJoin, &nodekind.JoinSettings{
		How:             lazyframe.JoinInner,
		Keys:            []nodekind.JoinKey{{Left: "k", Right: "k"}},
		VerifyIntegrity: true,
	})
	require.NoError(t, err)
	require.NoError(t, g.Connect(ctx, readID, joinID, flowmodel.LabelLeft))
	require.NoError(t, g.Connect(ctx, readID, joinID, flowmodel.LabelRight))

	sched := scheduler.New(g, catalog, nil, zerolog.Nop())
	err = sched.Run(ctx, nil, scheduler.RunOptions{})
	require.ErrorIs(t, err, scheduler.ErrRunFailed)

	_, readResultErr, err := g.NodeResult(readID)
	require.NoError(t, err)
	require.NoError(t, readResultErr)

	_, joinResultErr, err := g.NodeResult(joinID)
	require.NoError(t, err)
	require.Error(t, joinResultErr)
	var evalErr *flowmodel.EvalError
	require.ErrorAs(t, joinResultErr, &evalErr)
	require.Equal(t, flowmodel.EvalIntegrity, evalErr.Kind)
}

// Scenario 3: pivoting on a single aggregation names output columns
// after the pivot values themselves.
func TestScenarioPivotRoundTrip(t *testing.T) {
	path := writeRowsFile(t, []map[string]any{
		{"id": 1.0, "key": "x", "val": 10.0},
		{"id": 1.0, "key": "y", "val": 20.0},
	})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	g := newCatalogGraph(catalog)
	ctx := context.Background()

	readID, err := g.AddNode(ctx, flowmodel.KindRead, &nodekind.ReadSettings{
		Backend: nodekind.BackendLocal, Location: path, Format: "json",
	})
	require.NoError(t, err)
	pivotID, err := g.AddNode(ctx, flowmodel.KindPivot, &nodekind.PivotSettings{
		Index: []string{"id"}, PivotColumn: "key", ValueColumn: "val",
		Aggregations: []lazyframe.Aggregation{lazyframe.AggSum},
	})
	require.NoError(t, err)
	require.NoError(t, g.Connect(ctx, readID, pivotID, flowmodel.LabelMain))

	sched := scheduler.New(g, catalog, nil, zerolog.Nop())
	require.NoError(t, sched.Run(ctx, nil, scheduler.RunOptions{}))

	h, resultErr, err := g.NodeResult(pivotID)
	require.NoError(t, err)
	require.NoError(t, resultErr)
	require.ElementsMatch(t, []string{"id", "x", "y"}, h.Schema().Names())

	tbl, err := h.Collect(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, tbl.NumRows())
}

// Scenario 4: four undos against an empty-graph baseline restore the
// empty document, and four redos restore the fully-mutated one.
func TestScenarioUndoRedoEquivalence(t *testing.T) {
	reg := nodekind.NewDefaultRegistry()
	g := New(1, "undo-scenario", flowmodel.FlowSettings{TrackHistory: true}, reg, nil, nil, nil, zerolog.Nop())
	mgr := history.New(g, 0, func() time.Time { return time.Unix(0, 0) })
	g.SetHistory(mgr)
	ctx := context.Background()

	emptyDoc, err := g.Snapshot()
	require.NoError(t, err)

	readID, err := g.AddNode(ctx, flowmodel.KindRead, &nodekind.ReadSettings{
		Backend: nodekind.BackendLocal, Location: "a.json", Format: "json",
	})
	require.NoError(t, err)
	filterID, err := g.AddNode(ctx, flowmodel.KindFilter, &nodekind.FilterSettings{
		Mode: nodekind.FilterBasic, Column: "amt", Operator: nodekind.OpGreaterThan, Value: 0,
	})
	require.NoError(t, err)
	require.NoError(t, g.Connect(ctx, readID, filterID, flowmodel.LabelMain))
	require.NoError(t, g.UpdateSettings(ctx, filterID, &nodekind.FilterSettings{
		Mode: nodekind.FilterBasic, Column: "amt", Operator: nodekind.OpGreaterThan, Value: 10,
	}))

	finalDoc, err := g.Snapshot()
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, g.Undo())
	}
	afterUndo, err := g.Snapshot()
	require.NoError(t, err)
	require.JSONEq(t, string(emptyDoc), string(afterUndo))

	for i := 0; i < 4; i++ {
		require.NoError(t, g.Redo())
	}
	afterRedo, err := g.Snapshot()
	require.NoError(t, err)
	require.JSONEq(t, string(finalDoc), string(afterRedo))
}

// Scenario 5: re-running after a downstream-only settings change must
// not recompute a cache-flagged node whose own fingerprint is
// unaffected, even though an un-flagged ancestor reruns unconditionally.
func TestScenarioCacheHitOnUnchangedSubgraph(t *testing.T) {
	path := writeRowsFile(t, []map[string]any{{"a": 1.0}})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())

	reg := nodekind.NewDefaultRegistry()
	selectDef, err := reg.Get(flowmodel.KindSelect)
	require.NoError(t, err)
	var selectComputeCount int
	origCompute := selectDef.Compute
	selectDef.Compute = func(ctx context.Context, settings flowmodel.Settings, inputs nodekind.Inputs) (lazyframe.Handle, error) {
		selectComputeCount++
		return origCompute(ctx, settings, inputs)
	}
	reg.Register(selectDef)

	outPath := filepath.Join(t.TempDir(), "out.json")
	g := New(1, "scenario", flowmodel.FlowSettings{}, reg, catalog, nil, nil, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, g.LoadDocument(ctx, &document.Document{
		Nodes: []document.NodeDoc{
			{ID: 1, Kind: flowmodel.KindRead, Settings: map[string]any{"backend": "local", "location": path, "format": "json"}},
			{ID: 2, Kind: flowmodel.KindSelect, CacheFlag: true,
				Settings: map[string]any{"columns": []any{map[string]any{"original_name": "a", "keep": true}}},
				Inputs:   []document.ConnectionDoc{{SourceID: 1, Label: flowmodel.LabelMain}}},
			{ID: 3, Kind: flowmodel.KindWrite,
				Settings: map[string]any{"backend": "local", "location": outPath, "format": "json", "mode": "overwrite"},
				Inputs:   []document.ConnectionDoc{{SourceID: 2, Label: flowmodel.LabelMain}}},
		},
		Edges: []document.EdgeDoc{
			{Source: 1, Target: 2, Label: flowmodel.LabelMain},
			{Source: 2, Target: 3, Label: flowmodel.LabelMain},
		},
	}))
	const selectID, writeID int64 = 2, 3

	sched := scheduler.New(g, catalog, nil, zerolog.Nop())
	require.NoError(t, sched.Run(ctx, nil, scheduler.RunOptions{}))
	require.Equal(t, 1, selectComputeCount)

	fpBefore, err := g.Fingerprint(selectID)
	require.NoError(t, err)

	outPath2 := filepath.Join(t.TempDir(), "out2.json")
	require.NoError(t, g.UpdateSettings(ctx, writeID, &nodekind.WriteSettings{
		Backend: nodekind.BackendLocal, Location: outPath2, Format: "json", Mode: lazyframe.WriteOverwrite,
	}))

	fpAfter, err := g.Fingerprint(selectID)
	require.NoError(t, err)
	require.Equal(t, fpBefore, fpAfter, "a downstream-only settings change must not alter an unrelated upstream fingerprint")

	require.NoError(t, sched.Run(ctx, nil, scheduler.RunOptions{}))
	require.Equal(t, 1, selectComputeCount, "the cache-flagged select node must not recompute when its own fingerprint is unchanged")

	_, err = os.Stat(outPath2)
	require.NoError(t, err)
}

// Scenario 6: cancelling between waves stops the run at the next wave
// boundary — the wave already in flight completes, later waves never
// start — and a subsequent uncancelled run still succeeds end to end.
func TestScenarioCancelMidRunThenRecover(t *testing.T) {
	path := writeRowsFile(t, []map[string]any{{"a": 1.0}})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	g := newCatalogGraph(catalog)
	ctx := context.Background()

	readID, err := g.AddNode(ctx, flowmodel.KindRead, &nodekind.ReadSettings{
		Backend: nodekind.BackendLocal, Location: path, Format: "json",
	})
	require.NoError(t, err)
	filterID, err := g.AddNode(ctx, flowmodel.KindFilter, &nodekind.FilterSettings{
		Mode: nodekind.FilterBasic, Column: "a", Operator: nodekind.OpGreaterThan, Value: 0,
	})
	require.NoError(t, err)
	require.NoError(t, g.Connect(ctx, readID, filterID, flowmodel.LabelMain))

	sched := scheduler.New(g, catalog, nil, zerolog.Nop())
	cancelCtx, cancel := context.WithCancel(ctx)
	sink := scheduler.EventSinkFunc(func(e scheduler.Event) {
		if e.Type == scheduler.EventNodeFinished && e.NodeID == readID {
			cancel()
		}
	})
	err = sched.Run(cancelCtx, sink, scheduler.RunOptions{})
	require.ErrorIs(t, err, context.Canceled)

	_, readErr, err := g.NodeResult(readID)
	require.NoError(t, err)
	require.NoError(t, readErr, "the wave already in flight when cancellation arrives still completes")

	filterResult, filterErr, err := g.NodeResult(filterID)
	require.NoError(t, err)
	require.Nil(t, filterResult)
	require.Error(t, filterErr, "a wave that never started still lands in error, not silence")
	var evalErr *flowmodel.EvalError
	require.ErrorAs(t, filterErr, &evalErr)
	require.Equal(t, flowmodel.EvalCancelled, evalErr.Kind)

	require.NoError(t, sched.Run(ctx, nil, scheduler.RunOptions{}))
	_, filterErr, err = g.NodeResult(filterID)
	require.NoError(t, err)
	require.NoError(t, filterErr)
}
