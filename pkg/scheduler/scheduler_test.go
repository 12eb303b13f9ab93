package scheduler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/graph"
	"github.com/flowfile/flowfile/pkg/lazyframe/memtable"
	"github.com/flowfile/flowfile/pkg/nodekind"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeJSONRows(t *testing.T, rows []map[string]any) string {
	t.Helper()
	data, err := json.Marshal(rows)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rows.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

type eventCollector struct {
	events []Event
}

func (c *eventCollector) Emit(e Event) { c.events = append(c.events, e) }

func newReadSelectGraph(t *testing.T, catalog *memtable.LocalCatalog, path string) (*graph.FlowGraph, int64, int64) {
	t.Helper()
	reg := nodekind.NewDefaultRegistry()
	g := graph.New(1, "test", flowmodel.FlowSettings{}, reg, catalog, nil, nil, zerolog.Nop())

	readID, err := g.AddNode(context.Background(), flowmodel.KindRead, &nodekind.ReadSettings{
		Backend:  nodekind.BackendLocal,
		Location: path,
		Format:   "json",
	})
	require.NoError(t, err)

	selectID, err := g.AddNode(context.Background(), flowmodel.KindSelect, &nodekind.SelectSettings{
		Columns: []nodekind.SelectColumn{{OriginalName: "id", Keep: true}},
	})
	require.NoError(t, err)
	require.NoError(t, g.Connect(context.Background(), readID, selectID, flowmodel.LabelMain))
	return g, readID, selectID
}

func TestRunExecutesGraphSuccessfully(t *testing.T) {
	path := writeJSONRows(t, []map[string]any{{"id": 1.0, "name": "alice"}})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	g, readID, selectID := newReadSelectGraph(t, catalog, path)

	sched := New(g, catalog, nil, zerolog.Nop())
	collector := &eventCollector{}
	err := sched.Run(context.Background(), collector, RunOptions{})
	require.NoError(t, err)

	h, resultErr, err := g.NodeResult(selectID)
	require.NoError(t, err)
	require.NoError(t, resultErr)
	require.NotNil(t, h)

	_, readErr, err := g.NodeResult(readID)
	require.NoError(t, err)
	require.NoError(t, readErr)

	var sawStarted, sawFinished bool
	for _, e := range collector.events {
		if e.Type == EventRunStarted {
			sawStarted = true
		}
		if e.Type == EventRunFinished {
			sawFinished = true
			require.Equal(t, "completed", e.Status)
		}
	}
	require.True(t, sawStarted)
	require.True(t, sawFinished)
}

func TestRunEventsCarryAStableRunID(t *testing.T) {
	path := writeJSONRows(t, []map[string]any{{"id": 1.0}})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	g, _, _ := newReadSelectGraph(t, catalog, path)

	sched := New(g, catalog, nil, zerolog.Nop())
	collector := &eventCollector{}
	require.NoError(t, sched.Run(context.Background(), collector, RunOptions{}))

	require.NotEmpty(t, collector.events)
	runID := collector.events[0].RunID
	require.NotEmpty(t, runID)
	for _, e := range collector.events {
		require.Equal(t, runID, e.RunID)
	}

	var lastSeq int64
	for _, e := range collector.events {
		require.Greater(t, e.Seq, lastSeq)
		lastSeq = e.Seq
	}
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	path := writeJSONRows(t, []map[string]any{{"id": 1.0}})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	g, _, _ := newReadSelectGraph(t, catalog, path)
	require.NoError(t, g.BeginRun())

	sched := New(g, catalog, nil, zerolog.Nop())
	err := sched.Run(context.Background(), nil, RunOptions{})
	require.Error(t, err)
	g.EndRun()
}

func TestRunFailsWhenNodeErrors(t *testing.T) {
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	missing := filepath.Join(t.TempDir(), "missing.json")
	g, _, _ := newReadSelectGraph(t, catalog, missing)

	sched := New(g, catalog, nil, zerolog.Nop())
	collector := &eventCollector{}
	err := sched.Run(context.Background(), collector, RunOptions{})
	require.ErrorIs(t, err, ErrRunFailed)

	var sawNodeFailed bool
	for _, e := range collector.events {
		if e.Type == EventNodeFailed {
			sawNodeFailed = true
		}
	}
	require.True(t, sawNodeFailed)
}

func TestRunContinueOnErrorAllowsIndependentBranches(t *testing.T) {
	reg := nodekind.NewDefaultRegistry()
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	g := graph.New(1, "test", flowmodel.FlowSettings{}, reg, catalog, nil, nil, zerolog.Nop())

	goodPath := writeJSONRows(t, []map[string]any{{"id": 1.0}})
	badPath := filepath.Join(t.TempDir(), "missing.json")

	goodRead, err := g.AddNode(context.Background(), flowmodel.KindRead, &nodekind.ReadSettings{
		Backend: nodekind.BackendLocal, Location: goodPath, Format: "json",
	})
	require.NoError(t, err)
	badRead, err := g.AddNode(context.Background(), flowmodel.KindRead, &nodekind.ReadSettings{
		Backend: nodekind.BackendLocal, Location: badPath, Format: "json",
	})
	require.NoError(t, err)

	sched := New(g, catalog, nil, zerolog.Nop())
	err = sched.Run(context.Background(), nil, RunOptions{ContinueOnError: true})
	require.NoError(t, err)

	_, goodErr, err := g.NodeResult(goodRead)
	require.NoError(t, err)
	require.NoError(t, goodErr)

	_, badErr, err := g.NodeResult(badRead)
	require.NoError(t, err)
	require.Error(t, badErr)
}

func TestRunHonorsCancellation(t *testing.T) {
	path := writeJSONRows(t, []map[string]any{{"id": 1.0}})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	g, _, _ := newReadSelectGraph(t, catalog, path)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sched := New(g, catalog, nil, zerolog.Nop())
	collector := &eventCollector{}
	err := sched.Run(ctx, collector, RunOptions{})
	require.ErrorIs(t, err, context.Canceled)

	var sawCancelled bool
	for _, e := range collector.events {
		if e.Type == EventRunFinished && e.Status == "cancelled" {
			sawCancelled = true
		}
	}
	require.True(t, sawCancelled)
}

func TestRunDoesNotCacheNodeWithoutCacheFlag(t *testing.T) {
	path := writeJSONRows(t, []map[string]any{{"id": 1.0}})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	reg := nodekind.NewDefaultRegistry()
	g := graph.New(1, "test", flowmodel.FlowSettings{}, reg, catalog, nil, nil, zerolog.Nop())

	readID, err := g.AddNode(context.Background(), flowmodel.KindRead, &nodekind.ReadSettings{
		Backend: nodekind.BackendLocal, Location: path, Format: "json",
	})
	require.NoError(t, err)
	settings, err := g.NodeSettings(readID)
	require.NoError(t, err)
	_ = settings

	require.NoError(t, g.ClearCache(nil))

	sched := New(g, catalog, nil, zerolog.Nop())
	require.NoError(t, sched.Run(context.Background(), nil, RunOptions{}))

	fp1, err := g.Fingerprint(readID)
	require.NoError(t, err)
	cached, ok := g.CacheLookup(context.Background(), fp1)
	require.False(t, ok, "read node has no cache_flag set, so nothing should be cached")
	require.Nil(t, cached)
}

func TestRunRespectsNodeTimeout(t *testing.T) {
	path := writeJSONRows(t, []map[string]any{{"id": 1.0}})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	g, _, _ := newReadSelectGraph(t, catalog, path)

	sched := New(g, catalog, nil, zerolog.Nop())
	err := sched.Run(context.Background(), nil, RunOptions{NodeTimeout: time.Hour})
	require.NoError(t, err)
}
