package flowfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/lazyframe/memtable"
	"github.com/flowfile/flowfile/pkg/nodekind"
	"github.com/flowfile/flowfile/pkg/scheduler"
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

func TestFilterThenGroupByEndToEnd(t *testing.T) {
	path := writeJSONRows(t, []map[string]any{
		{"region": "east", "amount": 10.0, "active": true},
		{"region": "east", "amount": 20.0, "active": true},
		{"region": "west", "amount": 5.0, "active": false},
		{"region": "west", "amount": 7.0, "active": true},
	})
	catalog := memtable.NewLocalCatalog(memtable.NewBackend())
	e := NewFlow("filter-then-groupby", WithCatalog(catalog), WithHistory(false, 0))
	ctx := context.Background()

	readID, err := e.AddNode(ctx, flowmodel.KindRead, &nodekind.ReadSettings{
		Backend: nodekind.BackendLocal, Location: path, Format: "json",
	})
	require.NoError(t, err)

	filterID, err := e.AddNode(ctx, flowmodel.KindFilter, &nodekind.FilterSettings{
		Mode: nodekind.FilterBasic, Column: "active", Operator: nodekind.OpEquals, Value: true,
	})
	require.NoError(t, err)
	require.NoError(t, e.Connect(ctx, readID, filterID, flowmodel.LabelMain))

	groupID, err := e.AddNode(ctx, flowmodel.KindGroupBy, &nodekind.GroupBySettings{
		Entries: []nodekind.GroupByEntry{
			{OldName: "region", Aggregation: nodekind.AggGroupBy, NewName: "region"},
			{OldName: "amount", Aggregation: lazyframe.AggSum, NewName: "total"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, e.Connect(ctx, filterID, groupID, flowmodel.LabelMain))

	require.NoError(t, e.Run(ctx, nil, scheduler.RunOptions{}))

	desc, err := e.Describe(groupID)
	require.NoError(t, err)
	require.NoError(t, desc.Err)
	require.ElementsMatch(t, []string{"region", "total"}, desc.Schema.Names())
}

func TestUndoRedoAcrossMutations(t *testing.T) {
	e := NewFlow("undo-demo", WithHistory(true, 0))
	ctx := context.Background()

	id, err := e.AddNode(ctx, flowmodel.KindSelect, &nodekind.SelectSettings{
		Columns: []nodekind.SelectColumn{{OriginalName: "a", Keep: true}},
	})
	require.NoError(t, err)
	require.Len(t, e.NodeIDs(), 1)

	require.NoError(t, e.UpdateSettings(ctx, id, &nodekind.SelectSettings{
		Columns: []nodekind.SelectColumn{{OriginalName: "a", NewName: "renamed", Keep: true}},
	}))

	require.NoError(t, e.Undo())
	settings, err := e.g.NodeSettings(id)
	require.NoError(t, err)
	require.Equal(t, "", settings.(*nodekind.SelectSettings).Columns[0].NewName)

	require.NoError(t, e.Redo())
	settings, err = e.g.NodeSettings(id)
	require.NoError(t, err)
	require.Equal(t, "renamed", settings.(*nodekind.SelectSettings).Columns[0].NewName)
}

func TestSaveAndLoadFlowRoundTrip(t *testing.T) {
	e := NewFlow("save-demo", WithHistory(false, 0))
	ctx := context.Background()

	a, err := e.AddNode(ctx, flowmodel.KindSelect, &nodekind.SelectSettings{
		Columns: []nodekind.SelectColumn{{OriginalName: "a", Keep: true}},
	})
	require.NoError(t, err)
	b, err := e.AddNode(ctx, flowmodel.KindSelect, &nodekind.SelectSettings{
		Columns: []nodekind.SelectColumn{{OriginalName: "a", Keep: true}},
	})
	require.NoError(t, err)
	require.NoError(t, e.Connect(ctx, a, b, flowmodel.LabelMain))

	data, err := e.SaveFlow()
	require.NoError(t, err)

	loaded, err := LoadFlow(ctx, data, WithHistory(false, 0))
	require.NoError(t, err)
	require.Len(t, loaded.NodeIDs(), 2)
}

func TestRunAsyncWithCancelledContextReturnsError(t *testing.T) {
	e := NewFlow("cancel-demo", WithHistory(false, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := e.RunAsync(ctx, nil, scheduler.RunOptions{})
	err := <-done
	require.Error(t, err)
}

func TestGenerateCodeProducesGoSource(t *testing.T) {
	e := NewFlow("codegen-demo", WithHistory(false, 0))
	ctx := context.Background()
	_, err := e.AddNode(ctx, flowmodel.KindSelect, &nodekind.SelectSettings{
		Columns: []nodekind.SelectColumn{{OriginalName: "a", Keep: true}},
	})
	require.NoError(t, err)

	src, err := e.GenerateCode()
	require.NoError(t, err)
	require.Contains(t, src, "package main")
}
