package nodekind

import (
	"context"
	"testing"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe/memtable"
	"github.com/flowfile/flowfile/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestSelectSettingsValidate(t *testing.T) {
	valid := &SelectSettings{Columns: []SelectColumn{{OriginalName: "a", Keep: true}}}
	require.NoError(t, valid.Validate())

	empty := &SelectSettings{Columns: []SelectColumn{{OriginalName: "", Keep: true}}}
	require.Error(t, empty.Validate())

	dup := &SelectSettings{Columns: []SelectColumn{
		{OriginalName: "a", Keep: true},
		{OriginalName: "a", Keep: false},
	}}
	require.Error(t, dup.Validate())
}

func TestSelectSchemaDropsAndRenames(t *testing.T) {
	in := schema.Schema{
		{Name: "a", Type: schema.Int64},
		{Name: "b", Type: schema.String},
		{Name: "c", Type: schema.Bool},
	}
	s := &SelectSettings{Columns: []SelectColumn{
		{OriginalName: "a", NewName: "a_renamed", Keep: true},
		{OriginalName: "b", Keep: false},
	}}

	out, err := selectSchema(s, in)
	require.NoError(t, err)
	require.Equal(t, []string{"a_renamed"}, out.Names())
}

func TestSelectSchemaKeepMissing(t *testing.T) {
	in := schema.Schema{
		{Name: "a", Type: schema.Int64},
		{Name: "b", Type: schema.String},
	}
	s := &SelectSettings{KeepMissing: true, Columns: []SelectColumn{{OriginalName: "a", Keep: true}}}

	out, err := selectSchema(s, in)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, out.Names())
}

func TestSelectSchemaUnknownColumnErrors(t *testing.T) {
	in := schema.Schema{{Name: "a", Type: schema.Int64}}
	s := &SelectSettings{Columns: []SelectColumn{{OriginalName: "missing", Keep: true}}}
	_, err := selectSchema(s, in)
	require.Error(t, err)
}

func TestSelectCompute(t *testing.T) {
	backend := memtable.NewBackend()
	h := backend.FromRows(schema.Schema{
		{Name: "a", Type: schema.Int64},
		{Name: "b", Type: schema.String},
	}, []map[string]any{{"a": int64(1), "b": "x"}})

	s := &SelectSettings{Columns: []SelectColumn{{OriginalName: "a", NewName: "renamed", Keep: true}}}
	out, err := computeSelect(s, h)
	require.NoError(t, err)
	require.Equal(t, []string{"renamed"}, out.Schema().Names())
}

func TestRegisterSelectEndToEnd(t *testing.T) {
	r := NewRegistry()
	registerSelect(r)
	def, err := r.Get(flowmodel.KindSelect)
	require.NoError(t, err)

	backend := memtable.NewBackend()
	h := backend.FromRows(schema.Schema{{Name: "a", Type: schema.Int64}}, []map[string]any{{"a": int64(1)}})
	settings := &SelectSettings{Columns: []SelectColumn{{OriginalName: "a", Keep: true}}}

	out, err := def.Compute(context.Background(), settings, Inputs{flowmodel.LabelMain: {h}})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, out.Schema().Names())
}
