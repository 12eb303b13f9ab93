package nodekind

import (
	"testing"

	"github.com/flowfile/flowfile/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestUnpivotSettingsValidate(t *testing.T) {
	withValueCols := &UnpivotSettings{ValueColumns: []string{"x", "y"}}
	require.NoError(t, withValueCols.Validate())

	withSelector := &UnpivotSettings{TypeSelector: UnpivotNumeric}
	require.NoError(t, withSelector.Validate())

	neither := &UnpivotSettings{}
	require.Error(t, neither.Validate())
}

func TestResolveValueColumnsExplicit(t *testing.T) {
	s := &UnpivotSettings{ValueColumns: []string{"x"}}
	in := schema.Schema{{Name: "x", Type: schema.Int64}}
	cols, err := s.resolveValueColumns(in)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, cols)

	_, err = s.resolveValueColumns(schema.Schema{})
	require.Error(t, err)
}

func TestResolveValueColumnsByType(t *testing.T) {
	in := schema.Schema{
		{Name: "id", Type: schema.Int64},
		{Name: "amount", Type: schema.Float64},
		{Name: "label", Type: schema.String},
	}
	s := &UnpivotSettings{IndexColumns: []string{"id"}, TypeSelector: UnpivotNumeric}
	cols, err := s.resolveValueColumns(in)
	require.NoError(t, err)
	require.Equal(t, []string{"amount"}, cols)

	s2 := &UnpivotSettings{IndexColumns: []string{"id"}, TypeSelector: UnpivotAll}
	cols, err = s2.resolveValueColumns(in)
	require.NoError(t, err)
	require.Equal(t, []string{"amount", "label"}, cols)
}
