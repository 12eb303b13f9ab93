package nodekind

import (
	"context"
	"testing"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe/memtable"
	"github.com/flowfile/flowfile/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestFormulaSettingsValidate(t *testing.T) {
	valid := &FormulaSettings{OutputName: "doubled", Expression: "amount * 2"}
	require.NoError(t, valid.Validate())

	missingName := &FormulaSettings{Expression: "amount * 2"}
	require.Error(t, missingName.Validate())

	missingExpr := &FormulaSettings{OutputName: "doubled"}
	require.Error(t, missingExpr.Validate())
}

func TestFormulaComputeAddsColumn(t *testing.T) {
	r := NewRegistry()
	registerFormula(r)
	def, err := r.Get(flowmodel.KindFormula)
	require.NoError(t, err)

	backend := memtable.NewBackend()
	h := backend.FromRows(schema.Schema{{Name: "amount", Type: schema.Float64}}, []map[string]any{{"amount": 2.0}})
	settings := &FormulaSettings{OutputName: "doubled", Expression: "amount * 2"}

	out, err := def.Compute(context.Background(), settings, Inputs{flowmodel.LabelMain: {h}})
	require.NoError(t, err)
	tbl, err := out.Collect(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 4.0, tbl.Row(0)["doubled"])
}
