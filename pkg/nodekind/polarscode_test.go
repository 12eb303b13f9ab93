package nodekind

import (
	"context"
	"testing"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/lazyframe/memtable"
	"github.com/flowfile/flowfile/pkg/schema"
	"github.com/stretchr/testify/require"
)

type fakeSandbox struct {
	out lazyframe.Handle
	err error
}

func (f *fakeSandbox) Run(ctx context.Context, code string, inputs map[string]lazyframe.Handle) (lazyframe.Handle, []string, error) {
	return f.out, []string{"ran"}, f.err
}

func TestPolarsCodeSettingsValidate(t *testing.T) {
	valid := &PolarsCodeSettings{Code: "df"}
	require.NoError(t, valid.Validate())

	empty := &PolarsCodeSettings{}
	require.Error(t, empty.Validate())
}

func TestPolarsCodeSchemaAfterAlwaysErrors(t *testing.T) {
	r := NewRegistry()
	registerPolarsCode(r)
	def, err := r.Get(flowmodel.KindPolarsCode)
	require.NoError(t, err)
	_, err = def.SchemaAfter(&PolarsCodeSettings{Code: "df"}, SchemaInputs{})
	require.Error(t, err)
}

func TestPolarsCodeComputeWithoutSandboxFails(t *testing.T) {
	r := NewRegistry()
	registerPolarsCode(r)
	def, err := r.Get(flowmodel.KindPolarsCode)
	require.NoError(t, err)

	backend := memtable.NewBackend()
	h := backend.FromRows(schema.Schema{{Name: "a", Type: schema.Int64}}, nil)
	_, err = def.Compute(context.Background(), &PolarsCodeSettings{Code: "df"}, Inputs{flowmodel.LabelMain: {h}})
	require.Error(t, err)
}

func TestPolarsCodeComputeWithSandbox(t *testing.T) {
	r := NewRegistry()
	registerPolarsCode(r)
	def, err := r.Get(flowmodel.KindPolarsCode)
	require.NoError(t, err)

	backend := memtable.NewBackend()
	in := backend.FromRows(schema.Schema{{Name: "a", Type: schema.Int64}}, nil)
	out := backend.FromRows(schema.Schema{{Name: "b", Type: schema.Int64}}, nil)
	ctx := WithSandbox(context.Background(), &fakeSandbox{out: out})

	got, err := def.Compute(ctx, &PolarsCodeSettings{Code: "df"}, Inputs{flowmodel.LabelMain: {in}})
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, got.Schema().Names())
}
