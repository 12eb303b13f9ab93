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

func TestReadSettingsValidate(t *testing.T) {
	valid := &ReadSettings{Backend: BackendLocal, Location: "a.json", Format: "json"}
	require.NoError(t, valid.Validate())

	missingLocation := &ReadSettings{Backend: BackendLocal, Format: "json"}
	require.Error(t, missingLocation.Validate())

	nonLocalNoConn := &ReadSettings{Backend: BackendCloud, Location: "a.json", Format: "json"}
	require.Error(t, nonLocalNoConn.Validate())

	nonLocalWithConn := &ReadSettings{Backend: BackendCloud, Location: "a.json", Format: "json", ConnectionName: "conn"}
	require.NoError(t, nonLocalWithConn.Validate())
}

func TestWriteSettingsValidate(t *testing.T) {
	valid := &WriteSettings{Backend: BackendLocal, Location: "a.json", Format: "json", Mode: lazyframe.WriteOverwrite}
	require.NoError(t, valid.Validate())

	missingFormat := &WriteSettings{Backend: BackendLocal, Location: "a.json"}
	require.Error(t, missingFormat.Validate())
}

func TestReadComputeWithoutCatalogFails(t *testing.T) {
	r := NewRegistry()
	registerReadWrite(r)
	def, err := r.Get(flowmodel.KindRead)
	require.NoError(t, err)
	_, err = def.Compute(context.Background(), &ReadSettings{Backend: BackendLocal, Location: "a.json", Format: "json"}, Inputs{})
	require.Error(t, err)
}

func TestReadSchemaAfterAlwaysNeedsCatalog(t *testing.T) {
	r := NewRegistry()
	registerReadWrite(r)
	def, err := r.Get(flowmodel.KindRead)
	require.NoError(t, err)
	_, err = def.SchemaAfter(&ReadSettings{}, SchemaInputs{})
	require.ErrorIs(t, err, errNeedsCatalog)
}

type stubCatalog struct {
	sch schema.Schema
}

func (s *stubCatalog) PreviewSchema(ctx context.Context, location, format string, options map[string]any) (schema.Schema, error) {
	return s.sch, nil
}
func (s *stubCatalog) Scan(ctx context.Context, location, format string, options map[string]any) (lazyframe.Handle, error) {
	return memtable.NewBackend().FromRows(s.sch, nil), nil
}
func (s *stubCatalog) ResolveConnection(ctx context.Context, name string) (any, error) {
	return nil, nil
}

func TestPreviewReadSchemaUsesCatalog(t *testing.T) {
	sch := schema.Schema{{Name: "a", Type: schema.Int64}}
	ctx := WithCatalog(context.Background(), &stubCatalog{sch: sch})
	got, err := PreviewReadSchema(ctx, &ReadSettings{Location: "a.json", Format: "json"})
	require.NoError(t, err)
	require.Equal(t, sch, got)
}

func TestReadComputeWithCatalog(t *testing.T) {
	r := NewRegistry()
	registerReadWrite(r)
	def, err := r.Get(flowmodel.KindRead)
	require.NoError(t, err)

	sch := schema.Schema{{Name: "a", Type: schema.Int64}}
	ctx := WithCatalog(context.Background(), &stubCatalog{sch: sch})
	h, err := def.Compute(ctx, &ReadSettings{Location: "a.json", Format: "json"}, Inputs{})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, h.Schema().Names())
}

func TestWriteComputeSinks(t *testing.T) {
	r := NewRegistry()
	registerReadWrite(r)
	def, err := r.Get(flowmodel.KindWrite)
	require.NoError(t, err)

	dir := t.TempDir()
	backend := memtable.NewBackend()
	h := backend.FromRows(schema.Schema{{Name: "a", Type: schema.Int64}}, []map[string]any{{"a": int64(1)}})

	settings := &WriteSettings{Location: dir + "/out.json", Format: "json", Mode: lazyframe.WriteOverwrite}
	_, err = def.Compute(context.Background(), settings, Inputs{flowmodel.LabelMain: {h}})
	require.NoError(t, err)
}
