package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// ConcatSettings configures the n-ary concat node kind. It carries no
// fields of its own: behavior is entirely determined by the number of
// wired main inputs.
type ConcatSettings struct{}

func (s *ConcatSettings) Kind() flowmodel.Kind          { return flowmodel.KindConcat }
func (s *ConcatSettings) Validate() error               { return nil }
func (s *ConcatSettings) Clone() flowmodel.Settings     { return &ConcatSettings{} }
func (s *ConcatSettings) Fingerprint() string           { return jsonFingerprint(string(flowmodel.KindConcat), s) }

func registerConcat(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindConcat,
		Arity:       map[flowmodel.InputLabel]flowmodel.Arity{flowmodel.LabelMain: {Min: 1, Max: flowmodel.Unbounded}},
		NewSettings: func() flowmodel.Settings { return &ConcatSettings{} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			list := inputs[flowmodel.LabelMain]
			if len(list) == 0 {
				return nil, fmt.Errorf("concat: at least one main input required")
			}
			union := schema.Schema{}
			for _, sch := range list {
				for _, f := range sch {
					if existing, ok := union.Field(f.Name); ok {
						if existing.Type != f.Type {
							for i := range union {
								if union[i].Name == f.Name {
									union[i].Type = schema.WidenType(existing.Type, f.Type)
								}
							}
						}
						continue
					}
					union = append(union, f)
				}
			}
			return union, nil
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			list := inputs[flowmodel.LabelMain]
			if len(list) == 0 {
				return nil, fmt.Errorf("concat: at least one main input required")
			}
			if len(list) == 1 {
				return list[0], nil
			}
			return list[0].Concat(list[1:])
		},
	})
}
