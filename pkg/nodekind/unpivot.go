package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// UnpivotTypeSelector picks value columns by logical type instead of an
// explicit list.
type UnpivotTypeSelector string

const (
	UnpivotNumeric UnpivotTypeSelector = "numeric"
	UnpivotString  UnpivotTypeSelector = "string"
	UnpivotDate    UnpivotTypeSelector = "date"
	UnpivotAll     UnpivotTypeSelector = "all"
)

// UnpivotSettings configures the unpivot node kind. Exactly one of
// ValueColumns or TypeSelector should be set; TypeSelector is resolved
// to explicit columns during schema propagation, since Handle.Unpivot
// only accepts explicit names.
type UnpivotSettings struct {
	IndexColumns []string             `json:"index_columns"`
	ValueColumns []string             `json:"value_columns,omitempty"`
	TypeSelector UnpivotTypeSelector  `json:"type_selector,omitempty"`
}

func (s *UnpivotSettings) Kind() flowmodel.Kind { return flowmodel.KindUnpivot }

func (s *UnpivotSettings) Validate() error {
	if len(s.ValueColumns) == 0 && s.TypeSelector == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindUnpivot, Field: "value_columns", Msg: "either value_columns or type_selector required"}
	}
	return nil
}

func (s *UnpivotSettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *UnpivotSettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindUnpivot), s) }

func (s *UnpivotSettings) resolveValueColumns(in schema.Schema) ([]string, error) {
	if len(s.ValueColumns) > 0 {
		for _, c := range s.ValueColumns {
			if !in.Has(c) {
				return nil, fmt.Errorf("unpivot: value column %q not present upstream", c)
			}
		}
		return s.ValueColumns, nil
	}
	indexSet := map[string]bool{}
	for _, c := range s.IndexColumns {
		indexSet[c] = true
	}
	var out []string
	for _, f := range in {
		if indexSet[f.Name] {
			continue
		}
		switch s.TypeSelector {
		case UnpivotAll:
			out = append(out, f.Name)
		case UnpivotNumeric:
			if f.Type == schema.Int64 || f.Type == schema.Float64 {
				out = append(out, f.Name)
			}
		case UnpivotString:
			if f.Type == schema.String {
				out = append(out, f.Name)
			}
		case UnpivotDate:
			if f.Type == schema.Date || f.Type == schema.Datetime {
				out = append(out, f.Name)
			}
		}
	}
	return out, nil
}

func registerUnpivot(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindUnpivot,
		Arity:       mainOnly(1, 1),
		NewSettings: func() flowmodel.Settings { return &UnpivotSettings{TypeSelector: UnpivotAll} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			in, ok := singleMain(inputs)
			if !ok {
				return nil, fmt.Errorf("unpivot: expected exactly one main input")
			}
			s := settings.(*UnpivotSettings)
			for _, c := range s.IndexColumns {
				if !in.Has(c) {
					return nil, fmt.Errorf("unpivot: index column %q not present upstream", c)
				}
			}
			valueCols, err := s.resolveValueColumns(in)
			if err != nil {
				return nil, err
			}
			out := schema.Schema{}
			for _, c := range s.IndexColumns {
				f, _ := in.Field(c)
				out = append(out, f)
			}
			out = append(out, schema.Field{Name: "variable", Type: schema.String})
			valType := schema.Unknown
			for _, c := range valueCols {
				if f, ok := in.Field(c); ok {
					if valType == schema.Unknown {
						valType = f.Type
					} else {
						valType = schema.WidenType(valType, f.Type)
					}
				}
			}
			out = append(out, schema.Field{Name: "value", Type: valType})
			return out, nil
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			h, ok := singleMainHandle(inputs)
			if !ok {
				return nil, fmt.Errorf("unpivot: expected exactly one main input")
			}
			s := settings.(*UnpivotSettings)
			valueCols, err := s.resolveValueColumns(h.Schema())
			if err != nil {
				return nil, err
			}
			return h.Unpivot(s.IndexColumns, valueCols)
		},
	})
}
