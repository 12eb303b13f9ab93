package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// FormulaAuto is the output_type value that leaves the formula column's
// type to be inferred from the evaluated values.
const FormulaAuto schema.LogicalType = "auto"

// FormulaSettings configures the formula node kind: one new column
// computed from an expr-lang expression over the row.
type FormulaSettings struct {
	OutputName string              `json:"output_name"`
	Expression string              `json:"expression"`
	OutputType schema.LogicalType  `json:"output_type"` // FormulaAuto or an explicit schema.LogicalType
}

func (s *FormulaSettings) Kind() flowmodel.Kind { return flowmodel.KindFormula }

func (s *FormulaSettings) Validate() error {
	if s.OutputName == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindFormula, Field: "output_name", Msg: "required"}
	}
	if s.Expression == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindFormula, Field: "expression", Msg: "required"}
	}
	return nil
}

func (s *FormulaSettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *FormulaSettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindFormula), s) }

func registerFormula(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindFormula,
		Arity:       mainOnly(1, 1),
		NewSettings: func() flowmodel.Settings { return &FormulaSettings{OutputType: FormulaAuto} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			in, ok := singleMain(inputs)
			if !ok {
				return nil, fmt.Errorf("formula: expected exactly one main input")
			}
			s := settings.(*FormulaSettings)
			out := in.Clone()
			t := s.OutputType
			if t == FormulaAuto || t == "" {
				t = schema.Unknown
			}
			if existing, ok := out.Field(s.OutputName); ok {
				existing.Type = t
				for i := range out {
					if out[i].Name == s.OutputName {
						out[i] = existing
					}
				}
				return out, nil
			}
			return append(out, schema.Field{Name: s.OutputName, Type: t}), nil
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			h, ok := singleMainHandle(inputs)
			if !ok {
				return nil, fmt.Errorf("formula: expected exactly one main input")
			}
			s := settings.(*FormulaSettings)
			return h.WithColumns(map[string]string{s.OutputName: s.Expression})
		},
	})
}
