package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// PivotSettings configures the pivot node kind.
type PivotSettings struct {
	Index       []string                `json:"index"`
	PivotColumn string                  `json:"pivot_column"`
	ValueColumn string                  `json:"value_column"`
	Aggregations []lazyframe.Aggregation `json:"aggregations"`
}

func (s *PivotSettings) Kind() flowmodel.Kind { return flowmodel.KindPivot }

func (s *PivotSettings) Validate() error {
	if s.PivotColumn == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindPivot, Field: "pivot_column", Msg: "required"}
	}
	if s.ValueColumn == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindPivot, Field: "value_column", Msg: "required"}
	}
	if len(s.Aggregations) == 0 {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindPivot, Field: "aggregations", Msg: "at least one required"}
	}
	for _, a := range s.Aggregations {
		if !validAggregations[a] || a == AggGroupBy {
			return &flowmodel.SettingsValidationError{Kind: flowmodel.KindPivot, Field: "aggregations", Msg: fmt.Sprintf("unknown aggregation %q", a)}
		}
	}
	return nil
}

func (s *PivotSettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *PivotSettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindPivot), s) }

func registerPivot(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindPivot,
		Arity:       mainOnly(1, 1),
		NewSettings: func() flowmodel.Settings { return &PivotSettings{Aggregations: []lazyframe.Aggregation{lazyframe.AggSum}} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			in, ok := singleMain(inputs)
			if !ok {
				return nil, fmt.Errorf("pivot: expected exactly one main input")
			}
			s := settings.(*PivotSettings)
			for _, c := range s.Index {
				if !in.Has(c) {
					return nil, fmt.Errorf("pivot: index column %q not present upstream", c)
				}
			}
			if !in.Has(s.PivotColumn) || !in.Has(s.ValueColumn) {
				return nil, fmt.Errorf("pivot: pivot/value column not present upstream")
			}
			// Pivot-value column names are only known once data is
			// seen; schema propagation can only guarantee the index
			// columns here. The node still reports a valid (partial)
			// schema rather than an error (polars_code, by contrast,
			// reports a schema error).
			out := schema.Schema{}
			for _, c := range s.Index {
				f, _ := in.Field(c)
				out = append(out, f)
			}
			return out, nil
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			h, ok := singleMainHandle(inputs)
			if !ok {
				return nil, fmt.Errorf("pivot: expected exactly one main input")
			}
			s := settings.(*PivotSettings)
			return h.Pivot(s.Index, s.PivotColumn, s.ValueColumn, s.Aggregations)
		},
	})
}
