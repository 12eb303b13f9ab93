package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// AggGroupBy marks a group-by entry as the grouping key itself
// rather than an aggregation.
const AggGroupBy lazyframe.Aggregation = "groupby"

// GroupByEntry is one (old_name, aggregation, new_name) triple.
type GroupByEntry struct {
	OldName     string              `json:"old_name"`
	Aggregation lazyframe.Aggregation `json:"aggregation"`
	NewName     string              `json:"new_name"`
}

// GroupBySettings configures the group_by node kind.
type GroupBySettings struct {
	Entries []GroupByEntry `json:"entries"`
}

func (s *GroupBySettings) Kind() flowmodel.Kind { return flowmodel.KindGroupBy }

var validAggregations = map[lazyframe.Aggregation]bool{
	AggGroupBy: true, lazyframe.AggSum: true, lazyframe.AggMax: true, lazyframe.AggMin: true,
	lazyframe.AggMedian: true, lazyframe.AggMean: true, lazyframe.AggCount: true,
	lazyframe.AggNUnique: true, lazyframe.AggFirst: true, lazyframe.AggLast: true, lazyframe.AggConcat: true,
}

func (s *GroupBySettings) Validate() error {
	if len(s.Entries) == 0 {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindGroupBy, Field: "entries", Msg: "at least one entry required"}
	}
	hasKey := false
	for _, e := range s.Entries {
		if e.OldName == "" {
			return &flowmodel.SettingsValidationError{Kind: flowmodel.KindGroupBy, Field: "old_name", Msg: "must not be empty"}
		}
		if !validAggregations[e.Aggregation] {
			return &flowmodel.SettingsValidationError{Kind: flowmodel.KindGroupBy, Field: "aggregation", Msg: fmt.Sprintf("unknown aggregation %q", e.Aggregation)}
		}
		if e.Aggregation == AggGroupBy {
			hasKey = true
		}
	}
	if !hasKey {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindGroupBy, Field: "entries", Msg: "at least one grouping key required"}
	}
	return nil
}

func (s *GroupBySettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *GroupBySettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindGroupBy), s) }

func (s *GroupBySettings) split() (keys []string, aggs []lazyframe.AggExpr) {
	for _, e := range s.Entries {
		name := e.NewName
		if name == "" {
			name = e.OldName
		}
		if e.Aggregation == AggGroupBy {
			keys = append(keys, e.OldName)
			continue
		}
		aggs = append(aggs, lazyframe.AggExpr{Column: e.OldName, Aggregator: e.Aggregation, OutputName: name})
	}
	return keys, aggs
}

func registerGroupBy(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindGroupBy,
		Arity:       mainOnly(1, 1),
		NewSettings: func() flowmodel.Settings { return &GroupBySettings{} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			in, ok := singleMain(inputs)
			if !ok {
				return nil, fmt.Errorf("group_by: expected exactly one main input")
			}
			s := settings.(*GroupBySettings)
			keys, aggs := s.split()
			out := schema.Schema{}
			for _, k := range keys {
				f, ok := in.Field(k)
				if !ok {
					return nil, fmt.Errorf("group_by: key column %q not present upstream", k)
				}
				out = append(out, f)
			}
			for _, a := range aggs {
				t := schema.Float64
				switch a.Aggregator {
				case lazyframe.AggCount, lazyframe.AggNUnique:
					t = schema.Int64
				case lazyframe.AggFirst, lazyframe.AggLast, lazyframe.AggConcat:
					if f, ok := in.Field(a.Column); ok {
						t = f.Type
					}
				default:
					if !in.Has(a.Column) {
						return nil, fmt.Errorf("group_by: column %q not present upstream", a.Column)
					}
				}
				out = append(out, schema.Field{Name: a.OutputName, Type: t})
			}
			return out, nil
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			h, ok := singleMainHandle(inputs)
			if !ok {
				return nil, fmt.Errorf("group_by: expected exactly one main input")
			}
			s := settings.(*GroupBySettings)
			keys, aggs := s.split()
			return h.GroupBy(keys, aggs)
		},
	})
}
