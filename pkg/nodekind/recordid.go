package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// RecordIDSettings configures the record_id node kind: a monotonically
// increasing integer column, optionally restarting per group.
type RecordIDSettings struct {
	OutputName  string   `json:"output_name"`
	Offset      int64    `json:"offset"`
	GroupByKeys []string `json:"group_by_keys,omitempty"`
}

func (s *RecordIDSettings) Kind() flowmodel.Kind { return flowmodel.KindRecordID }

func (s *RecordIDSettings) Validate() error {
	if s.OutputName == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindRecordID, Field: "output_name", Msg: "required"}
	}
	return nil
}

func (s *RecordIDSettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *RecordIDSettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindRecordID), s) }

func registerRecordID(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindRecordID,
		Arity:       mainOnly(1, 1),
		NewSettings: func() flowmodel.Settings { return &RecordIDSettings{OutputName: "record_id", Offset: 0} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			in, ok := singleMain(inputs)
			if !ok {
				return nil, fmt.Errorf("record_id: expected exactly one main input")
			}
			s := settings.(*RecordIDSettings)
			out := in.Clone()
			return append(out, schema.Field{Name: s.OutputName, Type: schema.Int64}), nil
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			h, ok := singleMainHandle(inputs)
			if !ok {
				return nil, fmt.Errorf("record_id: expected exactly one main input")
			}
			s := settings.(*RecordIDSettings)
			if len(s.GroupByKeys) == 0 {
				return h.WithRowID(s.OutputName, s.Offset)
			}
			return computeRecordIDPerGroup(ctx, h, s)
		},
	})
}

// computeRecordIDPerGroup restarts the counter for each distinct value
// of GroupByKeys by partitioning via GroupBy-free row inspection: group
// membership is resolved through successive Filter calls driven by the
// distinct key combinations seen in the collected data, then the
// per-partition results are concatenated back together.
func computeRecordIDPerGroup(ctx context.Context, h lazyframe.Handle, s *RecordIDSettings) (lazyframe.Handle, error) {
	keyed, err := h.Sort(sortKeysFor(s.GroupByKeys))
	if err != nil {
		return nil, err
	}
	// With the reference in-memory backend, partition boundaries are
	// resolved by collecting and re-grouping; a streaming backend would
	// implement this as a native windowed row-number instead.
	table, err := keyed.Collect(ctx, 0)
	if err != nil {
		return nil, err
	}
	order := []string{}
	seen := map[string]bool{}
	for i := 0; i < table.NumRows(); i++ {
		row := table.Row(i)
		key := groupKeyString(row, s.GroupByKeys)
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
	}
	if len(order) == 0 {
		return keyed.WithRowID(s.OutputName, s.Offset)
	}

	var parts []lazyframe.Handle
	for i := 0; i < table.NumRows(); {
		key := groupKeyString(table.Row(i), s.GroupByKeys)
		j := i
		for j < table.NumRows() && groupKeyString(table.Row(j), s.GroupByKeys) == key {
			j++
		}
		predicate, err := groupEqualityExpr(table.Row(i), s.GroupByKeys)
		if err != nil {
			return nil, err
		}
		partition, err := keyed.Filter(predicate)
		if err != nil {
			return nil, err
		}
		withID, err := partition.WithRowID(s.OutputName, s.Offset)
		if err != nil {
			return nil, err
		}
		parts = append(parts, withID)
		i = j
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return parts[0].Concat(parts[1:])
}

func groupKeyString(row map[string]any, keys []string) string {
	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("%v|", row[k])
	}
	return out
}

func groupEqualityExpr(row map[string]any, keys []string) (string, error) {
	expr := ""
	for i, k := range keys {
		if i > 0 {
			expr += " && "
		}
		expr += fmt.Sprintf("%s == %s", k, exprLiteral(row[k]))
	}
	return expr, nil
}

func sortKeysFor(cols []string) []lazyframe.SortKey {
	out := make([]lazyframe.SortKey, len(cols))
	for i, c := range cols {
		out[i] = lazyframe.SortKey{Column: c}
	}
	return out
}
