package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// FilterOperator enumerates the basic-mode comparison operators.
type FilterOperator string

const (
	OpIsNull               FilterOperator = "is_null"
	OpIsNotNull            FilterOperator = "is_not_null"
	OpEquals               FilterOperator = "equals"
	OpNotEquals            FilterOperator = "not_equals"
	OpGreaterThan          FilterOperator = "greater_than"
	OpGreaterThanOrEquals  FilterOperator = "greater_than_or_equals"
	OpLessThan             FilterOperator = "less_than"
	OpLessThanOrEquals     FilterOperator = "less_than_or_equals"
	OpContains             FilterOperator = "contains"
	OpNotContains          FilterOperator = "not_contains"
	OpStartsWith           FilterOperator = "starts_with"
	OpEndsWith             FilterOperator = "ends_with"
	OpBetween              FilterOperator = "between"
	OpIn                   FilterOperator = "in"
	OpNotIn                FilterOperator = "not_in"
)

var validFilterOperators = map[FilterOperator]bool{
	OpIsNull: true, OpIsNotNull: true, OpEquals: true, OpNotEquals: true,
	OpGreaterThan: true, OpGreaterThanOrEquals: true, OpLessThan: true, OpLessThanOrEquals: true,
	OpContains: true, OpNotContains: true, OpStartsWith: true, OpEndsWith: true,
	OpBetween: true, OpIn: true, OpNotIn: true,
}

// FilterMode selects basic (column/operator/value) or advanced
// (free-form expression) filtering.
type FilterMode string

const (
	FilterBasic    FilterMode = "basic"
	FilterAdvanced FilterMode = "advanced"
)

// FilterSettings configures the filter node kind.
type FilterSettings struct {
	Mode FilterMode `json:"mode"`

	// Basic mode.
	Column   string         `json:"column,omitempty"`
	Operator FilterOperator `json:"operator,omitempty"`
	Value    any            `json:"value,omitempty"`
	Value2   any            `json:"value2,omitempty"` // meaningful only for "between"

	// Advanced mode.
	Predicate string `json:"predicate,omitempty"`
}

func (s *FilterSettings) Kind() flowmodel.Kind { return flowmodel.KindFilter }

func (s *FilterSettings) Validate() error {
	switch s.Mode {
	case FilterBasic:
		if s.Column == "" {
			return &flowmodel.SettingsValidationError{Kind: flowmodel.KindFilter, Field: "column", Msg: "required in basic mode"}
		}
		if !validFilterOperators[s.Operator] {
			return &flowmodel.SettingsValidationError{Kind: flowmodel.KindFilter, Field: "operator", Msg: fmt.Sprintf("unknown operator %q", s.Operator)}
		}
		if s.Operator == OpBetween && s.Value2 == nil {
			return &flowmodel.SettingsValidationError{Kind: flowmodel.KindFilter, Field: "value2", Msg: "required for between"}
		}
	case FilterAdvanced:
		if s.Predicate == "" {
			return &flowmodel.SettingsValidationError{Kind: flowmodel.KindFilter, Field: "predicate", Msg: "required in advanced mode"}
		}
	default:
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindFilter, Field: "mode", Msg: fmt.Sprintf("unknown mode %q", s.Mode)}
	}
	return nil
}

func (s *FilterSettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *FilterSettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindFilter), s) }

// legacyFilterOperators maps the document format's legacy symbolic
// operators to their canonical names.
var legacyFilterOperators = map[string]FilterOperator{
	"=":          OpEquals,
	"!=":         OpNotEquals,
	"<":          OpLessThan,
	"<=":         OpLessThanOrEquals,
	">":          OpGreaterThan,
	">=":         OpGreaterThanOrEquals,
	"contains":   OpContains,
}

// MigrateLegacyOperator resolves a legacy or already-canonical operator
// symbol. An unrecognized symbol is a SettingsValidationError.
func MigrateLegacyOperator(symbol string) (FilterOperator, error) {
	if validFilterOperators[FilterOperator(symbol)] {
		return FilterOperator(symbol), nil
	}
	if canon, ok := legacyFilterOperators[symbol]; ok {
		return canon, nil
	}
	return "", &flowmodel.SettingsValidationError{Kind: flowmodel.KindFilter, Field: "operator", Msg: fmt.Sprintf("unknown legacy operator %q", symbol)}
}

func registerFilter(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindFilter,
		Arity:       mainOnly(1, 1),
		NewSettings: func() flowmodel.Settings { return &FilterSettings{Mode: FilterBasic} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			in, ok := singleMain(inputs)
			if !ok {
				return nil, fmt.Errorf("filter: expected exactly one main input")
			}
			s := settings.(*FilterSettings)
			if s.Mode == FilterBasic {
				if !in.Has(s.Column) {
					return nil, fmt.Errorf("filter: column %q not present upstream", s.Column)
				}
			}
			return in.Clone(), nil
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			h, ok := singleMainHandle(inputs)
			if !ok {
				return nil, fmt.Errorf("filter: expected exactly one main input")
			}
			s := settings.(*FilterSettings)
			expr, err := filterExpression(s)
			if err != nil {
				return nil, err
			}
			return h.Filter(expr)
		},
	})
}

// filterExpression compiles either mode down to an expr-lang predicate
// string evaluated against the row map.
func filterExpression(s *FilterSettings) (string, error) {
	if s.Mode == FilterAdvanced {
		return s.Predicate, nil
	}
	// expr-lang evaluates against a flat map env, so the row's own
	// fields are addressed by name directly.
	c := s.Column
	lit := func(v any) string { return exprLiteral(v) }
	switch s.Operator {
	case OpIsNull:
		return fmt.Sprintf("%s == nil", c), nil
	case OpIsNotNull:
		return fmt.Sprintf("%s != nil", c), nil
	case OpEquals:
		return fmt.Sprintf("%s == %s", c, lit(s.Value)), nil
	case OpNotEquals:
		return fmt.Sprintf("%s != %s", c, lit(s.Value)), nil
	case OpGreaterThan:
		return fmt.Sprintf("%s > %s", c, lit(s.Value)), nil
	case OpGreaterThanOrEquals:
		return fmt.Sprintf("%s >= %s", c, lit(s.Value)), nil
	case OpLessThan:
		return fmt.Sprintf("%s < %s", c, lit(s.Value)), nil
	case OpLessThanOrEquals:
		return fmt.Sprintf("%s <= %s", c, lit(s.Value)), nil
	case OpContains:
		return fmt.Sprintf("%s contains %s", c, lit(s.Value)), nil
	case OpNotContains:
		return fmt.Sprintf("not (%s contains %s)", c, lit(s.Value)), nil
	case OpStartsWith:
		return fmt.Sprintf("%s startsWith %s", c, lit(s.Value)), nil
	case OpEndsWith:
		return fmt.Sprintf("%s endsWith %s", c, lit(s.Value)), nil
	case OpBetween:
		return fmt.Sprintf("%s >= %s && %s <= %s", c, lit(s.Value), c, lit(s.Value2)), nil
	case OpIn:
		return fmt.Sprintf("%s in %s", c, exprList(s.Value)), nil
	case OpNotIn:
		return fmt.Sprintf("not (%s in %s)", c, exprList(s.Value)), nil
	}
	return "", fmt.Errorf("filter: unsupported operator %q", s.Operator)
}

func exprLiteral(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func exprList(v any) string {
	items, ok := v.([]any)
	if !ok {
		return "[]"
	}
	out := "["
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += exprLiteral(it)
	}
	return out + "]"
}
