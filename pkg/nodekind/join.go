package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// JoinKey is one (left_col, right_col) equality key pair.
type JoinKey struct {
	Left  string `json:"left_col"`
	Right string `json:"right_col"`
}

// JoinSettings configures the join node kind.
type JoinSettings struct {
	How              lazyframe.JoinHow `json:"how"`
	Keys             []JoinKey         `json:"keys"`
	LeftSelect       []string          `json:"left_select,omitempty"`
	RightSelect      []string          `json:"right_select,omitempty"`
	VerifyIntegrity  bool              `json:"verify_integrity"`
}

func (s *JoinSettings) Kind() flowmodel.Kind { return flowmodel.KindJoin }

var validJoinHow = map[lazyframe.JoinHow]bool{
	lazyframe.JoinInner: true, lazyframe.JoinLeft: true, lazyframe.JoinRight: true,
	lazyframe.JoinFull: true, lazyframe.JoinSemi: true, lazyframe.JoinAnti: true, lazyframe.JoinCross: true,
}

func (s *JoinSettings) Validate() error {
	if !validJoinHow[s.How] {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindJoin, Field: "how", Msg: fmt.Sprintf("unknown join kind %q", s.How)}
	}
	if s.How != lazyframe.JoinCross && len(s.Keys) == 0 {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindJoin, Field: "keys", Msg: "at least one key pair required"}
	}
	if s.How == lazyframe.JoinCross && len(s.Keys) != 0 {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindJoin, Field: "keys", Msg: "cross join must not declare keys"}
	}
	return nil
}

func (s *JoinSettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *JoinSettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindJoin), s) }

func registerJoin(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindJoin,
		Arity:       leftRight(),
		NewSettings: func() flowmodel.Settings { return &JoinSettings{How: lazyframe.JoinInner} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			left := inputs[flowmodel.LabelLeft]
			right := inputs[flowmodel.LabelRight]
			if len(left) != 1 || len(right) != 1 {
				return nil, fmt.Errorf("join: expected exactly one left and one right input")
			}
			s := settings.(*JoinSettings)
			return joinSchema(s, left[0], right[0])
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			left := inputs[flowmodel.LabelLeft]
			right := inputs[flowmodel.LabelRight]
			if len(left) != 1 || len(right) != 1 {
				return nil, fmt.Errorf("join: expected exactly one left and one right input")
			}
			s := settings.(*JoinSettings)
			keys := make([]lazyframe.JoinKeyPair, len(s.Keys))
			for i, k := range s.Keys {
				keys[i] = lazyframe.JoinKeyPair{Left: k.Left, Right: k.Right}
			}
			out, err := left[0].Join(right[0], keys, s.How, s.VerifyIntegrity)
			if err != nil {
				return nil, &flowmodel.EvalError{Kind: flowmodel.EvalIntegrity, Reason: err.Error(), Cause: err}
			}
			return out, nil
		},
	})
}

func joinSchema(s *JoinSettings, left, right schema.Schema) (schema.Schema, error) {
	for _, k := range s.Keys {
		if !left.Has(k.Left) {
			return nil, fmt.Errorf("join: left column %q not present", k.Left)
		}
		if !right.Has(k.Right) {
			return nil, fmt.Errorf("join: right column %q not present", k.Right)
		}
	}
	switch s.How {
	case lazyframe.JoinSemi, lazyframe.JoinAnti:
		return left.Clone(), nil
	}
	out := left.Clone()
	for _, f := range right {
		if out.Has(f.Name) {
			out = append(out, schema.Field{Name: f.Name + "_right", Type: f.Type})
		} else {
			out = append(out, f)
		}
	}
	return out, nil
}
