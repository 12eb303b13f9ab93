package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// UniqueSettings configures the unique node kind.
type UniqueSettings struct {
	Subset   []string                  `json:"subset,omitempty"`
	Strategy lazyframe.UniqueStrategy `json:"strategy"`
}

func (s *UniqueSettings) Kind() flowmodel.Kind { return flowmodel.KindUnique }

var validUniqueStrategies = map[lazyframe.UniqueStrategy]bool{
	lazyframe.UniqueFirst: true, lazyframe.UniqueLast: true, lazyframe.UniqueAny: true, lazyframe.UniqueNone: true,
}

func (s *UniqueSettings) Validate() error {
	if !validUniqueStrategies[s.Strategy] {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindUnique, Field: "strategy", Msg: fmt.Sprintf("unknown strategy %q", s.Strategy)}
	}
	return nil
}

func (s *UniqueSettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *UniqueSettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindUnique), s) }

func registerUnique(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindUnique,
		Arity:       mainOnly(1, 1),
		NewSettings: func() flowmodel.Settings { return &UniqueSettings{Strategy: lazyframe.UniqueFirst} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			in, ok := singleMain(inputs)
			if !ok {
				return nil, fmt.Errorf("unique: expected exactly one main input")
			}
			s := settings.(*UniqueSettings)
			for _, c := range s.Subset {
				if !in.Has(c) {
					return nil, fmt.Errorf("unique: column %q not present upstream", c)
				}
			}
			return in.Clone(), nil
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			h, ok := singleMainHandle(inputs)
			if !ok {
				return nil, fmt.Errorf("unique: expected exactly one main input")
			}
			s := settings.(*UniqueSettings)
			return h.Unique(s.Subset, s.Strategy)
		},
	})
}
