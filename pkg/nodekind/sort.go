package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// SortKeySetting is one (column, direction) sort key.
type SortKeySetting struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending"`
}

// SortSettings configures the sort node kind.
type SortSettings struct {
	Keys []SortKeySetting `json:"keys"`
}

func (s *SortSettings) Kind() flowmodel.Kind { return flowmodel.KindSort }

func (s *SortSettings) Validate() error {
	if len(s.Keys) == 0 {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindSort, Field: "keys", Msg: "at least one sort key required"}
	}
	return nil
}

func (s *SortSettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *SortSettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindSort), s) }

func registerSort(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindSort,
		Arity:       mainOnly(1, 1),
		NewSettings: func() flowmodel.Settings { return &SortSettings{} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			in, ok := singleMain(inputs)
			if !ok {
				return nil, fmt.Errorf("sort: expected exactly one main input")
			}
			s := settings.(*SortSettings)
			for _, k := range s.Keys {
				if !in.Has(k.Column) {
					return nil, fmt.Errorf("sort: column %q not present upstream", k.Column)
				}
			}
			return in.Clone(), nil
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			h, ok := singleMainHandle(inputs)
			if !ok {
				return nil, fmt.Errorf("sort: expected exactly one main input")
			}
			s := settings.(*SortSettings)
			keys := make([]lazyframe.SortKey, len(s.Keys))
			for i, k := range s.Keys {
				keys[i] = lazyframe.SortKey{Column: k.Column, Descending: k.Descending}
			}
			return h.Sort(keys)
		},
	})
}
