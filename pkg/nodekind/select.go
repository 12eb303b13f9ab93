package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// SelectColumn is one entry in a select node's ordered column list.
type SelectColumn struct {
	OriginalName     string              `json:"original_name"`
	NewName          string              `json:"new_name,omitempty"`
	Keep             bool                `json:"keep"`
	DataTypeOverride schema.LogicalType  `json:"data_type_override,omitempty"`
	Position         int                 `json:"position"`
}

// SelectSettings reorders, renames, retypes, and drops columns.
type SelectSettings struct {
	Columns     []SelectColumn `json:"columns"`
	KeepMissing bool           `json:"keep_missing"`
}

func (s *SelectSettings) Kind() flowmodel.Kind { return flowmodel.KindSelect }

func (s *SelectSettings) Validate() error {
	seen := map[string]bool{}
	for _, c := range s.Columns {
		if c.OriginalName == "" {
			return &flowmodel.SettingsValidationError{Kind: flowmodel.KindSelect, Field: "original_name", Msg: "must not be empty"}
		}
		if seen[c.OriginalName] {
			return &flowmodel.SettingsValidationError{Kind: flowmodel.KindSelect, Field: "original_name", Msg: fmt.Sprintf("duplicate column %q", c.OriginalName)}
		}
		seen[c.OriginalName] = true
	}
	return nil
}

func (s *SelectSettings) Clone() flowmodel.Settings          { c := jsonClone(*s); return &c }
func (s *SelectSettings) Fingerprint() string                { return jsonFingerprint(string(flowmodel.KindSelect), s) }

func registerSelect(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindSelect,
		Arity:       mainOnly(1, 1),
		NewSettings: func() flowmodel.Settings { return &SelectSettings{KeepMissing: false} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			in, ok := singleMain(inputs)
			if !ok {
				return nil, fmt.Errorf("select: expected exactly one main input")
			}
			s := settings.(*SelectSettings)
			return selectSchema(s, in)
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			h, ok := singleMainHandle(inputs)
			if !ok {
				return nil, fmt.Errorf("select: expected exactly one main input")
			}
			s := settings.(*SelectSettings)
			return computeSelect(s, h)
		},
	})
}

func selectSchema(s *SelectSettings, in schema.Schema) (schema.Schema, error) {
	mentioned := map[string]bool{}
	out := make(schema.Schema, 0, len(s.Columns))
	for _, c := range s.Columns {
		mentioned[c.OriginalName] = true
		if !c.Keep {
			continue
		}
		f, ok := in.Field(c.OriginalName)
		if !ok {
			return nil, fmt.Errorf("select: column %q not present upstream", c.OriginalName)
		}
		name := f.Name
		if c.NewName != "" {
			name = c.NewName
		}
		typ := f.Type
		if c.DataTypeOverride != "" {
			typ = c.DataTypeOverride
		}
		out = append(out, schema.Field{Name: name, Type: typ})
	}
	if s.KeepMissing {
		for _, f := range in {
			if !mentioned[f.Name] {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func computeSelect(s *SelectSettings, h lazyframe.Handle) (lazyframe.Handle, error) {
	sch := h.Schema()
	mentioned := map[string]bool{}
	keepCols := []string{}
	rename := map[string]string{}
	for _, c := range s.Columns {
		mentioned[c.OriginalName] = true
		if !c.Keep {
			continue
		}
		keepCols = append(keepCols, c.OriginalName)
		if c.NewName != "" {
			rename[c.OriginalName] = c.NewName
		}
	}
	if s.KeepMissing {
		for _, f := range sch {
			if !mentioned[f.Name] {
				keepCols = append(keepCols, f.Name)
			}
		}
	}
	h2, err := h.Select(keepCols)
	if err != nil {
		return nil, err
	}
	if len(rename) == 0 {
		return h2, nil
	}
	return h2.Rename(rename)
}
