package nodekind

import (
	"context"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/lazyframe"
	"github.com/flowfile/flowfile/pkg/schema"
)

// PolarsCodeSettings configures the polars_code node kind: a
// user-supplied expression block delegated to an external sandbox.
type PolarsCodeSettings struct {
	Code string `json:"code"`
}

func (s *PolarsCodeSettings) Kind() flowmodel.Kind { return flowmodel.KindPolarsCode }

func (s *PolarsCodeSettings) Validate() error {
	if s.Code == "" {
		return &flowmodel.SettingsValidationError{Kind: flowmodel.KindPolarsCode, Field: "code", Msg: "required"}
	}
	return nil
}

func (s *PolarsCodeSettings) Clone() flowmodel.Settings { c := jsonClone(*s); return &c }
func (s *PolarsCodeSettings) Fingerprint() string       { return jsonFingerprint(string(flowmodel.KindPolarsCode), s) }

// sandboxKey is the context key a caller uses to thread a
// lazyframe.CodeSandbox through to polars_code's Compute function (the
// registry's functions take no extra dependency parameter, so the
// sandbox rides the context exactly like the scheduler's per-run
// cancellation signal).
type sandboxKey struct{}

// WithSandbox attaches a CodeSandbox to ctx for polars_code nodes to use.
func WithSandbox(ctx context.Context, sb lazyframe.CodeSandbox) context.Context {
	return context.WithValue(ctx, sandboxKey{}, sb)
}

func sandboxFrom(ctx context.Context) (lazyframe.CodeSandbox, bool) {
	sb, ok := ctx.Value(sandboxKey{}).(lazyframe.CodeSandbox)
	return sb, ok
}

func registerPolarsCode(r *Registry) {
	r.Register(Definition{
		Kind:        flowmodel.KindPolarsCode,
		Arity:       mainOnly(1, 1),
		NewSettings: func() flowmodel.Settings { return &PolarsCodeSettings{} },
		SchemaAfter: func(settings flowmodel.Settings, inputs SchemaInputs) (schema.Schema, error) {
			// polars_code may fail schema propagation without
			// invalidating the graph; since the schema genuinely depends
			// on the user code, no static schema can be derived here.
			return nil, fmt.Errorf("polars_code: schema cannot be derived without executing user code")
		},
		Compute: func(ctx context.Context, settings flowmodel.Settings, inputs Inputs) (lazyframe.Handle, error) {
			h, ok := singleMainHandle(inputs)
			if !ok {
				return nil, fmt.Errorf("polars_code: expected exactly one main input")
			}
			s := settings.(*PolarsCodeSettings)
			sb, ok := sandboxFrom(ctx)
			if !ok {
				return nil, &flowmodel.EvalError{Kind: flowmodel.EvalUserCode, Reason: "no code sandbox configured for this run"}
			}
			out, _, err := sb.Run(ctx, s.Code, map[string]lazyframe.Handle{"input_df": h})
			if err != nil {
				return nil, &flowmodel.EvalError{Kind: flowmodel.EvalUserCode, Reason: "user code failed", Cause: err}
			}
			return out, nil
		},
	})
}
