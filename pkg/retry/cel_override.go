package retry

import (
	"github.com/google/cel-go/cel"
)

// CELOverride wraps a per-stage CEL expression that a tenant can set
// without a redeploy to reclassify a failure the built-in Classifier would
// otherwise get wrong (e.g. a provider that returns 200 with an
// error body, or a 4xx that is actually safe to retry for one platform).
type CELOverride struct {
	env      *cel.Env
	program  cel.Program
	fallback Classifier
}

// NewCELOverride compiles expr against a fixed variable set
// (status_code int, message string, stage string) and returns a Classifier
// that evaluates it, falling back to fallback on parse/compile failure or
// whenever expr fails to evaluate at call time.
func NewCELOverride(expr string, fallback Classifier) (*CELOverride, error) {
	env, err := cel.NewEnv(
		cel.Variable("status_code", cel.IntType),
		cel.Variable("message", cel.StringType),
		cel.Variable("stage", cel.StringType),
	)
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return &CELOverride{env: env, fallback: fallback}, issues.Err()
	}

	prg, err := env.Program(ast)
	if err != nil {
		return &CELOverride{env: env, fallback: fallback}, err
	}

	return &CELOverride{env: env, program: prg, fallback: fallback}, nil
}

// Classify evaluates the compiled expression; it returns Transient when the
// expression evaluates to true and Permanent when it evaluates to false. A
// parse/compile failure at construction time, a runtime evaluation error,
// or a non-boolean result falls back to the fallback classifier rather than
// failing the retry decision outright.
func (c *CELOverride) Classify(attrs ErrorAttributes) Classification {
	if c.program == nil {
		return c.fallback.Classify(attrs)
	}

	out, _, err := c.program.Eval(map[string]any{
		"status_code": int64(attrs.StatusCode),
		"message":     attrs.Message,
		"stage":       attrs.Stage,
	})
	if err != nil {
		return c.fallback.Classify(attrs)
	}

	if boolVal, ok := out.Value().(bool); ok {
		if boolVal {
			return Transient
		}
		return Permanent
	}

	return c.fallback.Classify(attrs)
}
