package mes

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celEnv is the shared CEL environment for critical-limit expressions.
// Expressions see a single double variable named "value".
var (
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func limitEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("value", cel.DoubleType),
		)
	})
	return celEnv, celEnvErr
}

// CriticalLimit is the acceptable range for a CCP's monitored parameter.
// Any combination of the three checks may be configured; a measured value
// violates the limit when any configured check fails.
type CriticalLimit struct {
	// Min is the lower bound, inclusive. Nil means unbounded below.
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`

	// Max is the upper bound, inclusive. Nil means unbounded above.
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`

	// Expression is an optional CEL expression over the variable "value"
	// that must evaluate to true for the value to be acceptable,
	// e.g. "value >= 6.5 && value <= 7.5".
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// Validate checks that the limit is well-formed: bounds ordered and the
// expression, when present, compiles to a boolean.
func (l CriticalLimit) Validate() error {
	if l.Min != nil && l.Max != nil && *l.Min > *l.Max {
		return fmt.Errorf("limit min %v exceeds max %v", *l.Min, *l.Max)
	}

	if l.Expression != "" {
		if _, err := l.compile(); err != nil {
			return err
		}
	}
	return nil
}

// IsZero reports whether no check is configured at all.
func (l CriticalLimit) IsZero() bool {
	return l.Min == nil && l.Max == nil && l.Expression == ""
}

// Evaluate reports whether the measured value violates the limit.
func (l CriticalLimit) Evaluate(value float64) (bool, error) {
	if l.Min != nil && value < *l.Min {
		return true, nil
	}
	if l.Max != nil && value > *l.Max {
		return true, nil
	}

	if l.Expression == "" {
		return false, nil
	}

	prg, err := l.compile()
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{"value": value})
	if err != nil {
		return false, fmt.Errorf("evaluate limit expression %q: %w", l.Expression, err)
	}

	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("limit expression %q did not return a boolean", l.Expression)
	}
	return !ok, nil
}

func (l CriticalLimit) compile() (cel.Program, error) {
	env, err := limitEnv()
	if err != nil {
		return nil, fmt.Errorf("limit environment: %w", err)
	}

	ast, issues := env.Compile(l.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile limit expression %q: %w", l.Expression, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("limit expression %q must return a boolean, returns %s", l.Expression, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program limit expression %q: %w", l.Expression, err)
	}
	return prg, nil
}
