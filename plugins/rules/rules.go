package rules

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/roach88/fieldstore/store"
)

// constraint is a compiled CUE constraint.
//
// cue.Context is not safe for concurrent use, and validators may run on any
// goroutine, so every use goes through mu.
type constraint struct {
	mu    sync.Mutex
	ctx   *cue.Context
	value cue.Value
}

func compileConstraint(name, src string) (*constraint, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return &constraint{ctx: ctx, value: v}, nil
}

// check unifies x with the constraint and reports the first violation.
func (c *constraint) check(x any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.ctx.Encode(x)
	if err := v.Err(); err != nil {
		return firstCUEError(err)
	}
	if err := c.value.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return firstCUEError(err)
	}
	return nil
}

// CUE returns a validator that passes when the field value satisfies the
// CUE constraint src (for example `string & =~"@"` or `int & >0 & <=10`).
//
// On failure the field error is message, or the CUE error text when message
// is empty.
func CUE(name, src, message string) (*store.Validator, error) {
	c, err := compileConstraint(name, src)
	if err != nil {
		return nil, &RuleError{Rule: name, Lang: LangCUE, Err: err}
	}
	return store.NewValidator(name, func(value any, _ string, _ store.Snapshot) store.Outcome {
		if err := c.check(value); err != nil {
			return store.Fail(failureMessage(message, err))
		}
		return store.Pass()
	}), nil
}

// Expr returns a validator that passes when the boolean expression evaluates
// to true. The expression sees:
//
//	value    the field's current value
//	path     the field path
//	touched  the field's touched flag
//	dirty    the field's dirty flag
//
// A runtime error counts as a failure.
func Expr(name, expression, message string) (*store.Validator, error) {
	program, err := compileExpr(expression)
	if err != nil {
		return nil, &RuleError{Rule: name, Lang: LangExpr, Err: err}
	}
	return store.NewValidator(name, func(value any, path string, snap store.Snapshot) store.Outcome {
		env := map[string]any{
			"value":   value,
			"path":    path,
			"touched": snap.Touched(path),
			"dirty":   snap.Dirty(path),
		}
		out, err := exprlang.Run(program, env)
		if err != nil {
			return store.Fail(failureMessage(message, err))
		}
		if ok, _ := out.(bool); !ok {
			return store.Fail(failureMessage(message, fmt.Errorf("expression %q is false", expression)))
		}
		return store.Pass()
	}), nil
}

func compileExpr(expression string) (*exprvm.Program, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}
	return exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
}

func failureMessage(message string, err error) string {
	if message != "" {
		return message
	}
	return err.Error()
}

// Plugin returns a store plugin that attaches validators to paths at setup
// and detaches them on destroy. Paths are attached in sorted order.
func Plugin(name string, bindings map[string][]*store.Validator) store.Plugin {
	return store.Plugin{
		Name: name,
		Setup: func(pc *store.PluginContext) store.Cleanup {
			var removers []func()
			for _, path := range slices.Sorted(maps.Keys(bindings)) {
				for _, v := range bindings[path] {
					removers = append(removers, pc.AddValidator(path, v))
				}
			}
			pc.Logger().Debug("rules attached", "paths", len(bindings), "validators", len(removers))
			return func() error {
				for i := len(removers) - 1; i >= 0; i-- {
					removers[i]()
				}
				return nil
			}
		},
	}
}
