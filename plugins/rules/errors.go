package rules

import (
	"fmt"

	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Lang names a rule language.
type Lang string

const (
	LangCUE  Lang = "cue"
	LangExpr Lang = "expr"
)

// RuleError reports a rule that failed to compile.
type RuleError struct {
	Rule string
	Lang Lang
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q (%s): %v", e.Rule, e.Lang, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// SchemaError reports an invalid form schema, with the CUE source position
// when one is known.
type SchemaError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// firstCUEError returns the first error of a CUE error list, without
// position information.
func firstCUEError(err error) error {
	if errs := errors.Errors(err); len(errs) > 0 {
		return errs[0]
	}
	return err
}

// formatCUEError reduces a CUE error list to its first error.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &SchemaError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return first
}
