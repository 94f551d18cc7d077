package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldstore/plugins/rules"
)

// ValidationIssue is one problem found in a form schema.
type ValidationIssue struct {
	Field   string `json:"field"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Fields int               `json:"fields"`
	Rules  int               `json:"rules"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema.cue>",
		Short: "Validate a CUE form schema and compile its rules",
		Long: `Validate a CUE form schema without running a store.

Checks the schema structure (modes, initial values, rule shapes) and
compiles every CUE and expr rule, reporting all rules that fail to
compile.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("schema not found: %s", path), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read schema", err)
	}

	schema, err := rules.LoadSchema(path, src)
	if err != nil {
		return outputValidation(formatter, cmd.OutOrStdout(), ValidationResult{
			Errors: []ValidationIssue{issueFromError("schema", "", err)},
		})
	}

	result := validateSchema(schema, formatter)
	return outputValidation(formatter, cmd.OutOrStdout(), result)
}

// validateSchema compiles every rule of every field, collecting all failures.
func validateSchema(schema *rules.Schema, formatter *OutputFormatter) ValidationResult {
	result := ValidationResult{Fields: len(schema.Fields)}
	for _, f := range schema.Fields {
		formatter.VerboseLog("Validating field: %s (%d rules)", f.Path, len(f.Rules))
		for _, r := range f.Rules {
			result.Rules++
			if _, err := r.Build(); err != nil {
				result.Errors = append(result.Errors, issueFromError(f.Path, r.Name, err))
			}
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

func issueFromError(field, rule string, err error) ValidationIssue {
	issue := ValidationIssue{Field: field, Rule: rule, Message: err.Error()}
	var ruleErr *rules.RuleError
	if errors.As(err, &ruleErr) {
		issue.Message = ruleErr.Err.Error()
		return issue
	}
	var schemaErr *rules.SchemaError
	if errors.As(err, &schemaErr) {
		issue.Field = schemaErr.Field
		issue.Message = schemaErr.Message
		if schemaErr.Pos.IsValid() {
			issue.Line = schemaErr.Pos.Line()
		}
	}
	return issue
}

func outputValidation(formatter *OutputFormatter, w io.Writer, result ValidationResult) error {
	if formatter.JSON() {
		response := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    ErrCodeInvalid,
				Message: fmt.Sprintf("%d validation error(s)", len(result.Errors)),
				Details: result.Errors,
			}
		}
		if err := formatter.encode(response); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintf(w, "✓ Schema valid: %d field(s), %d rule(s)\n", result.Fields, result.Rules)
	} else {
		fmt.Fprintf(w, "✗ Schema invalid: %d error(s)\n", len(result.Errors))
		for _, issue := range result.Errors {
			loc := issue.Field
			if issue.Rule != "" {
				loc += " rule " + issue.Rule
			}
			if issue.Line > 0 {
				loc += fmt.Sprintf(" (line %d)", issue.Line)
			}
			fmt.Fprintf(w, "  %s: %s\n", loc, issue.Message)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(result.Errors)))
	}
	return nil
}
