package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dsi-icl/eae-interface/internal/queryfile"
	"github.com/dsi-icl/eae-interface/internal/queryir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	File          string `json:"file"`
	Valid         bool   `json:"valid"`
	Groups        int    `json:"groups"`
	DerivedFields int    `json:"derived_fields"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <query-file>",
		Short: "Validate a query without compiling it",
		Long: `Validate a cohort query file without translating it.

Checks the file against the query schema, then the structural rules:
non-empty groups, known operator codes, unique derived field names and
bounded expression depth. Predicate values are not inspected; use compile
for a full check.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	opts.ensure()

	loaded, err := queryfile.Load(path)
	if err != nil {
		return outputValidateError(formatter, err)
	}

	limits := queryir.Limits{MaxExpressionDepth: opts.Config.MaxExpressionDepth}
	if err := queryir.Check(loaded.Query, limits); err != nil {
		return outputValidateError(formatter, err)
	}

	result := ValidationResult{
		File:          loaded.Name,
		Valid:         true,
		Groups:        len(loaded.Query.Cohort),
		DerivedFields: len(loaded.Query.NewFields),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s is valid: %d group(s), %d derived field(s)\n",
		result.File, result.Groups, result.DerivedFields)
	return nil
}

// outputValidateError prints the failure, with its position for schema
// errors and its path for validation errors.
func outputValidateError(formatter *OutputFormatter, err error) error {
	if formatter.Format == "json" {
		return formatter.Fail(err, validateDetails(err))
	}

	code, exit := Classify(err)
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	fmt.Fprintf(formatter.Writer, "  %s: %s\n", code, err.Error())
	return WrapExitError(exit, code, err)
}

func validateDetails(err error) any {
	var se *queryfile.SchemaError
	if errors.As(err, &se) && se.Pos.IsValid() {
		return map[string]any{
			"file":   se.Pos.Filename(),
			"line":   se.Pos.Line(),
			"column": se.Pos.Column(),
		}
	}
	var ve *queryir.ValidationError
	if errors.As(err, &ve) && ve.Path != "" {
		return map[string]any{"path": ve.Path}
	}
	return nil
}
