package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dsi-icl/eae-interface/internal/queryfile"
	"github.com/dsi-icl/eae-interface/internal/querymongo"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the JSON payload of a successful compile.
type CompilationResult struct {
	File     string          `json:"file"`
	Stages   []string        `json:"stages"`
	Pipeline json.RawMessage `json:"pipeline"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query-file>",
		Short: "Compile a cohort query to an aggregation pipeline",
		Long: `Compile a cohort query file (.json, .yaml or .cue) to a MongoDB
aggregation pipeline and print it as relaxed Extended JSON.

The query is checked against the query schema and validated before
translation. Nothing is sent to a database.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	compiler := opts.compiler()

	loaded, err := queryfile.Load(path)
	if err != nil {
		return formatter.Fail(err, nil)
	}
	formatter.VerboseLog("Loaded %s (%s): %d group(s), %d derived field(s)",
		loaded.Name, loaded.Format, len(loaded.Query.Cohort), len(loaded.Query.NewFields))

	pipeline, err := compiler.Compile(loaded.Query)
	if err != nil {
		return formatter.Fail(err, nil)
	}

	data, err := pipeline.MarshalJSON()
	if err != nil {
		return formatter.Fail(err, nil)
	}

	if opts.Output != "" {
		if err := writePipelineToFile(data, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
		formatter.VerboseLog("Wrote pipeline to %s", opts.Output)
	}

	return outputCompileSuccess(formatter, loaded.Name, pipeline, data, opts.Output)
}

// outputCompileSuccess outputs the compiled pipeline.
func outputCompileSuccess(formatter *OutputFormatter, name string, pipeline querymongo.Pipeline, data []byte, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(CompilationResult{
			File:     name,
			Stages:   pipeline.StageNames(),
			Pipeline: json.RawMessage(data),
		})
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "✓ Compiled %s: %d stage(s)\n", name, len(pipeline))
		fmt.Fprintf(formatter.Writer, "Wrote pipeline to %s\n", outputFile)
		return nil
	}

	indented, err := indentJSON(data)
	if err != nil {
		return err
	}
	_, err = formatter.Writer.Write(indented)
	return err
}

// writePipelineToFile writes the pipeline as indented JSON.
func writePipelineToFile(data []byte, filename string) error {
	indented, err := indentJSON(data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, indented, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

func indentJSON(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, fmt.Errorf("indenting pipeline: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
