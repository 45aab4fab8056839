package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsi-icl/eae-interface/internal/queryfile"
	"github.com/dsi-icl/eae-interface/internal/queryir"
	"github.com/dsi-icl/eae-interface/internal/store"
)

// StoreOptions holds flags for commands that use the query database.
type StoreOptions struct {
	*RootOptions
	Status string // status filter for listings
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <query-file>",
		Short: "Store a query for later processing",
		Long: `Store a cohort query in the query database with status CREATED.

The file is checked against the query schema first and stored in its
normalized JSON form. Run "cohortq process <query-id>" to compile it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], cmd)
		},
	}

	addDatabaseFlag(cmd, rootOpts)
	return cmd
}

// NewProcessCommand creates the process command.
func NewProcessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "process <query-id>",
		Short: "Compile a stored query",
		Long: `Compile a stored query and record the outcome.

The query moves to PROCESSING, then to READY with its pipeline, or to
FAILED with the error code and message. Failed queries can be processed
again; cancelled and ready queries cannot.

Exit codes:
  0 - Query compiled, status READY
  1 - Query rejected (status FAILED) or not processable
  2 - Command error (unknown query id, database failure)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(opts, args[0], cmd)
		},
	}

	addDatabaseFlag(cmd, rootOpts)
	return cmd
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status [query-id]",
		Short: "Show a stored query, or list stored queries",
		Long: `Show the status of a stored query. Without an ID, list stored queries
in submission order, optionally filtered with --status.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runList(opts, cmd)
			}
			return runStatus(opts, args[0], cmd)
		},
	}

	addDatabaseFlag(cmd, rootOpts)
	cmd.Flags().StringVar(&opts.Status, "status", "", "list only queries with this status")
	return cmd
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cancel <query-id>",
		Short: "Cancel a stored query",
		Long: `Cancel a stored query that has not reached READY. Cancelling a
cancelled query succeeds and changes nothing.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCancel(opts, args[0], cmd)
		},
	}

	addDatabaseFlag(cmd, rootOpts)
	return cmd
}

func addDatabaseFlag(cmd *cobra.Command, opts *RootOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the query database (default from config)")
}

// openStore opens the configured query database.
func openStore(opts *RootOptions, formatter *OutputFormatter) (*store.Store, error) {
	opts.ensure()
	st, err := store.Open(opts.Config.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("opening database: %v", err), nil)
		return nil, WrapExitError(ExitCommandError, "opening database", err)
	}
	formatter.VerboseLog("Using database %s", opts.Config.Database)
	return st, nil
}

func runSubmit(opts *StoreOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := queryfile.Load(path)
	if err != nil {
		return formatter.Fail(err, nil)
	}

	st, err := openStore(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.CreateQuery(cmd.Context(), loaded.JSON)
	if err != nil {
		return formatter.Fail(err, nil)
	}
	opts.Logger.Info("query submitted", "id", rec.ID, "file", loaded.Name)

	if formatter.Format == "json" {
		return formatter.Success(rec)
	}
	fmt.Fprintf(formatter.Writer, "✓ Submitted %s as %s\n", loaded.Name, rec.ID)
	return nil
}

func runProcess(opts *StoreOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	rec, err := st.MarkProcessing(ctx, id)
	if err != nil {
		return formatter.Fail(err, nil)
	}
	logger := opts.Logger.With("id", id)
	logger.Debug("processing query")

	// The outcome is recorded even if the command is interrupted meanwhile.
	outcomeCtx := context.WithoutCancel(ctx)

	data, buildErr := buildPipeline(opts.RootOptions, rec.Query)
	if buildErr != nil {
		code, _ := Classify(buildErr)
		if _, err := st.FailQuery(outcomeCtx, id, code, buildErr.Error()); err != nil {
			return formatter.Fail(err, nil)
		}
		logger.Warn("query failed", "code", code, "error", buildErr)
		return formatter.Fail(buildErr, map[string]any{"id": id, "status": store.StatusFailed})
	}

	rec, err = st.CompleteQuery(outcomeCtx, id, data)
	if err != nil {
		if !errors.Is(err, store.ErrCancelled) {
			if _, failErr := st.FailQuery(outcomeCtx, id, ErrCodeWriteFailed, err.Error()); failErr != nil {
				logger.Error("could not record failure", "error", failErr)
			}
		}
		return formatter.Fail(err, nil)
	}
	logger.Info("query ready", "bytes", len(data))

	return outputRecord(formatter, rec)
}

// buildPipeline decodes a stored query and compiles it to pipeline JSON.
func buildPipeline(opts *RootOptions, query []byte) ([]byte, error) {
	q, err := queryir.Decode(query)
	if err != nil {
		return nil, err
	}
	pipeline, err := opts.compiler().Compile(q)
	if err != nil {
		return nil, err
	}
	return pipeline.MarshalJSON()
}

func runStatus(opts *StoreOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.GetQuery(cmd.Context(), id)
	if err != nil {
		return formatter.Fail(err, nil)
	}
	return outputRecord(formatter, rec)
}

func runList(opts *StoreOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	status := store.Status(opts.Status)
	switch status {
	case "", store.StatusCreated, store.StatusProcessing, store.StatusReady, store.StatusFailed, store.StatusCancelled:
	default:
		_ = formatter.Error(ErrCodeGeneric, fmt.Sprintf("unknown status %q", opts.Status), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown status %q", opts.Status))
	}

	st, err := openStore(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ListQueries(cmd.Context(), status)
	if err != nil {
		return formatter.Fail(err, nil)
	}

	if formatter.Format == "json" {
		return formatter.Success(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(formatter.Writer, "No queries found.")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintf(formatter.Writer, "%s  %-10s  %s\n", rec.ID, rec.Status, rec.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func runCancel(opts *StoreOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.CancelQuery(cmd.Context(), id)
	if err != nil {
		return formatter.Fail(err, nil)
	}
	opts.Logger.Info("query cancelled", "id", id)
	return outputRecord(formatter, rec)
}

// outputRecord prints one stored query.
func outputRecord(formatter *OutputFormatter, rec store.Record) error {
	if formatter.Format == "json" {
		return formatter.Success(rec)
	}
	return writeRecordText(formatter.Writer, rec)
}

func writeRecordText(w io.Writer, rec store.Record) error {
	fmt.Fprintf(w, "ID:       %s\n", rec.ID)
	fmt.Fprintf(w, "Status:   %s\n", rec.Status)
	fmt.Fprintf(w, "Created:  %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Updated:  %s\n", rec.UpdatedAt.Format(time.RFC3339))
	if rec.ErrorCode != "" {
		fmt.Fprintf(w, "Error:    [%s] %s\n", rec.ErrorCode, rec.Error)
	}
	if rec.Pipeline != nil {
		indented, err := indentJSON(rec.Pipeline)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "Pipeline:")
		if _, err := w.Write(indented); err != nil {
			return err
		}
	}
	return nil
}
