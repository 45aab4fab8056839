package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dsi-icl/eae-interface/internal/config"
	"github.com/dsi-icl/eae-interface/internal/querymongo"
)

// RootOptions holds global flags for all commands and the settings
// resolved from them before a command runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string

	// Config and Logger are set by the root command's pre-run hook.
	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cohortq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cohortq",
		Short: "cohortq - cohort queries for MongoDB",
		Long: `Compile cohort queries into MongoDB aggregation pipelines.

A query selects patients through OR-ed groups of AND-ed predicates, may
compute derived fields, and names the fields to return. cohortq validates
queries, compiles them, and tracks submitted queries in a local database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.resolve(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (yaml|json|toml)")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewProcessCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewCancelCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolve loads the configuration, letting flags that were set on the
// command line win, and installs the logger.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	overrides := map[string]any{}
	if f := cmd.Flags().Lookup("db"); f != nil && f.Changed {
		overrides[config.KeyDatabase] = o.Database
	}
	if o.Verbose {
		overrides[config.KeyLogLevel] = "debug"
	}

	cfg, err := config.Load(o.ConfigPath, overrides)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading configuration", err)
	}
	level, _ := cfg.Level() // Validated by Load

	o.Config = cfg
	o.Logger = newLogger(cmd.ErrOrStderr(), level)
	return nil
}

// ensure fills in default settings for commands built without the root
// command, as in tests.
func (o *RootOptions) ensure() {
	if o.Logger != nil {
		return
	}
	o.Config = config.Default()
	if o.Database != "" {
		o.Config.Database = o.Database
	}
	o.Logger = newLogger(io.Discard, slog.LevelInfo)
}

// compiler returns a compiler for the resolved settings.
func (o *RootOptions) compiler() *querymongo.Compiler {
	o.ensure()
	return querymongo.NewCompiler(o.Config.CompilerOptions(o.Logger))
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
