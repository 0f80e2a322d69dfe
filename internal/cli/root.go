package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/recstore/internal/backends"
	"github.com/roach88/recstore/internal/config"
	"github.com/roach88/recstore/internal/storage"
)

// RootOptions holds global flags for all commands, and the state the root
// command derives from them before any subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the recstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "recstore",
		Short: "recstore - multi-tenant record storage",
		Long: `Operate a recstore backend: bootstrap its schema, check that it answers,
inspect collection timestamps and list records with filters, sorting and
pagination.

The backend is chosen by the config file (--config, YAML or TOML). Without
one, an in-memory store is used. RECSTORE_STORAGE_URL overrides storage.url.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (.yaml, .yml or .toml)")

	// Add subcommands
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPingCommand(opts))
	cmd.AddCommand(NewFlushCommand(opts))
	cmd.AddCommand(NewTimestampCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		// Already reported by the command's formatter.
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitCommandError
}

// load reads the config and sets up logging.
func (o *RootOptions) load(cmd *cobra.Command) error {
	var err error
	if o.ConfigPath == "" {
		o.Config = config.Default()
		o.Config.ApplyEnv(os.LookupEnv)
		err = o.Config.Validate()
	} else {
		o.Config, err = config.Load(o.ConfigPath)
	}
	if err != nil {
		return o.formatter(cmd).Fail(ExitCommandError, "failed to load config", err)
	}

	level, _ := o.Config.Log.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = newLogger(cmd.ErrOrStderr(), level)
	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// openStore opens the configured backend. The caller closes it.
func (o *RootOptions) openStore(cmd *cobra.Command) (storage.Storage, error) {
	o.Logger.Debug("opening storage", "backend", o.Config.Storage.Backend)
	s, err := backends.Open(cmd.Context(), o.Config.Storage, storage.Options{Logger: o.Logger})
	if err != nil {
		return nil, o.formatter(cmd).Fail(ExitCommandError, "failed to open storage", err)
	}
	return s, nil
}

func (o *RootOptions) closeStore(s storage.Storage) {
	if err := s.Close(); err != nil {
		o.Logger.Error("error closing storage", "error", err)
	}
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
