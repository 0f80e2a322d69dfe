package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/recstore/internal/storage"
)

// MigrateResult is the output of migrate.
type MigrateResult struct {
	Backend string `json:"backend"`
}

func (r MigrateResult) String() string {
	return fmt.Sprintf("Schema ready (%s)", r.Backend)
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the backend schema",
		Long: `Create the backend schema if it does not exist and apply pending
migrations. Running it again is harmless.

Example:
  recstore migrate --config recstore.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer rootOpts.closeStore(s)

			return rootOpts.formatter(cmd).Success(MigrateResult{Backend: rootOpts.Config.Storage.Backend})
		},
	}
}

// PingResult is the output of ping.
type PingResult struct {
	Backend string `json:"backend"`
	OK      bool   `json:"ok"`
}

func (r PingResult) String() string {
	return fmt.Sprintf("%s: ok", r.Backend)
}

// NewPingCommand creates the ping command.
func NewPingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the backend answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer rootOpts.closeStore(s)

			backend := rootOpts.Config.Storage.Backend
			if !s.Ping(cmd.Context()) {
				return rootOpts.formatter(cmd).Fail(ExitFailure, "ping failed",
					storage.Unavailable(backend, errors.New("backend did not answer")))
			}
			return rootOpts.formatter(cmd).Success(PingResult{Backend: backend, OK: true})
		},
	}
}

// FlushResult is the output of flush.
type FlushResult struct {
	Backend string `json:"backend"`
}

func (r FlushResult) String() string {
	return fmt.Sprintf("Flushed %s storage", r.Backend)
}

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Delete every record, tombstone and timestamp",
		Long: `Delete every record, tombstone and collection timestamp of every
tenant. This cannot be undone; --yes is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			if !yes {
				return formatter.Fail(ExitCommandError, "refusing to flush", errors.New("pass --yes to confirm"))
			}

			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer rootOpts.closeStore(s)

			if err := s.Flush(cmd.Context()); err != nil {
				return formatter.Fail(ExitFailure, "flush failed", err)
			}
			rootOpts.Logger.Info("storage flushed", "backend", rootOpts.Config.Storage.Backend)
			return formatter.Success(FlushResult{Backend: rootOpts.Config.Storage.Backend})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the flush")

	return cmd
}

// TimestampResult is the output of timestamp.
type TimestampResult struct {
	Resource  string `json:"resource"`
	Tenant    string `json:"tenant"`
	Timestamp int64  `json:"timestamp"`
}

func (r TimestampResult) String() string {
	return fmt.Sprintf("%d", r.Timestamp)
}

// NewTimestampCommand creates the timestamp command.
func NewTimestampCommand(rootOpts *RootOptions) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "timestamp <resource>",
		Short: "Print the current timestamp of a collection",
		Long: `Print the version stamp of the latest write to a collection, or the
current time in milliseconds if it was never written.

Example:
  recstore timestamp article --tenant alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openStore(cmd)
			if err != nil {
				return err
			}
			defer rootOpts.closeStore(s)

			r := rootOpts.Config.Resource(args[0])
			stamp, err := s.CollectionTimestamp(cmd.Context(), r, tenant)
			if err != nil {
				return rootOpts.formatter(cmd).Fail(exitCodeFor(err), "timestamp failed", err)
			}
			return rootOpts.formatter(cmd).Success(TimestampResult{Resource: r.Name, Tenant: tenant, Timestamp: stamp})
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

// exitCodeFor classifies an operation error: backend and data conditions
// are failures, anything else is a caller mistake.
func exitCodeFor(err error) int {
	switch ErrorCode(err) {
	case ErrCodeUnavailable, ErrCodeNotFound, ErrCodeUnicity:
		return ExitFailure
	default:
		return ExitCommandError
	}
}
