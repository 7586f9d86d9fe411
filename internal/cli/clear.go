package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
)

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	Yes bool
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every local scan record",
		Long: `Delete the local scan log, the pending queue and the last sync time.
The roster, device ID and selected checkpoint are kept.

Undelivered scans are lost. Requires --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm deletion")

	return cmd
}

type clearResult struct {
	Cleared          bool `json:"cleared"`
	DiscardedPending int  `json:"discarded_pending"`
}

func runClear(opts *ClearOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelWarn)
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	if !opts.Yes {
		return fail(f, ExitCommandError, "refusing to clear", errors.New("pass --yes to delete all local scans"))
	}

	return withApp(ctx, opts.RootOptions, f, func(a *app) error {
		pending, err := a.store.PendingCount(ctx)
		if err != nil {
			return fail(f, ExitFailure, "failed to count pending scans", err)
		}
		if err := a.store.ClearScans(ctx); err != nil {
			return fail(f, ExitFailure, "failed to clear scans", err)
		}
		if pending > 0 {
			slog.Warn("discarded undelivered scans", "count", pending)
		}
		return f.Result(clearResult{Cleared: true, DiscardedPending: pending}, "Local scan log cleared.")
	})
}
