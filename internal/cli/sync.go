package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/yatra/internal/syncer"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Full  bool
	Force bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle against the remote store",
		Long: `Run one sync cycle: refresh the roster, merge remote records into the
local log and push every pending scan.

With --full the local log is discarded first and rebuilt from the remote
store. Scans that were never delivered are lost, so --full refuses to run
while any are pending unless --force is also given.

Example:
  yatra sync
  yatra sync --full --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Full, "full", false, "discard the local log and rebuild it from the remote store")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "with --full, discard undelivered scans too")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelWarn)
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	return withApp(ctx, opts.RootOptions, f, func(a *app) error {
		if err := a.requireEngine(f); err != nil {
			return err
		}

		if opts.Full {
			pending, err := a.store.PendingCount(ctx)
			if err != nil {
				return fail(f, ExitFailure, "failed to count pending scans", err)
			}
			if pending > 0 && !opts.Force {
				return fail(f, ExitCommandError, "refusing full sync",
					fmt.Errorf("%d scans not yet delivered; rerun with --force to discard them", pending))
			}
			f.VerboseLog("clearing local scan log")
			if err := a.store.ClearScans(ctx); err != nil {
				return fail(f, ExitFailure, "failed to clear local log", err)
			}
		}

		syncErr := a.engine.SyncNow(ctx)
		st, err := a.engine.Status(ctx)
		if err != nil {
			return fail(f, ExitFailure, "failed to read sync status", err)
		}
		if syncErr != nil {
			var partial *syncer.PartialSyncError
			if errors.As(syncErr, &partial) {
				return fail(f, ExitFailure, "sync incomplete", syncErr)
			}
			return fail(f, ExitFailure, "sync failed", syncErr)
		}
		return f.Result(st, syncText(st))
	})
}

func syncText(st syncer.Status) string {
	line := fmt.Sprintf("Sync complete. %d pending.", st.Pending)
	if st.LastSyncAt != nil {
		line += " Last sync " + formatTime(*st.LastSyncAt) + "."
	}
	return line
}
