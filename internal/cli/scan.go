package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/yatra/internal/ingest"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Checkpoint int
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <token>...",
		Short: "Record participant scans at a checkpoint",
		Long: `Record one or more scans at a checkpoint.

Each token may be a QR payload, a bare participant token or a badge number.
The scan is stored locally first; delivery to the remote store happens in
the background. A second scan of the same participant at the same checkpoint
within the duplicate window is refused.

With several tokens the scans are recorded in order as a batch.

Example:
  yatra scan --checkpoint 1 PALITANA_YATRA_A1B2
  yatra scan 17 23 42 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, args, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Checkpoint, "checkpoint", 0, "checkpoint ID (defaults to the device's selected checkpoint)")

	return cmd
}

func runScan(opts *ScanOptions, tokens []string, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelWarn)
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	return withApp(ctx, opts.RootOptions, f, func(a *app) error {
		cp, err := a.selectedCheckpoint(ctx, opts.Checkpoint)
		if err != nil {
			return fail(f, GetExitCode(err), "invalid checkpoint", err)
		}
		f.VerboseLog("scanning at %s as device %s", cp.Name(), a.deviceID)

		if len(tokens) == 1 {
			res, err := a.ingester.ScanToken(ctx, tokens[0], cp, opts.now())
			if err != nil {
				return fail(f, ExitFailure, "scan failed", err)
			}
			return f.Result(res, scanText(res))
		}

		batch, err := a.ingester.BatchScan(ctx, tokens, cp, opts.now())
		if err != nil {
			return fail(f, ExitFailure, "batch scan stopped", err)
		}
		if err := f.Result(batch, batchText(batch)); err != nil {
			return err
		}
		if batch.Errors > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scans failed", batch.Errors, batch.Total))
		}
		return nil
	})
}

func scanText(res ingest.Result) string {
	p := res.Participant
	return fmt.Sprintf("#%d %s: %s", p.BadgeNumber, p.Name, res.Message)
}

func batchText(b ingest.BatchResult) string {
	var sb strings.Builder
	for _, item := range b.Results {
		if item.Result != nil {
			fmt.Fprintf(&sb, "%s: %s\n", item.Token, scanText(*item.Result))
			continue
		}
		fmt.Fprintf(&sb, "%s: error: %s\n", item.Token, item.Error)
	}
	fmt.Fprintf(&sb, "%d scanned: %d recorded, %d duplicates, %d errors",
		b.Total, b.Successful, b.Duplicates, b.Errors)
	return sb.String()
}
