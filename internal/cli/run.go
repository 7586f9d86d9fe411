package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/yatra/internal/checkpoint"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Checkpoint int
	Stdin      bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the device: background sync and optional continuous scanning",
		Long: `Start the sync engine and keep the device in step with the remote store
until interrupted.

The engine syncs immediately, then every interval while online and less often
while offline. Failures are retried with exponential backoff.

With --stdin each input line is recorded as a scan at the selected checkpoint,
as a barcode reader in keyboard mode would type it. The command stops at end
of input.

Example:
  yatra run --config yatra.yaml
  yatra run --stdin --checkpoint 2 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Checkpoint, "checkpoint", 0, "checkpoint ID for --stdin scans (defaults to the device's selected checkpoint)")
	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, "read scan tokens from standard input, one per line")

	return cmd
}

func runDevice(opts *RunOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelInfo)
	f := opts.formatter(cmd)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return withApp(ctx, opts.RootOptions, f, func(a *app) error {
		if a.engine == nil && !opts.Stdin {
			return fail(f, ExitCommandError, "nothing to run", errNoRemote)
		}

		runErr := make(chan error, 1)
		if a.engine != nil {
			go func() { runErr <- a.engine.Run(ctx) }()
			slog.Info("sync engine started", "db", a.cfg.Database, "remote", a.cfg.Remote.URL)
		} else {
			slog.Warn("no remote configured; scans are recorded locally only")
			runErr <- nil
		}

		if opts.Stdin {
			cp, err := a.selectedCheckpoint(ctx, opts.Checkpoint)
			if err != nil {
				cancel()
				<-runErr
				return fail(f, GetExitCode(err), "invalid checkpoint", err)
			}
			if f.Format == "text" {
				fmt.Fprintf(cmd.OutOrStdout(), "Scanning at %s. End input to stop.\n", cp.Name())
			}
			if err := scanLines(ctx, a, opts, cp, cmd.InOrStdin(), f); err != nil {
				cancel()
				<-runErr
				return err
			}
			cancel()
		} else if f.Format == "text" {
			fmt.Fprintln(cmd.OutOrStdout(), "Sync engine running. Press Ctrl-C to stop.")
		}

		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return WrapExitError(ExitFailure, "sync engine error", err)
		}
		slog.Info("device stopped gracefully")
		return nil
	})
}

// scanLines records one scan per non-empty input line until EOF or ctx ends.
// Unknown tokens are reported and skipped; a local persistence failure stops
// the loop.
func scanLines(ctx context.Context, a *app, opts *RunOptions, cp checkpoint.ID, r io.Reader, f *OutputFormatter) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fail(f, ExitFailure, "failed to read input", err)
					}
				default:
				}
				return nil
			}
			token := strings.TrimSpace(line)
			if token == "" {
				continue
			}
			res, err := a.ingester.ScanToken(ctx, token, cp, opts.now())
			if err != nil {
				code := errorCode(err)
				_ = f.Error(code, "scan failed", err.Error())
				if code == ErrCodeStore {
					return WrapExitError(ExitFailure, "scan failed", err)
				}
				continue
			}
			if err := f.Result(res, scanText(res)); err != nil {
				return err
			}
			if a.engine != nil && !res.Duplicate {
				a.engine.Trigger()
			}
		}
	}
}
