package cli

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/ingest"
)

// NewCheckpointCommand creates the checkpoint command.
func NewCheckpointCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "List checkpoints and the device's selected checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointList(opts, cmd)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <id>",
		Short: "Select the checkpoint this device scans at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointSet(opts, args[0], cmd)
		},
	})
	return cmd
}

type checkpointList struct {
	Selected    checkpoint.ID           `json:"selected"`
	Checkpoints []checkpoint.Checkpoint `json:"checkpoints"`
}

func runCheckpointList(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelWarn)
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	return withApp(ctx, opts, f, func(a *app) error {
		selected, err := a.store.SelectedCheckpoint(ctx)
		if err != nil {
			return fail(f, ExitFailure, "failed to read selected checkpoint", err)
		}
		out := checkpointList{Selected: selected, Checkpoints: checkpoint.All()}

		lines := make([]string, 0, len(out.Checkpoints))
		for _, c := range out.Checkpoints {
			marker := " "
			if c.ID == selected {
				marker = "*"
			}
			lines = append(lines, fmt.Sprintf("%s %d %-12s %s", marker, c.ID, c.Name, c.Description))
		}
		return f.Result(out, strings.Join(lines, "\n"))
	})
}

func runCheckpointSet(opts *RootOptions, arg string, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelWarn)
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	n, err := strconv.Atoi(arg)
	if err != nil || !checkpoint.Valid(checkpoint.ID(n)) {
		err := fmt.Errorf("checkpoint %q: %w", arg, ingest.ErrUnknownCheckpoint)
		return fail(f, ExitCommandError, "invalid checkpoint", err)
	}
	id := checkpoint.ID(n)

	return withApp(ctx, opts, f, func(a *app) error {
		if err := a.store.SetSelectedCheckpoint(ctx, id); err != nil {
			return fail(f, ExitFailure, "failed to select checkpoint", err)
		}
		cp, _ := checkpoint.Lookup(id)
		return f.Result(cp, fmt.Sprintf("Selected checkpoint %d (%s)", cp.ID, cp.Name))
	})
}
