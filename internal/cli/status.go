package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/yatra/internal/derive"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Filter string
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status [token]",
		Short: "Show derived participant status",
		Long: `Show the status derived from the local scan log.

Without arguments every roster participant is listed. With a token (QR
payload, participant token or badge number) the full cycle history of that
participant is shown.

--filter selects participants with an expression over badge, name,
completions, atRisk, state, minutesSinceLastScan and inProgress.

Example:
  yatra status
  yatra status 42
  yatra status --filter 'atRisk || completions >= 5'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runParticipantStatus(opts, args[0], cmd)
			}
			return runStatusList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter expression")

	return cmd
}

func runStatusList(opts *StatusOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelWarn)
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	var filter *derive.Filter
	if opts.Filter != "" {
		var err error
		filter, err = derive.CompileFilter(opts.Filter)
		if err != nil {
			_ = f.Error(ErrCodeFilter, "invalid filter", err.Error())
			return WrapExitError(ExitCommandError, "invalid filter", err)
		}
	}

	return withApp(ctx, opts.RootOptions, f, func(a *app) error {
		roster, err := a.store.ReadRoster(ctx)
		if err != nil {
			return fail(f, ExitFailure, "failed to read roster", err)
		}
		log, err := a.store.ReadScanLog(ctx)
		if err != nil {
			return fail(f, ExitFailure, "failed to read scan log", err)
		}

		statuses := derive.Statuses(roster, log, opts.now(), a.deriveOptions())
		if filter != nil {
			statuses, err = filter.Apply(statuses)
			if err != nil {
				_ = f.Error(ErrCodeFilter, "filter failed", err.Error())
				return WrapExitError(ExitFailure, "filter failed", err)
			}
		}

		lines := make([]string, 0, len(statuses)+1)
		for _, ps := range statuses {
			lines = append(lines, derive.Describe(ps.Participant, ps.Status))
		}
		lines = append(lines, fmt.Sprintf("%d of %d participants", len(statuses), len(roster)))
		return f.Result(statuses, strings.Join(lines, "\n"))
	})
}

func runParticipantStatus(opts *StatusOptions, token string, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelWarn)
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	return withApp(ctx, opts.RootOptions, f, func(a *app) error {
		p, err := a.ingester.Resolve(ctx, token)
		if err != nil {
			return fail(f, ExitFailure, "participant lookup failed", err)
		}
		history, err := a.store.ParticipantHistory(ctx, p.ID)
		if err != nil {
			return fail(f, ExitFailure, "failed to read history", err)
		}

		ps := derive.ParticipantStatus{
			Participant: p,
			Status:      derive.Compute(p.ID, history, opts.now(), a.deriveOptions()),
		}
		return f.Result(ps, participantText(ps))
	})
}

func participantText(ps derive.ParticipantStatus) string {
	var sb strings.Builder
	sb.WriteString(derive.Describe(ps.Participant, ps.Status))
	for _, c := range ps.Status.Cycles {
		fmt.Fprintf(&sb, "\n  Jatra #%d: started %s", c.Number, formatTime(c.Start))
		switch {
		case c.End != nil && c.DurationMinutes != nil:
			fmt.Fprintf(&sb, ", completed %s (%d min)", formatTime(*c.End), *c.DurationMinutes)
		case c.End != nil:
			fmt.Fprintf(&sb, ", completed %s", formatTime(*c.End))
		default:
			sb.WriteString(", in progress")
		}
	}
	return sb.String()
}

func formatTime(t time.Time) string {
	return derive.FormatIST(t)
}
