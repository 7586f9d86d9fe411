package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/yatra/internal/derive"
)

// StatsReport is the stats command payload.
type StatsReport struct {
	derive.Statistics
	Pending    int        `json:"pending"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the local scan log",
		Long: `Summarize the local scan log: participant, scan and completion totals,
today's counts per checkpoint (IST), Saat Jatra finishers, participants at
risk and the number of scans waiting for delivery.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}
	return cmd
}

func runStats(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(cmd.ErrOrStderr(), opts.Verbose, slog.LevelWarn)
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	return withApp(ctx, opts, f, func(a *app) error {
		roster, err := a.store.ReadRoster(ctx)
		if err != nil {
			return fail(f, ExitFailure, "failed to read roster", err)
		}
		log, err := a.store.ReadScanLog(ctx)
		if err != nil {
			return fail(f, ExitFailure, "failed to read scan log", err)
		}
		pending, err := a.store.PendingCount(ctx)
		if err != nil {
			return fail(f, ExitFailure, "failed to count pending scans", err)
		}
		last, ok, err := a.store.LastSyncAt(ctx)
		if err != nil {
			return fail(f, ExitFailure, "failed to read last sync", err)
		}

		report := StatsReport{
			Statistics: derive.Summarize(roster, log, opts.now(), a.deriveOptions()),
			Pending:    pending,
		}
		if ok {
			report.LastSyncAt = &last
		}
		return f.Result(report, statsText(report))
	})
}

func statsText(r StatsReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Participants: %d\n", r.TotalParticipants)
	fmt.Fprintf(&sb, "Scans: %d (%d today)\n", r.TotalScans, r.TodayScans)
	fmt.Fprintf(&sb, "Jatras: %d (%d today)\n", r.TotalCompletions, r.TodayCompletions)
	fmt.Fprintf(&sb, "Saat Jatra complete: %d\n", r.SaatJatraComplete)
	for _, c := range r.Checkpoints {
		fmt.Fprintf(&sb, "  %-12s %d (%d today)\n", c.Name, c.Count, c.TodayCount)
	}
	if len(r.AtRisk) > 0 {
		fmt.Fprintf(&sb, "At risk: %d\n", len(r.AtRisk))
		for _, ps := range r.AtRisk {
			fmt.Fprintf(&sb, "  %s\n", derive.Describe(ps.Participant, ps.Status))
		}
	}
	fmt.Fprintf(&sb, "Pending sync: %d", r.Pending)
	if r.LastSyncAt != nil {
		fmt.Fprintf(&sb, "\nLast sync: %s", formatTime(*r.LastSyncAt))
	}
	return sb.String()
}
