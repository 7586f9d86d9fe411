package derive

import (
	"math"
	"sort"
	"time"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/model"
)

// DefaultSafetyThreshold is how long a participant may remain on a descent
// before being flagged at risk.
const DefaultSafetyThreshold = 6 * time.Hour

// Progression is the participant's position in the route, derived from the
// most recent record.
type Progression string

const (
	StateIdle           Progression = "idle"
	StateDescending     Progression = "descending"
	StateCompletedCycle Progression = "completed-cycle"
	StateCompletedDay   Progression = "completed-day"
)

// Options configures derivation.
type Options struct {
	SafetyThreshold time.Duration
}

// DefaultOptions returns the production thresholds.
func DefaultOptions() Options {
	return Options{SafetyThreshold: DefaultSafetyThreshold}
}

// Cycle is one start→terminal traversal. End and DurationMinutes are nil
// while the cycle is in progress.
type Cycle struct {
	Number          int           `json:"number"`
	Start           time.Time     `json:"start"`
	End             *time.Time    `json:"end,omitempty"`
	Duration        time.Duration `json:"-"`
	DurationMinutes *int          `json:"duration_minutes,omitempty"`
	Complete        bool          `json:"complete"`
}

// Status is the derived view of one participant.
type Status struct {
	ParticipantID        string        `json:"participant_id"`
	CompletionCount      int           `json:"completion_count"`
	Cycles               []Cycle       `json:"cycles"`
	State                Progression   `json:"state"`
	AtRisk               bool          `json:"at_risk"`
	LastScanAt           *time.Time    `json:"last_scan_at,omitempty"`
	LastCheckpoint       checkpoint.ID `json:"last_checkpoint,omitempty"`
	MinutesSinceLastScan *int          `json:"minutes_since_last_scan,omitempty"`
}

// InProgress reports whether the last cycle is still open.
func (s Status) InProgress() bool {
	return len(s.Cycles) > 0 && !s.Cycles[len(s.Cycles)-1].Complete
}

// ClosedDurations returns the durations of completed cycles in order.
func (s Status) ClosedDurations() []time.Duration {
	var out []time.Duration
	for _, c := range s.Cycles {
		if c.Complete {
			out = append(out, c.Duration)
		}
	}
	return out
}

// Compute derives the status of participantID from history at now. History
// may contain other participants' records; they are ignored.
func Compute(participantID string, history []model.ScanRecord, now time.Time, opts Options) Status {
	own := ForParticipant(history, participantID)

	st := Status{
		ParticipantID:   participantID,
		CompletionCount: CompletionCount(own),
		Cycles:          Cycles(own),
		State:           ProgressionOf(own),
		AtRisk:          AtRisk(own, now, opts.SafetyThreshold),
	}
	if st.Cycles == nil {
		st.Cycles = []Cycle{}
	}
	if len(own) > 0 {
		last := own[len(own)-1]
		at := last.ScannedAt
		mins := Minutes(now.Sub(at))
		st.LastScanAt = &at
		st.LastCheckpoint = last.CheckpointID
		st.MinutesSinceLastScan = &mins
	}
	return st
}

// ForParticipant returns participantID's records sorted ascending by
// timestamp. The input is not modified.
func ForParticipant(history []model.ScanRecord, participantID string) []model.ScanRecord {
	var own []model.ScanRecord
	for _, r := range history {
		if r.ParticipantID == participantID {
			own = append(own, r)
		}
	}
	SortAscending(own)
	return own
}

// SortAscending orders records by timestamp, then ID for a stable order
// between records stamped in the same instant.
func SortAscending(records []model.ScanRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].ScannedAt.Equal(records[j].ScannedAt) {
			return records[i].ScannedAt.Before(records[j].ScannedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// CompletionCount counts terminal-checkpoint records.
func CompletionCount(history []model.ScanRecord) int {
	n := 0
	for _, r := range history {
		if r.CheckpointID == checkpoint.Terminal {
			n++
		}
	}
	return n
}

// Cycles walks an ascending history and returns closed cycles followed by at
// most one in-progress cycle.
func Cycles(history []model.ScanRecord) []Cycle {
	var (
		cycles []Cycle
		open   *model.ScanRecord
		closed int
	)
	for i := range history {
		r := history[i]
		switch r.CheckpointID {
		case checkpoint.Start:
			open = &history[i]
		case checkpoint.Terminal:
			if open == nil {
				continue
			}
			closed++
			end := r.ScannedAt
			d := end.Sub(open.ScannedAt)
			mins := Minutes(d)
			cycles = append(cycles, Cycle{
				Number:          closed,
				Start:           open.ScannedAt,
				End:             &end,
				Duration:        d,
				DurationMinutes: &mins,
				Complete:        true,
			})
			open = nil
		}
	}
	if open != nil {
		cycles = append(cycles, Cycle{Number: closed + 1, Start: open.ScannedAt})
	}
	return cycles
}

// ProgressionOf derives the route position from the most recent record.
func ProgressionOf(history []model.ScanRecord) Progression {
	if len(history) == 0 {
		return StateIdle
	}
	switch history[len(history)-1].CheckpointID {
	case checkpoint.Start:
		return StateDescending
	case checkpoint.Terminal:
		return StateCompletedCycle
	case checkpoint.FinalOfDay:
		return StateCompletedDay
	default:
		return StateIdle
	}
}

// AtRisk is true iff the most recent record is at the start checkpoint and
// is strictly older than threshold.
func AtRisk(history []model.ScanRecord, now time.Time, threshold time.Duration) bool {
	if len(history) == 0 {
		return false
	}
	last := history[len(history)-1]
	if last.CheckpointID != checkpoint.Start {
		return false
	}
	return now.Sub(last.ScannedAt) > threshold
}

// Minutes rounds d to whole minutes, half away from zero.
func Minutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}
