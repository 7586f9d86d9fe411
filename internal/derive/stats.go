package derive

import (
	"fmt"
	"sort"
	"time"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/model"
)

// IST is the event's local zone. A fixed offset avoids depending on the
// host's tzdata.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// FormatIST renders t the way volunteers read timestamps on the ground.
func FormatIST(t time.Time) string {
	return t.In(IST).Format("02/01/2006 15:04:05") + " IST"
}

// CheckpointCount is the number of scans recorded at one checkpoint.
type CheckpointCount struct {
	CheckpointID checkpoint.ID `json:"checkpoint_id"`
	Name         string        `json:"name"`
	Count        int           `json:"count"`
	TodayCount   int           `json:"today_count"`
}

// ParticipantStatus pairs a roster entry with its derived status.
type ParticipantStatus struct {
	Participant model.Participant `json:"participant"`
	Status      Status            `json:"status"`
}

// Statistics summarizes the whole local log.
type Statistics struct {
	TotalParticipants int                 `json:"total_participants"`
	TotalScans        int                 `json:"total_scans"`
	TotalCompletions  int                 `json:"total_completions"`
	TodayScans        int                 `json:"today_scans"`
	TodayCompletions  int                 `json:"today_completions"`
	SaatJatraComplete int                 `json:"saat_jatra_complete"`
	Checkpoints       []CheckpointCount   `json:"checkpoints"`
	AtRisk            []ParticipantStatus `json:"at_risk"`
}

// Statuses computes the status of every roster participant.
func Statuses(roster []model.Participant, log []model.ScanRecord, now time.Time, opts Options) []ParticipantStatus {
	byParticipant := make(map[string][]model.ScanRecord, len(roster))
	for _, r := range log {
		byParticipant[r.ParticipantID] = append(byParticipant[r.ParticipantID], r)
	}
	out := make([]ParticipantStatus, 0, len(roster))
	for _, p := range roster {
		out = append(out, ParticipantStatus{
			Participant: p,
			Status:      Compute(p.ID, byParticipant[p.ID], now, opts),
		})
	}
	return out
}

// Summarize computes totals for the log. "Today" is the IST calendar day
// containing now.
func Summarize(roster []model.Participant, log []model.ScanRecord, now time.Time, opts Options) Statistics {
	y, m, d := now.In(IST).Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, IST)
	dayEnd := dayStart.AddDate(0, 0, 1)

	st := Statistics{TotalParticipants: len(roster), TotalScans: len(log)}

	perCheckpoint := map[checkpoint.ID]*CheckpointCount{}
	var order []checkpoint.ID
	for _, cp := range checkpoint.All() {
		perCheckpoint[cp.ID] = &CheckpointCount{CheckpointID: cp.ID, Name: cp.Name}
		order = append(order, cp.ID)
	}

	for _, r := range log {
		today := !r.ScannedAt.Before(dayStart) && r.ScannedAt.Before(dayEnd)
		if today {
			st.TodayScans++
		}
		if r.CheckpointID == checkpoint.Terminal {
			st.TotalCompletions++
			if today {
				st.TodayCompletions++
			}
		}
		if c, ok := perCheckpoint[r.CheckpointID]; ok {
			c.Count++
			if today {
				c.TodayCount++
			}
		}
	}
	for _, id := range order {
		st.Checkpoints = append(st.Checkpoints, *perCheckpoint[id])
	}

	st.AtRisk = []ParticipantStatus{}
	for _, ps := range Statuses(roster, log, now, opts) {
		if ps.Status.CompletionCount >= checkpoint.SaatJatraTotal {
			st.SaatJatraComplete++
		}
		if ps.Status.AtRisk {
			st.AtRisk = append(st.AtRisk, ps)
		}
	}
	sort.SliceStable(st.AtRisk, func(i, j int) bool {
		return minutesSince(st.AtRisk[i].Status) > minutesSince(st.AtRisk[j].Status)
	})
	return st
}

func minutesSince(s Status) int {
	if s.MinutesSinceLastScan == nil {
		return 0
	}
	return *s.MinutesSinceLastScan
}

// Describe renders a one-line human summary of a status.
func Describe(p model.Participant, s Status) string {
	line := fmt.Sprintf("#%d %s: %d/%d jatras, %s", p.BadgeNumber, p.Name, s.CompletionCount, checkpoint.SaatJatraTotal, s.State)
	if s.LastScanAt != nil {
		line += fmt.Sprintf(", last %s at %s", s.LastCheckpoint.Name(), FormatIST(*s.LastScanAt))
	}
	if s.AtRisk {
		line += " [AT RISK]"
	}
	return line
}
