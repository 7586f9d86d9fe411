package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/model"
	"github.com/roach88/yatra/internal/testutil"
)

var t0 = time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)

// history builds ascending records for p1 from (checkpoint, offset) pairs.
func history(steps ...any) []model.ScanRecord {
	var out []model.ScanRecord
	for i := 0; i+1 < len(steps); i += 2 {
		out = append(out, model.ScanRecord{
			ID:            model.NewScanID(),
			ParticipantID: "p1",
			CheckpointID:  steps[i].(checkpoint.ID),
			ScannedAt:     t0.Add(steps[i+1].(time.Duration)),
		})
	}
	return out
}

func TestCompute_StartThenCompletion(t *testing.T) {
	h := history(checkpoint.Start, time.Duration(0), checkpoint.Terminal, 95*time.Minute)

	st := Compute("p1", h, t0.Add(2*time.Hour), DefaultOptions())

	assert.Equal(t, 1, st.CompletionCount)
	require.Len(t, st.Cycles, 1)
	assert.True(t, st.Cycles[0].Complete)
	assert.Equal(t, 95*time.Minute, st.Cycles[0].Duration)
	require.NotNil(t, st.Cycles[0].DurationMinutes)
	assert.Equal(t, 95, *st.Cycles[0].DurationMinutes)
	assert.Equal(t, []time.Duration{95 * time.Minute}, st.ClosedDurations())
	assert.Equal(t, StateCompletedCycle, st.State)
	assert.False(t, st.AtRisk)
}

func TestCompute_AtRiskAfterThreshold(t *testing.T) {
	h := history(checkpoint.Start, time.Duration(0))

	assert.True(t, Compute("p1", h, t0.Add(7*time.Hour), DefaultOptions()).AtRisk)
	assert.False(t, Compute("p1", h, t0.Add(5*time.Hour), DefaultOptions()).AtRisk)
}

func TestAtRisk_BoundaryIsExclusive(t *testing.T) {
	h := history(checkpoint.Start, time.Duration(0))

	assert.False(t, AtRisk(h, t0.Add(DefaultSafetyThreshold), DefaultSafetyThreshold))
	assert.True(t, AtRisk(h, t0.Add(DefaultSafetyThreshold+time.Nanosecond), DefaultSafetyThreshold))
}

func TestAtRisk_OnlyForStartCheckpoint(t *testing.T) {
	late := t0.Add(48 * time.Hour)

	assert.False(t, AtRisk(nil, late, DefaultSafetyThreshold), "no history")
	assert.False(t, AtRisk(history(checkpoint.Terminal, time.Duration(0)), late, DefaultSafetyThreshold))
	assert.False(t, AtRisk(history(checkpoint.FinalOfDay, time.Duration(0)), late, DefaultSafetyThreshold))
	assert.False(t, AtRisk(history(checkpoint.Start, time.Duration(0), checkpoint.Terminal, time.Hour), late, DefaultSafetyThreshold))
}

func TestCompletionCount_IgnoresInterleaving(t *testing.T) {
	h := history(
		checkpoint.Terminal, time.Duration(0), // terminal without start still counts
		checkpoint.FinalOfDay, 10*time.Minute,
		checkpoint.Start, 20*time.Minute,
		checkpoint.Start, 40*time.Minute,
		checkpoint.Terminal, 90*time.Minute,
		checkpoint.FinalOfDay, 100*time.Minute,
		checkpoint.Terminal, 200*time.Minute,
	)
	assert.Equal(t, 3, CompletionCount(h))
}

func TestCycles(t *testing.T) {
	tests := []struct {
		name      string
		history   []model.ScanRecord
		closed    []int // duration minutes of closed cycles
		openStart *time.Duration
	}{
		{
			name:    "empty",
			history: nil,
		},
		{
			name:      "single open start",
			history:   history(checkpoint.Start, time.Duration(0)),
			openStart: ptr(time.Duration(0)),
		},
		{
			name:    "final of day does not close",
			history: history(checkpoint.Start, time.Duration(0), checkpoint.FinalOfDay, 80*time.Minute, checkpoint.Terminal, 90*time.Minute),
			closed:  []int{90},
		},
		{
			name:    "later start replaces unclosed one",
			history: history(checkpoint.Start, time.Duration(0), checkpoint.Start, 30*time.Minute, checkpoint.Terminal, 100*time.Minute),
			closed:  []int{70},
		},
		{
			name: "two closed then open",
			history: history(
				checkpoint.Start, time.Duration(0), checkpoint.Terminal, 95*time.Minute,
				checkpoint.Start, 120*time.Minute, checkpoint.Terminal, 230*time.Minute,
				checkpoint.Start, 240*time.Minute,
			),
			closed:    []int{95, 110},
			openStart: ptr(240 * time.Minute),
		},
		{
			name:    "terminal without start",
			history: history(checkpoint.Terminal, time.Duration(0)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycles := Cycles(tt.history)

			var closed []int
			for i, c := range cycles {
				assert.Equal(t, i+1, c.Number)
				if c.Complete {
					closed = append(closed, *c.DurationMinutes)
				}
			}
			assert.Equal(t, tt.closed, closed)

			if tt.openStart == nil {
				if len(cycles) > 0 {
					assert.True(t, cycles[len(cycles)-1].Complete)
				}
				return
			}
			last := cycles[len(cycles)-1]
			assert.False(t, last.Complete)
			assert.Nil(t, last.End)
			assert.Nil(t, last.DurationMinutes)
			assert.Equal(t, t0.Add(*tt.openStart), last.Start)
		})
	}
}

func TestProgressionOf(t *testing.T) {
	assert.Equal(t, StateIdle, ProgressionOf(nil))
	assert.Equal(t, StateDescending, ProgressionOf(history(checkpoint.Start, time.Duration(0))))
	assert.Equal(t, StateCompletedCycle, ProgressionOf(history(checkpoint.Start, time.Duration(0), checkpoint.Terminal, time.Hour)))
	assert.Equal(t, StateCompletedDay, ProgressionOf(history(checkpoint.Terminal, time.Duration(0), checkpoint.FinalOfDay, time.Hour)))
}

func TestCompute_SortsAndFiltersHistory(t *testing.T) {
	h := history(checkpoint.Terminal, 95*time.Minute, checkpoint.Start, time.Duration(0))
	h = append(h, model.ScanRecord{ID: "other", ParticipantID: "p2", CheckpointID: checkpoint.Start, ScannedAt: t0.Add(3 * time.Hour)})

	st := Compute("p1", h, t0.Add(4*time.Hour), DefaultOptions())

	assert.Equal(t, StateCompletedCycle, st.State)
	require.Len(t, st.Cycles, 1)
	assert.Equal(t, 95, *st.Cycles[0].DurationMinutes)
	assert.Equal(t, checkpoint.Terminal, st.LastCheckpoint)
	assert.Equal(t, 145, *st.MinutesSinceLastScan)
	assert.Equal(t, checkpoint.Terminal, h[0].CheckpointID, "input must not be reordered")
}

func TestCompute_NoHistory(t *testing.T) {
	st := Compute("p1", nil, t0, DefaultOptions())

	assert.Equal(t, StateIdle, st.State)
	assert.NotNil(t, st.Cycles)
	assert.Empty(t, st.Cycles)
	assert.Nil(t, st.LastScanAt)
	assert.False(t, st.AtRisk)
}

func TestMinutes_Rounding(t *testing.T) {
	assert.Equal(t, 95, Minutes(95*time.Minute+29*time.Second))
	assert.Equal(t, 96, Minutes(95*time.Minute+30*time.Second))
}

func TestCompute_Golden(t *testing.T) {
	h := history(
		checkpoint.Start, time.Duration(0),
		checkpoint.Terminal, 95*time.Minute,
		checkpoint.Start, 120*time.Minute,
	)
	st := Compute("p1", h, t0.Add(3*time.Hour), DefaultOptions())

	testutil.AssertGoldenJSON(t, "status_descending", st)
}

func ptr[T any](v T) *T { return &v }
