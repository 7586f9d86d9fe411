package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/derive"
	"github.com/roach88/yatra/internal/model"
	"github.com/roach88/yatra/internal/store"
)

var t0 = time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)

var asha = model.Participant{ID: "p1", BadgeNumber: 12, Name: "Asha", QRToken: "PALITANA_YATRA_12"}

type recordingPusher struct {
	mu          sync.Mutex
	pushed      []model.ScanRecord
	completions []model.CompletionEvent
}

func (p *recordingPusher) Push(rec model.ScanRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, rec)
}

func (p *recordingPusher) NotifyCompletion(ev model.CompletionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completions = append(p.completions, ev)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.ReplaceRoster(context.Background(), []model.Participant{
		asha,
		{ID: "p2", BadgeNumber: 7, Name: "Bhavin", QRToken: "PALITANA_YATRA_7"},
	}))
	return st
}

func TestAddScan_CompletesCycle(t *testing.T) {
	st := newTestStore(t)
	pusher := &recordingPusher{}
	in := New(st, WithPusher(pusher))
	ctx := context.Background()

	start, err := in.AddScan(ctx, asha, checkpoint.Start, t0)
	require.NoError(t, err)
	assert.False(t, start.Duplicate)
	assert.Equal(t, KindDescentStarted, start.Kind)
	assert.Equal(t, "Descent started from Motisha Tuk", start.Message)
	assert.Nil(t, start.CycleDuration)

	end, err := in.AddScan(ctx, asha, checkpoint.Terminal, t0.Add(95*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, KindCycleCompleted, end.Kind)
	assert.Equal(t, 1, end.CompletionCount)
	require.NotNil(t, end.CycleDuration)
	assert.Equal(t, 95*time.Minute, *end.CycleDuration)
	require.NotNil(t, end.CycleDurationMinutes)
	assert.Equal(t, 95, *end.CycleDurationMinutes)
	assert.Equal(t, derive.StateCompletedCycle, end.Status.State)
	assert.False(t, end.Status.AtRisk)
	assert.Equal(t, "Jatra #1 completed in 95 min at Gheti!", end.Message)
	assert.False(t, end.SaatJatra)

	require.Len(t, end.Status.Cycles, 1)
	assert.True(t, end.Status.Cycles[0].Complete)

	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	assert.Len(t, pusher.pushed, 2)
	require.Len(t, pusher.completions, 1)
	assert.Equal(t, model.CompletionEvent{
		ParticipantID:   "p1",
		CycleNumber:     1,
		Start:           t0,
		End:             t0.Add(95 * time.Minute),
		DurationMinutes: 95,
	}, pusher.completions[0])
}

func TestAddScan_StoresLogAndQueue(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SetVolunteerID(ctx, "vol-9"))
	in := New(st)

	res, err := in.AddScan(ctx, asha, checkpoint.Start, t0)
	require.NoError(t, err)
	require.NotNil(t, res.Record)

	deviceID, err := st.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, deviceID, res.Record.DeviceID)
	assert.Equal(t, "vol-9", res.Record.VolunteerID)
	assert.False(t, res.Record.Synced)
	assert.Equal(t, t0, res.Record.ScannedAt)

	log, err := st.ReadScanLog(ctx)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, *res.Record, log[0])

	pending, err := st.ReadPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.Record.ID, pending[0].ID)
}

func TestAddScan_AtRiskAfterThreshold(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	in := New(st)

	_, err := in.AddScan(ctx, asha, checkpoint.Start, t0)
	require.NoError(t, err)

	history, err := st.ParticipantHistory(ctx, asha.ID)
	require.NoError(t, err)
	assert.True(t, derive.Compute(asha.ID, history, t0.Add(7*time.Hour), derive.DefaultOptions()).AtRisk)
	assert.False(t, derive.Compute(asha.ID, history, t0.Add(5*time.Hour), derive.DefaultOptions()).AtRisk)
}

func TestAddScan_Duplicate(t *testing.T) {
	st := newTestStore(t)
	pusher := &recordingPusher{}
	in := New(st, WithPusher(pusher))
	ctx := context.Background()

	_, err := in.AddScan(ctx, asha, checkpoint.Start, t0)
	require.NoError(t, err)

	dup, err := in.AddScan(ctx, asha, checkpoint.Start, t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.True(t, dup.Duplicate)
	assert.Nil(t, dup.Record)
	assert.Equal(t, "Already scanned at this checkpoint within 10 minutes", dup.Message)

	log, err := st.ReadScanLog(ctx)
	require.NoError(t, err)
	assert.Len(t, log, 1)
	n, err := st.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, pusher.pushed, 1)

	// Other checkpoint, other participant and after the window are not duplicates.
	res, err := in.AddScan(ctx, asha, checkpoint.FinalOfDay, t0.Add(4*time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, KindDayComplete, res.Kind)
	assert.Equal(t, "Final descent recorded at Sagaal Pol - Day complete!", res.Message)

	res, err = in.AddScan(ctx, model.Participant{ID: "p2"}, checkpoint.Start, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	res, err = in.AddScan(ctx, asha, checkpoint.Start, t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestAddScan_DuplicateOfLaterRecord(t *testing.T) {
	st := newTestStore(t)
	in := New(st)
	ctx := context.Background()

	_, err := in.AddScan(ctx, asha, checkpoint.Start, t0.Add(5*time.Minute))
	require.NoError(t, err)

	res, err := in.AddScan(ctx, asha, checkpoint.Start, t0)
	require.NoError(t, err)
	assert.True(t, res.Duplicate, "backdated scan inside the window is a duplicate")
}

func TestAddScan_CustomWindow(t *testing.T) {
	st := newTestStore(t)
	in := New(st, WithDuplicateWindow(time.Minute))
	ctx := context.Background()

	_, err := in.AddScan(ctx, asha, checkpoint.Start, t0)
	require.NoError(t, err)
	res, err := in.AddScan(ctx, asha, checkpoint.Start, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
}

func TestAddScan_UnknownCheckpoint(t *testing.T) {
	in := New(newTestStore(t))

	_, err := in.AddScan(context.Background(), asha, checkpoint.ID(9), t0)
	assert.ErrorIs(t, err, ErrUnknownCheckpoint)
}

func TestAddScan_TerminalWithoutStart(t *testing.T) {
	st := newTestStore(t)
	pusher := &recordingPusher{}
	in := New(st, WithPusher(pusher))

	res, err := in.AddScan(context.Background(), asha, checkpoint.Terminal, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CompletionCount)
	assert.Nil(t, res.CycleDuration)
	assert.Equal(t, "Jatra #1 completed at Gheti!", res.Message)
	assert.Empty(t, pusher.completions, "no completion event without a start")
}

func TestAddScan_SaatJatra(t *testing.T) {
	st := newTestStore(t)
	in := New(st)
	ctx := context.Background()

	var last Result
	at := t0
	for i := 0; i < checkpoint.SaatJatraTotal; i++ {
		_, err := in.AddScan(ctx, asha, checkpoint.Start, at)
		require.NoError(t, err)
		at = at.Add(90 * time.Minute)
		last, err = in.AddScan(ctx, asha, checkpoint.Terminal, at)
		require.NoError(t, err)
		at = at.Add(30 * time.Minute)
	}

	assert.Equal(t, 7, last.CompletionCount)
	assert.True(t, last.SaatJatra)
	assert.Equal(t, "Jatra #7 completed in 90 min at Gheti! Saat Jatra complete!", last.Message)
}

func TestAddScan_PersistenceFailure(t *testing.T) {
	st := newTestStore(t)
	in := New(st)
	ctx := context.Background()

	_, err := in.AddScan(ctx, asha, checkpoint.Start, t0)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = in.AddScan(ctx, asha, checkpoint.Terminal, t0.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, IsLocalPersistence(err))
}

func TestResolve(t *testing.T) {
	in := New(newTestStore(t))
	ctx := context.Background()

	tests := []struct {
		token string
		want  string
	}{
		{"PALITANA_YATRA_12", "p1"},
		{"12", "p1"},
		{"  PALITANA_YATRA_7 ", "p2"},
		{"7", "p2"},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			p, err := in.Resolve(ctx, tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ID)
		})
	}

	_, err := in.Resolve(ctx, "PALITANA_YATRA_999")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
	_, err = in.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestScanToken(t *testing.T) {
	in := New(newTestStore(t))

	res, err := in.ScanToken(context.Background(), "PALITANA_YATRA_12", checkpoint.Start, t0)
	require.NoError(t, err)
	assert.Equal(t, "Asha", res.Participant.Name)
	assert.Equal(t, "p1", res.Record.ParticipantID)
}
