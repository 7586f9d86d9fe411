package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/model"
)

var t0 = time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)

func scan(id string, at time.Time) model.ScanRecord {
	return model.ScanRecord{ID: id, ParticipantID: "p1", CheckpointID: checkpoint.Start, DeviceID: "d1", ScannedAt: at}
}

func TestMemory_CreateIsIdempotent(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	ok, err := m.CreateScanRecord(ctx, scan("a", t0))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.CreateScanRecord(ctx, scan("a", t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, ok)

	recs, err := m.ListScanRecords(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, t0, recs[0].ScannedAt, "first write wins")
	assert.True(t, recs[0].Synced)
}

func TestMemory_BulkWithRejections(t *testing.T) {
	m := NewMemory(nil)
	m.RejectIDs("b")

	res, err := m.BulkCreateScanRecords(context.Background(), []model.ScanRecord{scan("a", t0), scan("b", t0), scan("c", t0)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.AcceptedCount)
	assert.Equal(t, []string{"a", "c"}, res.AcceptedIDs)

	_, err = m.CreateScanRecord(context.Background(), scan("b", t0))
	assert.True(t, IsRejected(err))
}

func TestMemory_ListNewestFirst(t *testing.T) {
	m := NewMemory(nil)
	m.PutScan(scan("old", t0))
	m.PutScan(scan("new", t0.Add(time.Minute)))

	recs, err := m.ListScanRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "new", recs[0].ID)
}

func TestMemory_FaultInjection(t *testing.T) {
	m := NewMemory([]model.Participant{{ID: "p1"}})
	ctx := context.Background()

	m.FailNext(2, ErrUnavailable)
	_, err := m.ListParticipants(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = m.ListScanRecords(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	roster, err := m.ListParticipants(ctx)
	require.NoError(t, err)
	assert.Len(t, roster, 1)

	m.FailWith(ErrUnavailable)
	assert.ErrorIs(t, m.CreateCompletionEvent(ctx, model.CompletionEvent{}), ErrUnavailable)
	m.FailWith(nil)
	assert.NoError(t, m.CreateCompletionEvent(ctx, model.CompletionEvent{ParticipantID: "p1"}))

	assert.Len(t, m.Completions(), 1)
	assert.Equal(t, 2, m.Calls("ListParticipants"))
	assert.Equal(t, 2, m.Calls("CreateCompletionEvent"))
}
