package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/yatra/internal/checkpoint"
)

func TestMeta_GetSet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMeta(ctx, "k", "v1"))
	require.NoError(t, s.SetMeta(ctx, "k", "v2"))

	v, ok, err := s.GetMeta(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestDeviceID_CreatedOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id1, err := s.DeviceID(ctx)
	require.NoError(t, err)
	id2, err := s.DeviceID(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, id1)
	assert.Equal(t, id1, id2)
}

func TestLastSyncAt_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LastSyncAt(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	at := t0.Add(1234 * time.Millisecond)
	require.NoError(t, s.SetLastSyncAt(ctx, at))

	got, ok, err := s.LastSyncAt(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
}

func TestSelectedCheckpoint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cp, err := s.SelectedCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Start, cp, "defaults to the start checkpoint")

	require.NoError(t, s.SetSelectedCheckpoint(ctx, checkpoint.FinalOfDay))
	cp, err = s.SelectedCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, checkpoint.FinalOfDay, cp)

	assert.Error(t, s.SetSelectedCheckpoint(ctx, checkpoint.ID(42)))
}

func TestVolunteerID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	v, err := s.VolunteerID(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetVolunteerID(ctx, "vol-3"))
	v, err = s.VolunteerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "vol-3", v)
}
