package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/model"
)

var t0 = time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestScan creates an unsynced scan with minimal required fields.
func createTestScan(id, participantID string, cp checkpoint.ID, at time.Time) model.ScanRecord {
	return model.ScanRecord{
		ID:            id,
		ParticipantID: participantID,
		CheckpointID:  cp,
		DeviceID:      "device-test",
		ScannedAt:     at,
	}
}
