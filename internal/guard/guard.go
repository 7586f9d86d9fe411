// Package guard decides whether a new scan repeats one already recorded on
// this device.
package guard

import (
	"time"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/model"
)

// DefaultWindow is the duplicate-suppression window.
const DefaultWindow = 10 * time.Minute

// IsDuplicate reports whether history holds a record for the same
// participant and checkpoint whose own timestamp lies strictly within window
// of now, on either side. Records later than now count too, so backdated and
// bulk-imported scans are caught regardless of arrival order.
func IsDuplicate(history []model.ScanRecord, participantID string, checkpointID checkpoint.ID, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	for _, r := range history {
		if r.ParticipantID != participantID || r.CheckpointID != checkpointID {
			continue
		}
		d := now.Sub(r.ScannedAt)
		if d < 0 {
			d = -d
		}
		if d < window {
			return true
		}
	}
	return false
}
