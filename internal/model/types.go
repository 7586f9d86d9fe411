package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/roach88/yatra/internal/checkpoint"
)

// Participant is a registered pilgrim.
type Participant struct {
	ID               string `json:"id" yaml:"id"`
	BadgeNumber      int    `json:"badge_number" yaml:"badge_number"`
	Name             string `json:"name" yaml:"name"`
	QRToken          string `json:"qr_token" yaml:"qr_token"`
	Age              *int   `json:"age,omitempty" yaml:"age,omitempty"`
	BloodGroup       string `json:"blood_group,omitempty" yaml:"blood_group,omitempty"`
	EmergencyContact string `json:"emergency_contact,omitempty" yaml:"emergency_contact,omitempty"`
	SelfContact      string `json:"self_contact,omitempty" yaml:"self_contact,omitempty"`
	PhotoURL         string `json:"photo_url,omitempty" yaml:"photo_url,omitempty"`
}

// ScanRecord is one checkpoint visit.
type ScanRecord struct {
	ID            string        `json:"id"`
	ParticipantID string        `json:"participant_id"`
	CheckpointID  checkpoint.ID `json:"checkpoint_id"`
	DeviceID      string        `json:"device_id"`
	VolunteerID   string        `json:"volunteer_id,omitempty"`
	ScannedAt     time.Time     `json:"scanned_at"`
	Synced        bool          `json:"synced"`
}

// CompletionEvent reports a closed cycle to the remote store.
type CompletionEvent struct {
	ParticipantID   string    `json:"participant_id"`
	CycleNumber     int       `json:"cycle_number"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

// NewScanID returns a fresh, time-sortable record identifier.
//
// Panics if UUID generation fails (should never happen in practice).
func NewScanID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewDeviceID returns a fresh device identifier.
func NewDeviceID() string {
	return "device_" + uuid.NewString()
}

// IDSet collects the IDs of records.
func IDSet(records []ScanRecord) map[string]struct{} {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[r.ID] = struct{}{}
	}
	return set
}
