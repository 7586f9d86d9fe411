// Package remote defines the contract with the authoritative remote store
// and provides an in-memory backend, an HTTP client and the HTTP server that
// exposes a backend to devices.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/yatra/internal/model"
)

// ErrUnavailable is returned when the remote cannot be reached or fails
// server-side. The sync engine treats it as "offline" and retries.
var ErrUnavailable = errors.New("remote unavailable")

// RejectedError reports that the remote refused a request. Retrying the same
// request will not help.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("remote rejected request (%d): %s", e.Status, e.Message)
}

// BulkResult reports which records of a bulk create were accepted.
type BulkResult struct {
	AcceptedCount int      `json:"accepted_count"`
	AcceptedIDs   []string `json:"accepted_ids"`
}

// Adapter is the authoritative remote store.
type Adapter interface {
	ListParticipants(ctx context.Context) ([]model.Participant, error)
	ListScanRecords(ctx context.Context) ([]model.ScanRecord, error)
	// CreateScanRecord is idempotent on rec.ID.
	CreateScanRecord(ctx context.Context, rec model.ScanRecord) (bool, error)
	BulkCreateScanRecords(ctx context.Context, recs []model.ScanRecord) (BulkResult, error)
	CreateCompletionEvent(ctx context.Context, ev model.CompletionEvent) error
}

// IsUnavailable reports whether err means the remote could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRejected reports whether err is a *RejectedError.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
