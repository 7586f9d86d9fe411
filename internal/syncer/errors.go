package syncer

import (
	"errors"
	"fmt"
)

// ErrRunning is returned when a cycle is requested while another caller
// already owns the engine.
var ErrRunning = errors.New("sync engine already running")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("sync engine closed")

// PartialSyncError reports a push where the remote accepted only some of the
// pending records. The accepted ones are already dequeued.
type PartialSyncError struct {
	Accepted int
	Total    int
	// Remaining holds the IDs still pending.
	Remaining []string
}

func (e *PartialSyncError) Error() string {
	return fmt.Sprintf("partial sync: %d of %d records accepted", e.Accepted, e.Total)
}

// IsPartialSync returns true if err is a *PartialSyncError.
// Uses errors.As to handle wrapped errors.
func IsPartialSync(err error) bool {
	var pe *PartialSyncError
	return errors.As(err, &pe)
}
