package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCheckpoint is returned for a checkpoint ID outside the
	// configured set.
	ErrUnknownCheckpoint = errors.New("unknown checkpoint")

	// ErrParticipantNotFound is returned when a scanned token matches no
	// cached participant. Retrying will not help until the roster changes.
	ErrParticipantNotFound = errors.New("participant not found")
)

// LocalPersistenceError reports that a scan could not be durably stored.
// Nothing was written when it is returned.
type LocalPersistenceError struct {
	Op  string
	Err error
}

func (e *LocalPersistenceError) Error() string {
	return fmt.Sprintf("%s: local persistence failed: %v", e.Op, e.Err)
}

func (e *LocalPersistenceError) Unwrap() error {
	return e.Err
}

// IsLocalPersistence returns true if err is a *LocalPersistenceError.
// Uses errors.As to handle wrapped errors.
func IsLocalPersistence(err error) bool {
	var le *LocalPersistenceError
	return errors.As(err, &le)
}
