package session

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyVehicleID is returned when starting or tracking without a vehicle id
	ErrEmptyVehicleID = errors.New("session: vehicle id is required")

	// ErrAlreadyActive is returned when starting a broadcaster that is already starting or sharing
	ErrAlreadyActive = errors.New("session: broadcast already active")

	// ErrStopped is returned by Start when Stop interrupted it
	ErrStopped = errors.New("session: stopped before start completed")

	// ErrStreamClosed is returned by ReportStream.Next after Close
	ErrStreamClosed = errors.New("session: report stream closed")
)

// SyncError is a broadcast service failure. It is kept apart from position errors
// so callers can tell "no location" from "location not published".
type SyncError struct {
	Op  string
	Key string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failure: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsSyncError reports whether err is a broadcast service failure
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}
