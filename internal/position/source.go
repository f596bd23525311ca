package position

import (
	"fmt"
	"time"

	"campusbus-backend/internal/geo"
)

// DefaultFixTimeout is how long a watch waits for a fix before reporting a timeout
const DefaultFixTimeout = 10 * time.Second

// Fix is one position reading from a device
type Fix struct {
	Coordinate geo.Coordinate
	Accuracy   float64 // meters, 0 when unknown
	At         time.Time
}

// WatchOptions tune a continuous watch
type WatchOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration // 0 never returns a cached fix
}

// DefaultWatchOptions is continuous high-accuracy tracking, no cached fixes, 10s per fix
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		HighAccuracy: true,
		Timeout:      DefaultFixTimeout,
		MaximumAge:   0,
	}
}

// Watch is a handle to a running watch
type Watch interface {
	// Cancel stops the watch. A callback already running may still complete.
	Cancel()
}

// Source is a device position provider
type Source interface {
	Watch(onFix func(Fix), onError func(error), opts WatchOptions) (Watch, error)
}

// ErrorCode classifies position failures
type ErrorCode int

const (
	PermissionDenied ErrorCode = iota + 1
	PositionUnavailable
	Timeout
)

func (c ErrorCode) String() string {
	switch c {
	case PermissionDenied:
		return "permission_denied"
	case PositionUnavailable:
		return "position_unavailable"
	case Timeout:
		return "timeout"
	}
	return "unknown"
}

// Error is a classified position failure
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("position: %s", e.Code)
	}
	return fmt.Sprintf("position: %s: %s", e.Code, e.Message)
}

// Is matches errors by code so errors.Is(err, ErrTimeout) works on wrapped values
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Retryable reports whether the user can retry without granting new consent
func (e *Error) Retryable() bool {
	return e.Code != PermissionDenied
}

var (
	ErrPermissionDenied    = &Error{Code: PermissionDenied, Message: "location permission denied"}
	ErrPositionUnavailable = &Error{Code: PositionUnavailable, Message: "position unavailable"}
	ErrTimeout             = &Error{Code: Timeout, Message: "location request timed out"}
)
