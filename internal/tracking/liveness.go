package tracking

import "time"

const (
	// DefaultOnlineThreshold is how old the last report may be before a vehicle is offline
	DefaultOnlineThreshold = 15 * time.Second

	// DefaultPollInterval is how often liveness is re-evaluated while no reports arrive
	DefaultPollInterval = 2 * time.Second
)

// IsOnline reports whether the last report is recent enough for the vehicle to count as online.
// A nil timestamp means nothing was ever received.
//
// Reports dated in the future (publisher clock ahead of ours) produce a negative age and
// are treated as online. There is no clock correction.
func IsOnline(lastReportEpochMs *int64, nowEpochMs int64, thresholdMs int64) bool {
	if lastReportEpochMs == nil {
		return false
	}
	ts := *lastReportEpochMs
	if ts > nowEpochMs {
		return true
	}
	// now - ts overflows for timestamps far in the past
	if ts < nowEpochMs-thresholdMs {
		return false
	}
	return nowEpochMs-ts <= thresholdMs
}

// IsFutureDated reports whether a report timestamp is ahead of the local clock.
// Used to flag clock skew in status output.
func IsFutureDated(reportEpochMs int64, nowEpochMs int64) bool {
	return reportEpochMs > nowEpochMs
}
