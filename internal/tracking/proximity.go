package tracking

import (
	"campusbus-backend/internal/geo"
	"campusbus-backend/internal/models"
)

// DefaultActiveStopThresholdMeters is the radius inside which the nearest stop becomes active
const DefaultActiveStopThresholdMeters = 500.0

// StopMatch is the stop nearest to a position and its distance
type StopMatch struct {
	Stop           models.Stop `json:"stop"`
	DistanceMeters float64     `json:"distance_meters"`
}

// NearestStop scans stops in order and returns the closest one if it lies within thresholdMeters.
// The first stop wins on exact ties. A nil or non-finite position, or an empty route, gives nil.
func NearestStop(position *geo.Coordinate, stops []models.Stop, thresholdMeters float64) *StopMatch {
	if position == nil || len(stops) == 0 || !position.IsFinite() {
		return nil
	}

	closest := -1
	minDistance := 0.0

	for i, stop := range stops {
		d := geo.DistanceMeters(*position, stop.Coordinates)
		if closest == -1 || d < minDistance {
			closest = i
			minDistance = d
		}
	}

	if closest == -1 || !(minDistance <= thresholdMeters) {
		return nil
	}

	return &StopMatch{Stop: stops[closest], DistanceMeters: minDistance}
}
