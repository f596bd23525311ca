package models

import (
	"encoding/json"
	"math"

	"campusbus-backend/internal/geo"
)

// PositionReport is the record stored at a vehicle's broadcast key.
// The wire schema is { lat, lng, timestamp } with timestamp in epoch milliseconds.
type PositionReport struct {
	Latitude          float64 `json:"lat"`
	Longitude         float64 `json:"lng"`
	ObservedAtEpochMs int64   `json:"timestamp"`
}

// Coordinate returns the reported position
func (r PositionReport) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: r.Latitude, Lng: r.Longitude}
}

// Valid reports whether the report carries a finite position
func (r PositionReport) Valid() bool {
	return r.Coordinate().IsFinite()
}

// MaxSafeTimestamp bounds accepted timestamps to integers a float64 holds exactly
const MaxSafeTimestamp = 1 << 53

// ParsePositionReport decodes a raw broadcast payload.
// Anything that is not an object with finite numeric lat, lng and timestamp
// yields ok=false; callers treat that the same as an absent key.
func ParsePositionReport(raw []byte) (*PositionReport, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return nil, false
	}

	lat, ok := finiteNumber(data["lat"])
	if !ok {
		return nil, false
	}
	lng, ok := finiteNumber(data["lng"])
	if !ok {
		return nil, false
	}
	ts, ok := finiteNumber(data["timestamp"])
	if !ok || math.Abs(ts) > MaxSafeTimestamp {
		return nil, false
	}

	return &PositionReport{
		Latitude:          lat,
		Longitude:         lng,
		ObservedAtEpochMs: int64(ts),
	}, true
}

func finiteNumber(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
