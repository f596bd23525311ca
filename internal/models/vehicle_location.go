package models

// VehicleLocation is the last persisted position of a vehicle
type VehicleLocation struct {
	VehicleID      string  `json:"vehicle_id" db:"vehicle_id"`
	Latitude       float64 `json:"latitude" db:"latitude"`
	Longitude      float64 `json:"longitude" db:"longitude"`
	Timestamp      int64   `json:"timestamp" db:"timestamp"`             // Publisher clock, epoch ms
	IsBroadcasting bool    `json:"is_broadcasting" db:"is_broadcasting"` // False once the broadcast key is removed
	UpdatedAt      int64   `json:"updated_at" db:"updated_at"`           // Server clock, epoch seconds
}

// Report returns the location as a position report
func (l VehicleLocation) Report() PositionReport {
	return PositionReport{Latitude: l.Latitude, Longitude: l.Longitude, ObservedAtEpochMs: l.Timestamp}
}

// LocationSummary aggregates the persisted locations
type LocationSummary struct {
	TotalVehicles  int `db:"total_vehicles"`
	Broadcasting   int `db:"broadcasting"`
	HistoryRecords int `db:"history_records"`
}
