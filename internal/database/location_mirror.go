package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/models"
)

// LocationMirror persists broadcast writes to Postgres
type LocationMirror struct {
	db       *sqlx.DB
	keyspace broadcast.Keyspace
}

// NewLocationMirror creates a mirror for keys in keyspace
func NewLocationMirror(db *sqlx.DB, keyspace broadcast.Keyspace) *LocationMirror {
	return &LocationMirror{db: db, keyspace: keyspace}
}

func (m *LocationMirror) Name() string {
	return "postgres"
}

// MirrorPut upserts the current location and appends it to the history.
// Values that are not position reports are skipped.
func (m *LocationMirror) MirrorPut(ctx context.Context, key string, value json.RawMessage) error {
	vehicleID, ok := m.keyspace.VehicleID(key)
	if !ok {
		return nil
	}
	report, ok := models.ParsePositionReport(value)
	if !ok {
		return nil
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO vehicle_current_location (
			vehicle_id, latitude, longitude, timestamp, is_broadcasting, updated_at
		) VALUES ($1, $2, $3, $4, TRUE, EXTRACT(EPOCH FROM NOW())::BIGINT)
		ON CONFLICT (vehicle_id)
		DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			timestamp = EXCLUDED.timestamp,
			is_broadcasting = TRUE,
			updated_at = EXTRACT(EPOCH FROM NOW())::BIGINT
	`
	if _, err := tx.ExecContext(ctx, upsert, vehicleID, report.Latitude, report.Longitude, report.ObservedAtEpochMs); err != nil {
		return fmt.Errorf("failed to upsert location for %s: %w", vehicleID, err)
	}

	history := `INSERT INTO vehicle_location_history (vehicle_id, latitude, longitude, timestamp) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, history, vehicleID, report.Latitude, report.Longitude, report.ObservedAtEpochMs); err != nil {
		return fmt.Errorf("failed to append history for %s: %w", vehicleID, err)
	}

	return tx.Commit()
}

// MirrorDelete marks the vehicle as no longer broadcasting, keeping its last position
func (m *LocationMirror) MirrorDelete(ctx context.Context, key string) error {
	vehicleID, ok := m.keyspace.VehicleID(key)
	if !ok {
		return nil
	}

	query := `
		UPDATE vehicle_current_location
		SET is_broadcasting = FALSE,
		    updated_at = EXTRACT(EPOCH FROM NOW())::BIGINT
		WHERE vehicle_id = $1
	`
	if _, err := m.db.ExecContext(ctx, query, vehicleID); err != nil {
		return fmt.Errorf("failed to mark %s as not broadcasting: %w", vehicleID, err)
	}
	return nil
}
