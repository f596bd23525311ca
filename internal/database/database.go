package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"campusbus-backend/internal/models"
)

func Connect(dbURL string) (*sqlx.DB, error) {
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Println("🔌 DATABASE CONNECTION ATTEMPT")
	log.Printf("   📍 Database URL length: %d characters", len(dbURL))
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Printf("❌ DATABASE CONNECTION FAILED: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.Printf("❌ DATABASE PING FAILED: %v", err)
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ DATABASE CONNECTION SUCCESSFUL")
	return db, nil
}

func Migrate(db *sqlx.DB) error {
	migrations := []string{
		// One row per vehicle, updated via UPSERT. The row survives the broadcast
		// key being removed so the last known position stays queryable.
		`CREATE TABLE IF NOT EXISTS vehicle_current_location (
			vehicle_id TEXT PRIMARY KEY,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			timestamp BIGINT NOT NULL,
			is_broadcasting BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_vehicle_current_location_is_broadcasting ON vehicle_current_location(is_broadcasting)`,

		// Append-only trail of every published report
		`CREATE TABLE IF NOT EXISTS vehicle_location_history (
			id BIGSERIAL PRIMARY KEY,
			vehicle_id TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			timestamp BIGINT NOT NULL,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_vehicle_location_history_vehicle_ts ON vehicle_location_history(vehicle_id, timestamp)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Println("✓ Database migrations completed")
	return nil
}

// GetVehicleLocation returns the last persisted position for vehicleID
func GetVehicleLocation(db *sqlx.DB, vehicleID string) (*models.VehicleLocation, error) {
	var loc models.VehicleLocation
	query := `SELECT vehicle_id, latitude, longitude, timestamp, is_broadcasting, updated_at
		FROM vehicle_current_location WHERE vehicle_id = $1`
	if err := db.Get(&loc, query, vehicleID); err != nil {
		return nil, err
	}
	return &loc, nil
}

// SummarizeLocations counts persisted vehicles and history rows
func SummarizeLocations(db *sqlx.DB) (models.LocationSummary, error) {
	var s models.LocationSummary
	query := `
		SELECT
			(SELECT COUNT(*) FROM vehicle_current_location) AS total_vehicles,
			(SELECT COUNT(*) FROM vehicle_current_location WHERE is_broadcasting) AS broadcasting,
			(SELECT COUNT(*) FROM vehicle_location_history) AS history_records
	`
	err := db.Get(&s, query)
	return s, err
}
