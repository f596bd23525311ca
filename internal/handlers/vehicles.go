package handlers

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"

	"campusbus-backend/internal/database"
	"campusbus-backend/internal/services"
	"campusbus-backend/pkg/utils"
)

// FleetStatus is the read side of the fleet monitor
type FleetStatus interface {
	Status(vehicleID string) (services.VehicleStatus, bool)
	Statuses() []services.VehicleStatus
}

// GetVehicles lists the derived state of every vehicle
func GetVehicles(fleet FleetStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, fleet.Statuses())
	}
}

// GetVehicleStatus returns online state and active stop for one vehicle
func GetVehicleStatus(fleet FleetStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vehicleID := chi.URLParam(r, "vehicleId")
		st, ok := fleet.Status(vehicleID)
		if !ok {
			utils.RespondError(w, http.StatusNotFound, "Vehicle not found")
			return
		}
		utils.RespondJSON(w, http.StatusOK, st)
	}
}

// GetLastKnownLocation returns the last persisted position, which outlives the broadcast key
func GetLastKnownLocation(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vehicleID := chi.URLParam(r, "vehicleId")
		loc, err := database.GetVehicleLocation(db, vehicleID)
		if errors.Is(err, sql.ErrNoRows) {
			utils.RespondError(w, http.StatusNotFound, "No location recorded")
			return
		}
		if err != nil {
			log.Printf("❌ Error loading last location for %s: %v", vehicleID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to load location")
			return
		}
		utils.RespondJSON(w, http.StatusOK, loc)
	}
}
