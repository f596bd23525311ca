package handlers

import (
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/models"
	"campusbus-backend/pkg/utils"
)

// LocationRequest is a position published over HTTP. Timestamp defaults to server time.
type LocationRequest struct {
	VehicleID string   `json:"vehicle_id"`
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lng"`
	Timestamp *int64   `json:"timestamp,omitempty"`
}

// LocationPublisher owns the HTTP publishing path
type LocationPublisher struct {
	Writer   broadcast.Writer
	Keyspace broadcast.Keyspace
	Catalog  *models.RouteCatalog
	Now      func() time.Time
}

// PostLocation validates and publishes one position report
func (p *LocationPublisher) PostLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, ok := p.Catalog.Route(req.VehicleID); !ok {
		utils.RespondError(w, http.StatusNotFound, "Unknown vehicle")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		utils.RespondError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	report := models.PositionReport{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if req.Timestamp != nil {
		report.ObservedAtEpochMs = *req.Timestamp
	} else {
		report.ObservedAtEpochMs = p.now().UnixMilli()
	}
	if !report.Valid() || math.Abs(report.Latitude) > 90 || math.Abs(report.Longitude) > 180 {
		utils.RespondError(w, http.StatusBadRequest, "Invalid coordinates")
		return
	}

	key := p.Keyspace.Key(req.VehicleID)
	if err := p.Writer.Put(r.Context(), key, report); err != nil {
		log.Printf("❌ Failed to publish location for %s: %v", req.VehicleID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to publish location")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"key":     key,
		"report":  report,
	})
}

// DeleteLocation stops broadcasting for a vehicle
func (p *LocationPublisher) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "vehicleId")
	if _, ok := p.Catalog.Route(vehicleID); !ok {
		utils.RespondError(w, http.StatusNotFound, "Unknown vehicle")
		return
	}

	if err := p.Writer.Delete(r.Context(), p.Keyspace.Key(vehicleID)); err != nil {
		log.Printf("❌ Failed to remove location for %s: %v", vehicleID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to remove location")
		return
	}
	log.Printf("🔴 Location removed for %s", vehicleID)
	w.WriteHeader(http.StatusNoContent)
}

func (p *LocationPublisher) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
