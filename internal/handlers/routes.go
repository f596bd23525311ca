package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"campusbus-backend/internal/models"
	"campusbus-backend/pkg/utils"
)

// GetRoutes lists every route in catalog order
func GetRoutes(catalog *models.RouteCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, catalog.Routes())
	}
}

// GetRoute returns the route served by one vehicle
func GetRoute(catalog *models.RouteCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vehicleID := chi.URLParam(r, "vehicleId")
		route, ok := catalog.Route(vehicleID)
		if !ok {
			utils.RespondError(w, http.StatusNotFound, "Route not found")
			return
		}
		utils.RespondJSON(w, http.StatusOK, route)
	}
}
