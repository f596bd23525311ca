package handlers

import (
	"net/http"

	"campusbus-backend/pkg/utils"
)

// ClientStats reports the websocket connections currently held by the hub
type ClientStats interface {
	GetClientCount() int
	GetConnectedClientIDs() []string
}

type RealtimeStatus struct {
	ConnectedClients int      `json:"connected_clients"`
	ClientIDs        []string `json:"client_ids"`
}

// GetRealtimeStatus lists connected websocket clients
func GetRealtimeStatus(stats ClientStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := stats.GetConnectedClientIDs()
		if ids == nil {
			ids = []string{}
		}
		utils.RespondJSON(w, http.StatusOK, RealtimeStatus{
			ConnectedClients: stats.GetClientCount(),
			ClientIDs:        ids,
		})
	}
}
