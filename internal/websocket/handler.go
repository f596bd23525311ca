package websocket

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campusbus-backend/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; CORS is enforced on the HTTP API
		return true
	},
}

// HandleWebSocket upgrades HTTP connection to WebSocket. A driver token in the
// token query parameter grants write access; without one the client can only subscribe.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.UserClaims{UserID: "anonymous-" + uuid.NewString()[:8], Role: middleware.RoleRider}

		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			var err error
			claims, err = middleware.ParseToken(hub.secret, tokenString)
			if err != nil {
				log.Printf("❌ Invalid token in query parameter: %v", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("❌ WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(claims, conn, hub)
		hub.register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
