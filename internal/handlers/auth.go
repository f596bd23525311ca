package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"campusbus-backend/internal/config"
	"campusbus-backend/internal/middleware"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	OK    bool                   `json:"ok"`
	Token string                 `json:"token,omitempty"`
	User  *middleware.UserClaims `json:"user,omitempty"`
}

// Login checks the configured driver credential and issues a driver token
func Login(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		log.Printf("🔐 Login attempt for: %s", req.Username)

		if cfg.Auth.JWTSecret == "" || cfg.Auth.DriverPasswordHash == "" {
			log.Println("❌ Driver login not configured")
			writeLogin(w, http.StatusServiceUnavailable, LoginResponse{OK: false})
			return
		}

		if req.Username != cfg.Auth.DriverUsername {
			log.Printf("❌ Unknown user: %s", req.Username)
			writeLogin(w, http.StatusUnauthorized, LoginResponse{OK: false})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(cfg.Auth.DriverPasswordHash), []byte(req.Password)); err != nil {
			log.Printf("❌ Invalid password for: %s", req.Username)
			writeLogin(w, http.StatusUnauthorized, LoginResponse{OK: false})
			return
		}

		claims := middleware.UserClaims{UserID: req.Username, Role: middleware.RoleDriver}
		token, err := middleware.IssueToken(cfg.Auth.JWTSecret, claims, cfg.TokenTTL())
		if err != nil {
			log.Printf("❌ Failed to create token: %v", err)
			http.Error(w, "Failed to create token", http.StatusInternalServerError)
			return
		}

		log.Printf("✅ Login successful: %s (%s)", claims.UserID, claims.Role)
		writeLogin(w, http.StatusOK, LoginResponse{OK: true, Token: token, User: &claims})
	}
}

func writeLogin(w http.ResponseWriter, status int, resp LoginResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
