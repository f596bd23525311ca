package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/config"
	"campusbus-backend/internal/database"
	"campusbus-backend/internal/handlers"
	"campusbus-backend/internal/middleware"
	"campusbus-backend/internal/services"
	"campusbus-backend/internal/websocket"
	"campusbus-backend/internal/wire"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 CAMPUSBUS BACKEND SERVER STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	log.Println("📂 Loading environment variables...")
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables from system")
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fatal("Configuration is invalid", err)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		fatal("Route catalog is invalid", err)
	}
	log.Printf("✅ %d routes loaded: %v", len(catalog.Routes()), catalog.VehicleIDs())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := broadcast.NewStore()
	keyspace := cfg.Keyspace()

	// Postgres is optional; without it the last-known endpoint is not served
	var db *sqlx.DB
	if cfg.Database.URL != "" {
		log.Println("🔌 Connecting to database...")
		db, err = database.Connect(cfg.Database.URL)
		if err != nil {
			fatal("Database connection failed", err)
		}
		defer db.Close()
		log.Println("✅ Database connection established")

		log.Println("🔄 Running database migrations...")
		if err := database.Migrate(db); err != nil {
			fatal("Database migrations failed", err)
		}
		log.Println("✅ Database migrations completed")
		store.AddMirror(database.NewLocationMirror(db, keyspace))
	} else {
		log.Println("⚠️  DATABASE_URL not set, location history disabled")
	}

	var fcmService *services.FCMService
	app, err := services.NewFirebaseApp(ctx, services.FirebaseCredentials{
		Base64:      cfg.Firebase.CredentialsBase64,
		File:        cfg.Firebase.CredentialsFile,
		DatabaseURL: cfg.Firebase.DatabaseURL,
	})
	switch {
	case errors.Is(err, services.ErrNoCredentials):
		log.Println("⚠️  Firebase credentials not set, mirroring and push notifications disabled")
	case err != nil:
		log.Printf("⚠️  Failed to initialize Firebase: %v (mirroring and push notifications disabled)", err)
	default:
		if cfg.Firebase.DatabaseURL != "" {
			mirror, err := services.NewFirebaseMirror(ctx, app)
			if err != nil {
				log.Printf("⚠️  Firebase Realtime Database unavailable: %v", err)
			} else {
				store.AddMirror(mirror)
				log.Println("✅ Firebase Realtime Database mirror enabled")
			}
		}
		if cfg.Firebase.FCMEnabled {
			fcmService, err = services.NewFCMService(ctx, app)
			if err != nil {
				log.Printf("⚠️  Failed to initialize FCM: %v (push notifications disabled)", err)
				fcmService = nil
			} else {
				log.Println("✅ Firebase Cloud Messaging initialized")
			}
		}
	}

	if cfg.AMQP.URL != "" {
		rabbit, err := services.NewRabbitMirror(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Printf("⚠️  RabbitMQ unavailable: %v (location events disabled)", err)
		} else {
			defer rabbit.Close()
			store.AddMirror(rabbit)
			log.Printf("✅ RabbitMQ mirror publishing to exchange %s", cfg.AMQP.Exchange)
		}
	}

	wsHub := websocket.NewHub(store, keyspace, cfg.Auth.JWTSecret)
	go wsHub.Run(ctx.Done())
	log.Println("✅ WebSocket hub started")

	monitor := services.NewFleetMonitor(store, catalog, services.FleetMonitorOptions{
		Keyspace:                  keyspace,
		OnlineThreshold:           cfg.OnlineThreshold(),
		ActiveStopThresholdMeters: cfg.Tracking.ActiveStopThresholdMeters,
		PollInterval:              cfg.PollInterval(),
		OnArrival: func(a services.Arrival) {
			wsHub.BroadcastAll(websocket.StopArrivalFrame(wire.StopArrival{
				VehicleID:      a.VehicleID,
				StopID:         a.Match.Stop.ID,
				StopName:       a.Match.Stop.DisplayName,
				DistanceMeters: a.Match.DistanceMeters,
			}))
			if fcmService != nil {
				sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := fcmService.SendStopArrival(sendCtx, a.VehicleID, a.Match); err != nil {
					log.Printf("⚠️  Failed to send arrival notification: %v", err)
				}
			}
		},
	})
	if err := monitor.Start(ctx); err != nil {
		fatal("Fleet monitor failed to start", err)
	}
	log.Println("✅ Fleet monitor started")

	publisher := &handlers.LocationPublisher{
		Writer:   store.Connect(),
		Keyspace: keyspace,
		Catalog:  catalog,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Get("/ws", websocket.HandleWebSocket(wsHub))
	r.Get("/gtfs-rt/vehicle-positions", handlers.GetVehiclePositionsFeed(monitor))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", handlers.Login(cfg))

		r.Get("/routes", handlers.GetRoutes(catalog))
		r.Get("/routes/{vehicleId}", handlers.GetRoute(catalog))

		r.Get("/realtime/status", handlers.GetRealtimeStatus(wsHub))

		r.Get("/vehicles", handlers.GetVehicles(monitor))
		r.Get("/vehicles/{vehicleId}/status", handlers.GetVehicleStatus(monitor))
		if db != nil {
			r.Get("/vehicles/{vehicleId}/last-known", handlers.GetLastKnownLocation(db))
		}

		// Driver routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Auth.JWTSecret))
			r.Use(middleware.RequireRole(middleware.RoleDriver))

			r.Post("/driver/location", publisher.PostLocation)
			r.Delete("/driver/location/{vehicleId}", publisher.DeleteLocation)
		})
	})

	srv := &http.Server{Addr: cfg.Addr(), Handler: r}

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("✅ ALL INITIALIZATION COMPLETE")
	log.Printf("🚀 Server starting on http://localhost%s", cfg.Addr())
	log.Println("🔌 Ready to accept requests!")
	log.Println("═══════════════════════════════════════════════════════════════════")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			fatal("Server failed to start", err)
		}
	case <-ctx.Done():
		log.Println("🛑 Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v", err)
	}
	monitor.Stop()
	store.Close(shutdownCtx)
	log.Println("👋 Server stopped")
}

func fatal(what string, err error) {
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("❌ FATAL ERROR: %s", what)
	log.Printf("   Error: %v", err)
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Fatal(err)
}
