package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"campusbus-backend/internal/config"
	"campusbus-backend/internal/position"
	"campusbus-backend/internal/session"
	"campusbus-backend/internal/wsclient"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "backend base URL")
	vehicleID := flag.String("vehicle", "Bus1", "vehicle to broadcast as")
	username := flag.String("username", "driver", "driver username")
	interval := flag.Duration("interval", 2*time.Second, "time between simulated fixes")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables from system")
	}
	password := os.Getenv("DRIVER_PASSWORD")
	if password == "" {
		log.Fatal("DRIVER_PASSWORD environment variable is required")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		log.Fatalf("❌ Invalid route catalog: %v", err)
	}
	route, ok := catalog.Route(*vehicleID)
	if !ok {
		log.Fatalf("❌ Unknown vehicle %s (known: %v)", *vehicleID, catalog.VehicleIDs())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("🔐 Logging in as %s...", *username)
	token, err := wsclient.Login(ctx, nil, *serverURL, *username, password)
	if err != nil {
		log.Fatalf("❌ Login failed: %v", err)
	}

	endpoint, err := wsclient.WebSocketURL(*serverURL)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	client, err := wsclient.Dial(ctx, endpoint, token)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer client.Close()
	log.Printf("🔌 Connected to %s", endpoint)

	watch := position.DefaultWatchOptions()
	watch.Timeout = cfg.FixTimeout()

	b := session.NewBroadcaster(client, session.BroadcasterOptions{
		Keyspace: cfg.Keyspace(),
		Watch:    watch,
		OnStatus: func(st session.Status) {
			switch {
			case st.SyncError != nil:
				log.Printf("⚠️  [%s] %s, sync error: %v", st.VehicleID, st.State, st.SyncError)
			case st.GPSError != nil:
				log.Printf("⚠️  [%s] %s, GPS error: %v", st.VehicleID, st.State, st.GPSError)
			case st.LastReport != nil:
				log.Printf("📍 [%s] %s at %.5f, %.5f", st.VehicleID, st.State, st.LastReport.Latitude, st.LastReport.Longitude)
			default:
				log.Printf("🚌 [%s] %s", st.VehicleID, st.State)
			}
		},
	})
	defer b.Close()

	sim := position.NewSimulator(route.Path(), *interval)
	if err := b.Start(ctx, route.VehicleID, sim); err != nil {
		log.Fatalf("❌ Failed to start broadcasting: %v", err)
	}
	log.Printf("🚀 Broadcasting %s (%s), press Ctrl+C to stop", route.VehicleID, route.Name)

	select {
	case <-ctx.Done():
	case <-client.Done():
		log.Printf("❌ Connection lost: %v", client.Err())
		return
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Stop(stopCtx); err != nil {
		log.Printf("⚠️  Stop: %v", err)
	}
	log.Println("👋 Broadcast stopped")
}
