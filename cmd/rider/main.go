package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"campusbus-backend/internal/config"
	"campusbus-backend/internal/session"
	"campusbus-backend/internal/wire"
	"campusbus-backend/internal/wsclient"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "backend base URL")
	vehicleID := flag.String("vehicle", "Bus1", "vehicle to follow")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		log.Fatalf("❌ Invalid route catalog: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	endpoint, err := wsclient.WebSocketURL(*serverURL)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	client, err := wsclient.Dial(ctx, endpoint, "")
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer client.Close()

	client.OnStopArrival(func(ev wire.StopArrival) {
		log.Printf("🔔 %s arrived at %s (%.0f m)", ev.VehicleID, ev.StopName, ev.DistanceMeters)
	})

	sub := session.NewSubscription(client, session.SubscriptionOptions{
		Keyspace:                  cfg.Keyspace(),
		Routes:                    catalog,
		OnlineThreshold:           cfg.OnlineThreshold(),
		ActiveStopThresholdMeters: cfg.Tracking.ActiveStopThresholdMeters,
		PollInterval:              cfg.PollInterval(),
		OnChange: func(v session.View) {
			switch {
			case !v.Online:
				log.Printf("⚫ %s offline", v.VehicleID)
			case v.ActiveStop != nil:
				log.Printf("🟢 %s at %s (%.0f m)", v.VehicleID, v.ActiveStop.Stop.DisplayName, v.ActiveStop.DistanceMeters)
			default:
				log.Printf("🟢 %s moving at %.5f, %.5f", v.VehicleID, v.LastReport.Latitude, v.LastReport.Longitude)
			}
			if v.ClockSkew {
				log.Printf("⚠️  %s reports are dated in the future", v.VehicleID)
			}
		},
	})
	defer sub.Unsubscribe()

	if err := sub.Track(ctx, *vehicleID); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Printf("👀 Following %s, press Ctrl+C to stop", *vehicleID)

	select {
	case <-ctx.Done():
	case <-client.Done():
		log.Printf("❌ Connection lost: %v", client.Err())
	}
}
