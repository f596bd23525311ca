package services

import (
	"context"
	"fmt"
	"log"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"campusbus-backend/internal/tracking"
)

// FCMService handles Firebase Cloud Messaging
type FCMService struct {
	client *messaging.Client
}

// NewFCMService creates a new FCM service on an initialized app
func NewFCMService(ctx context.Context, app *firebase.App) (*FCMService, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}
	return &FCMService{client: client}, nil
}

// VehicleTopic is the FCM topic riders subscribe to for one vehicle
func VehicleTopic(vehicleID string) string {
	return "bus-" + vehicleID
}

// SendStopArrival notifies riders following vehicleID that it reached a stop
func (s *FCMService) SendStopArrival(ctx context.Context, vehicleID string, match tracking.StopMatch) error {
	message := &messaging.Message{
		Topic: VehicleTopic(vehicleID),
		Notification: &messaging.Notification{
			Title: fmt.Sprintf("%s is at %s", vehicleID, match.Stop.DisplayName),
			Body:  fmt.Sprintf("Your bus is %.0fm from %s.", match.DistanceMeters, match.Stop.DisplayName),
		},
		Data: map[string]string{
			"type":            "stop_arrival",
			"vehicle_id":      vehicleID,
			"stop_id":         match.Stop.ID,
			"stop_name":       match.Stop.DisplayName,
			"distance_meters": strconv.FormatFloat(match.DistanceMeters, 'f', 0, 64),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending FCM message: %w", err)
	}

	log.Printf("✅ FCM stop arrival sent for %s at %s: %s", vehicleID, match.Stop.ID, response)
	return nil
}
