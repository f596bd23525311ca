package services

import (
	"context"
	"encoding/json"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"

	"campusbus-backend/internal/models"
)

// FirebaseMirror copies broadcast keys into a Firebase Realtime Database,
// so web clients listening on busLocations/{vehicleId} keep working.
type FirebaseMirror struct {
	client *db.Client
}

// NewFirebaseMirror connects to the app's Realtime Database
func NewFirebaseMirror(ctx context.Context, app *firebase.App) (*FirebaseMirror, error) {
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}
	return &FirebaseMirror{client: client}, nil
}

func (m *FirebaseMirror) Name() string {
	return "firebase-rtdb"
}

// MirrorPut replaces the value at key. Values that are not position reports are skipped.
func (m *FirebaseMirror) MirrorPut(ctx context.Context, key string, value json.RawMessage) error {
	report, ok := models.ParsePositionReport(value)
	if !ok {
		return nil
	}
	if err := m.client.NewRef(key).Set(ctx, report); err != nil {
		return fmt.Errorf("error writing %s: %w", key, err)
	}
	return nil
}

// MirrorDelete removes the value at key
func (m *FirebaseMirror) MirrorDelete(ctx context.Context, key string) error {
	if err := m.client.NewRef(key).Delete(ctx); err != nil {
		return fmt.Errorf("error deleting %s: %w", key, err)
	}
	return nil
}
