package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// FirebaseCredentials selects how the Firebase app authenticates.
// Base64 wins over File when both are set.
type FirebaseCredentials struct {
	Base64      string
	File        string
	DatabaseURL string
}

// ErrNoCredentials is returned when neither base64 nor file credentials are configured
var ErrNoCredentials = errors.New("firebase credentials not configured")

// NewFirebaseApp initializes a Firebase app from file or base64-encoded credentials.
// Base64 suits cloud deployments where files cannot be uploaded.
func NewFirebaseApp(ctx context.Context, creds FirebaseCredentials) (*firebase.App, error) {
	var opt option.ClientOption
	switch {
	case creds.Base64 != "":
		credentialsJSON, err := base64.StdEncoding.DecodeString(creds.Base64)
		if err != nil {
			return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(credentialsJSON)
	case creds.File != "":
		opt = option.WithCredentialsFile(creds.File)
	default:
		return nil, ErrNoCredentials
	}

	var cfg *firebase.Config
	if creds.DatabaseURL != "" {
		cfg = &firebase.Config{DatabaseURL: creds.DatabaseURL}
	}

	app, err := firebase.NewApp(ctx, cfg, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}
	return app, nil
}
