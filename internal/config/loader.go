package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/geo"
	"campusbus-backend/internal/models"
)

// DefaultPath is read when CONFIG_FILE is not set
const DefaultPath = "config.yml"

// Load builds the configuration from defaults, the YAML file at path and the
// environment, in that order. A missing file at DefaultPath is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		log.Printf("✅ Configuration loaded from %s", path)
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
		log.Printf("⚠️  Warning: %s not found, using built-in defaults", path)
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the route catalog
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("invalid routes: %w", err)
	}
	return nil
}

// Catalog converts the configured routes into a read-only catalog
func (c *Config) Catalog() (*models.RouteCatalog, error) {
	routes := make([]models.Route, 0, len(c.Routes))
	for _, rc := range c.Routes {
		r := models.Route{VehicleID: rc.VehicleID, Name: rc.Name}
		for _, sc := range rc.Stops {
			r.Stops = append(r.Stops, models.Stop{
				ID:          sc.ID,
				DisplayName: sc.Name,
				Coordinates: geo.Coordinate{Lat: sc.Lat, Lng: sc.Lng},
			})
		}
		routes = append(routes, r)
	}
	return models.NewRouteCatalog(routes)
}

// Keyspace returns the broadcast key namespace
func (c *Config) Keyspace() broadcast.Keyspace {
	return broadcast.Keyspace{Prefix: c.Tracking.BroadcastPrefix}
}

// OnlineThreshold is the maximum report age for a vehicle to count as online
func (c *Config) OnlineThreshold() time.Duration {
	return time.Duration(c.Tracking.OnlineThresholdMS) * time.Millisecond
}

// PollInterval is the liveness re-evaluation period
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Tracking.LivenessPollIntervalMS) * time.Millisecond
}

// FixTimeout is how long a position source may go without a fix
func (c *Config) FixTimeout() time.Duration {
	return time.Duration(c.Tracking.FixTimeoutMS) * time.Millisecond
}

// TokenTTL is the lifetime of issued driver tokens
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Auth.JWTSecret, "APP_JWT_SECRET")
	setString(&cfg.Auth.DriverUsername, "DRIVER_USERNAME")
	setString(&cfg.Auth.DriverPasswordHash, "DRIVER_PASSWORD_HASH")
	setString(&cfg.Firebase.CredentialsBase64, "FIREBASE_CREDENTIALS_BASE64")
	setString(&cfg.Firebase.CredentialsFile, "FIREBASE_CREDENTIALS_FILE")
	setString(&cfg.Firebase.DatabaseURL, "FIREBASE_DATABASE_URL")
	setString(&cfg.AMQP.URL, "AMQP_URL")
	if v := os.Getenv("FCM_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FCM_ENABLED %q: %w", v, err)
		}
		cfg.Firebase.FCMEnabled = enabled
	}
	return nil
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
