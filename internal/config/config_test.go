package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.OnlineThreshold() != 15*time.Second {
		t.Errorf("expected 15s threshold, got %s", cfg.OnlineThreshold())
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Errorf("expected 2s poll, got %s", cfg.PollInterval())
	}
	if cfg.Tracking.ActiveStopThresholdMeters != 500 {
		t.Errorf("expected 500m, got %v", cfg.Tracking.ActiveStopThresholdMeters)
	}
	if got := cfg.Keyspace().Key("Bus1"); got != "busLocations/Bus1" {
		t.Errorf("unexpected key %q", got)
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	t.Logf("✓ Default catalog has %d routes", len(catalog.Routes()))
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
tracking:
  online_threshold_ms: 30000
routes:
  - vehicle_id: Shuttle
    name: Campus Shuttle
    stops:
      - {id: gate, name: Main Gate, lat: 12.90, lng: 74.99}
      - {id: hostel, name: Hostel, lat: 12.91, lng: 75.00}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.OnlineThreshold() != 30*time.Second {
		t.Errorf("expected 30s, got %s", cfg.OnlineThreshold())
	}
	if cfg.Tracking.LivenessPollIntervalMS != 2000 {
		t.Errorf("unset fields keep defaults, got poll %d", cfg.Tracking.LivenessPollIntervalMS)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	ids := catalog.VehicleIDs()
	if len(ids) != 1 || ids[0] != "Shuttle" {
		t.Fatalf("file routes replace the defaults, got %v", ids)
	}
	r, _ := catalog.Route("Shuttle")
	if r.Stops[1].DisplayName != "Hostel" || r.Stops[1].Coordinates.Lat != 12.91 {
		t.Fatalf("unexpected stop %+v", r.Stops[1])
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://localhost/bus")
	t.Setenv("FCM_ENABLED", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != ":7070" {
		t.Errorf("expected :7070, got %s", cfg.Addr())
	}
	if cfg.Database.URL != "postgres://localhost/bus" {
		t.Errorf("unexpected database url %q", cfg.Database.URL)
	}
	if !cfg.Firebase.FCMEnabled {
		t.Error("expected FCM enabled")
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad threshold":     "tracking:\n  online_threshold_ms: 0\n",
		"prefix with /":     "tracking:\n  broadcast_prefix: a/b\n",
		"bad latitude":      "routes:\n  - vehicle_id: B\n    stops:\n      - {id: s, name: S, lat: 91, lng: 0}\n",
		"no stops":          "routes:\n  - vehicle_id: B\n    stops: []\n",
		"duplicate stop":    "routes:\n  - vehicle_id: B\n    stops:\n      - {id: s, name: S, lat: 1, lng: 1}\n      - {id: s, name: T, lat: 2, lng: 2}\n",
		"duplicate route":   "routes:\n  - vehicle_id: B\n    stops: [{id: s, name: S, lat: 1, lng: 1}]\n  - vehicle_id: B\n    stops: [{id: s, name: S, lat: 1, lng: 1}]\n",
		"malformed yaml":    "server: [\n",
		"missing username":  "auth:\n  driver_username: \"\"\n",
		"vehicle id with /": "routes:\n  - vehicle_id: Bus/1\n    stops: [{id: s, name: S, lat: 1, lng: 1}]\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}

	t.Setenv("PORT", "eighty")
	if _, err := Load(writeConfig(t, "")); err == nil || !strings.Contains(err.Error(), "PORT") {
		t.Errorf("expected PORT error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("an explicit path that does not exist is an error")
	}
}
