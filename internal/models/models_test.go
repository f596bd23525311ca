package models

import (
	"testing"

	"campusbus-backend/internal/geo"
)

func TestParsePositionReport_Valid(t *testing.T) {
	r, ok := ParsePositionReport([]byte(`{"lat":12.9017,"lng":74.9995,"timestamp":1700000000000}`))
	if !ok {
		t.Fatal("expected valid report")
	}
	if r.Latitude != 12.9017 || r.Longitude != 74.9995 || r.ObservedAtEpochMs != 1700000000000 {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestParsePositionReport_Malformed(t *testing.T) {
	payloads := []string{
		``,
		`null`,
		`"hello"`,
		`[1,2,3]`,
		`{"lat":12.9,"lng":74.9}`,
		`{"lat":"12.9","lng":74.9,"timestamp":1}`,
		`{"lat":12.9,"lng":null,"timestamp":1}`,
		`{"lat":12.9,"lng":74.9,"timestamp":"now"}`,
		`{not json`,
		`{"lat":0,"lng":0,"timestamp":-1e300}`,
		`{"lat":0,"lng":0,"timestamp":1e300}`,
		`{"lat":0,"lng":0,"timestamp":-9.3e18}`,
		`{"lat":0,"lng":0,"timestamp":9.1e15}`,
	}

	for _, p := range payloads {
		if r, ok := ParsePositionReport([]byte(p)); ok || r != nil {
			t.Errorf("payload %q should be rejected, got %+v", p, r)
		}
	}
	t.Logf("✓ %d malformed payloads treated as no data", len(payloads))
}

func TestNewRouteCatalog_RejectsDuplicates(t *testing.T) {
	stop := Stop{ID: "a", DisplayName: "A", Coordinates: geo.Coordinate{Lat: 1, Lng: 1}}

	if _, err := NewRouteCatalog([]Route{{VehicleID: "Bus1", Stops: []Stop{stop, stop}}}); err == nil {
		t.Error("duplicate stop ids should be rejected")
	}
	if _, err := NewRouteCatalog([]Route{{VehicleID: "Bus1"}, {VehicleID: "Bus1"}}); err == nil {
		t.Error("duplicate vehicle ids should be rejected")
	}
	bad := Stop{ID: "x", Coordinates: geo.Coordinate{Lat: 100, Lng: 0}}
	if _, err := NewRouteCatalog([]Route{{VehicleID: "Bus1", Stops: []Stop{bad}}}); err == nil {
		t.Error("invalid coordinates should be rejected")
	}
}

func TestRouteCatalog_PreservesOrderAndIsReadOnly(t *testing.T) {
	c, err := NewRouteCatalog([]Route{
		{VehicleID: "Bus2", Stops: []Stop{{ID: "x", Coordinates: geo.Coordinate{Lat: 1, Lng: 1}}}},
		{VehicleID: "Bus1", Stops: []Stop{{ID: "y", Coordinates: geo.Coordinate{Lat: 2, Lng: 2}}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := c.VehicleIDs()
	if len(ids) != 2 || ids[0] != "Bus2" || ids[1] != "Bus1" {
		t.Fatalf("unexpected order %v", ids)
	}

	r, _ := c.Route("Bus2")
	r.Stops[0].ID = "mutated"
	again, _ := c.Route("Bus2")
	if again.Stops[0].ID != "x" {
		t.Fatal("catalog route was mutated through a returned copy")
	}
}
