package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/protobuf/proto"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/config"
	"campusbus-backend/internal/geo"
	"campusbus-backend/internal/middleware"
	"campusbus-backend/internal/models"
	"campusbus-backend/internal/services"
	"campusbus-backend/internal/tracking"
)

type fakeFleet struct {
	statuses []services.VehicleStatus
}

func (f *fakeFleet) Status(vehicleID string) (services.VehicleStatus, bool) {
	for _, st := range f.statuses {
		if st.VehicleID == vehicleID {
			return st, true
		}
	}
	return services.VehicleStatus{}, false
}

func (f *fakeFleet) Statuses() []services.VehicleStatus {
	return f.statuses
}

func testCatalog(t *testing.T) *models.RouteCatalog {
	t.Helper()
	catalog, err := config.Default().Catalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return catalog
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = "secret"
	cfg.Auth.DriverPasswordHash = string(hash)
	handler := Login(cfg)

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"username":"driver","password":"password"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := middleware.ParseToken("secret", resp.Token)
	if err != nil || claims.Role != middleware.RoleDriver {
		t.Fatalf("expected a driver token, got %+v %v", claims, err)
	}

	if rec := post(`{"username":"driver","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: expected 401, got %d", rec.Code)
	}
	if rec := post(`{"username":"someone","password":"password"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: expected 401, got %d", rec.Code)
	}
	if rec := post(`not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", rec.Code)
	}
}

func TestGetRoute(t *testing.T) {
	r := chi.NewRouter()
	catalog := testCatalog(t)
	r.Get("/api/routes", GetRoutes(catalog))
	r.Get("/api/routes/{vehicleId}", GetRoute(catalog))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/routes/Bus1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var route models.Route
	if err := json.Unmarshal(rec.Body.Bytes(), &route); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if route.VehicleID != "Bus1" || len(route.Stops) == 0 {
		t.Fatalf("unexpected route %+v", route)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/routes/Nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/routes", nil))
	var routes []models.Route
	json.Unmarshal(rec.Body.Bytes(), &routes)
	if len(routes) != len(catalog.Routes()) {
		t.Fatalf("expected %d routes, got %d", len(catalog.Routes()), len(routes))
	}
}

func TestVehicleStatus(t *testing.T) {
	fleet := &fakeFleet{statuses: []services.VehicleStatus{{VehicleID: "Bus1", Name: "Bus 1", Online: true}}}
	r := chi.NewRouter()
	r.Get("/api/vehicles/{vehicleId}/status", GetVehicleStatus(fleet))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/vehicles/Bus1/status", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"online":true`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/vehicles/Bus9/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPostAndDeleteLocation(t *testing.T) {
	store := broadcast.NewStore()
	p := &LocationPublisher{
		Writer:   store,
		Keyspace: broadcast.DefaultKeyspace(),
		Catalog:  testCatalog(t),
		Now:      func() time.Time { return time.UnixMilli(1700000000000) },
	}
	r := chi.NewRouter()
	r.Post("/api/driver/location", p.PostLocation)
	r.Delete("/api/driver/location/{vehicleId}", p.DeleteLocation)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, bytes.NewBufferString(body)))
		return rec
	}

	if rec := do(http.MethodPost, "/api/driver/location", `{"vehicle_id":"Bus1","lat":12.8,"lng":74.87}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	raw, ok := store.Get("busLocations/Bus1")
	if !ok {
		t.Fatal("expected a stored location")
	}
	report, ok := models.ParsePositionReport(raw)
	if !ok || report.ObservedAtEpochMs != 1700000000000 {
		t.Fatalf("expected server timestamp, got %s", raw)
	}

	if rec := do(http.MethodPost, "/api/driver/location", `{"vehicle_id":"Bus1","lat":95,"lng":74.87}`); rec.Code != http.StatusBadRequest {
		t.Errorf("out of range: expected 400, got %d", rec.Code)
	}
	if rec := do(http.MethodPost, "/api/driver/location", `{"vehicle_id":"Bus1","lng":74.87}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing lat: expected 400, got %d", rec.Code)
	}
	if rec := do(http.MethodPost, "/api/driver/location", `{"vehicle_id":"Ghost","lat":1,"lng":1}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown vehicle: expected 404, got %d", rec.Code)
	}

	if rec := do(http.MethodDelete, "/api/driver/location/Bus1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := store.Get("busLocations/Bus1"); ok {
		t.Fatal("expected the location to be removed")
	}
}

func TestVehiclePositionsFeed(t *testing.T) {
	report := &models.PositionReport{Latitude: 12.805, Longitude: 74.878, ObservedAtEpochMs: 1700000000000}
	fleet := &fakeFleet{statuses: []services.VehicleStatus{
		{
			VehicleID:  "Bus1",
			Name:       "Bus 1",
			Online:     true,
			LastReport: report,
			ActiveStop: &tracking.StopMatch{Stop: models.Stop{ID: "kolya", DisplayName: "Kolya", Coordinates: geo.Coordinate{Lat: 12.805, Lng: 74.878}}},
		},
		{VehicleID: "Bus7", Name: "Bus 7"},
	}}

	rec := httptest.NewRecorder()
	GetVehiclePositionsFeed(fleet)(rec, httptest.NewRequest(http.MethodGet, "/gtfs-rt/vehicle-positions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var feed gtfs.FeedMessage
	if err := proto.Unmarshal(rec.Body.Bytes(), &feed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(feed.Entity) != 1 {
		t.Fatalf("only vehicles with a report are listed, got %d", len(feed.Entity))
	}
	vp := feed.Entity[0].GetVehicle()
	if vp.GetVehicle().GetId() != "Bus1" || vp.GetStopId() != "kolya" || vp.GetCurrentStatus() != gtfs.VehiclePosition_STOPPED_AT {
		t.Fatalf("unexpected vehicle position %v", vp)
	}
	if vp.GetTimestamp() != 1700000000 {
		t.Fatalf("expected seconds timestamp, got %d", vp.GetTimestamp())
	}
	t.Logf("✓ GTFS-RT feed with %d entity", len(feed.Entity))
}

func TestPostLocation_KeepsExplicitTimestamp(t *testing.T) {
	store := broadcast.NewStore()
	p := &LocationPublisher{Writer: store, Keyspace: broadcast.DefaultKeyspace(), Catalog: testCatalog(t)}

	req := httptest.NewRequest(http.MethodPost, "/api/driver/location", strings.NewReader(`{"vehicle_id":"Bus7","lat":12.87,"lng":74.84,"timestamp":1700000005000}`))
	rec := httptest.NewRecorder()
	p.PostLocation(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	raw, _ := store.Get("busLocations/Bus7")
	report, ok := models.ParsePositionReport(raw)
	if !ok || report.ObservedAtEpochMs != 1700000005000 {
		t.Fatalf("explicit timestamp not kept: %s", raw)
	}
}

func TestPostLocation_ClosedWriter(t *testing.T) {
	store := broadcast.NewStore()
	conn := store.Connect()
	conn.Disconnect()
	p := &LocationPublisher{Writer: conn, Keyspace: broadcast.DefaultKeyspace(), Catalog: testCatalog(t)}

	rec := httptest.NewRecorder()
	p.PostLocation(rec, httptest.NewRequest(http.MethodPost, "/api/driver/location", strings.NewReader(`{"vehicle_id":"Bus1","lat":1,"lng":1}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

type fakeClientStats []string

func (f fakeClientStats) GetClientCount() int             { return len(f) }
func (f fakeClientStats) GetConnectedClientIDs() []string { return f }

func TestGetRealtimeStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	GetRealtimeStatus(fakeClientStats{"a", "b"})(rec, httptest.NewRequest(http.MethodGet, "/api/realtime/status", nil))
	var st RealtimeStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.ConnectedClients != 2 || len(st.ClientIDs) != 2 {
		t.Fatalf("unexpected status %+v", st)
	}

	rec = httptest.NewRecorder()
	GetRealtimeStatus(fakeClientStats(nil))(rec, httptest.NewRequest(http.MethodGet, "/api/realtime/status", nil))
	if !strings.Contains(rec.Body.String(), `"client_ids":[]`) {
		t.Fatalf("expected an empty list, got %s", rec.Body.String())
	}
}

func TestBuildVehiclePositionsFeed_PreEpochTimestamp(t *testing.T) {
	statuses := []services.VehicleStatus{{
		VehicleID:  "Bus1",
		LastReport: &models.PositionReport{Latitude: 12.8, Longitude: 74.87, ObservedAtEpochMs: -5000},
	}}
	feed := BuildVehiclePositionsFeed(statuses, time.UnixMilli(1700000000000))
	if len(feed.Entity) != 1 {
		t.Fatalf("expected one entity, got %d", len(feed.Entity))
	}
	vp := feed.Entity[0].GetVehicle()
	if vp.Timestamp != nil {
		t.Fatalf("expected no timestamp for a pre-epoch report, got %d", vp.GetTimestamp())
	}
	if vp.GetCurrentStatus() != gtfs.VehiclePosition_IN_TRANSIT_TO {
		t.Fatalf("expected IN_TRANSIT_TO, got %v", vp.GetCurrentStatus())
	}
}
