package models

import (
	"fmt"

	"campusbus-backend/internal/geo"
)

// Stop is a named point on a route. IDs are unique within a route.
type Stop struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"name"`
	Coordinates geo.Coordinate `json:"coords"`
}

// Route is the ordered list of stops served by one vehicle.
// Order is display order only; proximity never depends on it.
type Route struct {
	VehicleID string `json:"vehicle_id"`
	Name      string `json:"name"`
	Stops     []Stop `json:"stops"`
}

// Path returns the stop coordinates in route order
func (r Route) Path() []geo.Coordinate {
	path := make([]geo.Coordinate, 0, len(r.Stops))
	for _, s := range r.Stops {
		path = append(path, s.Coordinates)
	}
	return path
}

// RouteCatalog is the read-only set of routes keyed by vehicle id
type RouteCatalog struct {
	order  []string
	routes map[string]Route
}

// NewRouteCatalog validates and indexes routes. The input slice is copied.
func NewRouteCatalog(routes []Route) (*RouteCatalog, error) {
	c := &RouteCatalog{
		order:  make([]string, 0, len(routes)),
		routes: make(map[string]Route, len(routes)),
	}

	for _, r := range routes {
		if r.VehicleID == "" {
			return nil, fmt.Errorf("route %q has no vehicle id", r.Name)
		}
		if _, exists := c.routes[r.VehicleID]; exists {
			return nil, fmt.Errorf("duplicate route for vehicle %q", r.VehicleID)
		}

		seen := make(map[string]bool, len(r.Stops))
		stops := make([]Stop, len(r.Stops))
		for i, s := range r.Stops {
			if s.ID == "" {
				return nil, fmt.Errorf("vehicle %q: stop %d has no id", r.VehicleID, i)
			}
			if seen[s.ID] {
				return nil, fmt.Errorf("vehicle %q: duplicate stop id %q", r.VehicleID, s.ID)
			}
			if !s.Coordinates.IsValid() {
				return nil, fmt.Errorf("vehicle %q: stop %q has invalid coordinates", r.VehicleID, s.ID)
			}
			seen[s.ID] = true
			stops[i] = s
		}
		r.Stops = stops

		c.order = append(c.order, r.VehicleID)
		c.routes[r.VehicleID] = r
	}

	return c, nil
}

// Route looks up the route for a vehicle
func (c *RouteCatalog) Route(vehicleID string) (Route, bool) {
	r, ok := c.routes[vehicleID]
	if !ok {
		return Route{}, false
	}
	return r.clone(), true
}

// Routes returns every route in configuration order
func (c *RouteCatalog) Routes() []Route {
	out := make([]Route, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.routes[id].clone())
	}
	return out
}

// VehicleIDs returns every vehicle id in configuration order
func (c *RouteCatalog) VehicleIDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

func (r Route) clone() Route {
	stops := make([]Stop, len(r.Stops))
	copy(stops, r.Stops)
	r.Stops = stops
	return r
}
