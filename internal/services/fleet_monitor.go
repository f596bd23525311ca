package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/models"
	"campusbus-backend/internal/session"
	"campusbus-backend/internal/tracking"
)

// VehicleStatus is the derived state of one vehicle as served over HTTP
type VehicleStatus struct {
	VehicleID  string                 `json:"vehicle_id"`
	Name       string                 `json:"name"`
	Online     bool                   `json:"online"`
	ActiveStop *tracking.StopMatch    `json:"active_stop,omitempty"`
	LastReport *models.PositionReport `json:"last_report,omitempty"`
	AgeMs      *int64                 `json:"age_ms,omitempty"`
	ClockSkew  bool                   `json:"clock_skew,omitempty"`
}

// Arrival is a vehicle reaching a stop
type Arrival struct {
	VehicleID string
	Match     tracking.StopMatch
}

// FleetMonitorOptions configures a FleetMonitor
type FleetMonitorOptions struct {
	Keyspace                  broadcast.Keyspace
	OnlineThreshold           time.Duration
	ActiveStopThresholdMeters float64
	PollInterval              time.Duration
	Now                       func() time.Time
	// OnArrival runs on its own goroutine, in arrival order
	OnArrival func(Arrival)
}

// FleetMonitor subscribes to every vehicle in the catalog and keeps its derived state
type FleetMonitor struct {
	svc     broadcast.Subscriber
	catalog *models.RouteCatalog
	opts    FleetMonitorOptions

	mu       sync.Mutex
	subs     map[string]*session.Subscription
	lastStop map[string]string
	arrivals *broadcast.Dispatcher[Arrival]
}

// NewFleetMonitor creates a monitor; call Start to begin subscribing
func NewFleetMonitor(svc broadcast.Subscriber, catalog *models.RouteCatalog, opts FleetMonitorOptions) *FleetMonitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &FleetMonitor{
		svc:      svc,
		catalog:  catalog,
		opts:     opts,
		subs:     make(map[string]*session.Subscription),
		lastStop: make(map[string]string),
	}
	m.arrivals = broadcast.NewDispatcher(func(a Arrival) {
		if m.opts.OnArrival != nil {
			m.opts.OnArrival(a)
		}
	})
	return m
}

// Start subscribes to every vehicle. Already started vehicles are skipped.
func (m *FleetMonitor) Start(ctx context.Context) error {
	for _, vehicleID := range m.catalog.VehicleIDs() {
		m.mu.Lock()
		_, exists := m.subs[vehicleID]
		m.mu.Unlock()
		if exists {
			continue
		}

		sub := session.NewSubscription(m.svc, session.SubscriptionOptions{
			Keyspace:                  m.opts.Keyspace,
			Routes:                    m.catalog,
			OnlineThreshold:           m.opts.OnlineThreshold,
			ActiveStopThresholdMeters: m.opts.ActiveStopThresholdMeters,
			PollInterval:              m.opts.PollInterval,
			Now:                       m.opts.Now,
			OnChange:                  m.handleChange,
		})
		if err := sub.Track(ctx, vehicleID); err != nil {
			m.Stop()
			return fmt.Errorf("failed to monitor %s: %w", vehicleID, err)
		}

		m.mu.Lock()
		m.subs[vehicleID] = sub
		m.mu.Unlock()
	}
	log.Printf("✅ [FLEET] Monitoring %d vehicles", len(m.catalog.VehicleIDs()))
	return nil
}

// Stop unsubscribes from every vehicle and drops pending arrivals. A stopped monitor cannot be restarted.
func (m *FleetMonitor) Stop() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]*session.Subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	m.arrivals.Stop()
}

// Status returns the derived state of one vehicle
func (m *FleetMonitor) Status(vehicleID string) (VehicleStatus, bool) {
	route, ok := m.catalog.Route(vehicleID)
	if !ok {
		return VehicleStatus{}, false
	}

	m.mu.Lock()
	sub := m.subs[vehicleID]
	m.mu.Unlock()

	st := VehicleStatus{VehicleID: vehicleID, Name: route.Name}
	if sub == nil {
		return st, true
	}

	v := sub.View()
	st.Online = v.Online
	st.ActiveStop = v.ActiveStop
	st.LastReport = v.LastReport
	st.ClockSkew = v.ClockSkew
	if v.LastReport != nil {
		age := m.opts.Now().UnixMilli() - v.LastReport.ObservedAtEpochMs
		st.AgeMs = &age
	}
	return st, true
}

// Statuses returns every vehicle in catalog order
func (m *FleetMonitor) Statuses() []VehicleStatus {
	ids := m.catalog.VehicleIDs()
	out := make([]VehicleStatus, 0, len(ids))
	for _, id := range ids {
		if st, ok := m.Status(id); ok {
			out = append(out, st)
		}
	}
	return out
}

func (m *FleetMonitor) handleChange(v session.View) {
	cur := ""
	if v.Online && v.ActiveStop != nil {
		cur = v.ActiveStop.Stop.ID
	}

	// an offline vehicle is at no stop, so coming back online at one is an arrival
	m.mu.Lock()
	prev := m.lastStop[v.VehicleID]
	m.lastStop[v.VehicleID] = cur
	m.mu.Unlock()

	if cur == "" || cur == prev {
		return
	}
	log.Printf("📍 [FLEET] %s arrived at %s (%.0fm)", v.VehicleID, v.ActiveStop.Stop.DisplayName, v.ActiveStop.DistanceMeters)
	m.arrivals.Push(Arrival{VehicleID: v.VehicleID, Match: *v.ActiveStop})
}
