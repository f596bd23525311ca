package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/models"
	"campusbus-backend/internal/tracking"
)

// RouteLookup resolves the stops served by a vehicle
type RouteLookup interface {
	Route(vehicleID string) (models.Route, bool)
}

// View is the state derived for one tracked vehicle
type View struct {
	VehicleID  string                 `json:"vehicle_id"`
	Online     bool                   `json:"online"`
	ActiveStop *tracking.StopMatch    `json:"active_stop,omitempty"`
	LastReport *models.PositionReport `json:"last_report,omitempty"`
	// ClockSkew is set when the last report is dated ahead of the local clock
	ClockSkew bool `json:"clock_skew,omitempty"`
}

// SubscriptionOptions configures a Subscription
type SubscriptionOptions struct {
	Keyspace                  broadcast.Keyspace
	Routes                    RouteLookup
	OnlineThreshold           time.Duration
	ActiveStopThresholdMeters float64
	PollInterval              time.Duration
	Now                       func() time.Time
	// OnChange receives every derived state update. It must not call Track or Unsubscribe.
	OnChange func(View)
}

// Subscription is a subscriber's live view of one vehicle. Liveness is
// re-evaluated on a timer as well as on every report, since silence is
// itself the offline signal.
type Subscription struct {
	svc  broadcast.Subscriber
	opts SubscriptionOptions

	// notifyMu orders OnChange calls with Track/Unsubscribe
	notifyMu sync.Mutex

	mu     sync.Mutex
	gen    uint64
	view   View
	stops  []models.Stop
	stream *ReportStream
	cancel context.CancelFunc
}

// NewSubscription creates a subscription that is not tracking anything yet
func NewSubscription(svc broadcast.Subscriber, opts SubscriptionOptions) *Subscription {
	if opts.Keyspace.Prefix == "" {
		opts.Keyspace = broadcast.DefaultKeyspace()
	}
	if opts.OnlineThreshold <= 0 {
		opts.OnlineThreshold = tracking.DefaultOnlineThreshold
	}
	if opts.ActiveStopThresholdMeters <= 0 {
		opts.ActiveStopThresholdMeters = tracking.DefaultActiveStopThresholdMeters
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = tracking.DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Subscription{svc: svc, opts: opts}
}

// Track starts following vehicleID, replacing whatever was tracked before.
// Derived state is cleared, and OnChange sees the cleared state, before any
// data for the new vehicle can arrive.
func (s *Subscription) Track(ctx context.Context, vehicleID string) error {
	if vehicleID == "" {
		return ErrEmptyVehicleID
	}

	s.notifyMu.Lock()
	s.mu.Lock()
	s.detachLocked()
	gen := s.gen
	s.view = View{VehicleID: vehicleID}
	s.stops = nil
	if s.opts.Routes != nil {
		if r, ok := s.opts.Routes.Route(vehicleID); ok {
			s.stops = r.Stops
		}
	}
	cleared := s.view
	s.mu.Unlock()
	s.emit(cleared)
	s.notifyMu.Unlock()

	key := s.opts.Keyspace.Key(vehicleID)
	stream, err := OpenReportStream(ctx, s.svc, key)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		cancel()
		stream.Close()
		return nil
	}
	s.stream = stream
	s.cancel = cancel
	s.mu.Unlock()

	go s.pump(loopCtx, gen, stream)
	go s.poll(loopCtx, gen)
	return nil
}

// Unsubscribe stops tracking. No OnChange call happens after it returns.
// Safe to call repeatedly or before Track.
func (s *Subscription) Unsubscribe() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked()
	s.view = View{}
	s.stops = nil
}

// View returns the current derived state with liveness evaluated against now
func (s *Subscription) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.view
	s.deriveLiveness(&v)
	return copyView(v)
}

func (s *Subscription) detachLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
}

func (s *Subscription) pump(ctx context.Context, gen uint64, stream *ReportStream) {
	for {
		e, err := stream.Next(ctx)
		if err != nil {
			return
		}
		s.apply(gen, e)
	}
}

func (s *Subscription) poll(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(gen)
		}
	}
}

func (s *Subscription) apply(gen uint64, e Emission) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.view.LastReport = e.Report
	s.view.ActiveStop = nil
	if e.Report != nil {
		pos := e.Report.Coordinate()
		s.view.ActiveStop = tracking.NearestStop(&pos, s.stops, s.opts.ActiveStopThresholdMeters)
	}
	s.deriveLiveness(&s.view)
	v := s.view
	s.mu.Unlock()

	s.emit(v)
}

func (s *Subscription) refresh(gen uint64) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	before := s.view.Online
	s.deriveLiveness(&s.view)
	changed := before != s.view.Online
	v := s.view
	s.mu.Unlock()

	if changed {
		s.emit(v)
	}
}

func (s *Subscription) deriveLiveness(v *View) {
	if v.LastReport == nil {
		v.Online = false
		v.ClockSkew = false
		return
	}
	now := s.opts.Now().UnixMilli()
	ts := v.LastReport.ObservedAtEpochMs
	v.Online = tracking.IsOnline(&ts, now, s.opts.OnlineThreshold.Milliseconds())
	v.ClockSkew = tracking.IsFutureDated(ts, now)
}

func (s *Subscription) emit(v View) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(copyView(v))
	}
}

func copyView(v View) View {
	if v.ActiveStop != nil {
		m := *v.ActiveStop
		v.ActiveStop = &m
	}
	if v.LastReport != nil {
		r := *v.LastReport
		v.LastReport = &r
	}
	return v
}
