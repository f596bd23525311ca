package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/models"
	"campusbus-backend/internal/position"
)

// State is the broadcaster lifecycle state
type State int

const (
	StateIdle State = iota
	StateStarting
	StateSharing
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateSharing:
		return "sharing"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// DefaultWriteTimeout bounds a single broadcast write
const DefaultWriteTimeout = 10 * time.Second

// Status is the observable broadcaster state. GPSError and SyncError are the latest
// failure of each kind and clear on the next successful write.
type Status struct {
	State      State
	VehicleID  string
	LastReport *models.PositionReport
	GPSError   error
	SyncError  error
}

// BroadcasterOptions configures a Broadcaster
type BroadcasterOptions struct {
	Keyspace     broadcast.Keyspace
	Watch        position.WatchOptions
	WriteTimeout time.Duration
	Now          func() time.Time
	// OnStatus is called after every state or error change
	OnStatus func(Status)
}

// Broadcaster publishes one vehicle's position from a device source.
// States go idle → starting → sharing → stopping → idle. Only one position
// watch is active per Broadcaster.
type Broadcaster struct {
	svc  broadcast.Service
	opts BroadcasterOptions

	mu        sync.Mutex
	state     State
	gen       uint64
	vehicleID string
	key       string
	watch     position.Watch
	cleanup   broadcast.CleanupRegistration
	last      *models.PositionReport
	gpsErr    error
	syncErr   error

	// writeMu serializes position writes with the final delete on stop
	writeMu sync.Mutex
}

// NewBroadcaster creates an idle broadcaster on top of svc
func NewBroadcaster(svc broadcast.Service, opts BroadcasterOptions) *Broadcaster {
	if opts.Keyspace.Prefix == "" {
		opts.Keyspace = broadcast.DefaultKeyspace()
	}
	if opts.Watch == (position.WatchOptions{}) {
		opts.Watch = position.DefaultWatchOptions()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Broadcaster{svc: svc, opts: opts}
}

// Start begins sharing vehicleID's position from src. The disconnect cleanup is
// registered before anything is written; the state becomes sharing after the
// first successful write.
func (b *Broadcaster) Start(ctx context.Context, vehicleID string, src position.Source) error {
	if vehicleID == "" {
		return ErrEmptyVehicleID
	}

	b.mu.Lock()
	if b.state != StateIdle {
		b.mu.Unlock()
		return ErrAlreadyActive
	}
	b.gen++
	gen := b.gen
	b.state = StateStarting
	b.vehicleID = vehicleID
	b.key = b.opts.Keyspace.Key(vehicleID)
	b.last = nil
	b.gpsErr = nil
	b.syncErr = nil
	key := b.key
	b.mu.Unlock()
	b.notify()

	log.Printf("📡 [BROADCAST] Starting location sharing for %s", vehicleID)

	reg, err := b.svc.RegisterDisconnectCleanup(ctx, broadcast.DeleteAction(key))
	if err != nil {
		syncErr := &SyncError{Op: "register_cleanup", Key: key, Err: err}
		log.Printf("❌ [BROADCAST] %v", syncErr)
		b.abortStart(gen, nil, syncErr)
		return syncErr
	}

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		if err := reg.Cancel(ctx); err != nil {
			log.Printf("⚠️  [BROADCAST] Failed to cancel disconnect cleanup: %v", err)
		}
		return ErrStopped
	}
	b.cleanup = reg
	b.mu.Unlock()

	watch, err := src.Watch(
		func(fix position.Fix) { b.handleFix(gen, fix) },
		func(err error) { b.handleWatchError(gen, err) },
		b.opts.Watch,
	)
	if err != nil {
		log.Printf("❌ [BROADCAST] Position watch failed for %s: %v", vehicleID, err)
		if cerr := reg.Cancel(ctx); cerr != nil {
			log.Printf("⚠️  [BROADCAST] Failed to cancel disconnect cleanup: %v", cerr)
		}
		b.abortStart(gen, err, nil)
		return err
	}

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		watch.Cancel()
		return ErrStopped
	}
	b.watch = watch
	b.mu.Unlock()

	return nil
}

// Stop cancels the position watch, cancels the disconnect cleanup and deletes the key.
// The state is idle when Stop returns even if the delete failed; that failure is returned.
func (b *Broadcaster) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateIdle || b.state == StateStopping {
		b.mu.Unlock()
		return nil
	}
	b.gen++
	b.state = StateStopping
	watch, reg, key, vehicleID := b.watch, b.cleanup, b.key, b.vehicleID
	b.watch = nil
	b.cleanup = nil
	b.mu.Unlock()
	b.notify()

	if watch != nil {
		watch.Cancel()
	}

	// wait for an in-flight position write so it cannot land after the delete
	b.writeMu.Lock()
	if reg != nil {
		if err := reg.Cancel(ctx); err != nil {
			log.Printf("⚠️  [BROADCAST] Failed to cancel disconnect cleanup for %s: %v", key, err)
		}
	}
	var stopErr error
	if err := b.svc.Delete(ctx, key); err != nil {
		stopErr = &SyncError{Op: "delete", Key: key, Err: err}
		log.Printf("❌ [BROADCAST] Failed to remove location for %s: %v", vehicleID, err)
	}
	b.writeMu.Unlock()

	b.mu.Lock()
	b.state = StateIdle
	b.last = nil
	b.syncErr = stopErr
	b.watch = nil
	b.mu.Unlock()
	b.notify()

	log.Printf("🔴 [BROADCAST] Stopped sharing for %s", vehicleID)
	return stopErr
}

// Close stops sharing as part of teardown
func (b *Broadcaster) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.WriteTimeout)
	defer cancel()
	return b.Stop(ctx)
}

// State returns the current lifecycle state
func (b *Broadcaster) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status returns a snapshot of the observable state
func (b *Broadcaster) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusLocked()
}

func (b *Broadcaster) statusLocked() Status {
	st := Status{
		State:     b.state,
		GPSError:  b.gpsErr,
		SyncError: b.syncErr,
	}
	if b.state != StateIdle {
		st.VehicleID = b.vehicleID
	}
	if b.last != nil {
		r := *b.last
		st.LastReport = &r
	}
	return st
}

func (b *Broadcaster) handleFix(gen uint64, fix position.Fix) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	if b.gen != gen || (b.state != StateStarting && b.state != StateSharing) {
		b.mu.Unlock()
		return
	}
	key := b.key
	b.mu.Unlock()

	report := models.PositionReport{
		Latitude:          fix.Coordinate.Lat,
		Longitude:         fix.Coordinate.Lng,
		ObservedAtEpochMs: b.opts.Now().UnixMilli(),
	}
	if !report.Valid() {
		b.setGPSError(gen, &position.Error{Code: position.PositionUnavailable, Message: "fix has non-finite coordinates"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.WriteTimeout)
	err := b.svc.Put(ctx, key, report)
	cancel()

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return
	}
	if err != nil {
		b.syncErr = &SyncError{Op: "put", Key: key, Err: err}
		b.mu.Unlock()
		log.Printf("❌ [BROADCAST] Failed to write location to %s: %v", key, err)
		b.notify()
		return
	}
	b.state = StateSharing
	b.last = &report
	b.syncErr = nil
	b.gpsErr = nil
	b.mu.Unlock()
	b.notify()
}

func (b *Broadcaster) handleWatchError(gen uint64, err error) {
	var perr *position.Error
	if errors.As(err, &perr) && !perr.Retryable() {
		b.mu.Lock()
		if b.gen != gen {
			b.mu.Unlock()
			return
		}
		b.gpsErr = err
		b.mu.Unlock()

		log.Printf("❌ [BROADCAST] %v, ending session", err)
		ctx, cancel := context.WithTimeout(context.Background(), b.opts.WriteTimeout)
		defer cancel()
		_ = b.Stop(ctx)
		return
	}

	log.Printf("⚠️  [BROADCAST] Position error: %v", err)
	b.setGPSError(gen, err)
}

func (b *Broadcaster) setGPSError(gen uint64, err error) {
	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return
	}
	b.gpsErr = err
	b.mu.Unlock()
	b.notify()
}

func (b *Broadcaster) abortStart(gen uint64, gpsErr, syncErr error) {
	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return
	}
	b.gen++
	b.state = StateIdle
	b.cleanup = nil
	b.watch = nil
	b.gpsErr = gpsErr
	b.syncErr = syncErr
	b.mu.Unlock()
	b.notify()
}

func (b *Broadcaster) notify() {
	if b.opts.OnStatus == nil {
		return
	}
	b.opts.OnStatus(b.Status())
}
