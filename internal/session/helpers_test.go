package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"campusbus-backend/internal/broadcast"
)

// recordingService wraps a store connection, logs call order and can fail on demand
type recordingService struct {
	*broadcast.Connection

	mu          sync.Mutex
	calls       []string
	putErr      error
	deleteErr   error
	registerErr error

	// when putGate is set, Put signals putEntered and waits for the gate to close
	putGate    chan struct{}
	putEntered chan struct{}
}

func newRecordingService(conn *broadcast.Connection) *recordingService {
	return &recordingService{Connection: conn}
}

func (s *recordingService) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *recordingService) failPuts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

// gatePuts makes the next Puts block until the returned release func is called
func (s *recordingService) gatePuts() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putGate = make(chan struct{})
	s.putEntered = make(chan struct{}, 16)
	gate := s.putGate
	return s.putEntered, func() { close(gate) }
}

func (s *recordingService) log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *recordingService) Put(ctx context.Context, key string, value interface{}) error {
	s.record("put")
	s.mu.Lock()
	err := s.putErr
	gate, entered := s.putGate, s.putEntered
	s.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	if err != nil {
		return err
	}
	return s.Connection.Put(ctx, key, value)
}

func (s *recordingService) Delete(ctx context.Context, key string) error {
	s.record("delete")
	s.mu.Lock()
	err := s.deleteErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Connection.Delete(ctx, key)
}

func (s *recordingService) RegisterDisconnectCleanup(ctx context.Context, action broadcast.CleanupAction) (broadcast.CleanupRegistration, error) {
	s.record("register_cleanup")
	s.mu.Lock()
	err := s.registerErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Connection.RegisterDisconnectCleanup(ctx, action)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(epochMs int64) *fakeClock {
	return &fakeClock{now: time.UnixMilli(epochMs)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type viewRecorder struct {
	mu    sync.Mutex
	views []View
}

func (r *viewRecorder) record(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *viewRecorder) all() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]View, len(r.views))
	copy(out, r.views)
	return out
}

func (r *viewRecorder) last() (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return View{}, false
	}
	return r.views[len(r.views)-1], true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
