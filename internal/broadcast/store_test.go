package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) record(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, len(r.snaps))
	copy(out, r.snaps)
	return out
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

func TestKeyspace(t *testing.T) {
	ks := DefaultKeyspace()
	if got := ks.Key("Bus1"); got != "busLocations/Bus1" {
		t.Fatalf("unexpected key %q", got)
	}
	if id, ok := ks.VehicleID("busLocations/Bus1"); !ok || id != "Bus1" {
		t.Fatalf("unexpected vehicle id %q %v", id, ok)
	}
	if ks.Contains("other/Bus1") || ks.Contains("busLocations/") || ks.Contains("busLocations/a/b") {
		t.Fatal("keys outside the namespace should not match")
	}
}

func TestStore_SubscribeDeliversCurrentThenChanges(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	key := "busLocations/Bus1"

	if err := s.Put(ctx, key, map[string]interface{}{"lat": 1.0, "lng": 2.0, "timestamp": 3}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	rec := &recorder{}
	sub, err := s.Subscribe(ctx, key, rec.record)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	waitFor(t, "initial snapshot", func() bool { return len(rec.all()) == 1 })
	if !rec.all()[0].Exists() {
		t.Fatal("initial snapshot should carry the current value")
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	waitFor(t, "delete snapshot", func() bool { return len(rec.all()) == 2 })
	if rec.all()[1].Exists() {
		t.Fatal("snapshot after delete should be absent")
	}
}

func TestStore_SubscribeToAbsentKey(t *testing.T) {
	s := NewStore()
	rec := &recorder{}
	sub, err := s.Subscribe(context.Background(), "busLocations/none", rec.record)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	waitFor(t, "initial snapshot", func() bool { return len(rec.all()) == 1 })
	if rec.all()[0].Exists() {
		t.Fatal("absent key should yield no data, not an error")
	}
}

func TestStore_UnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	key := "busLocations/Bus1"
	rec := &recorder{}

	sub, _ := s.Subscribe(ctx, key, rec.record)
	waitFor(t, "initial snapshot", func() bool { return len(rec.all()) == 1 })
	sub.Unsubscribe()
	sub.Unsubscribe()

	_ = s.Put(ctx, key, json.RawMessage(`{"lat":1,"lng":2,"timestamp":3}`))
	time.Sleep(50 * time.Millisecond)
	if n := len(rec.all()); n != 1 {
		t.Fatalf("expected no deliveries after unsubscribe, got %d", n)
	}
}

func TestStore_PutNilDeletes(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.Put(ctx, "busLocations/Bus1", json.RawMessage(`{"lat":1}`))
	if err := s.Put(ctx, "busLocations/Bus1", nil); err != nil {
		t.Fatalf("put nil failed: %v", err)
	}
	if _, ok := s.Get("busLocations/Bus1"); ok {
		t.Fatal("put nil should delete the key")
	}
}

func TestStore_RejectsInvalidKeys(t *testing.T) {
	s := NewStore()
	if err := s.Put(context.Background(), "", 1); err == nil {
		t.Fatal("empty key should be rejected")
	}
	if err := s.Put(context.Background(), "busLocations/", 1); err == nil {
		t.Fatal("trailing slash should be rejected")
	}
}

func TestConnection_DisconnectRunsCleanup(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	conn := s.Connect()
	key := DefaultKeyspace().Key("Bus1")

	reg, err := conn.RegisterDisconnectCleanup(ctx, DeleteAction(key))
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if reg.Action() != DeleteAction(key) {
		t.Fatalf("registered action %+v should be delete(%s)", reg.Action(), key)
	}

	if err := conn.Put(ctx, key, json.RawMessage(`{"lat":1,"lng":2,"timestamp":3}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	conn.Disconnect()

	if _, ok := s.Get(key); ok {
		t.Fatal("disconnect cleanup should have removed the key")
	}
	if err := conn.Put(ctx, key, 1); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected after disconnect, got %v", err)
	}
	t.Logf("✓ Disconnect cleanup removed stale location")
}

func TestConnection_CancelledCleanupDoesNotFire(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	conn := s.Connect()
	key := DefaultKeyspace().Key("Bus1")

	reg, _ := conn.RegisterDisconnectCleanup(ctx, DeleteAction(key))
	_ = conn.Put(ctx, key, json.RawMessage(`{"lat":1,"lng":2,"timestamp":3}`))
	if err := reg.Cancel(ctx); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if n := len(conn.PendingCleanups()); n != 0 {
		t.Fatalf("expected no pending cleanups, got %d", n)
	}

	// another publisher took over the key after a graceful stop
	other := s.Connect()
	_ = other.Put(ctx, key, json.RawMessage(`{"lat":5,"lng":6,"timestamp":7}`))

	conn.Disconnect()
	if _, ok := s.Get(key); !ok {
		t.Fatal("cancelled cleanup must not delete the key")
	}
}

func TestConnection_RejectsUnsupportedAction(t *testing.T) {
	conn := NewStore().Connect()
	_, err := conn.RegisterDisconnectCleanup(context.Background(), CleanupAction{Op: "set", Key: "busLocations/Bus1"})
	if err != ErrUnsupportedAction {
		t.Fatalf("expected ErrUnsupportedAction, got %v", err)
	}
}

type fakeMirror struct {
	mu     sync.Mutex
	events []string
}

func (m *fakeMirror) Name() string { return "fake" }

func (m *fakeMirror) MirrorPut(ctx context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "put:"+string(value))
	return nil
}

func (m *fakeMirror) MirrorDelete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "delete")
	return nil
}

func TestStore_MirrorsWritesInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	m := &fakeMirror{}
	s.AddMirror(m)

	key := "busLocations/Bus1"
	_ = s.Put(ctx, key, json.RawMessage(`1`))
	_ = s.Put(ctx, key, json.RawMessage(`2`))
	_ = s.Delete(ctx, key)
	_ = s.Delete(ctx, key)

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	s.Close(closeCtx)

	m.mu.Lock()
	defer m.mu.Unlock()
	want := []string{"put:1", "put:2", "delete"}
	if len(m.events) != len(want) {
		t.Fatalf("expected %v, got %v", want, m.events)
	}
	for i := range want {
		if m.events[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, m.events)
		}
	}
}
