package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Store is the in-process broadcast service of record.
// Writes are whole-value replacements applied in submission order; last writer wins.
type Store struct {
	mu       sync.Mutex
	values   map[string]json.RawMessage
	watchers map[string]map[uint64]*watcher
	mirrors  []*mirrorPump
	nextID   atomic.Uint64
	closed   bool
}

type watcher struct {
	id    uint64
	key   string
	store *Store
	out   *Dispatcher[Snapshot]
	once  sync.Once
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		values:   make(map[string]json.RawMessage),
		watchers: make(map[string]map[uint64]*watcher),
	}
}

// AddMirror attaches a mirror that receives every later put and delete in order
func (s *Store) AddMirror(m Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrors = append(s.mirrors, newMirrorPump(m))
	log.Printf("✅ [BROADCAST] Mirror attached: %s", m.Name())
}

// Connect opens a connection-scoped view of the store. Disconnect cleanups registered
// through the connection run when it disconnects.
func (s *Store) Connect() *Connection {
	return &Connection{
		id:       uuid.New().String(),
		store:    s,
		cleanups: make(map[string]*cleanupRegistration),
		subs:     make(map[uint64]*watcher),
	}
}

// Put replaces the value at key. A nil value deletes it.
func (s *Store) Put(ctx context.Context, key string, value interface{}) error {
	if err := validKey(key); err != nil {
		return err
	}
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	if data == nil {
		return s.Delete(ctx, key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = data
	s.notifyLocked(key, data)
	for _, m := range s.mirrors {
		m.push(mirrorEvent{key: key, value: data})
	}
	return nil
}

// Delete removes the value at key. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; !exists {
		return nil
	}
	delete(s.values, key)
	s.notifyLocked(key, nil)
	for _, m := range s.mirrors {
		m.push(mirrorEvent{key: key, deleted: true})
	}
	return nil
}

// Get returns a copy of the current value at key
func (s *Store) Get(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), v...), true
}

// Keys lists keys under prefix in sorted order
func (s *Store) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Subscribe calls onChange with the current value right away and again on every change
func (s *Store) Subscribe(ctx context.Context, key string, onChange ChangeFunc) (Subscription, error) {
	return s.subscribe(ctx, key, onChange)
}

func (s *Store) subscribe(ctx context.Context, key string, onChange ChangeFunc) (*watcher, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := &watcher{
		id:    s.nextID.Add(1),
		key:   key,
		store: s,
		out:   NewDispatcher(func(snap Snapshot) { onChange(snap) }),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[uint64]*watcher)
	}
	s.watchers[key][w.id] = w
	w.out.Push(Snapshot{Key: key, Value: copyRaw(s.values[key])})
	return w, nil
}

// Close drains mirrors and stops all watchers
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	mirrors := s.mirrors
	var all []*watcher
	for _, ws := range s.watchers {
		for _, w := range ws {
			all = append(all, w)
		}
	}
	s.mu.Unlock()

	for _, w := range all {
		w.Unsubscribe()
	}
	for _, m := range mirrors {
		m.close(ctx)
	}
}

func (s *Store) notifyLocked(key string, value json.RawMessage) {
	for _, w := range s.watchers[key] {
		w.out.Push(Snapshot{Key: key, Value: copyRaw(value)})
	}
}

func (s *Store) removeWatcher(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws, ok := s.watchers[w.key]; ok {
		delete(ws, w.id)
		if len(ws) == 0 {
			delete(s.watchers, w.key)
		}
	}
}

// Unsubscribe detaches the watcher. Queued notifications are dropped.
func (w *watcher) Unsubscribe() {
	w.once.Do(func() {
		w.store.removeWatcher(w)
		w.out.Stop()
	})
}

func copyRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}
