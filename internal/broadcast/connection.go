package broadcast

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Connection is one client's session with a Store. It implements Service.
// When Disconnect is called, every cleanup registered through it that was not
// cancelled runs against the store, whether or not the client stopped gracefully.
type Connection struct {
	id    string
	store *Store

	mu           sync.Mutex
	cleanups     map[string]*cleanupRegistration
	subs         map[uint64]*watcher
	disconnected bool
}

type cleanupRegistration struct {
	id     string
	action CleanupAction
	conn   *Connection
}

// ID identifies the connection
func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Put(ctx context.Context, key string, value interface{}) error {
	if !c.connected() {
		return ErrNotConnected
	}
	return c.store.Put(ctx, key, value)
}

func (c *Connection) Delete(ctx context.Context, key string) error {
	if !c.connected() {
		return ErrNotConnected
	}
	return c.store.Delete(ctx, key)
}

// Subscribe registers onChange; the subscription is dropped on disconnect
func (c *Connection) Subscribe(ctx context.Context, key string, onChange ChangeFunc) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return nil, ErrNotConnected
	}

	w, err := c.store.subscribe(ctx, key, onChange)
	if err != nil {
		return nil, err
	}
	c.subs[w.id] = w
	return &connSubscription{conn: c, w: w}, nil
}

// RegisterDisconnectCleanup schedules action to run when this connection disconnects
func (c *Connection) RegisterDisconnectCleanup(ctx context.Context, action CleanupAction) (CleanupRegistration, error) {
	if action.Op != CleanupDelete {
		return nil, ErrUnsupportedAction
	}
	if err := validKey(action.Key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnected {
		return nil, ErrNotConnected
	}

	reg := &cleanupRegistration{id: uuid.New().String(), action: action, conn: c}
	c.cleanups[reg.id] = reg
	return reg, nil
}

// PendingCleanups returns the actions that would run on disconnect
func (c *Connection) PendingCleanups() []CleanupAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CleanupAction, 0, len(c.cleanups))
	for _, reg := range c.cleanups {
		out = append(out, reg.action)
	}
	return out
}

// Disconnect runs pending cleanups and drops subscriptions. Safe to call more than once.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	cleanups := c.cleanups
	subs := c.subs
	c.cleanups = nil
	c.subs = nil
	c.mu.Unlock()

	for _, w := range subs {
		w.Unsubscribe()
	}

	for _, reg := range cleanups {
		if err := c.store.Delete(context.Background(), reg.action.Key); err != nil {
			log.Printf("❌ [BROADCAST] Disconnect cleanup failed for %s: %v", reg.action.Key, err)
			continue
		}
		log.Printf("🔴 [BROADCAST] Disconnect cleanup removed %s (connection %s)", reg.action.Key, c.id)
	}
}

func (c *Connection) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disconnected
}

func (r *cleanupRegistration) Action() CleanupAction {
	return r.action
}

// Cancel removes the registration. Cancelling twice, or after disconnect, is a no-op.
func (r *cleanupRegistration) Cancel(ctx context.Context) error {
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()
	delete(r.conn.cleanups, r.id)
	return nil
}

type connSubscription struct {
	conn *Connection
	w    *watcher
}

func (s *connSubscription) Unsubscribe() {
	s.conn.mu.Lock()
	delete(s.conn.subs, s.w.id)
	s.conn.mu.Unlock()
	s.w.Unsubscribe()
}
