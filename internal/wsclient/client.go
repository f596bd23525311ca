// Package wsclient implements the broadcast service over the server's
// websocket protocol, so sessions can run in a separate process.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/wire"
)

const (
	writeWait = 10 * time.Second
	closeWait = 2 * time.Second
)

// RemoteError is a request the server rejected
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Message)
}

// Is matches sentinel errors by message, so errors.Is(err, broadcast.ErrInvalidKey) works
func (e *RemoteError) Is(target error) bool {
	return target != nil && target.Error() == e.Message
}

// Client is a remote broadcast.Service. Closing it, or losing the socket,
// makes the server run this client's disconnect cleanups.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan wire.Frame
	subs      map[string]*subscription
	onArrival func(wire.StopArrival)
	closed    bool
	err       error
	done      chan struct{}
}

// Dial connects to a broadcast websocket endpoint. An empty token connects read-only.
func Dial(ctx context.Context, endpoint, token string) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	c := &Client{
		conn:    conn,
		pending: make(map[string]chan wire.Frame),
		subs:    make(map[string]*subscription),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Put replaces the value at key. A nil value deletes the key.
func (c *Client) Put(ctx context.Context, key string, value interface{}) error {
	if value == nil {
		return c.Delete(ctx, key)
	}
	raw, ok := value.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(value); err != nil {
			return fmt.Errorf("failed to encode value for %s: %w", key, err)
		}
	}
	_, err := c.request(ctx, wire.Frame{Type: wire.TypePut, Key: key, Value: raw})
	return err
}

// Delete removes the key
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.request(ctx, wire.Frame{Type: wire.TypeDelete, Key: key})
	return err
}

// Subscribe delivers the current value at key, then every change, in order
func (c *Client) Subscribe(ctx context.Context, key string, onChange broadcast.ChangeFunc) (broadcast.Subscription, error) {
	sub := &subscription{
		c:   c,
		id:  uuid.NewString(),
		key: key,
		out: broadcast.NewDispatcher(func(snap broadcast.Snapshot) { onChange(snap) }),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.out.Stop()
		return nil, broadcast.ErrNotConnected
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	if _, err := c.request(ctx, wire.Frame{Type: wire.TypeSubscribe, Key: key, SubID: sub.id}); err != nil {
		c.dropSub(sub.id)
		sub.out.Stop()
		return nil, err
	}
	return sub, nil
}

// RegisterDisconnectCleanup asks the server to delete action.Key if this client drops
func (c *Client) RegisterDisconnectCleanup(ctx context.Context, action broadcast.CleanupAction) (broadcast.CleanupRegistration, error) {
	if action.Op != broadcast.CleanupDelete {
		return nil, broadcast.ErrUnsupportedAction
	}
	id := uuid.NewString()
	if _, err := c.request(ctx, wire.Frame{Type: wire.TypeRegisterCleanup, Key: action.Key, CleanupID: id}); err != nil {
		return nil, err
	}
	return &cleanup{c: c, id: id, action: action}, nil
}

// Ping round-trips a ping frame
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, wire.Frame{Type: wire.TypePing})
	return err
}

// OnStopArrival sets the handler for stop arrival events
func (c *Client) OnStopArrival(fn func(wire.StopArrival)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onArrival = fn
}

// Close disconnects from the server
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeWait))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(closeWait):
	}
	c.conn.Close()
	c.shutdown(broadcast.ErrNotConnected)

	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// Done is closed when the connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, nil while connected
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) request(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	f.ID = uuid.NewString()
	ch := make(chan wire.Frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wire.Frame{}, broadcast.ErrNotConnected
	}
	c.pending[f.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, f); err != nil {
		return wire.Frame{}, fmt.Errorf("failed to send %s: %w", f.Type, err)
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return ack, &RemoteError{Op: f.Type, Message: ack.Error}
		}
		return ack, nil
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	case <-c.done:
		return wire.Frame{}, broadcast.ErrNotConnected
	}
}

func (c *Client) write(ctx context.Context, f wire.Frame) error {
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteJSON(f)
}

func (c *Client) readLoop() {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("⚠️  [WSCLIENT] Connection lost: %v", err)
			}
			c.shutdown(err)
			return
		}

		frames, err := wire.Split(message)
		if err != nil {
			log.Printf("❌ [WSCLIENT] Invalid message from server: %v", err)
		}
		for _, f := range frames {
			c.dispatch(f)
		}
	}
}

func (c *Client) dispatch(f wire.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch f.Type {
	case wire.TypeAck, wire.TypePong:
		if ch, ok := c.pending[f.ID]; ok {
			ch <- f
		}
	case wire.TypeValue:
		sub, ok := c.subs[f.SubID]
		if !ok {
			return
		}
		snap := broadcast.Snapshot{Key: f.Key}
		if len(f.Value) > 0 && string(f.Value) != "null" {
			snap.Value = f.Value
		}
		sub.out.Push(snap)
	case wire.TypeStopArrival:
		if c.onArrival == nil {
			return
		}
		var ev wire.StopArrival
		if err := json.Unmarshal(f.Value, &ev); err != nil {
			log.Printf("❌ [WSCLIENT] Invalid stop arrival: %v", err)
			return
		}
		go c.onArrival(ev)
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	for id, sub := range c.subs {
		sub.out.Stop()
		delete(c.subs, id)
	}
	close(c.done)
}

func (c *Client) dropSub(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

type subscription struct {
	c    *Client
	id   string
	key  string
	out  *broadcast.Dispatcher[broadcast.Snapshot]
	once sync.Once
}

// Unsubscribe stops local delivery at once and tells the server in the background
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.c.dropSub(s.id)
		s.out.Stop()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			defer cancel()
			if _, err := s.c.request(ctx, wire.Frame{Type: wire.TypeUnsubscribe, SubID: s.id}); err != nil &&
				!errors.Is(err, broadcast.ErrNotConnected) {
				log.Printf("⚠️  [WSCLIENT] Failed to unsubscribe from %s: %v", s.key, err)
			}
		}()
	})
}

type cleanup struct {
	c      *Client
	id     string
	action broadcast.CleanupAction
}

func (r *cleanup) Action() broadcast.CleanupAction {
	return r.action
}

func (r *cleanup) Cancel(ctx context.Context) error {
	_, err := r.c.request(ctx, wire.Frame{Type: wire.TypeCancelCleanup, CleanupID: r.id})
	return err
}
