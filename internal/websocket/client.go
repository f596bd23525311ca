package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/middleware"
	"campusbus-backend/internal/models"
	"campusbus-backend/internal/wire"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 2048
)

var (
	errForbidden      = errors.New("forbidden: driver role required")
	errInvalidReport  = errors.New("invalid position report")
	errUnknownSub     = errors.New("unknown subscription")
	errUnknownCleanup = errors.New("unknown cleanup")
	errUnknownType    = errors.New("unknown frame type")
)

// Client is one WebSocket connection. It owns a broadcast connection whose
// disconnect cleanups run when the socket goes away.
type Client struct {
	ID     string
	UserID string
	Role   string
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	bc     *broadcast.Connection

	mu       sync.Mutex
	subs     map[string]broadcast.Subscription
	cleanups map[string]broadcast.CleanupRegistration
}

// NewClient creates a new WebSocket client
func NewClient(claims middleware.UserClaims, conn *websocket.Conn, hub *Hub) *Client {
	bc := hub.store.Connect()
	return &Client{
		ID:       bc.ID(),
		UserID:   claims.UserID,
		Role:     claims.Role,
		conn:     conn,
		hub:      hub,
		send:     make(chan []byte, 256),
		bc:       bc,
		subs:     make(map[string]broadcast.Subscription),
		cleanups: make(map[string]broadcast.CleanupRegistration),
	}
}

// ReadPump pumps frames from the WebSocket connection into the broadcast store
func (c *Client) ReadPump() {
	defer func() {
		// fires every uncancelled cleanup for this connection
		c.bc.Disconnect()
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		frames, err := wire.Split(message)
		if err != nil {
			log.Printf("Invalid message format: %v", err)
		}
		for _, f := range frames {
			c.handle(f)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handle(f wire.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	var (
		ack = wire.Ack(f.ID, nil)
		err error
	)
	switch f.Type {
	case wire.TypePing:
		c.enqueue(wire.Frame{ID: f.ID, Type: wire.TypePong, Timestamp: time.Now().UnixMilli()})
		return
	case wire.TypePut:
		err = c.handlePut(ctx, f)
	case wire.TypeDelete:
		err = c.handleDelete(ctx, f)
	case wire.TypeSubscribe:
		ack.SubID, err = c.handleSubscribe(ctx, f)
	case wire.TypeUnsubscribe:
		err = c.handleUnsubscribe(f)
	case wire.TypeRegisterCleanup:
		ack.CleanupID, err = c.handleRegisterCleanup(ctx, f)
	case wire.TypeCancelCleanup:
		err = c.handleCancelCleanup(ctx, f)
	default:
		err = errUnknownType
	}

	if err != nil {
		log.Printf("❌ [WEBSOCKET] %s from %s failed: %v", f.Type, c.ID, err)
		ack.Error = err.Error()
	}
	if f.ID != "" {
		c.enqueue(ack)
	}
}

func (c *Client) handlePut(ctx context.Context, f wire.Frame) error {
	if err := c.checkWrite(f.Key); err != nil {
		return err
	}
	if len(f.Value) == 0 || string(f.Value) == "null" {
		return c.bc.Delete(ctx, f.Key)
	}
	if _, ok := models.ParsePositionReport(f.Value); !ok {
		return errInvalidReport
	}
	return c.bc.Put(ctx, f.Key, f.Value)
}

func (c *Client) handleDelete(ctx context.Context, f wire.Frame) error {
	if err := c.checkWrite(f.Key); err != nil {
		return err
	}
	return c.bc.Delete(ctx, f.Key)
}

func (c *Client) handleSubscribe(ctx context.Context, f wire.Frame) (string, error) {
	if !c.hub.keyspace.Contains(f.Key) {
		return "", broadcast.ErrInvalidKey
	}
	subID := f.SubID
	if subID == "" {
		subID = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.subs[subID]; exists {
		return "", errors.New("subscription id already in use")
	}

	sub, err := c.bc.Subscribe(ctx, f.Key, func(snap broadcast.Snapshot) {
		c.enqueue(wire.ValueFrame(subID, snap.Key, snap.Value))
	})
	if err != nil {
		return "", err
	}
	c.subs[subID] = sub
	return subID, nil
}

func (c *Client) handleUnsubscribe(f wire.Frame) error {
	c.mu.Lock()
	sub, ok := c.subs[f.SubID]
	delete(c.subs, f.SubID)
	c.mu.Unlock()
	if !ok {
		return errUnknownSub
	}
	sub.Unsubscribe()
	return nil
}

func (c *Client) handleRegisterCleanup(ctx context.Context, f wire.Frame) (string, error) {
	if err := c.checkWrite(f.Key); err != nil {
		return "", err
	}
	id := f.CleanupID
	if id == "" {
		id = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.cleanups[id]; exists {
		return "", errors.New("cleanup id already in use")
	}
	reg, err := c.bc.RegisterDisconnectCleanup(ctx, broadcast.DeleteAction(f.Key))
	if err != nil {
		return "", err
	}
	c.cleanups[id] = reg
	log.Printf("📌 [WEBSOCKET] Disconnect cleanup registered for %s on %s", f.Key, c.ID)
	return id, nil
}

func (c *Client) handleCancelCleanup(ctx context.Context, f wire.Frame) error {
	c.mu.Lock()
	reg, ok := c.cleanups[f.CleanupID]
	delete(c.cleanups, f.CleanupID)
	c.mu.Unlock()
	if !ok {
		return errUnknownCleanup
	}
	return reg.Cancel(ctx)
}

func (c *Client) checkWrite(key string) error {
	if c.Role != middleware.RoleDriver {
		return errForbidden
	}
	if !c.hub.keyspace.Contains(key) {
		return broadcast.ErrInvalidKey
	}
	return nil
}

func (c *Client) enqueue(f wire.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("❌ Failed to marshal frame: %v", err)
		return
	}
	c.hub.deliver(c, data)
}
