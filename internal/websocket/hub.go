package websocket

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/wire"
)

// Hub maintains active WebSocket connections on top of the broadcast store
type Hub struct {
	store    *broadcast.Store
	keyspace broadcast.Keyspace
	secret   string

	// Registered clients (connection ID -> Client)
	clients map[string]*Client

	// Outbound events fanned out to every client
	events chan *Message

	// Mutex for thread-safe client map access
	mu sync.RWMutex
}

// Message is an event for every connected client
type Message struct {
	Data interface{}
}

// NewHub creates a new Hub instance. secret verifies driver tokens.
func NewHub(store *broadcast.Store, keyspace broadcast.Keyspace, secret string) *Hub {
	return &Hub{
		store:    store,
		keyspace: keyspace,
		secret:   secret,
		clients:  make(map[string]*Client),
		events:   make(chan *Message, 256),
	}
}

// Run fans out queued events until done is closed
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-h.events:
			data, err := json.Marshal(msg.Data)
			if err != nil {
				log.Printf("❌ Failed to marshal broadcast message: %v", err)
				continue
			}
			h.mu.RLock()
			for _, client := range h.clients {
				h.deliverLocked(client, data)
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastAll queues an event for every connected client
func (h *Hub) BroadcastAll(data interface{}) {
	h.queue(&Message{Data: data})
}

// StopArrivalFrame wraps an arrival event for BroadcastAll
func StopArrivalFrame(ev wire.StopArrival) wire.Frame {
	raw, _ := json.Marshal(ev)
	return wire.Frame{Type: wire.TypeStopArrival, Value: raw, Timestamp: time.Now().UnixMilli()}
}

func (h *Hub) queue(msg *Message) {
	select {
	case h.events <- msg:
	default:
		log.Printf("⚠️  Event queue full, dropping broadcast")
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("✅ [WEBSOCKET] Client CONNECTED")
	log.Printf("   Connection ID: %s", c.ID)
	log.Printf("   User ID: %s", c.UserID)
	log.Printf("   Role: %s", c.Role)
	log.Printf("   Total connected clients: %d", total)
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.ID] != c {
		return
	}
	delete(h.clients, c.ID)
	close(c.send)

	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("🔴 [WEBSOCKET] Client DISCONNECTED")
	log.Printf("   Connection ID: %s", c.ID)
	log.Printf("   User ID: %s", c.UserID)
	log.Printf("   Remaining connected clients: %d", len(h.clients))
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// deliver queues data for c unless it has been unregistered
func (h *Hub) deliver(c *Client, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[c.ID] != c {
		return
	}
	h.deliverLocked(c, data)
}

func (h *Hub) deliverLocked(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		// value frames cannot be skipped, so a full buffer ends the connection
		log.Printf("⚠️  Client buffer full, disconnecting: %s", c.ID)
		c.conn.Close()
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetConnectedClientIDs returns the connected client IDs, sorted
func (h *Hub) GetConnectedClientIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
