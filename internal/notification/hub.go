package notification

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CodexForgeBR/cull-engine/internal/logging"
)

// DefaultWriteTimeout bounds one message write to a client.
const DefaultWriteTimeout = 5 * time.Second

// client serialises writes to one connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v any, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Hub tracks websocket connections per user and implements Notifier.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[string]map[*client]struct{}
	log      *logging.Logger

	// WriteTimeout drops a client that cannot take a message in time.
	WriteTimeout time.Duration
}

// NewHub returns an empty hub accepting connections from any origin.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:      make(map[string]map[*client]struct{}),
		log:          logging.New("ws"),
		WriteTimeout: DefaultWriteTimeout,
	}
}

// ServeHTTP upgrades the request and registers the connection under the
// userId query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn}
	h.add(userID, c)

	// Reads only detect disconnects; clients never send anything we use.
	go func() {
		defer h.remove(userID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) add(userID string, c *client) {
	h.mu.Lock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	h.log.Debug("user %s connected (%d connections)", userID, n)
}

func (h *Hub) remove(userID string, c *client) {
	h.mu.Lock()
	set := h.clients[userID]
	if _, ok := set[c]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, userID)
		}
	}
	h.mu.Unlock()

	_ = c.conn.Close()
}

// ConnectionCount returns the number of open connections for userID.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// BroadcastToUser writes msg to every connection of userID. Connections
// whose write fails or exceeds WriteTimeout are dropped.
func (h *Hub) BroadcastToUser(userID string, msg Message) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.writeJSON(msg, h.writeTimeout()); err != nil {
			h.log.Warn("dropping connection for user %s: %v", userID, err)
			h.remove(userID, c)
		}
	}
}

func (h *Hub) writeTimeout() time.Duration {
	if h.WriteTimeout <= 0 {
		return DefaultWriteTimeout
	}
	return h.WriteTimeout
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			_ = c.conn.Close()
		}
	}
}
