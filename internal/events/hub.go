package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn     *websocket.Conn
	traderID string
	mu       sync.Mutex
}

// Hub pushes events to connected websocket clients. A client that connects
// with ?trader_id= only receives that trader's events.
type Hub struct {
	clients   map[*wsClient]bool
	clientsMu sync.RWMutex
	log       *zap.Logger
}

// NewHub creates a new hub
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{clients: make(map[*wsClient]bool), log: log.Named("ws")}
}

func (h *Hub) Name() string { return "websocket" }

// Send writes ev to every matching client, dropping clients that fail
func (h *Hub) Send(_ context.Context, ev Event) error {
	data, err := ev.encode()
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		if c.traderID == "" || c.traderID == ev.TraderID {
			targets = append(targets, c)
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.log.Debug("dropping websocket client", zap.Error(err))
			h.remove(c)
		}
	}
	return nil
}

func (h *Hub) remove(c *wsClient) {
	h.clientsMu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		_ = c.conn.Close()
	}
	h.clientsMu.Unlock()
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and holds it until the peer goes away
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn, traderID: r.URL.Query().Get("trader_id")}
	h.clientsMu.Lock()
	h.clients[client] = true
	h.clientsMu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(client)
			return
		}
	}
}

// Shutdown closes every client connection
func (h *Hub) Shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}
