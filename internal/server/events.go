package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/emberguard/internal/response"
	"github.com/ayusman/emberguard/internal/sensor"
)

const (
	writeWait = 5 * time.Second

	// sendBuffer is how many events a client may fall behind before it is
	// dropped.
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Event is one message pushed to websocket clients.
type Event struct {
	Type string    `json:"type"` // reading, episode
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// client is one websocket connection and its outgoing queue. Only the
// client's own write loop writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts readings and episodes to websocket clients. It is both a
// sample sink and an episode sink. Broadcast only queues, so a stalled
// client never holds up the caller.
type Hub struct {
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		now:     time.Now,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer h.remove(c)

	go h.writeLoop(c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writeLoop drains the client's queue until it is closed or a write fails.
func (h *Hub) writeLoop(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			return
		}
	}
}

// remove unregisters c and closes its queue. Safe to call more than once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues an event for every client. A client whose queue is full
// is disconnected.
func (h *Hub) Broadcast(typ string, data any) {
	msg, err := json.Marshal(Event{Type: typ, Time: h.now(), Data: data})
	if err != nil {
		h.logger.Error("failed to encode event", "type", typ, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			close(c.send)
			c.conn.Close()
		}
	}
}

// RecordSample broadcasts a reading event.
func (h *Hub) RecordSample(_ context.Context, s sensor.Sample) error {
	h.Broadcast("reading", s)
	return nil
}

// Report broadcasts an episode event.
func (h *Hub) Report(_ context.Context, r *response.EpisodeResult) error {
	h.Broadcast("episode", r)
	return nil
}
