package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/ocrdesk/internal/models"
	"github.com/raphaelgruber/ocrdesk/internal/notify"
)

// Websocket message types.
const (
	MessageJobUpdate = "job_update"
	MessageToast     = "toast"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	sendBuffer   = 64
)

// Message is one websocket event.
type Message struct {
	Type      string           `json:"type"`
	Job       *models.Job      `json:"job,omitempty"`
	Toast     *models.Toast    `json:"toast,omitempty"`
	ToastKind notify.EventKind `json:"toastKind,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans job and toast events out to websocket clients.
// Each client has its own writer goroutine; a client that cannot keep up is dropped.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

// NewHub creates a hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// The desk is served locally; the SPA dev server runs on another port.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[*hubClient]struct{}),
	}
}

// JobUpdated broadcasts a job change.
func (h *Hub) JobUpdated(job models.Job) {
	h.Broadcast(Message{Type: MessageJobUpdate, Job: &job, Timestamp: job.UpdatedAt})
}

// ToastEvent broadcasts a toast push or dismissal.
func (h *Hub) ToastEvent(ev notify.Event) {
	toast := ev.Toast
	h.Broadcast(Message{Type: MessageToast, Toast: &toast, ToastKind: ev.Kind, Timestamp: time.Now().UTC()})
}

// Broadcast sends msg to every connected client without blocking.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
			h.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)

	go h.writeLoop(c)
	h.readLoop(c)

	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
	h.logger.Debug("websocket client disconnected")
}

// readLoop discards client messages and keeps the read deadline fresh.
func (h *Hub) readLoop(c *hubClient) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeLocked unregisters c and stops its writer. Caller must hold h.mu.
func (h *Hub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}
