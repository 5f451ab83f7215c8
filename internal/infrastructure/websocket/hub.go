package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kitchenops/internal/events"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Envelope struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

type client struct {
	conn   *websocket.Conn
	branch string
	send   chan []byte
}

// Hub pushes published events to connected kitchen displays. A display can
// subscribe to one branch with ?branchId=.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{clients: make(map[*client]struct{}), logger: logger}
}

func (h *Hub) Publish(_ context.Context, topic string, payload interface{}) {
	msg, err := json.Marshal(Envelope{Topic: topic, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket event", zap.String("topic", topic), zap.Error(err))
		return
	}
	branch := ""
	if s, ok := payload.(events.Scoped); ok {
		branch = s.Branch()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.branch != "" && branch != "" && c.branch != branch {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// Slow consumers miss events rather than block the publisher.
			h.logger.Warn("websocket client lagging, event dropped", zap.String("topic", topic))
		}
	}
}

func (h *Hub) ClientsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, branch: r.URL.Query().Get("branchId"), send: make(chan []byte, 256)}
	h.add(c)
	h.logger.Info("kitchen display connected", zap.String("branchId", c.branch), zap.Int("clients", h.ClientsCount()))

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("websocket write failed", zap.Error(err))
			c.conn.Close()
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
