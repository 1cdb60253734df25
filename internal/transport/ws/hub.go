// Package ws broadcasts domain events to websocket subscribers.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"midgardFeed/internal/model"
	"midgardFeed/internal/observability"
)

// Path is where the hub is mounted by the CLI.
const Path = "/events"

type HubConfig struct {
	ClientBuffer int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		ClientBuffer: 256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.send) })
}

// Hub is a listener that fans every event out to the connected clients as a
// JSON text message. A client that cannot keep up is disconnected.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(cfg HubConfig, logger *zap.Logger, metrics *observability.Metrics) *Hub {
	defaults := DefaultHubConfig()
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = defaults.ClientBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// Handler upgrades requests and subscribes them to the stream.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(h.serve)
}

// Len is the number of subscribed clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ReceiveEvent never blocks on a client.
func (h *Hub) ReceiveEvent(event model.DomainEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("marshal event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow websocket client", zap.String("remote", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
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

func (h *Hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.cfg.ClientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.cfg.WriteTimeout))
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.metrics.SetClients(len(h.clients))
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop discards inbound messages and unsubscribes on the first error.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.mu.Lock()
			h.removeLocked(c)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.mu.Lock()
				h.removeLocked(c)
				h.mu.Unlock()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.mu.Lock()
				h.removeLocked(c)
				h.mu.Unlock()
				return
			}
		}
	}
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.stop()
	h.metrics.SetClients(len(h.clients))
}
