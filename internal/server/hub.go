package server

import (
	"encoding/json"
	"sync"
	"time"

	"pix-deposit-go/internal/session"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	replaySize   = 32
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Hub fans session events out to websocket subscribers. Recent events are
// kept per session so a late subscriber still sees the outcome.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[*client]struct{}
	recent  map[string][]session.Event
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		recent:  make(map[string][]session.Event),
	}
}

// Notifier returns the hub as a session notifier, suitable as a
// session.NotifierFactory. Events carry their session id.
func (h *Hub) Notifier(string) session.Notifier {
	return session.NotifierFunc(h.Publish)
}

func (h *Hub) Publish(e session.Event) {
	h.mu.Lock()
	recent := append(h.recent[e.SessionId], e)
	if len(recent) > replaySize {
		recent = recent[len(recent)-replaySize:]
	}
	h.recent[e.SessionId] = recent

	targets := make([]*client, 0, len(h.clients[e.SessionId]))
	for c := range h.clients[e.SessionId] {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(e)
	}
}

// Forget drops the replay buffer and disconnects subscribers of a session
func (h *Hub) Forget(sessionId string) {
	h.mu.Lock()
	clients := h.clients[sessionId]
	delete(h.clients, sessionId)
	delete(h.recent, sessionId)
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// Subscribers returns the number of connected clients for a session
func (h *Hub) Subscribers(sessionId string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[sessionId])
}

// Serve registers conn for sessionId, replays recent events and blocks
// until the connection closes.
func (h *Hub) Serve(sessionId string, conn *websocket.Conn) {
	c := &client{
		sessionId: sessionId,
		conn:      conn,
		send:      make(chan session.Event, sendBuffer),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	if h.clients[sessionId] == nil {
		h.clients[sessionId] = make(map[*client]struct{})
	}
	h.clients[sessionId][c] = struct{}{}
	replay := append([]session.Event(nil), h.recent[sessionId]...)
	h.mu.Unlock()

	zap.L().Info("WebSocket client registered",
		zap.String("session_id", sessionId),
		zap.Int("replay", len(replay)))

	for _, e := range replay {
		c.enqueue(e)
	}

	go c.writePump()
	c.readPump()

	h.mu.Lock()
	if clients, ok := h.clients[sessionId]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.clients, sessionId)
		}
	}
	h.mu.Unlock()

	zap.L().Info("WebSocket client unregistered", zap.String("session_id", sessionId))
}

type client struct {
	sessionId string
	conn      *websocket.Conn
	send      chan session.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) enqueue(e session.Event) {
	select {
	case c.send <- e:
	case <-c.done:
	default:
		zap.L().Warn("WebSocket send buffer full, dropping event",
			zap.String("session_id", c.sessionId),
			zap.String("type", string(e.Type)))
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump discards inbound messages and keeps the read deadline fresh
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zap.L().Warn("Unexpected WebSocket close", zap.String("session_id", c.sessionId), zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case e := <-c.send:
			data, err := json.Marshal(e)
			if err != nil {
				zap.L().Error("Failed to marshal session event", zap.String("session_id", c.sessionId), zap.Error(err))
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
