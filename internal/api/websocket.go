package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/enriched/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Hub tracks connected WebSocket clients and broadcasts store events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// Client is one WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	bucket *messageBucket

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	logging.WebSocketEvent("client_connected", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		c.close()
		logging.WebSocketEvent("client_disconnected", n)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends v as JSON to every client. Clients whose queue is full
// miss the message.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.GetLogger().Error("failed to marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.enqueue(data) {
			logging.GetLogger().Warn("client queue full, dropping broadcast")
		}
	}
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
	if len(clients) > 0 {
		logging.WebSocketEvent("clients_closed", 0, "count", len(clients))
	}
}

// enqueue queues data for the write pump. It reports false when the client
// is closed or its queue is full.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close ends the write pump, which then closes the connection.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
				return true
			}
			if isOriginAllowed(origin, s.cfg.AllowedOrigins) {
				return true
			}
			logging.SecurityEvent("websocket_origin_rejected", "api",
				"origin", origin,
				"remote_addr", r.RemoteAddr)
			return false
		},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		logging.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(s.cfg.MaxBodyBytes)

	c := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if s.cfg.MaxMessageRate > 0 {
		c.bucket = newMessageBucket(s.cfg.MaxMessageRate)
	}
	s.hub.register(c)

	go c.writePump()
	go s.readPump(c)
}

// readPump answers each request frame in order until the connection fails.
func (s *Server) readPump(c *Client) {
	defer c.hub.unregister(c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.GetLogger().Debug("websocket closed", "error", err)
			}
			return
		}

		if c.bucket != nil && !c.bucket.allow() {
			logging.SecurityEvent("websocket_rate_limited", "api")
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "rate limit exceeded"),
				time.Now().Add(writeWait))
			return
		}

		data, err := json.Marshal(s.answer(message))
		if err != nil {
			logging.GetLogger().Error("failed to marshal reply", "error", err)
			continue
		}
		if !c.enqueue(data) {
			logging.GetLogger().Warn("client queue full, dropping reply")
		}
	}
}

// answer runs one request frame.
func (s *Server) answer(message []byte) ConvertResult {
	var req ConvertRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return ConvertResult{Error: "request must be a JSON object: " + err.Error()}
	}

	op := s.op(req.Op)
	if op == nil {
		return ConvertResult{ID: req.ID, Error: "unknown op " + req.Op}
	}

	ctx := logging.WithRequestID(context.Background(), logging.NewRequestID())
	res, err := op(ctx, req)
	if err != nil {
		return ConvertResult{ID: req.ID, Error: err.Error()}
	}
	return *res
}

// writePump sends queued messages, one per frame, and keeps the
// connection alive with pings.
func (c *Client) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// messageBucket is a token bucket allowing a burst of twice the rate.
type messageBucket struct {
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	last     time.Time
}

func newMessageBucket(perSecond int) *messageBucket {
	capacity := float64(perSecond) * 2
	return &messageBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     float64(perSecond),
		last:     time.Now(),
	}
}

// allow takes a token if one is available. Only the read pump calls it.
func (b *messageBucket) allow() bool {
	now := time.Now()
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}
