package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/remotelink-core/internal/auth"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/config"
	"github.com/nerrad567/remotelink-core/internal/infrastructure/logging"
)

// ChannelLifecycle names the device lifecycle stream.
const ChannelLifecycle = "device.lifecycle"

// Frame types on the lifecycle stream.
const (
	FrameEvent = "event"
	FramePing  = "ping"
	FramePong  = "pong"
	FrameError = "error"
)

// clientBuffer is how many frames a slow client may fall behind before
// further events are dropped for it.
const clientBuffer = 256

// Frame is one JSON message on the stream. The server sends events; a
// client may send ping frames to keep a proxy from idling the connection.
type Frame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Hub fans lifecycle events out to every connected stream client.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

// streamClient is one connection. out is never closed; done signals the
// writer to stop, so Broadcast can never send on a closed channel.
type streamClient struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newStreamClient(conn *websocket.Conn) *streamClient {
	return &streamClient{
		conn: conn,
		out:  make(chan []byte, clientBuffer),
		done: make(chan struct{}),
	}
}

func (c *streamClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// offer queues data unless the client is stopped or its buffer is full.
func (c *streamClient) offer(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.stop()
	}
}

// Broadcast sends payload to every client as an event frame on channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(Frame{
		Type:      FrameEvent,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding stream event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for c := range h.clients {
		if !c.offer(data) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("stream event dropped for slow clients", "channel", channel, "clients", dropped)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) attach(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "clients", n)
}

func (h *Hub) detach(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.stop()
	h.logger.Debug("stream client disconnected", "clients", n)
}

// handleWebSocket upgrades to the lifecycle stream. With the entitlement
// gate on, browsers pass the token as ?token= since they cannot set
// headers on an upgrade request.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.secCfg.Entitlement.Required {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = bearerToken(r)
		}
		if _, err := auth.RequireEntitled(token, s.secCfg.JWT.Secret, s.secCfg.JWT.Issuer); err != nil {
			writeAuthError(w, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newStreamClient(conn)
	s.hub.attach(c)
	go s.hub.write(c)
	go s.hub.read(c)
}

func (h *Hub) deadlines() (ping, idle time.Duration) {
	ping = time.Duration(h.cfg.PingInterval) * time.Second
	return ping, ping + time.Duration(h.cfg.PongTimeout)*time.Second
}

// read answers client pings until the connection fails or goes idle.
func (h *Hub) read(c *streamClient) {
	defer func() {
		h.detach(c)
		c.conn.Close()
	}()

	_, idle := h.deadlines()
	c.conn.SetReadLimit(int64(h.cfg.MaxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(idle)) //nolint:errcheck // read fails if the conn is gone
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("stream read failed", "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any frame counts.
		c.conn.SetReadDeadline(time.Now().Add(idle)) //nolint:errcheck // read fails if the conn is gone

		var in Frame
		reply := Frame{Type: FramePong}
		switch err := json.Unmarshal(data, &in); {
		case err != nil:
			reply = Frame{Type: FrameError, Payload: map[string]string{"message": "invalid JSON frame"}}
		case in.Type != FramePing:
			reply = Frame{Type: FrameError, Payload: map[string]string{"message": "unsupported frame type: " + in.Type}}
		}
		reply.ID = in.ID
		reply.Timestamp = time.Now().UTC().Format(time.RFC3339)
		if out, err := json.Marshal(reply); err == nil {
			c.offer(out)
		}
	}
}

// write drains the client's queue and keeps the connection alive with
// protocol pings until the client is stopped.
func (h *Hub) write(c *streamClient) {
	ping, _ := h.deadlines()
	writeWait := time.Duration(h.cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait)) //nolint:errcheck // closing anyway
			return
		case data := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write below reports it
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write below reports it
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
