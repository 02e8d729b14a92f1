package websocket

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/rcourtman/harborview/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64, // snapshots of large engines run to hundreds of KB
	WriteBufferSize: 1024 * 64,
	CheckOrigin:     isAllowedOrigin,
}

// Client is one connected UI.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Message is the envelope for everything sent over the socket.
type Message struct {
	ID   string      `json:"id,omitempty"`
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// StateGetter returns the last broadcast snapshot, if any.
type StateGetter func() (models.EngineState, bool)

// Hub maintains connected clients and fans snapshot notifications out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	getState   StateGetter
	logger     zerolog.Logger
	done       chan struct{}
	stopOnce   sync.Once
}

// NewHub creates a new hub. getState may be nil.
func NewHub(getState StateGetter, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		getState:   getState,
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "websocket-hub").Logger(),
	}
}

// SetStateGetter sets the state getter function.
func (h *Hub) SetStateGetter(getState StateGetter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.getState = getState
}

// Run starts the hub's main loop and returns when ctx is cancelled, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.done) })
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info().Str("client", client.id).Msg("WebSocket client connected")
			client.sendState("initialState")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.mu.Unlock()
				h.logger.Info().Str("client", client.id).Msg("WebSocket client disconnected")
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.logger.Warn().Str("client", client.id).Msg("WebSocket client too slow; dropping")
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// HandleWebSocket handles WebSocket upgrade requests.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		id:   uuid.NewString(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Broadcast sends a named snapshot notification to every client.
func (h *Hub) Broadcast(event string, state models.EngineState) {
	h.broadcastMessage(Message{Type: event, Data: state})
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastMessage(msg Message) {
	data, err := encode(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	select {
	case h.broadcast <- data:
		return
	default:
	}
	// Every message carries a full snapshot, so the newest one wins.
	select {
	case <-h.broadcast:
		h.logger.Warn().Str("type", msg.Type).Msg("WebSocket broadcast channel full, dropping oldest message")
	default:
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn().Str("type", msg.Type).Msg("WebSocket broadcast channel full")
	}
}

func encode(msg Message) ([]byte, error) {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	return json.Marshal(msg)
}

// enqueue queues data for the client unless it has already been removed.
func (c *Client) enqueue(data []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn().Str("client", c.id).Msg("Client send buffer full, skipping message")
	}
}

func (c *Client) sendState(messageType string) {
	c.hub.mu.RLock()
	getState := c.hub.getState
	c.hub.mu.RUnlock()
	if getState == nil {
		return
	}
	state, ok := getState()
	if !ok {
		return
	}
	data, err := encode(Message{Type: messageType, Data: state})
	if err != nil {
		c.hub.logger.Error().Err(err).Str("client", c.id).Msg("Failed to marshal state")
		return
	}
	c.enqueue(data)
}

// readPump handles incoming messages from the client.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Warn().Err(err).Str("client", c.id).Msg("WebSocket read error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.logger.Debug().Err(err).Str("client", c.id).Msg("Ignoring malformed WebSocket message")
			continue
		}

		switch msg.Type {
		case "ping":
			if data, err := encode(Message{Type: "pong", Data: map[string]int64{"timestamp": time.Now().Unix()}}); err == nil {
				c.enqueue(data)
			}
		case "requestState":
			c.sendState("state")
		default:
			c.hub.logger.Debug().Str("client", c.id).Str("type", msg.Type).Msg("Received WebSocket message")
		}
	}
}

// writePump handles outgoing messages to the client.
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
				c.hub.logger.Debug().Err(err).Str("client", c.id).Msg("Failed to write message")
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

// isAllowedOrigin accepts same-host and loopback origins. Requests without an
// Origin header come from non-browser clients and are allowed.
func isAllowedOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
