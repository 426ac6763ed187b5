package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/insider-one/dispatch-service/internal/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHub fans dispatch events out to connected clients
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	broadcast  chan *EventMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
	logger     *slog.Logger
	mu         sync.RWMutex
}

// WebSocketClient represents a WebSocket client connection
type WebSocketClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
	id   string

	mu     sync.RWMutex
	filter *EventFilter
}

// EventFilter narrows the events a client receives. Empty lists match everything;
// every non-empty list must match.
type EventFilter struct {
	Channels  []domain.Channel     `json:"channels,omitempty"`
	TenantIDs []string             `json:"tenant_ids,omitempty"`
	Outcomes  []domain.OutcomeKind `json:"outcomes,omitempty"`
}

// Matches reports whether event passes the filter
func (f *EventFilter) Matches(event *domain.DispatchEvent) bool {
	if f == nil {
		return true
	}
	if len(f.Channels) > 0 && !slices.Contains(f.Channels, event.Channel) {
		return false
	}
	if len(f.TenantIDs) > 0 && !slices.Contains(f.TenantIDs, event.TenantID) {
		return false
	}
	if len(f.Outcomes) > 0 && !slices.Contains(f.Outcomes, event.Outcome) {
		return false
	}
	return true
}

// EventMessage is the frame pushed to clients for each dispatch
type EventMessage struct {
	Type      string                `json:"type"`
	Event     *domain.DispatchEvent `json:"event"`
	Timestamp time.Time             `json:"timestamp"`
}

// SubscribeMessage represents a subscription request from client
type SubscribeMessage struct {
	Action string      `json:"action"`
	Filter EventFilter `json:"filter"`
}

// NewWebSocketHub creates a new WebSocketHub
func NewWebSocketHub(logger *slog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan *EventMessage, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *WebSocketHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
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
			h.logger.Info("websocket client connected", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected", "client_id", client.id)

		case msg := <-h.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("failed to marshal dispatch event", "error", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				if client.shouldReceive(msg.Event) {
					select {
					case client.send <- payload:
					default:
						// Client buffer full, skip
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastEvent queues a dispatch event for delivery. It never blocks the dispatcher.
func (h *WebSocketHub) BroadcastEvent(event *domain.DispatchEvent) {
	msg := &EventMessage{
		Type:      "dispatch",
		Event:     event,
		Timestamp: time.Now().UTC(),
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "event_id", event.ID)
	}
}

// GetClientCount returns the number of connected clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *WebSocketClient) shouldReceive(event *domain.DispatchEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter.Matches(event)
}

func (c *WebSocketClient) setFilter(filter *EventFilter) {
	c.mu.Lock()
	c.filter = filter
	c.mu.Unlock()
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub *WebSocketHub
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleWebSocket handles WebSocket upgrade and connection. Query parameters
// channel, tenant and outcome set the initial filter.
// @Summary Dispatch event stream
// @Description Stream dispatch events; send {"action":"subscribe","filter":{...}} to narrow it
// @Tags websocket
// @Param channel query string false "Channel filter"
// @Param tenant query string false "Tenant filter"
// @Param outcome query string false "Outcome filter"
// @Success 101 {string} string "Switching Protocols"
// @Router /ws [get]
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Error("failed to upgrade websocket", "error", err)
		return
	}

	client := &WebSocketClient{
		hub:    h.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		id:     uuid.New().String(),
		filter: filterFromQuery(r),
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func filterFromQuery(r *http.Request) *EventFilter {
	q := r.URL.Query()
	filter := &EventFilter{}
	for _, ch := range q["channel"] {
		filter.Channels = append(filter.Channels, domain.Channel(ch))
	}
	filter.TenantIDs = append(filter.TenantIDs, q["tenant"]...)
	for _, o := range q["outcome"] {
		filter.Outcomes = append(filter.Outcomes, domain.OutcomeKind(o))
	}

	if len(filter.Channels) == 0 && len(filter.TenantIDs) == 0 && len(filter.Outcomes) == 0 {
		return nil
	}
	return filter
}

// readPump reads subscription changes until the peer goes away
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("websocket error", "error", err)
			}
			break
		}

		var subMsg SubscribeMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			continue
		}

		switch subMsg.Action {
		case "subscribe":
			filter := subMsg.Filter
			c.setFilter(&filter)
			c.hub.logger.Info("client subscribed with filter",
				"client_id", c.id,
				"filter", filter,
			)
		case "unsubscribe":
			c.setFilter(nil)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *WebSocketClient) writePump() {
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
				// Hub closed the channel
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
