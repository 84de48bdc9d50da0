package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"laundry-control-backend/internal/controller"
)

const (
	// clientSendBuffer is the per-client outbound message buffer size.
	clientSendBuffer = 256

	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// replayTopics are sent to every newly connected client so it starts from the
// current session state instead of waiting for the next change.
var replayTopics = []string{
	controller.TopicStateUpdate,
	controller.TopicSavedPreferences,
	controller.TopicCloudLogin,
	controller.TopicCloudDevices,
	controller.TopicDiscoveredAddresses,
}

// Event is the envelope of every outbound message.
type Event struct {
	Topic     string `json:"topic"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// Dispatcher forwards notification keys to push subscribers.
type Dispatcher interface {
	Dispatch(key string)
}

// CommandSink accepts raw commands from the UI.
type CommandSink interface {
	Submit(ctx context.Context, raw []byte) error
}

// Hub fans controller events out to websocket clients and remembers the latest
// event of each topic.
type Hub struct {
	events  *cache.Cache
	push    Dispatcher
	clients map[*client]struct{}
	mu      sync.RWMutex
	now     func() time.Time
}

var _ controller.Emitter = (*Hub)(nil)

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub whose replay entries expire after ttl. push may be nil.
func NewHub(ttl time.Duration, push Dispatcher) *Hub {
	return &Hub{
		events:  cache.New(ttl, 2*ttl),
		push:    push,
		clients: make(map[*client]struct{}),
		now:     time.Now,
	}
}

// Emit implements controller.Emitter.
func (h *Hub) Emit(topic string, payload any) {
	event := Event{
		Topic:     topic,
		Payload:   payload,
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return
	}
	h.events.SetDefault(topic, data)

	if topic == controller.TopicNotification && h.push != nil {
		if key, ok := payload.(string); ok {
			h.push.Dispatch(key)
		}
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(data)
	}
	log.Debug().Str("topic", topic).Int("recipients", len(clients)).Msg("Event emitted")
}

// Latest returns the encoded last event of topic, if it has not expired.
func (h *Hub) Latest(topic string) ([]byte, bool) {
	v, ok := h.events.Get(topic)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run blocks until ctx is cancelled and then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	for _, topic := range replayTopics {
		if data, ok := h.Latest(topic); ok {
			c.trySend(data)
		}
	}
	log.Debug().Str("client", c.id).Int("clients", h.ClientCount()).Msg("Websocket client connected")
}

// unregister removes c. Only the caller that removes it closes its send channel.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	log.Debug().Str("client", c.id).Int("clients", h.ClientCount()).Msg("Websocket client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

// serve upgrades the request and pumps messages until the client goes away.
// Inbound text frames are handed to sink as commands.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, sink CommandSink) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &client{id: uuid.NewString(), hub: h, conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.register(c)

	go c.writePump()
	c.readPump(r.Context(), sink)
}

func (c *client) readPump(ctx context.Context, sink CommandSink) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("Websocket read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			continue
		}
		if err := sink.Submit(ctx, message); err != nil {
			log.Warn().Err(err).Str("client", c.id).Msg("Could not queue command")
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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

// trySend drops the message when the client is slow or already gone.
func (c *client) trySend(data []byte) {
	defer func() {
		recover()
	}()

	select {
	case c.send <- data:
	default:
	}
}
