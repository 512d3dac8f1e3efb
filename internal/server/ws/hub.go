// Package ws forwards signal bus events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/event"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// Frame formats a client can ask for.
const (
	FormatProto = "proto"
	FormatJSON  = "json"
)

// defaultChannels are the bus channels the hub subscribes to.
var defaultChannels = []string{
	event.ChannelOpportunity,
	event.ChannelCycle,
	event.ChannelChain,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

type frame struct {
	kind int
	data []byte
}

// client represents a single WebSocket connection.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan frame
	mu     sync.RWMutex
	subs   map[string]bool
	format string
}

// subscribeMsg is the JSON control message a client may send.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
	Format   string   `json:"format"`
}

// broadcastMsg carries a bus message with its source channel.
type broadcastMsg struct {
	channel string
	data    []byte
}

// Hub manages connected clients and fans bus messages out to those
// subscribed to the message's channel.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// NewHub creates a hub bridging bus to WebSocket clients.
func NewHub(bus domain.SignalBus, mode string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	mode = strings.TrimSpace(strings.ToLower(mode))
	if mode == "" {
		mode = "unknown"
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       mode,
		startedAt:  time.Now().UTC(),
	}
}

// Run subscribes to the bus channels and serves registrations and broadcasts
// until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	if h.bus != nil {
		for _, ch := range defaultChannels {
			go h.subscribeToChannel(ctx, ch)
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// fanOut delivers msg to every subscribed client in its requested format.
// JSON is transcoded at most once per message.
func (h *Hub) fanOut(msg broadcastMsg) {
	var (
		jsonData []byte
		jsonErr  error
	)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(msg.channel) {
			continue
		}
		f := frame{kind: websocket.BinaryMessage, data: msg.data}
		if c.wantsJSON() {
			if jsonData == nil && jsonErr == nil {
				if jsonData, jsonErr = event.ToJSON(msg.data); jsonErr != nil {
					h.logger.Warn("bus message not transcodable to json",
						slog.String("channel", msg.channel),
						slog.String("error", jsonErr.Error()),
					)
				}
			}
			if jsonErr != nil {
				continue
			}
			f = frame{kind: websocket.TextMessage, data: jsonData}
		}
		select {
		case c.send <- f:
		default:
			h.logger.Warn("dropping message for slow client")
		}
	}
}

// subscribeToChannel forwards messages of one bus channel to the hub.
func (h *Hub) subscribeToChannel(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("subscribed to channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("channel subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.broadcast <- broadcastMsg{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the client. ?format=json
// selects JSON text frames instead of protobuf binary frames.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan frame, sendBufferSize),
		subs:   make(map[string]bool, len(defaultChannels)),
		format: normaliseFormat(r.URL.Query().Get("format")),
	}
	for _, ch := range defaultChannels {
		c.subs[ch] = true
	}

	c.sendInitialStatus()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func normaliseFormat(f string) string {
	if strings.EqualFold(strings.TrimSpace(f), FormatJSON) {
		return FormatJSON
	}
	return FormatProto
}

// readPump handles subscription control messages until the connection
// closes.
func (c *client) readPump() {
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil {
			c.handleControl(sub)
		}
	}
}

func (c *client) handleControl(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
	if msg.Format != "" {
		c.format = normaliseFormat(msg.Format)
	}
}

// sendInitialStatus pushes a hub_status envelope so clients can mark the
// connection healthy before any opportunity arrives.
func (c *client) sendInitialStatus() {
	payload := map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": max(int64(time.Since(c.hub.startedAt).Seconds()), 0),
		"channels":       []any{event.ChannelOpportunity, event.ChannelCycle, event.ChannelChain},
	}

	var (
		f   frame
		err error
	)
	if c.wantsJSON() {
		f.kind = websocket.TextMessage
		f.data, err = event.EncodeJSON("hub_status", time.Now(), payload)
	} else {
		f.kind = websocket.BinaryMessage
		f.data, err = event.Encode("hub_status", time.Now(), payload)
	}
	if err != nil {
		return
	}

	select {
	case c.send <- f:
	default:
	}
}

func (c *client) wantsJSON() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.format == FormatJSON
}

// isSubscribed checks whether the client is subscribed to channel. A trailing
// "*" in a subscription matches any suffix.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// writePump writes queued frames and periodic pings to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
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
