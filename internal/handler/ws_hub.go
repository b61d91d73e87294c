package handler

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/baghchal/api/pkg/baghchal"
)

// EventConnected is sent once when a connection is established.
const EventConnected = "connected"

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Data    any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action  string `json:"action"` // "subscribe" or "unsubscribe"
	Channel string `json:"channel"`
}

// TrainingChannel is the channel carrying a side's training events.
func TrainingChannel(side string) string { return "training:" + side }

// validChannel reports whether name is a channel clients may subscribe to.
func validChannel(name string) bool {
	side, ok := strings.CutPrefix(name, "training:")
	if !ok {
		return false
	}
	s, err := baghchal.ParseSide(side)
	return err == nil && s.String() == side
}

// WSConn wraps a WebSocket connection with its user and subscriptions.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub manages WebSocket connections and channel subscriptions.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	channels    map[string]map[*WSConn]bool // channel -> set of connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		channels:    make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connections[c] {
		return
	}
	delete(h.connections, c)
	for name, conns := range h.channels {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.channels, name)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to a channel.
func (h *Hub) Subscribe(c *WSConn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*WSConn]bool)
	}
	h.channels[channel][c] = true
}

// Unsubscribe removes a connection from a channel.
func (h *Hub) Unsubscribe(c *WSConn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.channels[channel]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Broadcast sends an event to all connections subscribed to its channel.
func (h *Hub) Broadcast(event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("channel", event.Channel).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.channels[event.Channel] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("userId", c.userID).Str("channel", event.Channel).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// SubscriberCount returns the number of connections subscribed to a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
