package web

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeDeadline  = 5 * time.Second
	readDeadline   = 90 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// MessageType identifies a websocket message
type MessageType string

const (
	MessageTypeTrigger MessageType = "trigger"
)

// Message is the envelope sent to websocket clients
type Message struct {
	Type MessageType `json:"type"`
	Data any         `json:"data"`
}

// TriggerMessage describes one fired action
type TriggerMessage struct {
	Binding    string `json:"binding"`
	Action     string `json:"action"`
	Kind       string `json:"kind"`
	Device     string `json:"device"`
	Key        string `json:"key"`
	DurationMs int64  `json:"durationMs"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DryRun     bool   `json:"dryRun"`
	Timestamp  string `json:"timestamp"`
}

// Client is one websocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans broadcast messages out to every connected client
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	connected  atomic.Int32
}

// NewHub creates a hub; call Run to start it
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until Stop
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.connected.Store(int32(len(h.clients)))
			slog.Debug("WebSocket client connected", "clients", len(h.clients))
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.connected.Store(int32(len(h.clients)))
				slog.Debug("WebSocket client disconnected", "clients", len(h.clients))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow client
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.connected.Store(int32(len(h.clients)))
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Stop ends Run and closes every client's send queue
func (h *Hub) Stop() {
	close(h.done)
}

// BroadcastMessage queues msg for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) BroadcastMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to encode websocket message", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Debug("WebSocket broadcast queue full, dropping message", "type", msg.Type)
	}
}

// readPump discards client input and keeps the read deadline fresh from pongs
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket read error", "error", err)
			}
			return
		}
	}
}

// writePump sends queued messages and periodic pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
