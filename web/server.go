package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"hotkeyd/engine"
	"hotkeyd/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // status server is meant to bind to localhost
	},
}

// RuleSource exposes the engine's live state to the server
type RuleSource interface {
	Rules() *engine.Rules
	State() engine.State
	Started() time.Time
}

// Server serves daemon status over HTTP and streams triggers over websocket
type Server struct {
	addr     string
	rules    RuleSource
	db       *storage.DB // nil when history is disabled
	hub      *Hub
	listener net.Listener
	server   *http.Server
}

// NewServer creates a status server; db may be nil
func NewServer(addr string, rules RuleSource, db *storage.DB) *Server {
	hub := NewHub()
	go hub.Run()

	return &Server{
		addr:  addr,
		rules: rules,
		db:    db,
		hub:   hub,
	}
}

// Handler returns the server's routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/bindings", s.handleBindings)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return mux
}

// Start listens on the configured address and serves in the background
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler: s.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("Status server error", "error", err)
		}
	}()

	slog.Info("Starting status server", "url", "http://"+s.Addr())
	return nil
}

// Addr returns the bound listen address, once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down and disconnects websocket clients
func (s *Server) Stop() error {
	s.hub.Stop()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Record broadcasts a trigger to websocket clients
func (s *Server) Record(t engine.Trigger) {
	msg := TriggerMessage{
		Binding:    t.Binding,
		Action:     t.Action,
		Kind:       t.Kind.String(),
		Device:     t.Device,
		Key:        t.Key,
		DurationMs: t.Duration.Milliseconds(),
		Success:    t.Err == nil,
		DryRun:     t.DryRun,
		Timestamp:  t.Started.UTC().Format(time.RFC3339),
	}
	if t.Err != nil {
		msg.Error = t.Err.Error()
	}
	s.hub.BroadcastMessage(Message{Type: MessageTypeTrigger, Data: msg})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
