package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ChannelSnapshot is one source channel's observable state (spec §4.4,
// §4.7 "a read-only monitoring surface").
type ChannelSnapshot struct {
	Channel  int    `json:"channel"`
	EarlyKey string `json:"earlyKey"`
	LateKey  string `json:"lateKey,omitempty"`
}

// Snapshot is the full monitoring payload broadcast to every websocket
// client and served from /api/state.
type Snapshot struct {
	Channels         []ChannelSnapshot `json:"channels"`
	PausePlayback    bool              `json:"pausePlayback"`
	PauseConvolution bool              `json:"pauseConvolution"`
	PeakLevel        float32           `json:"peakLevel"`
}

// Monitor supplies the current Snapshot; control.State plus a pipeline's
// LastPeak are wired together by an adapter in main.go.
type Monitor interface {
	Snapshot() Snapshot
}

// Server is the read-only monitoring web server (grounded on the
// teacher's web.Server, cut to its state-broadcast subset: no
// set_wet/set_dry/set_ir control path, since control in this system is
// OSC-only).
type Server struct {
	monitor    Monitor
	port       int
	hub        *Hub
	httpServer *http.Server
}

// NewServer builds a Server that reports monitor's snapshots on port.
func NewServer(monitor Monitor, port int) *Server {
	return &Server{monitor: monitor, port: port, hub: NewHub()}
}

// Start runs the hub, the broadcast loop, and the HTTP server. It blocks
// until the server stops (mirrors the teacher's Server.Start contract).
func (s *Server) Start() error {
	go s.hub.Run()
	go s.broadcastLoop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/state", s.handleAPIState)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("webui: monitoring server starting", "port", s.port)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("webui: websocket upgrade failed", "err", err)
		return
	}

	client := &Client{conn: conn, send: make(chan []byte, 256)}
	s.hub.register <- client

	s.sendSnapshot(client)

	go client.writePump()

	// read-only: drain and discard incoming frames until the connection
	// closes, then unregister. There is no control surface to dispatch
	// into; every command arrives over OSC (spec §6).
	defer func() {
		s.hub.unregister <- client
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) sendSnapshot(client *Client) {
	data, err := json.Marshal(s.monitor.Snapshot())
	if err != nil {
		slog.Error("webui: failed to marshal snapshot", "err", err)
		return
	}
	client.send <- data
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if s.hub.ClientCount() == 0 {
			continue
		}
		data, err := json.Marshal(s.monitor.Snapshot())
		if err != nil {
			continue
		}
		s.hub.Broadcast(data)
	}
}

func (s *Server) handleAPIState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.monitor.Snapshot())
}
