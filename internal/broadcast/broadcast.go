// Package broadcast serves the pipeline's live output over a WebSocket hub
// and a small JSON REST surface (spec §6 "Broadcast wire format"), adapted
// from the hub/client register-broadcast-unregister pattern of a WebSocket
// audio control plane.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pcl-radar/internal/types"
)

// Detection is the wire shape of one detection (spec §6).
type Detection struct {
	Doppler float64 `json:"doppler"`
	Range   float64 `json:"range"`
	Power   float64 `json:"power"`
}

// Track is the wire shape of one track (spec §6).
type Track struct {
	ID      uint64  `json:"id"`
	Range   float64 `json:"range"`
	Doppler float64 `json:"doppler"`
	VR      float64 `json:"vr"`
	VD      float64 `json:"vd"`
}

// Frame is one broadcast message: a timestamped detection/track snapshot.
type Frame struct {
	Timestamp  float64     `json:"timestamp"`
	Detections []Detection `json:"detections"`
	Tracks     []Track     `json:"tracks"`
}

// FrameFromSnapshot builds a wire Frame from pipeline detections and track
// snapshots.
func FrameFromSnapshot(timestampUnix float64, dets []types.Detection, tracks []types.TrackSnapshot) Frame {
	f := Frame{Timestamp: timestampUnix}
	f.Detections = make([]Detection, len(dets))
	for i, d := range dets {
		f.Detections[i] = Detection{Doppler: float64(d.DopplerIdx), Range: float64(d.RangeIdx), Power: float64(d.Power)}
	}
	f.Tracks = make([]Track, len(tracks))
	for i, t := range tracks {
		f.Tracks[i] = Track{ID: t.ID, Range: t.Range, Doppler: t.Doppler, VR: t.VelRange, VD: t.VelDoppler}
	}
	return f
}

// client is one connected WebSocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub manages subscriber registration and broadcast fan-out, mirroring the
// register/unregister/broadcast channel pattern used for real-time control
// messages elsewhere in the corpus.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	framesSent    atomic.Uint64
	clientsDropped atomic.Uint64
}

// NewHub creates an unstarted Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run drives the hub's event loop until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.clientsDropped.Add(1)
					go func(c *client) { h.unregister <- c }(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish encodes frame as JSON and broadcasts it to all connected
// subscribers. A full broadcast buffer drops the frame rather than
// blocking the pipeline (spec §7 "Downstream" error handling).
func (h *Hub) Publish(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("broadcast: marshal frame", "error", err)
		return
	}
	h.framesSent.Add(1)
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("broadcast: buffer full, dropping frame")
	}
}

// ClientCount returns the number of currently connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stats is the /api/stats response body.
type Stats struct {
	FramesSent     uint64 `json:"frames_sent"`
	ClientsDropped uint64 `json:"clients_dropped"`
	ClientsActive  int    `json:"clients_active"`
}

// Server exposes the hub over HTTP: a /ws upgrade endpoint and a /api/stats
// diagnostics endpoint.
type Server struct {
	hub  *Hub
	port int
	http *http.Server
}

// NewServer builds a Server bound to the configured port (spec §6
// broadcast.port).
func NewServer(hub *Hub, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{hub: hub, port: port}
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/stats", s.handleStats)
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("broadcast: websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 32)}
	s.hub.register <- c
	go c.writePump()
	go c.readPump(s.hub)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := Stats{
		FramesSent:     s.hub.framesSent.Load(),
		ClientsDropped: s.hub.clientsDropped.Load(),
		ClientsActive:  s.hub.ClientCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

// Start begins serving HTTP in a background goroutine. Run the Hub's event
// loop separately via Hub.Run.
func (s *Server) Start() error {
	ln := make(chan error, 1)
	go func() {
		ln <- s.http.ListenAndServe()
	}()
	select {
	case err := <-ln:
		return fmt.Errorf("broadcast: listen on port %d: %w", s.port, err)
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
