// Package server exposes HTTP handlers: the WebSocket gateway into the relay
// and the health endpoints.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

const healthBody = "GoChat server is running!"

// Gateway upgrades HTTP requests to WebSocket sessions on a relay server.
type Gateway struct {
	server   *Server
	upgrader websocket.Upgrader
}

// NewGateway creates a gateway that admits WebSocket peers into s.
func NewGateway(s *Server) *Gateway {
	origins := newOriginPolicy(s.cfg.Origins(), s.log)
	return &Gateway{
		server: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// ServeHTTP validates the method, upgrades the connection and hands it to the
// same admission and session path as TCP peers.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if !g.server.Running() {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.server.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	g.server.log.Info("New connection", "addr", ws.RemoteAddr().String(), "transport", transportWebSocket)
	g.server.Admit(newWSConn(ws, g.server.cfg.MaxLineLength), transportWebSocket)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, healthBody)
}

// Status is the JSON body of the /healthz endpoint.
type Status struct {
	Running  bool     `json:"running"`
	Clients  int      `json:"clients"`
	Capacity int      `json:"capacity"`
	Queued   int      `json:"queued"`
	IDs      []string `json:"ids"`
}

// Status reports a point-in-time view of the relay.
func (s *Server) Status() Status {
	return Status{
		Running:  s.Running(),
		Clients:  s.registry.Len(),
		Capacity: s.admission.Capacity(),
		Queued:   s.queue.Len(),
		IDs:      s.registry.IDs(),
	}
}

// StatusHandler serves Status as JSON; a stopped server answers 503.
func StatusHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := s.Status()
		w.Header().Set("Content-Type", "application/json")
		if !status.Running {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			s.log.Warn("Error writing status response", "error", err)
		}
	}
}
