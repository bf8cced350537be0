// Package server wires HTTP handlers into a ServeMux for the GoChat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns an HTTP ServeMux with the health,
// status, WebSocket and metrics endpoints of s.
func SetupRoutes(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.Handle("/healthz", StatusHandler(s))
	mux.Handle("/ws", NewGateway(s))
	mux.Handle("/metrics", promhttp.HandlerFor(s.Gatherer(), promhttp.HandlerOpts{}))
	return mux
}
