// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import (
	"net/http"

	"github.com/rs/cors"
)

// SetupRoutes configures and returns the relay's HTTP handler: the WebSocket
// endpoint, the room resource endpoint, health and metrics.
func (s *Server) SetupRoutes() *http.ServeMux {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSAllow,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc("/ws", s.ServeWS)
	mux.Handle("/chat", c.Handler(s.logRequests(http.HandlerFunc(s.ChatHandler))))
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}
