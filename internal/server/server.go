// Package server implements the relay process: the connection registry that
// fans envelopes out over WebSocket, and the resource endpoint that lists and
// creates rooms.
package server

import (
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/room"
)

// Server bundles the registry, the room service and the HTTP plumbing that
// share one room directory.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *Metrics
	rooms    *RoomService
	registry *Registry
	origins  *originPolicy
	upgrader websocket.Upgrader
}

// New wires a Server from cfg. Registry options such as WithBus are passed
// through; metrics are always the server's own.
func New(cfg Config, logger *slog.Logger, opts ...RegistryOption) *Server {
	cfg = cfg.sanitize()
	metrics := NewMetrics()
	dir := room.NewDirectory()

	s := &Server{
		cfg:     cfg,
		log:     logger,
		metrics: metrics,
		rooms:   NewRoomService(dir, metrics),
		origins: newOriginPolicy(cfg.AllowedOrigins, logger),
	}
	s.registry = NewRegistry(dir, logger, append(opts, WithMetrics(metrics))...)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}

	if cfg.SeedRooms {
		s.rooms.Seed()
	}
	return s
}

// Registry returns the connection registry.
func (s *Server) Registry() *Registry { return s.registry }

// Rooms returns the room service.
func (s *Server) Rooms() *RoomService { return s.rooms }

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Config returns the sanitized configuration.
func (s *Server) Config() Config { return s.cfg }
