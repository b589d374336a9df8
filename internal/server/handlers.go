// Package server exposes HTTP handlers, including WebSocket upgrades, the
// room resource endpoint, and health checks.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

const maxRoomBodyBytes = 1 << 16

// ServeWS upgrades the request and registers the new connection. The
// registry starts its read and write pumps.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("relay.upgrade.failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	c := NewConnection(conn, s.registry, r.RemoteAddr, s.cfg)
	if err := s.registry.Connect(c); err != nil {
		s.log.Warn("relay.connect.rejected", "addr", r.RemoteAddr, "err", err)
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "roomrelay is running")
}

// ChatHandler serves the room collection: GET lists rooms, POST creates one.
func (s *Server) ChatHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.rooms.List())
	case http.MethodPost:
		s.createRoom(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type createRoomRequest struct {
	Name  *string `json:"name"`
	Image string  `json:"image"`
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCreateRoom(w, r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	view, err := s.rooms.Create(req.Name, req.Image)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Name is Missing"})
		return
	}

	s.log.Info("rooms.create", "room", view.ID, "name", view.Name)
	s.writeJSON(w, http.StatusOK, view)
}

// decodeCreateRoom accepts JSON and urlencoded bodies.
func decodeCreateRoom(w http.ResponseWriter, r *http.Request) (createRoomRequest, error) {
	var req createRoomRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRoomBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		if _, ok := r.PostForm["name"]; ok {
			name := r.PostForm.Get("name")
			req.Name = &name
		}
		req.Image = r.PostForm.Get("image")
		return req, nil
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, err
		}
		return req, nil
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("http.write", "err", err)
	}
}

// logRequests records every request to the wrapped handler.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("http.request", "method", r.Method, "path", r.URL.Path, "ip", r.RemoteAddr, "took", time.Since(start))
	})
}
