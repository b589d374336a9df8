// Package server constructs and starts the relay's HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartRegistry runs the registry's event loop in its own goroutine. Call it
// before accepting connections.
func (s *Server) StartRegistry() {
	go s.registry.Run()
	s.log.Info("relay.registry.started")
}

// ListenAndServe serves the relay routes on the configured port until the
// server is shut down. http.ErrServerClosed is not reported as an error.
func (s *Server) ListenAndServe(httpServer *http.Server) error {
	s.log.Info("server.listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting HTTP requests, then closes every relay
// connection. Both phases share the timeout.
func (s *Server) Shutdown(httpServer *http.Server, timeout time.Duration) error {
	s.log.Info("server.shutdown.start")
	deadline := time.Now().Add(timeout)

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	httpErr := httpServer.Shutdown(ctx)
	if httpErr != nil {
		s.log.Warn("server.shutdown.http", "err", httpErr)
	}

	registryErr := s.registry.Shutdown(time.Until(deadline))
	if err := errors.Join(httpErr, registryErr); err != nil {
		return err
	}

	s.log.Info("server.shutdown.complete")
	return nil
}
