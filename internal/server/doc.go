// Package server implements the relay's HTTP and WebSocket server.
//
// The implementation is organized into specialized files for configuration,
// the connection registry, connections, the room resource endpoint, routing,
// metrics and the optional cross-instance bus.
package server
