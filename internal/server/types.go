// Package server defines shared payload types and utility helpers that are
// reused across connection and registry logic.
package server

import (
	"context"
	"strings"

	"github.com/Tyrowin/roomrelay/internal/protocol"
)

// inbound is an envelope accepted for fan-out. The payload is the frame
// exactly as the sender wrote it; receivers get those bytes unchanged.
type inbound struct {
	sender   *Connection
	envelope protocol.Envelope
	payload  []byte
	remote   bool
}

// Bus carries accepted envelopes between relay instances. Publish is called
// for locally received frames only; Subscribe delivers frames published by
// other instances and blocks until ctx is done.
type Bus interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, fn func(payload []byte))
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
