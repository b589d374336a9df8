// Package server manages individual relay connections, handling read/write
// pumps, rate limiting, and lifecycle control for each transport session.
package server

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Connection is one live duplex transport session. It is not bound to any
// room: every envelope accepted by the registry reaches every connection
// other than its sender.
type Connection struct {
	conn           *websocket.Conn
	send           chan []byte
	registry       *Registry
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	log            *slog.Logger
}

// NewConnection wraps conn for use with registry. conn may be nil, in which
// case no pumps are started and frames queued for the connection can be read
// from Outbox.
func NewConnection(conn *websocket.Conn, registry *Registry, addr string, cfg Config) *Connection {
	cfg = cfg.sanitize()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Connection{
		conn:           conn,
		send:           make(chan []byte, cfg.SendBuffer),
		registry:       registry,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		log:            registry.log.With("addr", addr),
	}
}

// Outbox returns the channel of frames queued for this connection. It is
// closed when the connection leaves the registry.
func (c *Connection) Outbox() <-chan []byte {
	return c.send
}

// Addr returns the remote address the connection was accepted from.
func (c *Connection) Addr() string {
	if c == nil {
		return ""
	}
	return c.addr
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Connection) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("relay.read.deadline", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadError classifies the error that ended the read loop. Every read
// error terminates only this connection.
func (c *Connection) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("relay.read.too_large", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("relay.read.closed", "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("relay.read.eof", "err", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("relay.read.unexpected_close", "err", err)
	default:
		c.log.Warn("relay.read.error", "err", err)
	}
}

// checkRateLimit reports whether the next frame may be processed.
func (c *Connection) checkRateLimit() bool {
	if c.rateLimiter.allow() {
		return true
	}
	c.log.Warn("relay.rate_limited", "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
	c.registry.metrics.drop(dropRateLimited)
	return false
}

func (c *Connection) readPump() {
	defer func() {
		c.registry.Disconnect(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("relay.read.close", "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		if err := c.registry.Deliver(c, raw); errors.Is(err, ErrRegistryClosed) {
			return
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Connection) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case payload, ok := <-c.send:
		return c.handleMessage(payload, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection closes the transport, ignoring errors from a connection
// that is already gone.
func (c *Connection) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("relay.write.close", "err", err)
	}
}

// handleMessage writes one queued envelope as its own frame. A closed send
// channel means the registry dropped the connection.
func (c *Connection) handleMessage(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("relay.write.deadline", "err", err)
		return false
	}

	if !ok {
		c.writeCloseMessage()
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("relay.write.error", "err", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the peer
func (c *Connection) writeCloseMessage() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("relay.write.close_frame", "err", err)
	}
}

// handlePing sends a ping message to keep the connection alive
func (c *Connection) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("relay.ping.deadline", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("relay.ping.error", "err", err)
		return false
	}
	return true
}
