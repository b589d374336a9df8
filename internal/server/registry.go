// Package server coordinates connection registration, envelope fan-out, and
// connection cleanup for the relay via the Registry type.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/room"
)

// ErrRegistryClosed is returned when an operation reaches a registry that has
// been shut down.
var ErrRegistryClosed = errors.New("registry closed")

const (
	busQueueSize      = 256
	busPublishTimeout = 5 * time.Second
)

// Registry tracks every live connection and forwards each accepted envelope
// to all of them except the sender. Routing ignores the envelope's room: the
// room id is metadata for receivers, and the server-side log append is
// attempted without checking that the room exists first.
//
// Registration, removal and fan-out all run on the goroutine executing Run,
// so envelopes from one sender are forwarded in the order they arrived.
type Registry struct {
	store   *room.Directory
	log     *slog.Logger
	metrics *Metrics
	bus     Bus

	clients    map[*Connection]bool
	inbound    chan inbound
	register   chan *Connection
	unregister chan *Connection
	outbound   chan []byte
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithBus makes the registry publish accepted envelopes to bus and relay
// envelopes published by other instances.
func WithBus(bus Bus) RegistryOption {
	return func(h *Registry) { h.bus = bus }
}

// WithMetrics sets the collectors the registry reports to.
func WithMetrics(m *Metrics) RegistryOption {
	return func(h *Registry) { h.metrics = m }
}

// NewRegistry creates a registry that appends accepted envelopes to store.
func NewRegistry(store *room.Directory, logger *slog.Logger, opts ...RegistryOption) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Registry{
		store:      store,
		log:        logger,
		clients:    make(map[*Connection]bool),
		inbound:    make(chan inbound),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		outbound:   make(chan []byte, busQueueSize),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics()
	}
	return h
}

// Connect registers c. Its pumps are started by Run once registered.
func (h *Registry) Connect(c *Connection) error {
	if c == nil {
		return nil
	}
	select {
	case h.register <- c:
		return nil
	case <-h.ctx.Done():
		return ErrRegistryClosed
	}
}

// Disconnect removes c from the live set. Calling it more than once, or for a
// connection that was never registered, has no effect.
func (h *Registry) Disconnect(c *Connection) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Deliver handles one raw frame received from sender. A frame that is not a
// valid envelope is logged and dropped, and the returned error wraps
// protocol.ErrMalformedEnvelope; the sender stays connected. Envelopes with
// blank text are dropped silently.
func (h *Registry) Deliver(sender *Connection, raw []byte) error {
	env, err := protocol.Parse(raw)
	if err != nil {
		h.log.Warn("relay.frame.malformed", "addr", sender.Addr(), "err", err)
		h.metrics.drop(dropMalformed)
		return err
	}
	if env.Blank() {
		h.metrics.drop(dropBlank)
		return nil
	}

	select {
	case h.inbound <- inbound{sender: sender, envelope: env, payload: raw}:
		return nil
	case <-h.ctx.Done():
		return ErrRegistryClosed
	}
}

// ClientCount returns the number of live connections.
func (h *Registry) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the registry's event loop. It returns after Shutdown.
func (h *Registry) Run() {
	defer close(h.done)

	if h.bus != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			h.bus.Subscribe(h.ctx, h.receiveRemote)
		}()
		go func() {
			defer h.wg.Done()
			h.publishLoop()
		}()
	}

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unregister:
			h.handleUnregister(c)

		case msg := <-h.inbound:
			h.handleInbound(msg)
		}
	}
}

// handleRegister adds c to the live set. A connection that has already left
// the registry has a closed send channel and is never taken back.
func (h *Registry) handleRegister(c *Connection) {
	h.mutex.Lock()
	if c.closed {
		h.mutex.Unlock()
		h.log.Warn("relay.connect.closed", "addr", c.addr)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		return
	}
	h.clients[c] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.metrics.connections.Set(float64(clientCount))
	h.log.Info("relay.connect", "addr", c.addr, "clients", clientCount)

	if c.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

func (h *Registry) handleUnregister(c *Connection) {
	h.mutex.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, c)
	c.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Only this goroutine sends on c.send, so closing here is safe.
	close(c.send)
	h.metrics.connections.Set(float64(clientCount))
	h.log.Info("relay.disconnect", "addr", c.addr, "clients", clientCount)
}

// handleInbound appends to the room log and fans the payload out.
func (h *Registry) handleInbound(msg inbound) {
	env := msg.envelope
	if err := h.store.Append(env.RoomID, env.Username, env.Text); err != nil {
		h.log.Debug("relay.room.unknown", "room", env.RoomID, "err", err)
		h.metrics.unknownRoom.Inc()
	}

	clients := h.getClientSnapshot()
	failed := h.broadcastToClients(clients, msg)
	h.removeFailedClients(failed)

	if h.bus != nil && !msg.remote {
		select {
		case h.outbound <- msg.payload:
		default:
			h.log.Warn("relay.bus.overflow", "room", env.RoomID)
			h.metrics.drop(dropBusOverflow)
		}
	}
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Registry) getClientSnapshot() []*Connection {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Connection, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// broadcastToClients hands the payload to every open connection except the
// sender and returns the ones whose send buffer was full.
func (h *Registry) broadcastToClients(clients []*Connection, msg inbound) []*Connection {
	var failed []*Connection
	delivered := 0

	for _, c := range clients {
		if msg.sender != nil && c == msg.sender {
			continue
		}
		if !h.safeSend(c, msg.payload) {
			failed = append(failed, c)
			continue
		}
		delivered++
	}

	h.metrics.forwarded.Add(float64(delivered))
	h.log.Debug("relay.forward", "room", msg.envelope.RoomID, "targets", delivered, "remote", msg.remote)
	return failed
}

// safeSend never blocks: a connection that cannot take the frame right now
// is reported as failed instead of stalling the others.
func (h *Registry) safeSend(c *Connection, payload []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[c]; !exists || c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// removeFailedClients drops connections that could not keep up. Closing
// their send channel makes the write pump close the transport.
func (h *Registry) removeFailedClients(failed []*Connection) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, c := range failed {
		if _, exists := h.clients[c]; exists {
			delete(h.clients, c)
			c.closed = true
			channelsToClose = append(channelsToClose, c.send)
			h.log.Warn("relay.connection.slow", "addr", c.addr)
			h.metrics.drop(dropSlowConsumer)
		}
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
	h.metrics.connections.Set(float64(clientCount))
}

// receiveRemote accepts a frame published by another relay instance.
func (h *Registry) receiveRemote(payload []byte) {
	env, err := protocol.Parse(payload)
	if err != nil {
		h.log.Warn("relay.bus.malformed", "err", err)
		h.metrics.drop(dropMalformed)
		return
	}
	if env.Blank() {
		return
	}

	select {
	case h.inbound <- inbound{envelope: env, payload: payload, remote: true}:
	case <-h.ctx.Done():
	}
}

func (h *Registry) publishLoop() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case payload := <-h.outbound:
			ctx, cancel := context.WithTimeout(h.ctx, busPublishTimeout)
			if err := h.bus.Publish(ctx, payload); err != nil {
				h.log.Warn("relay.bus.publish", "err", err)
			}
			cancel()
		}
	}
}

// shutdownClients closes every live connection and its send channel.
func (h *Registry) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Connection, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		c.closed = true
		delete(h.clients, c)
	}
	h.mutex.Unlock()

	for _, c := range clients {
		close(c.send)
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("relay.shutdown.close", "addr", c.addr, "err", err)
			}
		}
	}

	h.metrics.connections.Set(0)
	h.log.Info("relay.shutdown.clients", "closed", len(clients))
}

// Shutdown stops the event loop, closes all connections, and waits for the
// connection goroutines to finish or for timeout to elapse.
func (h *Registry) Shutdown(timeout time.Duration) error {
	h.log.Info("relay.shutdown.start")

	h.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// done is only closed by Run; a registry that was never started times out.
	select {
	case <-h.done:
	case <-timer.C:
		h.log.Warn("relay.shutdown.timeout", "stage", "loop")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("relay.shutdown.complete")
		return nil
	case <-timer.C:
		h.log.Warn("relay.shutdown.timeout", "stage", "connections")
		return context.DeadlineExceeded
	}
}
