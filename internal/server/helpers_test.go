package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/app"
	"github.com/Tyrowin/roomrelay/internal/room"
)

const (
	frameTimeout = time.Second
	quietPeriod  = 50 * time.Millisecond
)

// startRegistry runs a registry over a directory seeded with rooms 101 and
// 102 and shuts it down when the test ends.
func startRegistry(t *testing.T, opts ...RegistryOption) (*Registry, *room.Directory) {
	t.Helper()
	dir := room.NewDirectory()
	dir.CreateOrIgnore("101", "Jack", "img1.jpg", nil)
	dir.CreateOrIgnore("102", "Daniel", "img2.jpg", nil)

	reg := NewRegistry(dir, app.DiscardLogger(), opts...)
	go reg.Run()
	t.Cleanup(func() { _ = reg.Shutdown(time.Second) })
	return reg, dir
}

// attach registers a transport-less connection and waits until the registry
// has it.
func attach(t *testing.T, reg *Registry, addr string, cfg Config) *Connection {
	t.Helper()
	before := reg.ClientCount()
	c := NewConnection(nil, reg, addr, cfg)
	require.NoError(t, reg.Connect(c))
	require.Eventually(t, func() bool { return reg.ClientCount() > before }, frameTimeout, time.Millisecond)
	return c
}

func expectFrame(t *testing.T, c *Connection, want string) {
	t.Helper()
	select {
	case got, ok := <-c.Outbox():
		require.True(t, ok, "outbox of %s closed", c.Addr())
		require.Equal(t, want, string(got))
	case <-time.After(frameTimeout):
		t.Fatalf("%s: no frame within %s, want %s", c.Addr(), frameTimeout, want)
	}
}

func expectNoFrame(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case got, ok := <-c.Outbox():
		if ok {
			t.Fatalf("%s: unexpected frame %s", c.Addr(), got)
		}
		t.Fatalf("%s: outbox closed unexpectedly", c.Addr())
	case <-time.After(quietPeriod):
	}
}

func expectClosed(t *testing.T, c *Connection) {
	t.Helper()
	deadline := time.After(frameTimeout)
	for {
		select {
		case _, ok := <-c.Outbox():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("%s: outbox still open", c.Addr())
		}
	}
}

// fakeBus records publications and lets tests inject remote frames.
type fakeBus struct {
	published chan []byte

	mu     sync.Mutex
	fn     func([]byte)
	subbed chan struct{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(chan []byte, 16), subbed: make(chan struct{})}
}

func (b *fakeBus) Publish(_ context.Context, payload []byte) error {
	b.published <- payload
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, fn func([]byte)) {
	b.mu.Lock()
	b.fn = fn
	b.mu.Unlock()
	close(b.subbed)
	<-ctx.Done()
}

func (b *fakeBus) inject(t *testing.T, payload []byte) {
	t.Helper()
	select {
	case <-b.subbed:
	case <-time.After(frameTimeout):
		t.Fatal("bus never subscribed")
	}
	b.mu.Lock()
	fn := b.fn
	b.mu.Unlock()
	fn(payload)
}
