package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/app"
)

const testOrigin = "http://localhost:3000"

// startServer serves the relay routes on an httptest server.
func startServer(t *testing.T, mutate func(*Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg := *NewConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	s := New(cfg, app.DiscardLogger())
	s.StartRegistry()
	ts := httptest.NewServer(s.SetupRoutes())
	t.Cleanup(func() {
		_ = s.Registry().Shutdown(time.Second)
		ts.Close()
	})
	return s, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, s *Server, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	before := s.Registry().ClientCount()

	headers := http.Header{"Origin": []string{testOrigin}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), headers)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return s.Registry().ClientCount() > before }, frameTimeout, time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(frameTimeout)))
	mt, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	return string(raw)
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(quietPeriod)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", raw)
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())
}

func TestRelayOverWebSocket(t *testing.T) {
	s, ts := startServer(t, nil)

	alice := dial(t, s, ts)
	bob := dial(t, s, ts)
	carol := dial(t, s, ts)

	frame := `{"roomId":"101","username":"bob","text":"hi","sentAt":12}`
	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(frame)))

	assert.Equal(t, frame, readFrame(t, alice))
	assert.Equal(t, frame, readFrame(t, carol))

	r, ok := s.Rooms().dir.Get("101")
	require.True(t, ok)
	assert.Equal(t, 1, r.Len())

	// A read timeout leaves a gorilla connection unusable, so the sender is
	// checked last.
	expectSilence(t, bob)
}

func TestRelayOneFramePerEnvelope(t *testing.T) {
	s, ts := startServer(t, nil)

	sender := dial(t, s, ts)
	receiver := dial(t, s, ts)

	frames := []string{
		`{"roomId":"101","username":"s","text":"one"}`,
		`{"roomId":"102","username":"s","text":"two"}`,
		`{"roomId":"101","username":"s","text":"three"}`,
	}
	for _, f := range frames {
		require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(f)))
	}
	for _, f := range frames {
		assert.Equal(t, f, readFrame(t, receiver))
	}
}

func TestRelayMalformedFrameKeepsConnection(t *testing.T) {
	s, ts := startServer(t, nil)

	sender := dial(t, s, ts)
	receiver := dial(t, s, ts)

	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte("{broken")))
	valid := `{"roomId":"101","username":"s","text":"after garbage"}`
	require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(valid)))

	assert.Equal(t, valid, readFrame(t, receiver))
	assert.Equal(t, 2, s.Registry().ClientCount())
	assert.Contains(t, scrape(t, s.Metrics()), `relay_frames_dropped_total{reason="malformed"} 1`)
}

func TestRelayRateLimit(t *testing.T) {
	s, ts := startServer(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	})

	sender := dial(t, s, ts)
	receiver := dial(t, s, ts)

	for i := 0; i < 5; i++ {
		frame := `{"roomId":"101","username":"s","text":"` + strings.Repeat("x", i+1) + `"}`
		require.NoError(t, sender.WriteMessage(websocket.TextMessage, []byte(frame)))
	}

	assert.Equal(t, `{"roomId":"101","username":"s","text":"x"}`, readFrame(t, receiver))
	assert.Equal(t, `{"roomId":"101","username":"s","text":"xx"}`, readFrame(t, receiver))
	expectSilence(t, receiver)
}

func TestRelayDisconnectRemovesConnection(t *testing.T) {
	s, ts := startServer(t, nil)

	leaver := dial(t, s, ts)
	stayer := dial(t, s, ts)
	require.Equal(t, 2, s.Registry().ClientCount())

	require.NoError(t, leaver.Close())
	require.Eventually(t, func() bool { return s.Registry().ClientCount() == 1 }, frameTimeout, time.Millisecond)

	other := dial(t, s, ts)
	frame := `{"roomId":"101","username":"o","text":"still works"}`
	require.NoError(t, other.WriteMessage(websocket.TextMessage, []byte(frame)))
	assert.Equal(t, frame, readFrame(t, stayer))
}

func TestRelayRejectsForeignOrigin(t *testing.T) {
	_, ts := startServer(t, nil)

	headers := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), headers)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRelayWildcardOriginAllowsAnyone(t *testing.T) {
	s, ts := startServer(t, func(cfg *Config) { cfg.AllowedOrigins = []string{"*"} })

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return s.Registry().ClientCount() == 1 }, frameTimeout, time.Millisecond)
}

func TestRelayClosesConnectionsOnShutdown(t *testing.T) {
	s, ts := startServer(t, nil)
	conn := dial(t, s, ts)

	httpServer := CreateServer(":0", s.SetupRoutes())
	require.NoError(t, s.Shutdown(httpServer, time.Second))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(frameTimeout)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.False(t, websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure), err)
	assert.Equal(t, 0, s.Registry().ClientCount())
}

func TestServeWSRejectsNonGet(t *testing.T) {
	s, _ := startServer(t, nil)

	rec := httptest.NewRecorder()
	s.ServeWS(rec, httptest.NewRequest(http.MethodPost, "/ws", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
