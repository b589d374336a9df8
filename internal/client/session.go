package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/room"
)

const (
	handshakeTimeout = 5 * time.Second
	sendTimeout      = 10 * time.Second
)

// Session is a participant's connection to the relay. Frames pushed by the
// relay are applied to the directory; posts are applied locally and sent,
// since the relay never echoes a frame back to its sender.
//
// There is no reconnection: when the transport drops, Listen returns and the
// caller decides what to do.
type Session struct {
	conn     *websocket.Conn
	dir      *room.Directory
	username string
	log      *slog.Logger

	writeMu sync.Mutex
}

// Dial opens the relay connection at wsURL. origin, when set, is sent as the
// Origin header.
func Dial(ctx context.Context, wsURL, origin string, dir *room.Directory, username string, logger *slog.Logger) (*Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", wsURL, err)
	}
	return NewSession(conn, dir, username, logger), nil
}

// NewSession wraps an established connection.
func NewSession(conn *websocket.Conn, dir *room.Directory, username string, logger *slog.Logger) *Session {
	return &Session{conn: conn, dir: dir, username: username, log: logger}
}

// Username returns the name posts are sent under.
func (s *Session) Username() string { return s.username }

// Listen applies pushed envelopes to the directory until the connection
// fails or ctx is done. Malformed frames and envelopes for rooms not in the
// directory are logged and dropped.
func (s *Session) Listen(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read relay frame: %w", err)
		}
		s.Apply(raw)
	}
}

// Apply handles one pushed frame.
func (s *Session) Apply(raw []byte) {
	env, err := protocol.Parse(raw)
	if err != nil {
		s.log.Warn("push.frame.malformed", "err", err)
		return
	}

	r, ok := s.dir.Get(env.RoomID)
	if !ok {
		s.log.Debug("push.room.unknown", "room", env.RoomID)
		return
	}
	r.Append(env.Username, env.Text)
}

// Post appends text to the room locally and sends it to the relay. Blank
// text is ignored. Posting to a room the directory does not hold fails with
// room.ErrUnknownRoom.
func (s *Session) Post(roomID, text string) error {
	env := protocol.Envelope{RoomID: roomID, Username: s.username, Text: text}
	if env.Blank() {
		return nil
	}

	r, ok := s.dir.Get(roomID)
	if !ok {
		return fmt.Errorf("%w: %q", room.ErrUnknownRoom, roomID)
	}

	payload, err := env.Encode()
	if err != nil {
		return err
	}

	r.Append(env.Username, env.Text)
	return s.send(payload)
}

func (s *Session) send(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		return fmt.Errorf("send envelope: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send envelope: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection.
func (s *Session) Close() error {
	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}
