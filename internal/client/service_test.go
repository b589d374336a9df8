package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomrelay/internal/app"
	"github.com/Tyrowin/roomrelay/internal/room"
	"github.com/Tyrowin/roomrelay/internal/server"
)

// startRelay serves the real relay routes.
func startRelay(t *testing.T) (*server.Server, *httptest.Server) {
	t.Helper()
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}

	s := server.New(*cfg, app.DiscardLogger())
	s.StartRegistry()
	ts := httptest.NewServer(s.SetupRoutes())
	t.Cleanup(func() {
		_ = s.Registry().Shutdown(time.Second)
		ts.Close()
	})
	return s, ts
}

func TestServiceListRooms(t *testing.T) {
	_, ts := startRelay(t)
	svc := NewService(ts.URL+"/", nil)

	rooms, err := svc.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, RoomSnapshot{ID: "101", Name: "Jack", Image: "img1.jpg", Messages: []room.Message{}}, rooms[0])
	assert.Equal(t, "102", rooms[1].ID)
}

func TestServiceCreateRoom(t *testing.T) {
	_, ts := startRelay(t)
	svc := NewService(ts.URL, nil)

	created, err := svc.CreateRoom(context.Background(), "Test", "")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Test", created.Name)
	assert.Equal(t, room.DefaultImage, created.Image)

	rooms, err := svc.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, created.ID, rooms[2].ID)
}

func TestServiceAddRoomRecordsLocally(t *testing.T) {
	_, ts := startRelay(t)
	svc := NewService(ts.URL, nil)
	dir := room.NewDirectory()

	r, err := svc.AddRoom(context.Background(), dir, "Mine", "m.png")
	require.NoError(t, err)

	got, ok := dir.Get(r.ID())
	require.True(t, ok)
	assert.Same(t, r, got)
	assert.Equal(t, "m.png", got.Image())
}

func TestServiceErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte("not json"))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Name is Missing"})
		}
	}))
	defer ts.Close()

	svc := NewService(ts.URL, nil)

	_, err := svc.ListRooms(context.Background())
	require.ErrorIs(t, err, ErrFetch)

	_, err = svc.CreateRoom(context.Background(), "x", "")
	require.ErrorIs(t, err, ErrFetch)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "Name is Missing")

	dir := room.NewDirectory()
	_, err = svc.AddRoom(context.Background(), dir, "x", "")
	require.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, 0, dir.Len())
}

func TestServiceUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewService(url, nil).ListRooms(context.Background())
	require.ErrorIs(t, err, ErrFetch)
}
