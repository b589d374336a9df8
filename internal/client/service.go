package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Tyrowin/roomrelay/internal/room"
)

// ErrFetch wraps every failure talking to the resource endpoint.
var ErrFetch = errors.New("resource endpoint request failed")

// RoomSnapshot is one entry of the authoritative room list.
type RoomSnapshot struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Image    string         `json:"image"`
	Messages []room.Message `json:"messages"`
}

// Service calls the room resource endpoint.
type Service struct {
	base string
	http *http.Client
}

// NewService returns a Service for the server at baseURL.
func NewService(baseURL string, httpClient *http.Client) *Service {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Service{base: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// ListRooms fetches the full room list.
func (s *Service) ListRooms(ctx context.Context) ([]RoomSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/chat", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	var rooms []RoomSnapshot
	if err := s.do(req, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateRoom asks the server to create a room and returns it with its
// server-generated id.
func (s *Service) CreateRoom(ctx context.Context, name, image string) (RoomSnapshot, error) {
	body, err := json.Marshal(map[string]string{"name": name, "image": image})
	if err != nil {
		return RoomSnapshot{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/chat", bytes.NewReader(body))
	if err != nil {
		return RoomSnapshot{}, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var created RoomSnapshot
	if err := s.do(req, &created); err != nil {
		return RoomSnapshot{}, err
	}
	return created, nil
}

func (s *Service) do(req *http.Request, out any) error {
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s: %d %s", ErrFetch, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(text)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrFetch, req.URL.Path, err)
	}
	return nil
}

// AddRoom creates a room on the server and records it in dir, so it is
// visible before the next reconciliation tick.
func (s *Service) AddRoom(ctx context.Context, dir *room.Directory, name, image string) (*room.Room, error) {
	snap, err := s.CreateRoom(ctx, name, image)
	if err != nil {
		return nil, err
	}
	r, created := dir.CreateOrIgnore(snap.ID, snap.Name, snap.Image, snap.Messages)
	if !created {
		r.Update(snap.Name, snap.Image)
	}
	return r, nil
}
