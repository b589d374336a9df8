package server

import (
	"errors"

	"github.com/google/uuid"

	"github.com/Tyrowin/roomrelay/internal/room"
)

// ErrMissingRoomName is returned when a create request carries no name.
var ErrMissingRoomName = errors.New("room name is missing")

// RoomView is the resource representation of a room.
type RoomView struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Image    string         `json:"image"`
	Messages []room.Message `json:"messages"`
}

func viewOf(r *room.Room) RoomView {
	msgs := r.Messages()
	if msgs == nil {
		msgs = []room.Message{}
	}
	return RoomView{ID: r.ID(), Name: r.Name(), Image: r.Image(), Messages: msgs}
}

// RoomService is the authoritative room list. It shares its directory with
// the registry, which appends relayed messages to it.
type RoomService struct {
	dir     *room.Directory
	metrics *Metrics
	newID   func() string
}

// NewRoomService returns a service over dir.
func NewRoomService(dir *room.Directory, metrics *Metrics) *RoomService {
	return &RoomService{
		dir:     dir,
		metrics: metrics,
		newID:   func() string { return "room-" + uuid.NewString() },
	}
}

// Seed creates the two rooms a fresh server starts with.
func (s *RoomService) Seed() {
	s.dir.CreateOrIgnore("101", "Jack", "img1.jpg", nil)
	s.dir.CreateOrIgnore("102", "Daniel", "img2.jpg", nil)
}

// List returns every room with its full message history, in creation order.
func (s *RoomService) List() []RoomView {
	rooms := s.dir.Rooms()
	views := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, viewOf(r))
	}
	return views
}

// Create makes a room with a server-generated id. name must be non-nil; an
// empty name is accepted.
func (s *RoomService) Create(name *string, image string) (RoomView, error) {
	if name == nil {
		return RoomView{}, ErrMissingRoomName
	}

	for {
		r, created := s.dir.CreateOrIgnore(s.newID(), *name, image, nil)
		if created {
			s.metrics.roomsCreated.Inc()
			return viewOf(r), nil
		}
	}
}
