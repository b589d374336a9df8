package room

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownRoom is returned when a message targets a room id that has no log.
var ErrUnknownRoom = errors.New("unknown room")

// Directory is a keyed cache of rooms. Iteration follows creation order.
// A room, once inserted, is never replaced or removed.
type Directory struct {
	// createMu serializes creation so listeners see rooms in creation order.
	createMu sync.Mutex

	mu    sync.RWMutex
	rooms map[string]*Room
	order []*Room

	created listenerList[*Room]
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*Room)}
}

// Get returns the room with the given id. The boolean is false when the id is
// unknown.
func (d *Directory) Get(id string) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[id]
	return r, ok
}

// CreateOrIgnore inserts a new room when id is unseen and notifies creation
// subscribers exactly once. When id already exists nothing changes and the
// existing room is returned with created set to false.
func (d *Directory) CreateOrIgnore(id, name, image string, messages []Message) (r *Room, created bool) {
	if existing, ok := d.Get(id); ok {
		return existing, false
	}

	d.createMu.Lock()
	defer d.createMu.Unlock()

	d.mu.Lock()
	if existing, ok := d.rooms[id]; ok {
		d.mu.Unlock()
		return existing, false
	}
	r = newRoom(id, name, image, messages)
	d.rooms[id] = r
	d.order = append(d.order, r)
	d.mu.Unlock()

	d.created.notify(r)
	return r, true
}

// Append posts a message to the room with the given id. Blank text is
// dropped without error.
func (d *Directory) Append(id, username, text string) error {
	r, ok := d.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRoom, id)
	}
	r.Append(username, text)
	return nil
}

// Rooms returns the rooms in creation order.
func (d *Directory) Rooms() []*Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Room(nil), d.order...)
}

// Len returns the number of rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// Subscribe registers fn to be called with every newly created room. fn may
// read the directory and subscribe to the room but must not create rooms.
func (d *Directory) Subscribe(fn func(*Room)) (unsubscribe func()) {
	return d.created.add(fn)
}
