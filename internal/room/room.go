// Package room holds the chat room model shared by the relay and its
// participants: an identified, append-only message log and the directory
// that caches rooms by id.
package room

import (
	"strings"
	"sync"
)

// DefaultImage is used when a room is created without an image.
const DefaultImage = "assets/everyone-icon.png"

// Message is a single chat line. It is never modified after creation.
type Message struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// Room is an identified message log. Its id never changes; name and image
// are updated in place so that holders of a *Room observe the change.
type Room struct {
	id string

	// writeMu serializes Append so listeners see messages in log order.
	writeMu sync.Mutex

	mu        sync.RWMutex
	name      string
	image     string
	messages  []Message
	listeners listenerList[Message]
}

func newRoom(id, name, image string, messages []Message) *Room {
	if image == "" {
		image = DefaultImage
	}
	return &Room{
		id:       id,
		name:     name,
		image:    image,
		messages: append([]Message(nil), messages...),
	}
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Name returns the current room name.
func (r *Room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// Image returns the current room image URI.
func (r *Room) Image() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.image
}

// Messages returns a copy of the log in delivery order.
func (r *Room) Messages() []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Message(nil), r.messages...)
}

// Len returns the number of messages in the log.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}

// Update replaces name and image in place. The message log is not touched.
func (r *Room) Update(name, image string) {
	if image == "" {
		image = DefaultImage
	}
	r.mu.Lock()
	r.name = name
	r.image = image
	r.mu.Unlock()
}

// Append adds a message to the log and notifies every subscriber once,
// synchronously, after the append. Concurrent appends are applied one at a
// time, so subscribers observe messages in log order. Text that is empty
// after trimming is dropped and Append reports false.
func (r *Room) Append(username, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	msg := Message{Username: username, Text: text}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()

	r.listeners.notify(msg)
	return true
}

// Subscribe registers fn to be called for every new message. The returned
// function removes the subscription. fn may read the room but must not
// append to it.
func (r *Room) Subscribe(fn func(Message)) (unsubscribe func()) {
	return r.listeners.add(fn)
}

// listenerList is an ordered set of callbacks safe for concurrent use.
// Callbacks run outside the lock so they may call back into the owner.
type listenerList[T any] struct {
	mu     sync.Mutex
	nextID uint64
	items  []listener[T]
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

func (l *listenerList[T]) add(fn func(T)) func() {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.items = append(l.items, listener[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listenerList[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, item := range l.items {
		if item.id == id {
			l.items = append(l.items[:i:i], l.items[i+1:]...)
			return
		}
	}
}

func (l *listenerList[T]) notify(v T) {
	l.mu.Lock()
	items := append([]listener[T](nil), l.items...)
	l.mu.Unlock()

	for _, item := range items {
		item.fn(v)
	}
}
