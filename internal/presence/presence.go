// Package presence keeps the ephemeral set of users typing in each room.
package presence

import (
	"slices"
	"sync"
	"time"
)

// DefaultWindow is how long a typing signal stays valid without a refresh.
const DefaultWindow = 3 * time.Second

// ChangeFunc observes the names typing in a room after every change.
type ChangeFunc func(roomID string, names []string)

type entry struct {
	name  string
	timer *time.Timer
}

// Set maps room id to the users typing there. Entries expire on their own.
type Set struct {
	mu       sync.Mutex
	window   time.Duration
	rooms    map[string]map[string]*entry
	onChange ChangeFunc
	closed   bool
}

// New builds a set whose entries expire after window.
func New(window time.Duration) *Set {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Set{
		window: window,
		rooms:  make(map[string]map[string]*entry),
	}
}

// OnChange registers the change observer.
func (s *Set) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Touch adds or refreshes a typing user.
func (s *Set) Touch(roomID, userID, name string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	users := s.rooms[roomID]
	if users == nil {
		users = make(map[string]*entry)
		s.rooms[roomID] = users
	}
	prev, existed := users[userID]
	if existed {
		prev.timer.Stop()
	}
	e := &entry{name: name}
	e.timer = time.AfterFunc(s.window, func() { s.expire(roomID, userID, e) })
	users[userID] = e
	changed := !existed || prev.name != name
	s.mu.Unlock()

	if changed {
		s.notify(roomID)
	}
}

// Remove drops a user that stopped typing.
func (s *Set) Remove(roomID, userID string) {
	s.mu.Lock()
	e, ok := s.rooms[roomID][userID]
	if ok {
		e.timer.Stop()
		s.drop(roomID, userID)
	}
	s.mu.Unlock()

	if ok {
		s.notify(roomID)
	}
}

// Names returns the sorted display names typing in a room.
func (s *Set) Names(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names(roomID)
}

// Clear drops every entry of a room.
func (s *Set) Clear(roomID string) {
	s.mu.Lock()
	users := s.rooms[roomID]
	for _, e := range users {
		e.timer.Stop()
	}
	delete(s.rooms, roomID)
	s.mu.Unlock()

	if len(users) > 0 {
		s.notify(roomID)
	}
}

// Close stops every timer. The set ignores further touches.
func (s *Set) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, users := range s.rooms {
		for _, e := range users {
			e.timer.Stop()
		}
	}
	s.rooms = make(map[string]map[string]*entry)
	s.closed = true
}

func (s *Set) expire(roomID, userID string, e *entry) {
	s.mu.Lock()
	if s.rooms[roomID][userID] != e {
		s.mu.Unlock()
		return
	}
	s.drop(roomID, userID)
	s.mu.Unlock()

	s.notify(roomID)
}

func (s *Set) drop(roomID, userID string) {
	delete(s.rooms[roomID], userID)
	if len(s.rooms[roomID]) == 0 {
		delete(s.rooms, roomID)
	}
}

func (s *Set) names(roomID string) []string {
	users := s.rooms[roomID]
	out := make([]string, 0, len(users))
	for _, e := range users {
		out = append(out, e.name)
	}
	slices.Sort(out)
	return out
}

func (s *Set) notify(roomID string) {
	s.mu.Lock()
	fn := s.onChange
	names := s.names(roomID)
	s.mu.Unlock()

	if fn != nil {
		fn(roomID, names)
	}
}
