// Package roomlist holds the sidebar's room directory.
package roomlist

import (
	"slices"
	"strings"
	"sync"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

// Filter narrows the listed rooms.
type Filter struct {
	UnreadOnly bool
	// Term matches room names and last-message previews, ignoring case.
	Term string
}

// List is the ordered set of rooms known to the client.
type List struct {
	mu    sync.RWMutex
	rooms []core.Room
}

// New builds an empty list.
func New() *List {
	return &List{}
}

// Replace swaps the whole directory, keeping the order given.
func (l *List) Replace(rooms []core.Room) {
	l.mu.Lock()
	l.rooms = slices.Clone(rooms)
	l.mu.Unlock()
}

// Get returns the room with id.
func (l *List) Get(id string) (core.Room, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.index(id); i >= 0 {
		return l.rooms[i], true
	}
	return core.Room{}, false
}

// Upsert inserts room at the top or replaces an existing entry in place.
func (l *List) Upsert(room core.Room) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.index(room.ID); i >= 0 {
		l.rooms[i] = room
		return
	}
	l.rooms = slices.Insert(l.rooms, 0, room)
}

// Remove drops a room. It reports whether the room was present.
func (l *List) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.rooms = slices.Delete(l.rooms, i, i+1)
	return true
}

// MarkRead clears the unread flag.
func (l *List) MarkRead(id string) bool {
	return l.update(id, func(r *core.Room) { r.Unread = false })
}

// MarkUnread sets the unread flag.
func (l *List) MarkUnread(id string) bool {
	return l.update(id, func(r *core.Room) { r.Unread = true })
}

// SetPreview updates the last-message preview.
func (l *List) SetPreview(id, preview string) bool {
	return l.update(id, func(r *core.Room) { r.LastMessage = preview })
}

// SetMembership updates the current user's status in a room.
func (l *List) SetMembership(id string, status core.MembershipStatus) bool {
	return l.update(id, func(r *core.Room) { r.Membership = status })
}

// SetUnread applies read statuses fetched from the backend.
func (l *List) SetUnread(unread map[string]bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.rooms {
		if u, ok := unread[l.rooms[i].ID]; ok {
			l.rooms[i].Unread = u
		}
	}
}

// Rooms returns the rooms matching f.
func (l *List) Rooms(f Filter) []core.Room {
	term := strings.ToLower(strings.TrimSpace(f.Term))

	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.Room, 0, len(l.rooms))
	for _, r := range l.rooms {
		if f.UnreadOnly && !r.Unread {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(r.Name), term) &&
			!strings.Contains(strings.ToLower(r.LastMessage), term) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Len returns the number of rooms.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rooms)
}

func (l *List) update(id string, fn func(*core.Room)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.index(id)
	if i < 0 {
		return false
	}
	fn(&l.rooms[i])
	return true
}

func (l *List) index(id string) int {
	return slices.IndexFunc(l.rooms, func(r core.Room) bool { return r.ID == id })
}
