package merge

import (
	"slices"
	"sync"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

// ChangeFunc observes a room's list after every mutation.
type ChangeFunc func(roomID string, messages []core.Message)

// Store is the canonical per-room message store.
// Mutations are expected from a single owner; reads are safe from any goroutine.
type Store struct {
	mu       sync.RWMutex
	rooms    map[string][]core.Message
	now      func() time.Time
	onChange ChangeFunc
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string][]core.Message),
		now:   time.Now,
	}
}

// SetClock overrides the merge-time clock.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// OnChange registers the mutation observer. Only one observer is kept.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Merge merges incoming into the room and returns the new list.
func (s *Store) Merge(roomID string, incoming []core.Message) []core.Message {
	return s.mutate(roomID, func(cur []core.Message, now time.Time) ([]core.Message, bool) {
		return Merge(roomID, incoming, cur, now), true
	})
}

// Replace sets the room's list to the canonical form of messages.
func (s *Store) Replace(roomID string, messages []core.Message) []core.Message {
	return s.mutate(roomID, func(_ []core.Message, now time.Time) ([]core.Message, bool) {
		return Merge(roomID, messages, nil, now), true
	})
}

// Edit applies patch to message id. Unknown ids report false and change nothing.
func (s *Store) Edit(roomID, id string, patch core.Patch) bool {
	var changed bool
	s.mutate(roomID, func(cur []core.Message, _ time.Time) ([]core.Message, bool) {
		var out []core.Message
		out, changed = ApplyEdit(cur, id, patch)
		return out, changed
	})
	return changed
}

// Delete removes message id. Unknown ids report false and change nothing.
func (s *Store) Delete(roomID, id string) bool {
	var changed bool
	s.mutate(roomID, func(cur []core.Message, _ time.Time) ([]core.Message, bool) {
		var out []core.Message
		out, changed = ApplyDelete(cur, id)
		return out, changed
	})
	return changed
}

// Reconcile replaces the pending entry for correlationID with confirmed.
func (s *Store) Reconcile(roomID, correlationID string, confirmed core.Message) []core.Message {
	if confirmed.ChatID == "" {
		confirmed.ChatID = roomID
	}
	return s.mutate(roomID, func(cur []core.Message, now time.Time) ([]core.Message, bool) {
		return Reconcile(cur, correlationID, confirmed, now), true
	})
}

// RemoveProvisional rolls back the pending entry for correlationID.
func (s *Store) RemoveProvisional(roomID, correlationID string) bool {
	var changed bool
	s.mutate(roomID, func(cur []core.Message, _ time.Time) ([]core.Message, bool) {
		var out []core.Message
		out, changed = RemoveProvisional(cur, correlationID)
		return out, changed
	})
	return changed
}

// Retain keeps only messages for which keep returns true.
func (s *Store) Retain(roomID string, keep func(core.Message) bool) bool {
	var changed bool
	s.mutate(roomID, func(cur []core.Message, _ time.Time) ([]core.Message, bool) {
		out := slices.DeleteFunc(slices.Clone(cur), func(m core.Message) bool { return !keep(m) })
		changed = len(out) != len(cur)
		return out, changed
	})
	return changed
}

// Snapshot returns a copy of the room's list.
func (s *Store) Snapshot(roomID string) []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rooms[roomID])
}

// Has reports whether the room holds message id.
func (s *Store) Has(roomID, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.rooms[roomID], func(m core.Message) bool { return m.ID == id })
}

// Loaded reports whether the room has an entry in the store.
func (s *Store) Loaded(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

// Oldest returns the topmost message of the room.
func (s *Store) Oldest(roomID string) (core.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.rooms[roomID]
	if len(msgs) == 0 {
		return core.Message{}, false
	}
	return msgs[0], true
}

// Forget drops the room entirely.
func (s *Store) Forget(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}

// Reset drops every room.
func (s *Store) Reset() {
	s.mu.Lock()
	s.rooms = make(map[string][]core.Message)
	s.mu.Unlock()
}

func (s *Store) mutate(roomID string, fn func([]core.Message, time.Time) ([]core.Message, bool)) []core.Message {
	s.mu.Lock()
	cur := s.rooms[roomID]
	out, changed := fn(cur, s.now())
	if !changed {
		s.mu.Unlock()
		return slices.Clone(cur)
	}
	s.rooms[roomID] = out
	onChange := s.onChange
	snapshot := slices.Clone(out)
	s.mu.Unlock()

	if onChange != nil {
		onChange(roomID, slices.Clone(snapshot))
	}
	return snapshot
}
