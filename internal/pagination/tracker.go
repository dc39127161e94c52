// Package pagination tracks per-room backward history cursors.
package pagination

import "sync"

// State is the pagination state of one room.
// An empty Cursor with Fetched unset means the room was never fetched; an empty
// Cursor after a fetch with HasMore unset means the start of history was reached.
type State struct {
	Cursor   string
	HasMore  bool
	Fetched  bool
	InFlight bool
}

// Tracker holds pagination state for every room.
type Tracker struct {
	mu    sync.Mutex
	rooms map[string]*State
}

// NewTracker constructs an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{rooms: make(map[string]*State)}
}

// RecordPage stores the cursor and has-more flag returned by a successful fetch.
func (t *Tracker) RecordPage(roomID, cursor string, hasMore bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.room(roomID)
	st.Cursor = cursor
	st.HasMore = hasMore
	st.Fetched = true
}

// State returns a copy of the room's state.
func (t *Tracker) State(roomID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.rooms[roomID]; ok {
		return *st
	}
	return State{}
}

// Begin claims the room's backward fetch slot and returns the cursor to use.
// It refuses when history is exhausted or another backward fetch is in flight.
func (t *Tracker) Begin(roomID string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.room(roomID)
	if st.InFlight {
		return *st, false
	}
	if st.Fetched && !st.HasMore {
		return *st, false
	}
	st.InFlight = true
	return *st, true
}

// End releases the backward fetch slot once the request settled.
func (t *Tracker) End(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.rooms[roomID]; ok {
		st.InFlight = false
	}
}

// Reset forgets the room.
func (t *Tracker) Reset(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, roomID)
}

// Clear forgets every room.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rooms = make(map[string]*State)
}

func (t *Tracker) room(roomID string) *State {
	st, ok := t.rooms[roomID]
	if !ok {
		st = &State{}
		t.rooms[roomID] = st
	}
	return st
}
