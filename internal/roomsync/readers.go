package roomsync

import (
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/merge"
	"github.com/vovakirdan/wirechat-client/internal/pagination"
	"github.com/vovakirdan/wirechat-client/internal/roomlist"
)

var roomlistAll = roomlist.Filter{}

// Messages returns a snapshot of the room's canonical message list.
func (c *Controller) Messages(roomID string) []core.Message {
	return c.store.Snapshot(roomID)
}

// ActiveRoom returns the id of the active room, or "".
func (c *Controller) ActiveRoom() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// RoomState returns the load state of a room.
func (c *Controller) RoomState(roomID string) core.RoomState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[roomID]
}

// LoadingMore reports whether a backward page is being fetched for the room.
func (c *Controller) LoadingMore(roomID string) bool {
	return c.RoomState(roomID) == core.StateLoadingMore
}

// Sending reports whether a send is pending for the room.
func (c *Controller) Sending(roomID string) bool {
	return c.isSending(roomID)
}

// Online is the advisory connectivity flag.
func (c *Controller) Online() bool {
	return c.tracker.Online()
}

// Rooms lists the directory.
func (c *Controller) Rooms(f roomlist.Filter) []core.Room {
	return c.rooms.Rooms(f)
}

// Room returns one directory entry.
func (c *Controller) Room(roomID string) (core.Room, bool) {
	return c.rooms.Get(roomID)
}

// TypingUsers returns the names of the users typing in the room.
func (c *Controller) TypingUsers(roomID string) []string {
	return c.presence.Names(roomID)
}

// Pagination returns the room's cursor state.
func (c *Controller) Pagination(roomID string) pagination.State {
	return c.pages.State(roomID)
}

// Draft returns the unsent compose text of the room.
func (c *Controller) Draft(roomID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.drafts[roomID]
}

// Search filters the active room's messages by content or sender name.
func (c *Controller) Search(term string) []core.Message {
	roomID := c.ActiveRoom()
	if roomID == "" {
		return nil
	}
	return merge.Search(c.store.Snapshot(roomID), term)
}
