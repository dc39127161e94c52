package roomsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

const readStatusConcurrency = 4

// RefreshRooms reloads the room directory and the read status of every room.
func (c *Controller) RefreshRooms(ctx context.Context) error {
	return c.refreshRooms(ctx)
}

func (c *Controller) refreshRooms(ctx context.Context) error {
	uid := c.user().ID
	if uid == "" {
		return core.ErrNotLoggedIn
	}
	rooms, err := c.api.Rooms(ctx, uid)
	if err != nil {
		return c.directoryFailed("list_rooms", err)
	}

	var (
		mu     sync.Mutex
		unread = make(map[string]bool, len(rooms))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readStatusConcurrency)
	for _, r := range rooms {
		roomID := r.ID
		g.Go(func() error {
			u, err := c.api.ReadStatus(gctx, roomID, uid)
			if err != nil {
				c.log.Debug().Err(err).Str("room_id", roomID).Msg("read status unavailable")
				return nil
			}
			mu.Lock()
			unread[roomID] = u
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return c.call(ctx, func() error {
		c.applyDirectory(rooms, unread)
		return nil
	})
}

func (c *Controller) applyDirectory(rooms []core.Room, unread map[string]bool) {
	listed := make(map[string]bool, len(rooms))
	for _, r := range rooms {
		listed[r.ID] = true
	}
	// Rooms waiting for approval are not returned by the backend yet.
	for _, r := range c.rooms.Rooms(roomlistAll) {
		if !listed[r.ID] && r.Membership == core.MembershipPending {
			rooms = append(rooms, r)
		}
	}
	c.rooms.Replace(rooms)
	c.rooms.SetUnread(unread)
	if c.act != nil {
		c.rooms.MarkRead(c.act.room)
	}
	c.roomsChanged()
}

// CreateRoom creates a room administered by the current user.
func (c *Controller) CreateRoom(ctx context.Context, req core.NewRoomRequest) (core.Room, error) {
	if req.Name == "" {
		return core.Room{}, errors.New("room name is required")
	}
	room, err := c.api.CreateRoom(ctx, c.user().ID, req)
	if err != nil {
		return core.Room{}, c.directoryFailed("create_room", err)
	}
	err = c.call(ctx, func() error {
		c.rooms.Upsert(room)
		c.roomsChanged()
		c.notice(core.NoticeInfo, fmt.Sprintf("Chat %s created", room.Name), nil)
		return nil
	})
	return room, err
}

// DeleteRoom deletes a room the current user administers and forgets it locally.
func (c *Controller) DeleteRoom(ctx context.Context, roomID string) error {
	if err := c.api.DeleteRoom(ctx, roomID, c.user().ID); err != nil {
		return c.directoryFailed("delete_room", err)
	}
	if err := c.cache.Clear(ctx, roomID); err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Msg("cache clear failed")
	}
	return c.call(ctx, func() error {
		if c.act != nil && c.act.room == roomID {
			c.deactivate()
			c.emit(core.Event{Kind: core.EventRedirect, Room: roomID})
		}
		c.writer.forget(roomID)
		c.forget(roomID)
		if c.rooms.Remove(roomID) {
			c.roomsChanged()
		}
		return nil
	})
}

// RequestJoin asks the room admin for access. A request that is already
// pending is reported as information, not as a failure.
func (c *Controller) RequestJoin(ctx context.Context, roomID string) error {
	err := c.api.RequestJoin(ctx, roomID, c.user().ID)
	if err != nil && !core.IsKind(err, core.KindConflict) {
		return c.directoryFailed("request_join", err)
	}
	conflict := err != nil
	return c.call(ctx, func() error {
		c.markPending(roomID)
		if conflict {
			c.notice(core.NoticeInfo, core.UserMessage(err), core.AsCoreError(err))
		} else {
			c.notice(core.NoticeInfo, "Join request sent", nil)
		}
		c.emit(core.Event{Kind: core.EventWaitingApproval, Room: roomID})
		return nil
	})
}

// JoinViaLink resolves an invite link: members are switched into the room,
// everyone else files a join request unless one is pending.
func (c *Controller) JoinViaLink(ctx context.Context, roomID string) error {
	m, err := c.api.CheckMembership(ctx, roomID, c.user().ID)
	if err != nil {
		return c.directoryFailed("check_membership", err)
	}
	if m.Room != nil {
		room := *m.Room
		room.Membership = m.Status
		if err := c.call(ctx, func() error {
			c.rooms.Upsert(room)
			c.roomsChanged()
			return nil
		}); err != nil {
			return err
		}
	}

	switch m.Status {
	case core.MembershipMember:
		return c.SwitchRoom(roomID)
	case core.MembershipPending:
		return c.call(ctx, func() error {
			c.emit(core.Event{Kind: core.EventWaitingApproval, Room: roomID})
			return nil
		})
	default:
		return c.RequestJoin(ctx, roomID)
	}
}

// LoggedOut drops every room, message and draft. The session calls it after logout.
func (c *Controller) LoggedOut() error {
	return c.post(func() {
		c.deactivate()
		c.store.Reset()
		c.pages.Clear()
		c.rooms.Replace(nil)
		c.mu.Lock()
		c.states = make(map[string]core.RoomState)
		c.drafts = make(map[string]string)
		c.sending = make(map[string]bool)
		c.mu.Unlock()
		c.emit(core.Event{Kind: core.EventLoggedOut})
	})
}

func (c *Controller) markPending(roomID string) {
	room, ok := c.rooms.Get(roomID)
	if !ok {
		room = core.Room{ID: roomID, Name: roomID}
	}
	if room.Membership == core.MembershipMember {
		return
	}
	room.Membership = core.MembershipPending
	c.rooms.Upsert(room)
	c.roomsChanged()
}

func (c *Controller) forget(roomID string) {
	c.store.Forget(roomID)
	c.pages.Reset(roomID)
	c.mu.Lock()
	delete(c.states, roomID)
	delete(c.drafts, roomID)
	c.mu.Unlock()
}

// directoryFailed surfaces a failure of a directory operation and returns it
// as a *core.CoreError.
func (c *Controller) directoryFailed(op string, err error) error {
	ce := core.AsCoreError(err)
	c.metrics.FetchFailed(op, string(ce.Kind))
	c.log.Warn().Err(ce).Str("op", op).Msg("directory operation failed")
	if ce.Kind != core.KindUnauthorized {
		c.notice(core.NoticeError, core.UserMessage(ce), ce)
	}
	return ce
}
