package roomsync

import (
	"context"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/socket"
)

type fetchKind int

const (
	fetchInitial fetchKind = iota
	fetchPage
)

func (k fetchKind) String() string {
	if k == fetchPage {
		return "page"
	}
	return "initial"
}

// SwitchRoom makes roomID the active room. An empty id deactivates. The
// history load starts after the switch debounce; a newer switch cancels it.
// Switching to the room that is already active retries it if it failed.
func (c *Controller) SwitchRoom(roomID string) error {
	return c.post(func() { c.switchRoom(roomID) })
}

// LoadMore fetches the page before the oldest loaded message. A request
// while another one is in flight is dropped. ErrNoMoreHistory is returned
// once the start of history was reached.
func (c *Controller) LoadMore(ctx context.Context) error {
	return c.call(ctx, c.loadMore)
}

// Retry re-runs whatever failed for the active room: the activation or the
// last backward page.
func (c *Controller) Retry(ctx context.Context) error {
	return c.call(ctx, c.retry)
}

func (c *Controller) switchRoom(roomID string) {
	if c.act != nil && c.act.room == roomID {
		if c.RoomState(roomID) == core.StateError {
			c.retry()
		}
		return
	}

	c.deactivate()
	if roomID == "" {
		return
	}

	c.gen++
	ctx, cancel := context.WithCancel(c.ctx)
	act := &activation{
		room:   roomID,
		gen:    c.gen,
		ctx:    ctx,
		cancel: cancel,
		scope:  c.subscribeRoom(roomID),
	}
	c.act = act
	c.setActive(roomID)
	c.emitSocket(proto.EventJoinRoom, proto.RoomData{RoomID: roomID})

	gen := act.gen
	act.timer = time.AfterFunc(c.opts.SwitchDebounce, func() {
		c.post(func() {
			if a := c.current(gen); a != nil {
				c.activate(a)
			}
		})
	})
	c.log.Debug().Str("room_id", roomID).Uint64("gen", gen).Msg("room switched")
}

// deactivate tears down everything scoped to the active room.
func (c *Controller) deactivate() {
	act := c.act
	if act == nil {
		return
	}
	c.act = nil
	c.setActive("")

	if act.timer != nil {
		act.timer.Stop()
	}
	act.cancel()
	act.scope.Release()
	c.pages.End(act.room)

	switch c.RoomState(act.room) {
	case core.StateLoading:
		c.setState(act.room, core.StateUnloaded)
	case core.StateLoadingMore:
		c.setState(act.room, core.StateLoaded)
	}
	if c.typingRoom == act.room {
		c.stopTyping()
	}
	c.presence.Clear(act.room)
	c.emitSocket(proto.EventLeaveRoom, proto.RoomData{RoomID: act.room})
	c.log.Debug().Str("room_id", act.room).Msg("room deactivated")
}

// activate runs the membership policy, then loads the room.
// Rooms the directory lists as joined skip the membership check.
func (c *Controller) activate(act *activation) {
	act.retry = retryNone
	if room, ok := c.rooms.Get(act.room); ok && room.IsMember() {
		c.load(act)
		return
	}

	c.setState(act.room, core.StateLoading)
	roomID, gen, uid := act.room, act.gen, c.user().ID
	go func() {
		res := core.From(c.api.CheckMembership(act.ctx, roomID, uid))
		c.post(func() { c.onMembership(gen, res) })
	}()
}

func (c *Controller) onMembership(gen uint64, res core.Result[core.Membership]) {
	act := c.current(gen)
	if act == nil {
		return
	}
	if !res.IsOk() {
		if act.ctx.Err() != nil {
			return
		}
		c.fail(act, "check_membership", res.Err, retryActivate)
		return
	}

	m := res.Value
	if m.Room != nil {
		room := *m.Room
		if existing, ok := c.rooms.Get(room.ID); ok {
			room.Unread = existing.Unread
		}
		room.Membership = m.Status
		c.rooms.Upsert(room)
		c.roomsChanged()
	}

	switch m.Status {
	case core.MembershipMember:
		c.rooms.SetMembership(act.room, core.MembershipMember)
		c.load(act)
	case core.MembershipPending:
		c.setState(act.room, core.StateUnloaded)
		c.emit(core.Event{Kind: core.EventWaitingApproval, Room: act.room})
	default:
		c.setState(act.room, core.StateUnloaded)
		c.emit(core.Event{Kind: core.EventJoinRequired, Room: act.room})
	}
}

// load marks the room read, paints the cached view and issues the initial fetch.
func (c *Controller) load(act *activation) {
	c.markRead(act.room)
	c.setState(act.room, core.StateLoading)
	act.fetched = false
	c.preload(act)
	c.fetch(act, fetchInitial, "", "")
}

func (c *Controller) markRead(roomID string) {
	if c.rooms.MarkRead(roomID) {
		c.roomsChanged()
	}
	uid := c.user().ID
	go func() {
		if err := c.api.MarkRead(c.ctx, roomID, uid); err != nil && c.ctx.Err() == nil {
			c.log.Debug().Err(err).Str("room_id", roomID).Msg("mark read failed")
		}
	}()
}

func (c *Controller) preload(act *activation) {
	roomID, gen := act.room, act.gen
	go func() {
		cached, err := c.cache.Load(act.ctx, roomID)
		if err != nil {
			c.log.Warn().Err(err).Str("room_id", roomID).Msg("cache read failed")
			return
		}
		if len(cached) == 0 {
			return
		}
		c.post(func() { c.onPreload(gen, cached) })
	}()
}

func (c *Controller) onPreload(gen uint64, cached []core.Message) {
	act := c.current(gen)
	if act == nil || act.fetched {
		return
	}
	act.cached = make(map[string]bool, len(cached))
	for _, m := range cached {
		if !c.store.Has(act.room, m.ID) {
			act.cached[m.ID] = true
		}
	}
	c.store.Merge(act.room, cached)
	c.metrics.CachePreload()
	c.metrics.Merged("cache", len(cached))
	c.changed(act.room)

	if !c.tracker.Online() {
		c.setState(act.room, core.StateLoaded)
	}
	c.log.Debug().Str("room_id", act.room).Int("count", len(cached)).Msg("cache preloaded")
}

// fetch issues one history request under its own cancellable context.
func (c *Controller) fetch(act *activation, kind fetchKind, cursor, anchor string) {
	ctx, cancel := context.WithCancel(act.ctx)
	roomID, gen := act.room, act.gen
	start := c.now()
	go func() {
		res := core.From(c.api.Messages(ctx, roomID, cursor))
		// ctx stays live until the completion runs on the Run goroutine, so a
		// deactivation in between is still observed.
		err := c.post(func() {
			cancelled := ctx.Err() != nil
			cancel()
			if cancelled {
				c.log.Debug().Str("room_id", roomID).Stringer("kind", kind).Msg("cancelled fetch ignored")
				return
			}
			c.metrics.ObserveFetch(kind.String(), c.now().Sub(start))
			c.onPage(gen, kind, anchor, res)
		})
		if err != nil {
			cancel()
		}
	}()
}

func (c *Controller) onPage(gen uint64, kind fetchKind, anchor string, res core.Result[core.Page]) {
	act := c.current(gen)
	if act == nil {
		c.log.Debug().Uint64("gen", gen).Msg("stale fetch ignored")
		return
	}
	roomID := act.room

	if kind == fetchPage {
		c.pages.End(roomID)
	}
	if !res.IsOk() {
		op := "fetch_messages"
		retry := retryActivate
		if kind == fetchPage {
			retry = retryPage
		}
		c.fail(act, op, res.Err, retry)
		return
	}

	page := res.Value
	record := true
	if kind == fetchInitial {
		act.fetched = true
		if len(act.cached) > 0 {
			cached := act.cached
			c.store.Retain(roomID, func(m core.Message) bool { return !cached[m.ID] })
			act.cached = nil
		}
		if c.pages.State(roomID).Fetched {
			record = c.refresh(roomID, page)
		}
	}
	c.store.Merge(roomID, page.Messages)
	if record {
		c.pages.RecordPage(roomID, page.Cursor, page.HasMore)
	}
	c.metrics.Merged(kind.String(), len(page.Messages))
	c.setState(roomID, core.StateLoaded)

	if kind == fetchPage {
		c.emit(core.Event{Kind: core.EventPagePrepended, Room: roomID, Anchor: anchor})
	}
	c.changed(roomID)
}

// refresh prepares the store for the newest page of a room fetched before.
// Copies of the page's messages are dropped so the page wins. When the page
// overlaps what is held, the older pages and the deeper cursor are kept and
// refresh reports false. Otherwise the held history has a gap, so only
// pending sends survive and the page's cursor must be recorded.
func (c *Controller) refresh(roomID string, page core.Page) bool {
	fresh := make(map[string]bool, len(page.Messages))
	overlap := false
	for _, m := range page.Messages {
		fresh[m.ID] = true
		if c.store.Has(roomID, m.ID) {
			overlap = true
		}
	}
	if overlap && page.HasMore {
		c.store.Retain(roomID, func(m core.Message) bool { return !fresh[m.ID] })
		return false
	}
	c.store.Retain(roomID, func(m core.Message) bool { return m.IsProvisional() })
	return true
}

func (c *Controller) loadMore() error {
	act := c.act
	if act == nil {
		return core.ErrNoActiveRoom
	}
	if !act.fetched || c.RoomState(act.room) != core.StateLoaded {
		return nil
	}
	st, ok := c.pages.Begin(act.room)
	if !ok {
		if st.Fetched && !st.HasMore {
			return core.ErrNoMoreHistory
		}
		return nil
	}

	anchor := ""
	if oldest, ok := c.store.Oldest(act.room); ok {
		anchor = oldest.ID
	}
	act.retry = retryNone
	c.setState(act.room, core.StateLoadingMore)
	c.fetch(act, fetchPage, st.Cursor, anchor)
	return nil
}

func (c *Controller) retry() error {
	act := c.act
	if act == nil {
		return core.ErrNoActiveRoom
	}
	switch act.retry {
	case retryPage:
		act.retry = retryNone
		c.setState(act.room, core.StateLoaded)
		return c.loadMore()
	case retryActivate:
		c.activate(act)
	default:
		if c.RoomState(act.room) == core.StateUnloaded {
			c.activate(act)
		}
	}
	return nil
}

// fail moves the room to Error and surfaces the failure.
func (c *Controller) fail(act *activation, op string, err *core.CoreError, retry retryKind) {
	act.retry = retry
	c.metrics.FetchFailed(op, string(err.Kind))
	c.log.Warn().Err(err).Str("room_id", act.room).Str("op", op).Str("kind", string(err.Kind)).Msg("room fetch failed")

	if err.Kind == core.KindNotFound {
		c.redirect(act.room, err)
		return
	}
	c.setState(act.room, core.StateError)
	if err.Kind == core.KindUnauthorized {
		return
	}
	c.notice(core.NoticeError, core.UserMessage(err), err)
}

// redirect leaves a room that no longer exists.
func (c *Controller) redirect(roomID string, err *core.CoreError) {
	if c.rooms.Remove(roomID) {
		c.roomsChanged()
	}
	if c.act != nil && c.act.room == roomID {
		c.deactivate()
	}
	c.setState(roomID, core.StateError)
	c.notice(core.NoticeError, core.UserMessage(err), err)
	c.emit(core.Event{Kind: core.EventRedirect, Room: roomID, Error: err})
}

// rejoin re-announces the active room after the socket (re)connected.
func (c *Controller) rejoin() {
	if c.act == nil {
		return
	}
	c.emitSocket(proto.EventJoinRoom, proto.RoomData{RoomID: c.act.room})
}

// subscribeRoom registers the handlers scoped to one activation.
func (c *Controller) subscribeRoom(roomID string) *socket.Scope {
	scope := &socket.Scope{}
	if c.sock == nil {
		return scope
	}
	scope.Add(c.sock.Subscribe(proto.EventReceiveMessage, func(env proto.Envelope) {
		c.onRoomMessage(roomID, env)
	}))
	scope.Add(c.sock.Subscribe(proto.EventMessageDeleted, func(env proto.Envelope) {
		c.onRoomDelete(roomID, env)
	}))
	scope.Add(c.sock.Subscribe(proto.EventUserTyping, func(env proto.Envelope) {
		c.onRoomTyping(roomID, env, true)
	}))
	scope.Add(c.sock.Subscribe(proto.EventUserStopTyping, func(env proto.Envelope) {
		c.onRoomTyping(roomID, env, false)
	}))
	return scope
}
