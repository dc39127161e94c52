package roomsync

import (
	"fmt"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// Socket handlers run on the socket read goroutine: they decode and post.

func (c *Controller) decodeMessage(env proto.Envelope) (core.Message, bool, bool) {
	var w proto.Message
	if err := env.Decode(&w); err != nil {
		c.log.Warn().Err(err).Msg("malformed live message")
		return core.Message{}, false, false
	}
	return c.mapper.Message(w), w.IsEdit, true
}

func (c *Controller) onRoomMessage(roomID string, env proto.Envelope) {
	m, isEdit, ok := c.decodeMessage(env)
	if !ok || (m.ChatID != "" && m.ChatID != roomID) {
		return
	}
	c.post(func() {
		act := c.act
		if act == nil || act.room != roomID {
			return
		}
		if isEdit {
			if c.store.Edit(roomID, m.ID, editPatch(m, c.now())) {
				c.changed(roomID)
			}
			return
		}
		if m.ID == "" {
			return
		}
		delete(act.cached, m.ID)
		c.store.Merge(roomID, []core.Message{m})
		c.metrics.Merged("live", 1)
		if m.CreatedBy != "" {
			c.presence.Remove(roomID, m.CreatedBy)
		}
		if preview := m.Preview(); preview != "" && c.rooms.SetPreview(roomID, preview) {
			c.roomsChanged()
		}
		c.changed(roomID)
	})
}

// onAnyMessage flags rooms other than the active one as unread.
func (c *Controller) onAnyMessage(env proto.Envelope) {
	m, isEdit, ok := c.decodeMessage(env)
	if !ok || isEdit || m.ChatID == "" {
		return
	}
	c.post(func() {
		if c.act != nil && c.act.room == m.ChatID {
			return
		}
		if m.CreatedBy != "" && m.CreatedBy == c.user().ID {
			return
		}
		changed := c.rooms.MarkUnread(m.ChatID)
		if preview := m.Preview(); preview != "" && c.rooms.SetPreview(m.ChatID, preview) {
			changed = true
		}
		if changed {
			c.roomsChanged()
		}
	})
}

func (c *Controller) onRoomDelete(roomID string, env proto.Envelope) {
	var d proto.DeleteMessageData
	if err := env.Decode(&d); err != nil {
		c.log.Warn().Err(err).Msg("malformed delete event")
		return
	}
	if d.ChatID != "" && d.ChatID != roomID {
		return
	}
	c.post(func() {
		if c.act == nil || c.act.room != roomID {
			return
		}
		if c.store.Delete(roomID, d.MessageID) {
			c.changed(roomID)
		}
	})
}

func (c *Controller) onRoomTyping(roomID string, env proto.Envelope, typing bool) {
	var t proto.TypingData
	if err := env.Decode(&t); err != nil {
		c.log.Warn().Err(err).Msg("malformed typing event")
		return
	}
	if t.RoomID != roomID || t.UserID == "" || t.UserID == c.user().ID {
		return
	}
	c.post(func() {
		if c.act == nil || c.act.room != roomID {
			return
		}
		if typing {
			name := t.UserName
			if name == "" {
				name = t.UserID
			}
			c.presence.Touch(roomID, t.UserID, name)
			return
		}
		c.presence.Remove(roomID, t.UserID)
	})
}

func (c *Controller) onJoinRequestHandled(env proto.Envelope) {
	var d proto.JoinRequestHandledData
	if err := env.Decode(&d); err != nil {
		c.log.Warn().Err(err).Msg("malformed join decision")
		return
	}
	if d.UserID != "" && d.UserID != c.user().ID {
		return
	}
	decision := core.JoinDecision{RoomID: d.ChatID, RoomName: d.ChatName, Approved: d.Action == proto.ActionApproved}
	c.post(func() { c.onJoinDecision(decision) })
}

func (c *Controller) onJoinDecision(d core.JoinDecision) {
	name := d.RoomName
	if name == "" {
		name = d.RoomID
	}
	if !d.Approved {
		if c.rooms.Remove(d.RoomID) {
			c.roomsChanged()
		}
		c.emit(core.Event{Kind: core.EventJoinRejected, Room: d.RoomID})
		c.notice(core.NoticeInfo, fmt.Sprintf("Your request to join %s was declined", name), nil)
		return
	}

	room, ok := c.rooms.Get(d.RoomID)
	if !ok {
		room = core.Room{ID: d.RoomID, Name: d.RoomName}
	}
	room.Membership = core.MembershipMember
	c.rooms.Upsert(room)
	c.roomsChanged()
	c.emit(core.Event{Kind: core.EventJoinApproved, Room: d.RoomID})
	c.notice(core.NoticeInfo, fmt.Sprintf("Your request to join %s was approved", name), nil)

	if c.act != nil && c.act.room == d.RoomID && !c.act.fetched {
		c.activate(c.act)
	}
	go c.refreshRooms(c.ctx)
}

func (c *Controller) onSocketError(env proto.Envelope) {
	var e proto.Error
	if err := env.Decode(&e); err != nil {
		c.log.Warn().Err(err).Msg("malformed socket error")
		return
	}
	c.log.Warn().Str("code", e.Code).Str("msg", e.Msg).Msg("socket error")
}

func editPatch(m core.Message, now time.Time) core.Patch {
	content := m.Content
	edited := m.EditedAt
	if edited.IsZero() {
		edited = now
	}
	return core.Patch{Content: &content, Attachment: m.Attachment, EditedAt: edited}
}
