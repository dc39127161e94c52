package roomsync

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/vovakirdan/wirechat-client/internal/backend"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

const (
	msgEditForbidden   = "You can only edit your own messages"
	msgDeleteForbidden = "You can only delete your own messages"
)

// SendMessage appends an optimistic message to the active room and writes it
// to the backend. Only one send may be pending per room.
func (c *Controller) SendMessage(ctx context.Context, text string, replyTo *core.Message) error {
	return c.call(ctx, func() error { return c.sendMessage(text, replyTo, nil) })
}

// SendAttachment uploads r and sends it as a message with an optional caption.
// The room's send slot is held for the whole upload.
func (c *Controller) SendAttachment(ctx context.Context, name string, r io.Reader, caption string) error {
	var roomID string
	err := c.call(ctx, func() error {
		if c.act == nil {
			return core.ErrNoActiveRoom
		}
		if c.isSending(c.act.room) {
			return core.ErrSendInFlight
		}
		roomID = c.act.room
		c.setSending(roomID, true)
		return nil
	})
	if err != nil {
		return err
	}

	att, err := c.api.Upload(ctx, name, r)
	if err != nil {
		c.post(func() { c.setSending(roomID, false) })
		ce := core.AsCoreError(err)
		c.metrics.Send("upload_failed")
		c.notice(core.NoticeError, core.UserMessage(ce), ce)
		return ce
	}
	return c.call(ctx, func() error {
		c.setSending(roomID, false)
		if c.act == nil || c.act.room != roomID {
			return core.ErrNoActiveRoom
		}
		return c.sendMessage(caption, nil, &att)
	})
}

func (c *Controller) sendMessage(text string, replyTo *core.Message, att *core.Attachment) error {
	act := c.act
	if act == nil {
		return core.ErrNoActiveRoom
	}
	if strings.TrimSpace(text) == "" && att == nil {
		return core.ErrEmptyMessage
	}
	roomID := act.room
	if c.isSending(roomID) {
		return core.ErrSendInFlight
	}

	user := c.user()
	corr := uuid.NewString()
	tmp := core.Message{
		ID:            core.TempIDPrefix + uuid.NewString(),
		ChatID:        roomID,
		Content:       text,
		CreatedBy:     user.ID,
		CreatedAt:     c.now(),
		Sender:        core.Sender{ID: user.ID, Name: user.Name, Avatar: user.Avatar},
		Attachment:    att,
		CorrelationID: corr,
		Pending:       true,
	}
	req := backend.SendRequest{
		Text:          text,
		UserID:        user.ID,
		CorrelationID: corr,
	}
	if replyTo != nil {
		tmp.ReplyTo = replyTo.Quote()
		req.ReplyToID = replyTo.ID
	}
	if att != nil {
		req.FileURL = att.URL
		req.FileType = string(att.Kind)
		req.FileName = att.Name
	}

	c.setSending(roomID, true)
	c.setDraft(roomID, "")
	if c.typingRoom == roomID {
		c.stopTyping()
	}
	c.store.Merge(roomID, []core.Message{tmp})
	c.changed(roomID)

	go func() {
		res := core.From(c.api.SendMessage(c.ctx, roomID, req))
		c.post(func() { c.onSent(roomID, tmp, res) })
	}()
	return nil
}

func (c *Controller) onSent(roomID string, tmp core.Message, res core.Result[core.Message]) {
	c.setSending(roomID, false)

	if !res.IsOk() {
		c.store.RemoveProvisional(roomID, tmp.CorrelationID)
		c.setDraft(roomID, tmp.Content)
		c.metrics.Send("failed")
		c.log.Warn().Err(res.Err).Str("room_id", roomID).Msg("send failed, rolled back")
		c.changed(roomID)
		c.emit(core.Event{Kind: core.EventSendFailed, Room: roomID, Message: tmp, Draft: tmp.Content, Error: res.Err})
		c.notice(core.NoticeError, core.UserMessage(res.Err), res.Err)
		return
	}

	confirmed := res.Value
	if confirmed.ReplyTo == nil && tmp.ReplyTo != nil {
		confirmed.ReplyTo = tmp.ReplyTo
	}
	if confirmed.Attachment == nil && tmp.Attachment != nil {
		confirmed.Attachment = tmp.Attachment
	}
	c.store.Reconcile(roomID, tmp.CorrelationID, confirmed)
	c.metrics.Send("ok")
	c.changed(roomID)
	c.emit(core.Event{Kind: core.EventSendConfirmed, Room: roomID, Message: confirmed})

	c.emitSocket(proto.EventSendMessage, proto.SendMessageData{RoomID: roomID, Message: proto.FromMessage(confirmed)})
	if c.rooms.SetPreview(roomID, "You: "+confirmed.Preview()) {
		c.roomsChanged()
	}
}

// EditMessage replaces the content of one of the user's messages in the
// active room. A permission failure changes nothing locally.
func (c *Controller) EditMessage(ctx context.Context, messageID, content string) error {
	return c.call(ctx, func() error {
		act := c.act
		if act == nil {
			return core.ErrNoActiveRoom
		}
		if strings.TrimSpace(content) == "" {
			return core.ErrEmptyMessage
		}
		if strings.HasPrefix(messageID, core.TempIDPrefix) {
			return core.ErrSendInFlight
		}
		roomID, uid := act.room, c.user().ID
		go func() {
			res := core.From(c.api.EditMessage(c.ctx, messageID, uid, content))
			c.post(func() { c.onEdited(roomID, messageID, content, res) })
		}()
		return nil
	})
}

func (c *Controller) onEdited(roomID, messageID, content string, res core.Result[core.Message]) {
	if !res.IsOk() {
		c.writeFailed("edit_message", msgEditForbidden, res.Err)
		return
	}
	m := res.Value
	if m.Content == "" {
		m.Content = content
	}
	if c.store.Edit(roomID, messageID, editPatch(m, c.now())) {
		c.changed(roomID)
	}

	wire := proto.FromMessage(m)
	wire.ID = messageID
	wire.ChatID, wire.ChatIDAlt = roomID, roomID
	wire.IsEdit = true
	c.emitSocket(proto.EventSendMessage, proto.SendMessageData{RoomID: roomID, Message: wire})
}

// DeleteMessage removes one of the user's messages from the active room.
func (c *Controller) DeleteMessage(ctx context.Context, messageID string) error {
	return c.call(ctx, func() error {
		act := c.act
		if act == nil {
			return core.ErrNoActiveRoom
		}
		if strings.HasPrefix(messageID, core.TempIDPrefix) {
			return core.ErrSendInFlight
		}
		roomID, uid := act.room, c.user().ID
		go func() {
			res := core.From(struct{}{}, c.api.DeleteMessage(c.ctx, messageID, uid))
			c.post(func() { c.onDeleted(roomID, messageID, res) })
		}()
		return nil
	})
}

func (c *Controller) onDeleted(roomID, messageID string, res core.Result[struct{}]) {
	if !res.IsOk() {
		c.writeFailed("delete_message", msgDeleteForbidden, res.Err)
		return
	}
	if c.store.Delete(roomID, messageID) {
		c.changed(roomID)
	}
	c.emitSocket(proto.EventDeleteMessage, proto.DeleteMessageData{MessageID: messageID, ChatID: roomID})
}

func (c *Controller) writeFailed(op, forbidden string, err *core.CoreError) {
	c.metrics.WriteFailed(op, string(err.Kind))
	c.log.Warn().Err(err).Str("op", op).Msg("message write failed")
	text := core.UserMessage(err)
	if err.Kind == core.KindForbidden {
		text = forbidden
	}
	c.notice(core.NoticeError, text, err)
}
