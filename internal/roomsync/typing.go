package roomsync

import (
	"context"
	"strings"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// Typing records the compose draft of the active room and drives the
// outbound typing indicator: typing is throttled to one signal per interval
// and stop-typing follows after the idle period or when the draft is cleared.
func (c *Controller) Typing(ctx context.Context, draft string) error {
	return c.call(ctx, func() error { return c.typing(draft) })
}

func (c *Controller) typing(draft string) error {
	act := c.act
	if act == nil {
		return core.ErrNoActiveRoom
	}
	c.setDraft(act.room, draft)

	if strings.TrimSpace(draft) == "" {
		if c.typingRoom == act.room {
			c.stopTyping()
		}
		return nil
	}

	allowed := c.limiter.Allow()
	if c.typingRoom != act.room || allowed {
		c.typingRoom = act.room
		c.emitSocket(proto.EventTyping, proto.TypingData{
			RoomID:   act.room,
			UserID:   c.user().ID,
			UserName: c.user().Name,
		})
	}

	c.typingSeq++
	seq := c.typingSeq
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(c.opts.TypingIdle, func() {
		c.post(func() {
			if c.typingSeq == seq && c.typingRoom != "" {
				c.stopTyping()
			}
		})
	})
	return nil
}

func (c *Controller) stopTyping() {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	if c.typingRoom == "" {
		return
	}
	c.emitSocket(proto.EventStopTyping, proto.TypingData{RoomID: c.typingRoom, UserID: c.user().ID})
	c.typingRoom = ""
}
