// Package store defines the local message cache used to paint a room before
// the network answers.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

// DefaultLimit is the number of newest messages kept per room.
const DefaultLimit = 100

// Cache persists the most recent messages of each room across restarts.
type Cache interface {
	// Save replaces the cached messages of a room.
	Save(ctx context.Context, roomID string, messages []core.Message) error
	// Load returns the cached messages of a room in canonical order, or nothing.
	Load(ctx context.Context, roomID string) ([]core.Message, error)
	// Clear drops a room from the cache.
	Clear(ctx context.Context, roomID string) error
	Close() error
}

// Prepare returns the slice of messages a cache should keep: confirmed
// messages only, newest limit of them, in canonical order.
func Prepare(messages []core.Message, limit int) []core.Message {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := make([]core.Message, 0, min(len(messages), limit))
	for _, m := range messages {
		if m.IsProvisional() {
			continue
		}
		out = append(out, m)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Record is the persisted form of a message.
type Record struct {
	ID             string  `msgpack:"id"`
	ChatID         string  `msgpack:"chatId"`
	Content        string  `msgpack:"content"`
	CreatedBy      string  `msgpack:"createdBy"`
	CreatedAt      int64   `msgpack:"createdAt"`
	EditedAt       int64   `msgpack:"editedAt,omitempty"`
	SenderID       string  `msgpack:"senderId"`
	SenderName     string  `msgpack:"senderName"`
	SenderAvatar   string  `msgpack:"senderAvatar,omitempty"`
	ReplyTo        *Record `msgpack:"replyTo,omitempty"`
	AttachmentURL  string  `msgpack:"attachmentUrl,omitempty"`
	AttachmentKind string  `msgpack:"attachmentKind,omitempty"`
	AttachmentName string  `msgpack:"attachmentName,omitempty"`
}

// Key returns the record's message id.
func (r *Record) Key() []byte {
	return []byte(r.ID)
}

func (r *Record) MarshalBinary() (data []byte, err error) {
	type alias Record
	return msgpack.Marshal((*alias)(r))
}

func (r *Record) UnmarshalBinary(data []byte) error {
	type alias Record
	return msgpack.Unmarshal(data, (*alias)(r))
}

// NewRecord converts a message to its persisted form.
func NewRecord(m core.Message) *Record {
	r := &Record{
		ID:           m.ID,
		ChatID:       m.ChatID,
		Content:      m.Content,
		CreatedBy:    m.CreatedBy,
		CreatedAt:    unixNano(m.CreatedAt),
		EditedAt:     unixNano(m.EditedAt),
		SenderID:     m.Sender.ID,
		SenderName:   m.Sender.Name,
		SenderAvatar: m.Sender.Avatar,
	}
	if m.ReplyTo != nil {
		r.ReplyTo = NewRecord(*m.ReplyTo)
	}
	if m.Attachment != nil {
		r.AttachmentURL = m.Attachment.URL
		r.AttachmentKind = string(m.Attachment.Kind)
		r.AttachmentName = m.Attachment.Name
	}
	return r
}

// Message converts the record back to a message.
func (r *Record) Message() core.Message {
	m := core.Message{
		ID:        r.ID,
		ChatID:    r.ChatID,
		Content:   r.Content,
		CreatedBy: r.CreatedBy,
		CreatedAt: fromUnixNano(r.CreatedAt),
		EditedAt:  fromUnixNano(r.EditedAt),
		Sender: core.Sender{
			ID:     r.SenderID,
			Name:   r.SenderName,
			Avatar: r.SenderAvatar,
		},
	}
	if r.ReplyTo != nil {
		reply := r.ReplyTo.Message()
		m.ReplyTo = &reply
	}
	if r.AttachmentURL != "" {
		m.Attachment = &core.Attachment{
			URL:  r.AttachmentURL,
			Kind: core.AttachmentKind(r.AttachmentKind),
			Name: r.AttachmentName,
		}
	}
	return m
}

// Encode serializes a message.
func Encode(m core.Message) ([]byte, error) {
	data, err := NewRecord(m).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", m.ID, err)
	}
	return data, nil
}

// Decode deserializes a message.
func Decode(data []byte) (core.Message, error) {
	var r Record
	if err := r.UnmarshalBinary(data); err != nil {
		return core.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return r.Message(), nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Nop is a cache that stores nothing.
type Nop struct{}

func (Nop) Save(context.Context, string, []core.Message) error   { return nil }
func (Nop) Load(context.Context, string) ([]core.Message, error) { return nil, nil }
func (Nop) Clear(context.Context, string) error                  { return nil }
func (Nop) Close() error                                         { return nil }
