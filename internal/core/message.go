package core

import (
	"strings"
	"time"
)

// TempIDPrefix marks ids generated locally for optimistic sends.
const TempIDPrefix = "tmp-"

// AttachmentKind classifies a file carried by a message.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is a file or image payload hosted by the backend.
type Attachment struct {
	URL  string
	Kind AttachmentKind
	Name string
}

// Sender is the author snapshot taken when the message was sent.
type Sender struct {
	ID     string
	Name   string
	Avatar string
}

// Message is the domain model for a chat message.
type Message struct {
	ID        string
	ChatID    string
	Content   string
	CreatedBy string
	CreatedAt time.Time
	EditedAt  time.Time
	Sender    Sender
	// ReplyTo is a shallow copy used for display only.
	ReplyTo    *Message
	Attachment *Attachment

	// CorrelationID is echoed by the backend for messages sent by this client.
	CorrelationID string
	// Pending is set while the message is an unconfirmed optimistic send.
	Pending bool
}

// IsProvisional reports whether the message is still waiting for a backend ack.
func (m Message) IsProvisional() bool {
	return m.Pending || strings.HasPrefix(m.ID, TempIDPrefix)
}

// Quote returns a copy suitable for ReplyTo: nested replies are dropped.
func (m Message) Quote() *Message {
	q := m
	q.ReplyTo = nil
	q.Pending = false
	return &q
}

// Preview returns the text shown as a room's last message.
func (m Message) Preview() string {
	if m.Content != "" {
		return m.Content
	}
	if m.Attachment != nil {
		if m.Attachment.Kind == AttachmentImage {
			return "[image]"
		}
		return "[file]"
	}
	return ""
}

// Patch is an edit applied to an existing message.
type Patch struct {
	Content    *string
	Attachment *Attachment
	EditedAt   time.Time
}

// Page is one backward page of history.
type Page struct {
	Messages []Message
	Cursor   string
	HasMore  bool
}
