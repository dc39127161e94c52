package proto

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
}

// ParseTime parses the timestamp formats the backend is known to emit.
// Unix milliseconds are accepted as a fallback.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// FormatTime renders a timestamp the way the backend emits it.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Mapper converts wire payloads into domain values.
// Unparseable timestamps are decoded as zero times, which the merge engine
// stamps with the merge time, and reported on the logger.
type Mapper struct {
	log *zerolog.Logger
}

// NewMapper builds a mapper. A nil logger disables reporting.
func NewMapper(log *zerolog.Logger) *Mapper {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Mapper{log: log}
}

// Message converts a wire message.
func (mp *Mapper) Message(w Message) core.Message {
	m := core.Message{
		ID:            w.ID,
		ChatID:        w.ChatID,
		Content:       w.Content,
		CreatedBy:     w.CreatedBy,
		CorrelationID: w.CorrelationID,
	}
	if m.ChatID == "" {
		m.ChatID = w.ChatIDAlt
	}

	if created, ok := ParseTime(w.CreatedAt); ok {
		m.CreatedAt = created
	} else {
		mp.log.Warn().
			Str("message_id", w.ID).
			Str("created_at", w.CreatedAt).
			Msg("unparseable message timestamp, ordering by merge time")
	}
	if w.UpdatedAt != "" && w.IsEdit {
		if edited, ok := ParseTime(w.UpdatedAt); ok {
			m.EditedAt = edited
		}
	}

	if w.Sender != nil {
		m.Sender = core.Sender{ID: w.Sender.ID, Name: w.Sender.GivenName, Avatar: w.Sender.ProfilePicture}
	}
	if m.Sender.ID == "" {
		m.Sender.ID = w.CreatedBy
	}
	if w.ReplyTo != nil {
		m.ReplyTo = mp.Message(*w.ReplyTo).Quote()
	}
	if w.FileURL != "" {
		m.Attachment = &core.Attachment{URL: w.FileURL, Kind: AttachmentKind(w.FileType), Name: w.FileName}
	}
	return m
}

// Messages converts a batch.
func (mp *Mapper) Messages(ws []Message) []core.Message {
	out := make([]core.Message, 0, len(ws))
	for _, w := range ws {
		out = append(out, mp.Message(w))
	}
	return out
}

// Room converts a wire room.
func (mp *Mapper) Room(w Room) core.Room {
	r := core.Room{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Avatar:      w.AvatarText,
		LastMessage: w.LastMessage,
		Unread:      w.Unread,
		AdminID:     w.AdminID,
	}
	if updated, ok := ParseTime(w.UpdatedAt); ok {
		r.UpdatedAt = updated
	}
	return r
}

// User converts a wire person.
func (mp *Mapper) User(p Person) core.User {
	return core.User{ID: p.ID, Name: p.GivenName, Email: p.Email, Avatar: p.ProfilePicture}
}

// FromMessage converts a domain message to its wire form.
func FromMessage(m core.Message) Message {
	w := Message{
		ID:            m.ID,
		ChatID:        m.ChatID,
		ChatIDAlt:     m.ChatID,
		Content:       m.Content,
		CreatedBy:     m.CreatedBy,
		CreatedAt:     FormatTime(m.CreatedAt),
		UpdatedAt:     FormatTime(m.EditedAt),
		CorrelationID: m.CorrelationID,
	}
	if m.Sender != (core.Sender{}) {
		w.Sender = &Person{ID: m.Sender.ID, GivenName: m.Sender.Name, ProfilePicture: m.Sender.Avatar}
	}
	if m.ReplyTo != nil {
		reply := FromMessage(*m.ReplyTo.Quote())
		w.ReplyTo = &reply
	}
	if m.Attachment != nil {
		w.FileURL = m.Attachment.URL
		w.FileType = string(m.Attachment.Kind)
		w.FileName = m.Attachment.Name
	}
	return w
}

// FromRoom converts a domain room to its wire form.
func FromRoom(r core.Room) Room {
	return Room{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		AdminID:     r.AdminID,
		LastMessage: r.LastMessage,
		AvatarText:  r.Avatar,
		Unread:      r.Unread,
		UpdatedAt:   FormatTime(r.UpdatedAt),
	}
}

// AttachmentKind maps a file_type value (a kind or a MIME type) to a domain kind.
func AttachmentKind(fileType string) core.AttachmentKind {
	if strings.HasPrefix(strings.ToLower(fileType), "image") {
		return core.AttachmentImage
	}
	return core.AttachmentFile
}
