package proto

import (
	"encoding/json"
	"fmt"
)

const ProtocolVersion = 1

// Outbound events emitted by the client.
const (
	EventHello         = "hello"
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventTyping        = "typing"
	EventStopTyping    = "stop-typing"
	EventSendMessage   = "send-message"
	EventDeleteMessage = "delete-message"
)

// Inbound events pushed by the backend.
const (
	EventReceiveMessage     = "receive-message"
	EventMessageDeleted     = "message-deleted"
	EventUserTyping         = "user-typing"
	EventUserStopTyping     = "user-stop-typing"
	EventJoinRequestHandled = "join-request-handled"
	EventError              = "error"
)

const (
	ActionApproved = "approved"
	ActionRejected = "rejected"
)

// Envelope frames every socket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload under event.
func NewEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("encode %s payload: %w", event, err)
	}
	env.Data = data
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// HelloData introduces the client right after the socket is accepted.
type HelloData struct {
	UserID   string `json:"userId"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// RoomData names a room to join or leave.
type RoomData struct {
	RoomID string `json:"roomId"`
}

// TypingData is sent and received for typing indicators.
type TypingData struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
}

// SendMessageData relays a confirmed or edited message to the other participants.
type SendMessageData struct {
	RoomID  string  `json:"roomId"`
	Message Message `json:"message"`
}

// DeleteMessageData announces a deletion; the same shape arrives as message-deleted.
type DeleteMessageData struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

// JoinRequestHandledData is the admin's decision on a join request.
type JoinRequestHandledData struct {
	UserID   string `json:"userId"`
	ChatID   string `json:"chatId"`
	ChatName string `json:"chatName,omitempty"`
	Action   string `json:"action"`
}

// Error describes a protocol-level error pushed by the backend.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Person is the wire form of a user or message sender.
type Person struct {
	ID             string `json:"id"`
	GivenName      string `json:"given_name"`
	Email          string `json:"email,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// Message is the wire form of a chat message.
type Message struct {
	ID            string   `json:"id"`
	ChatID        string   `json:"chat_id"`
	ChatIDAlt     string   `json:"chatId,omitempty"`
	Content       string   `json:"content"`
	CreatedBy     string   `json:"created_by"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
	Sender        *Person  `json:"sender,omitempty"`
	ReplyTo       *Message `json:"replyTo,omitempty"`
	FileURL       string   `json:"file_url,omitempty"`
	FileType      string   `json:"file_type,omitempty"`
	FileName      string   `json:"file_name,omitempty"`
	IsEdit        bool     `json:"isEdit,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// Room is the wire form of a chatroom.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AdminID     string `json:"admin_id,omitempty"`
	LastMessage string `json:"last_message,omitempty"`
	AvatarText  string `json:"avatar_text,omitempty"`
	AvatarColor string `json:"avatar_color,omitempty"`
	Unread      bool   `json:"unread,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}
