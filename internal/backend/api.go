package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

type meResponse struct {
	Data struct {
		User proto.Person `json:"user"`
	} `json:"data"`
}

// Me returns the user the token belongs to.
func (c *Client) Me(ctx context.Context) (core.User, error) {
	var resp meResponse
	if err := c.doJSON(ctx, "me", http.MethodGet, "/auth/me", nil, &resp); err != nil {
		return core.User{}, err
	}
	if resp.Data.User.ID == "" {
		return core.User{}, core.NewError(core.KindMalformedResponse, "me", "user missing from response", nil)
	}
	return c.mapper.User(resp.Data.User), nil
}

type roomsResponse struct {
	ChatRooms []struct {
		ChatRoom proto.Room `json:"chatRoom"`
	} `json:"chatRooms"`
}

// Rooms lists the rooms of a user.
func (c *Client) Rooms(ctx context.Context, userID string) ([]core.Room, error) {
	var resp roomsResponse
	path := "/chatroom/user/" + url.PathEscape(userID)
	if err := c.doJSON(ctx, "list_rooms", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	rooms := make([]core.Room, 0, len(resp.ChatRooms))
	for _, r := range resp.ChatRooms {
		room := c.mapper.Room(r.ChatRoom)
		room.Membership = core.MembershipMember
		rooms = append(rooms, room)
	}
	return rooms, nil
}

type readStatusResponse struct {
	Unread bool `json:"unread"`
}

// ReadStatus reports whether the room has unread messages for the user.
func (c *Client) ReadStatus(ctx context.Context, roomID, userID string) (bool, error) {
	var resp readStatusResponse
	if err := c.doJSON(ctx, "read_status", http.MethodGet, readStatusPath(roomID, userID), nil, &resp); err != nil {
		return false, err
	}
	return resp.Unread, nil
}

// MarkRead marks the room as read for the user.
func (c *Client) MarkRead(ctx context.Context, roomID, userID string) error {
	return c.doJSON(ctx, "mark_read", http.MethodPut, readStatusPath(roomID, userID), nil, nil)
}

func readStatusPath(roomID, userID string) string {
	return "/chatroom/" + url.PathEscape(roomID) + "/readStatus/" + url.PathEscape(userID)
}

type pageResponse struct {
	Messages []proto.Message `json:"messages"`
	Cursor   *string         `json:"cursor"`
	HasMore  bool            `json:"hasMore"`
}

// Messages fetches one backward page. An empty cursor asks for the newest page.
func (c *Client) Messages(ctx context.Context, roomID, cursor string) (core.Page, error) {
	path := "/chatroom/" + url.PathEscape(roomID) + "/messages"
	if cursor != "" {
		path += "?cursor=" + url.QueryEscape(cursor)
	}
	var resp pageResponse
	if err := c.doJSON(ctx, "fetch_messages", http.MethodGet, path, nil, &resp); err != nil {
		return core.Page{}, err
	}
	page := core.Page{
		Messages: c.mapper.Messages(resp.Messages),
		HasMore:  resp.HasMore,
	}
	if resp.Cursor != nil {
		page.Cursor = *resp.Cursor
	}
	return page, nil
}

// SendRequest is the body of a message write.
type SendRequest struct {
	Text          string `json:"text"`
	UserID        string `json:"userId"`
	ReplyToID     string `json:"replyToId,omitempty"`
	FileURL       string `json:"file_url,omitempty"`
	FileType      string `json:"file_type,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// SendMessage creates a message and returns the confirmed copy.
func (c *Client) SendMessage(ctx context.Context, roomID string, req SendRequest) (core.Message, error) {
	var resp proto.Message
	path := "/rooms/" + url.PathEscape(roomID) + "/messages"
	if err := c.doJSON(ctx, "send_message", http.MethodPost, path, req, &resp); err != nil {
		return core.Message{}, err
	}
	if resp.ID == "" {
		return core.Message{}, core.NewError(core.KindMalformedResponse, "send_message", "message id missing", nil)
	}
	m := c.mapper.Message(resp)
	if m.ChatID == "" {
		m.ChatID = roomID
	}
	if m.CorrelationID == "" {
		m.CorrelationID = req.CorrelationID
	}
	return m, nil
}

type editRequest struct {
	Content string `json:"content"`
	UserID  string `json:"userId"`
}

// EditMessage replaces a message's content. Only the author may edit.
func (c *Client) EditMessage(ctx context.Context, messageID, userID, content string) (core.Message, error) {
	var resp proto.Message
	path := "/messages/" + url.PathEscape(messageID)
	if err := c.doJSON(ctx, "edit_message", http.MethodPut, path, editRequest{Content: content, UserID: userID}, &resp); err != nil {
		return core.Message{}, err
	}
	m := c.mapper.Message(resp)
	if m.ID == "" {
		m.ID = messageID
	}
	if m.Content == "" {
		m.Content = content
	}
	return m, nil
}

type userRequest struct {
	UserID string `json:"userId"`
}

// DeleteMessage removes a message. Only the author may delete.
func (c *Client) DeleteMessage(ctx context.Context, messageID, userID string) error {
	path := "/messages/" + url.PathEscape(messageID)
	return c.doJSON(ctx, "delete_message", http.MethodDelete, path, userRequest{UserID: userID}, nil)
}

type membershipResponse struct {
	IsMember bool        `json:"isMember"`
	Status   string      `json:"status"`
	Chatroom *proto.Room `json:"chatroom"`
}

// CheckMembership asks the backend for the user's status in a room.
func (c *Client) CheckMembership(ctx context.Context, roomID, userID string) (core.Membership, error) {
	var resp membershipResponse
	path := "/chatroom/" + url.PathEscape(roomID) + "/isMember/" + url.PathEscape(userID)
	if err := c.doJSON(ctx, "check_membership", http.MethodGet, path, nil, &resp); err != nil {
		return core.Membership{}, err
	}
	m := core.Membership{IsMember: resp.IsMember, Status: core.MembershipStatus(resp.Status)}
	if resp.IsMember {
		m.Status = core.MembershipMember
	}
	if resp.Chatroom != nil {
		room := c.mapper.Room(*resp.Chatroom)
		room.Membership = m.Status
		m.Room = &room
	}
	return m, nil
}

// RequestJoin files a join request. A duplicate request is a Conflict.
func (c *Client) RequestJoin(ctx context.Context, roomID, userID string) error {
	path := "/chatroom/" + url.PathEscape(roomID) + "/request"
	return c.doJSON(ctx, "request_join", http.MethodPost, path, userRequest{UserID: userID}, nil)
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AdminID     string `json:"adminId"`
	IsPrivate   bool   `json:"isPrivate"`
	AvatarText  string `json:"avatarText,omitempty"`
}

type createRoomResponse struct {
	Chatroom proto.Room `json:"chatroom"`
}

// CreateRoom creates a room administered by userID.
func (c *Client) CreateRoom(ctx context.Context, userID string, req core.NewRoomRequest) (core.Room, error) {
	body := createRoomRequest{
		Name:        req.Name,
		Description: req.Description,
		AdminID:     userID,
		IsPrivate:   req.Private,
		AvatarText:  req.Avatar,
	}
	var resp createRoomResponse
	if err := c.doJSON(ctx, "create_room", http.MethodPost, "/chatroom", body, &resp); err != nil {
		return core.Room{}, err
	}
	if resp.Chatroom.ID == "" {
		return core.Room{}, core.NewError(core.KindMalformedResponse, "create_room", "chatroom missing", nil)
	}
	room := c.mapper.Room(resp.Chatroom)
	room.Membership = core.MembershipMember
	return room, nil
}

// DeleteRoom deletes a room. Only its admin may do so.
func (c *Client) DeleteRoom(ctx context.Context, roomID, userID string) error {
	path := "/chatroom/" + url.PathEscape(roomID)
	return c.doJSON(ctx, "delete_room", http.MethodDelete, path, userRequest{UserID: userID}, nil)
}
