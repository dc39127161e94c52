package backendtest

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

type userBody struct {
	UserID string `json:"userId"`
}

type sendBody struct {
	Text          string `json:"text"`
	UserID        string `json:"userId"`
	ReplyToID     string `json:"replyToId"`
	FileURL       string `json:"file_url"`
	FileType      string `json:"file_type"`
	FileName      string `json:"file_name"`
	CorrelationID string `json:"correlationId"`
}

type editBody struct {
	Content string `json:"content" binding:"required"`
	UserID  string `json:"userId"`
}

type createRoomBody struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	AdminID     string `json:"adminId"`
	IsPrivate   bool   `json:"isPrivate"`
	AvatarText  string `json:"avatarText"`
}

// GET /auth/me
func (s *Server) me(c *gin.Context) {
	s.mu.Lock()
	user, ok := s.users[currentUser(c)]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unknown user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"user": proto.Person{
		ID:             user.ID,
		GivenName:      user.Name,
		Email:          user.Email,
		ProfilePicture: user.Avatar,
	}}})
}

// GET /chatroom/user/:userId
func (s *Server) listRooms(c *gin.Context) {
	rooms := s.roomsOf(c.Param("userId"))
	items := make([]gin.H, 0, len(rooms))
	for _, r := range rooms {
		items = append(items, gin.H{"chatRoom": r})
	}
	c.JSON(http.StatusOK, gin.H{"chatRooms": items})
}

// GET /chatroom/:id/readStatus/:userId
func (s *Server) readStatus(c *gin.Context) {
	s.mu.Lock()
	r, ok := s.rooms[c.Param("id")]
	unread := ok && r.unread[c.Param("userId")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chatroom not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": unread})
}

// PUT /chatroom/:id/readStatus/:userId
func (s *Server) markRead(c *gin.Context) {
	s.mu.Lock()
	r, ok := s.rooms[c.Param("id")]
	if ok {
		r.unread[c.Param("userId")] = false
	}
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chatroom not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": false})
}

// GET /chatroom/:id/messages?cursor=
func (s *Server) messages(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chatroom not found"})
		return
	}
	if r.members[currentUser(c)] != core.MembershipMember {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this chatroom"})
		return
	}

	end := len(r.messages)
	if cursor := c.Query("cursor"); cursor != "" {
		before, err := decodeCursor(cursor)
		if err != nil || before > len(r.messages) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid cursor"})
			return
		}
		end = before
	}
	start := max(0, end-s.pageSize)

	resp := gin.H{
		"messages": append([]proto.Message{}, r.messages[start:end]...),
		"cursor":   nil,
		"hasMore":  start > 0,
	}
	if start > 0 {
		resp["cursor"] = encodeCursor(start)
	}
	c.JSON(http.StatusOK, resp)
}

// POST /rooms/:id/messages
func (s *Server) sendMessage(c *gin.Context) {
	var req sendBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" && req.FileURL == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message is empty"})
		return
	}

	uid := currentUser(c)
	roomID := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chatroom not found"})
		return
	}
	if r.members[uid] != core.MembershipMember {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this chatroom"})
		return
	}

	m := s.newMessageLocked(roomID, uid, req.Text)
	m.CorrelationID = req.CorrelationID
	m.FileURL, m.FileType, m.FileName = req.FileURL, req.FileType, req.FileName
	if req.ReplyToID != "" {
		for i := range r.messages {
			if r.messages[i].ID == req.ReplyToID {
				quoted := r.messages[i]
				quoted.ReplyTo = nil
				m.ReplyTo = &quoted
				break
			}
		}
	}
	r.messages = append(r.messages, m)
	r.info.LastMessage = m.Content
	for member, status := range r.members {
		if member != uid && status == core.MembershipMember {
			r.unread[member] = true
		}
	}
	c.JSON(http.StatusCreated, m)
}

// PUT /messages/:id
func (s *Server) editMessage(c *gin.Context) {
	var req editBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, i := s.findMessageLocked(c.Param("id"))
	if r == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
		return
	}
	if r.messages[i].CreatedBy != currentUser(c) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "You can only edit your own messages"})
		return
	}
	r.messages[i].Content = req.Content
	r.messages[i].UpdatedAt = proto.FormatTime(s.tickLocked())
	c.JSON(http.StatusOK, r.messages[i])
}

// DELETE /messages/:id
func (s *Server) deleteMessage(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, i := s.findMessageLocked(c.Param("id"))
	if r == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
		return
	}
	if r.messages[i].CreatedBy != currentUser(c) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "You can only delete your own messages"})
		return
	}
	r.messages = append(r.messages[:i], r.messages[i+1:]...)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GET /chatroom/:id/isMember/:userId
func (s *Server) isMember(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chatroom not found"})
		return
	}
	status := r.members[c.Param("userId")]
	c.JSON(http.StatusOK, gin.H{
		"isMember": status == core.MembershipMember,
		"status":   string(status),
		"chatroom": proto.FromRoom(r.info),
	})
}

// POST /chatroom/:id/request
func (s *Server) requestJoin(c *gin.Context) {
	uid := currentUser(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chatroom not found"})
		return
	}
	switch r.members[uid] {
	case core.MembershipPending:
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Join request already pending"})
		return
	case core.MembershipMember:
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Already a member"})
		return
	}
	r.members[uid] = core.MembershipPending
	c.JSON(http.StatusCreated, gin.H{"status": string(core.MembershipPending)})
}

// POST /chatroom
func (s *Server) createRoom(c *gin.Context) {
	var req createRoomBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	uid := currentUser(c)

	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("room-%d", s.seq)
	s.mu.Unlock()

	s.AddRoom(id, req.Name, uid)

	s.mu.Lock()
	r := s.rooms[id]
	r.info.Description = req.Description
	r.info.Avatar = req.AvatarText
	r.private = req.IsPrivate
	info := r.info
	s.mu.Unlock()

	c.JSON(http.StatusCreated, gin.H{"chatroom": proto.FromRoom(info)})
}

// DELETE /chatroom/:id
func (s *Server) deleteRoom(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.Param("id")
	r, ok := s.rooms[id]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "chatroom not found"})
		return
	}
	if r.info.AdminID != currentUser(c) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Only the admin can delete this chatroom"})
		return
	}
	delete(s.rooms, id)
	for i, rid := range s.order {
		if rid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// POST /chatroom/upload
func (s *Server) upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "file is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fileUrl":      s.URL + "/files/" + fh.Filename,
		"fileType":     c.PostForm("mimeType"),
		"originalName": fh.Filename,
	})
}

func encodeCursor(before int) string {
	return base64.RawURLEncoding.EncodeToString([]byte("before:" + strconv.Itoa(before)))
}

func decodeCursor(cursor string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, err
	}
	n, ok := strings.CutPrefix(string(raw), "before:")
	if !ok {
		return 0, fmt.Errorf("malformed cursor %q", cursor)
	}
	return strconv.Atoi(n)
}
