// Package backendtest runs an in-memory chat backend for tests: the REST
// surface on gin and the live event channel on a websocket endpoint.
package backendtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// DefaultPageSize is the number of messages served per history page.
const DefaultPageSize = 20

var epoch = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

type room struct {
	info     core.Room
	private  bool
	members  map[string]core.MembershipStatus
	messages []proto.Message
	unread   map[string]bool
}

type fault struct {
	status    int
	message   string
	remaining int
}

// Server is a fake chat backend. The zero value is not usable; call New.
type Server struct {
	// URL is the REST base URL.
	URL string
	// SocketURL is the websocket endpoint.
	SocketURL string
	JWT       *auth.JWTConfig

	srv *httptest.Server
	log *zerolog.Logger
	hub *hub

	mu       sync.Mutex
	clock    time.Time
	seq      int
	users    map[string]core.User
	rooms    map[string]*room
	order    []string
	pageSize int
	faults   map[string]*fault
	delays   map[string]time.Duration
	gates    map[string]chan struct{}
	calls    map[string]int
}

// Option configures a Server.
type Option func(*Server)

// WithPageSize changes the history page size.
func WithPageSize(n int) Option {
	return func(s *Server) { s.pageSize = n }
}

// WithLogger routes request logs to logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Server) { s.log = logger }
}

// New starts a server that is closed when tb finishes.
func New(tb testing.TB, opts ...Option) *Server {
	tb.Helper()
	s := newServer(opts...)
	tb.Cleanup(s.Close)
	return s
}

func newServer(opts ...Option) *Server {
	nop := zerolog.Nop()
	s := &Server{
		JWT: &auth.JWTConfig{
			Secret:   []byte("backendtest-secret"),
			Issuer:   "backendtest",
			Audience: "wirechat",
			TTL:      time.Hour,
		},
		log:      &nop,
		clock:    epoch,
		users:    make(map[string]core.User),
		rooms:    make(map[string]*room),
		pageSize: DefaultPageSize,
		faults:   make(map[string]*fault),
		delays:   make(map[string]time.Duration),
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(s, s.log)

	gin.SetMode(gin.TestMode)
	s.srv = httptest.NewServer(s.router())
	s.URL = s.srv.URL
	s.SocketURL = "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
	return s
}

// Close releases blocked requests, drops sockets and stops the listener.
func (s *Server) Close() {
	s.mu.Lock()
	for op, gate := range s.gates {
		close(gate)
		delete(s.gates, op)
	}
	s.mu.Unlock()
	s.hub.closeAll()
	s.srv.Close()
}

func (s *Server) router() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), loggerMiddleware(s.log))

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/", s.authMiddleware())
	api.GET("/auth/me", s.op("me"), s.me)
	api.GET("/chatroom/user/:userId", s.op("list_rooms"), s.listRooms)
	api.GET("/chatroom/:id/readStatus/:userId", s.op("read_status"), s.readStatus)
	api.PUT("/chatroom/:id/readStatus/:userId", s.op("mark_read"), s.markRead)
	api.GET("/chatroom/:id/messages", s.op("fetch_messages"), s.messages)
	api.GET("/chatroom/:id/isMember/:userId", s.op("check_membership"), s.isMember)
	api.POST("/chatroom/:id/request", s.op("request_join"), s.requestJoin)
	api.POST("/chatroom/upload", s.op("upload"), s.upload)
	api.POST("/chatroom", s.op("create_room"), s.createRoom)
	api.DELETE("/chatroom/:id", s.op("delete_room"), s.deleteRoom)
	api.POST("/rooms/:id/messages", s.op("send_message"), s.sendMessage)
	api.PUT("/messages/:id", s.op("edit_message"), s.editMessage)
	api.DELETE("/messages/:id", s.op("delete_message"), s.deleteMessage)

	// The socket bypasses gin so the handshake can hijack the raw writer.
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.Handle("/", r)
	return mux
}

// AddUser registers a user and returns a token for it.
func (s *Server) AddUser(id, name string) string {
	user := core.User{ID: id, Name: name, Email: id + "@wirechat.test"}
	s.mu.Lock()
	s.users[id] = user
	s.mu.Unlock()
	token, err := auth.GenerateToken(s.JWT, user)
	if err != nil {
		panic(fmt.Sprintf("backendtest: sign token: %v", err))
	}
	return token
}

// TokenWithTTL signs a token for id with a custom lifetime; negative TTLs
// produce expired tokens.
func (s *Server) TokenWithTTL(id string, ttl time.Duration) string {
	s.mu.Lock()
	user := s.users[id]
	s.mu.Unlock()
	if user.ID == "" {
		user = core.User{ID: id}
	}
	cfg := *s.JWT
	cfg.TTL = ttl
	token, err := auth.GenerateToken(&cfg, user)
	if err != nil {
		panic(fmt.Sprintf("backendtest: sign token: %v", err))
	}
	return token
}

// AddRoom creates a room administered by adminID. members join as members.
func (s *Server) AddRoom(id, name, adminID string, members ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &room{
		info:    core.Room{ID: id, Name: name, AdminID: adminID, UpdatedAt: s.clock},
		members: make(map[string]core.MembershipStatus),
		unread:  make(map[string]bool),
	}
	if adminID != "" {
		r.members[adminID] = core.MembershipMember
	}
	for _, m := range members {
		r.members[m] = core.MembershipMember
	}
	s.rooms[id] = r
	s.order = append(s.order, id)
}

// SetMembership overrides a user's status in a room.
func (s *Server) SetMembership(roomID, userID string, status core.MembershipStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return
	}
	if status == core.MembershipNone {
		delete(r.members, userID)
		return
	}
	r.members[userID] = status
}

// Membership returns a user's status in a room.
func (s *Server) Membership(roomID, userID string) core.MembershipStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		return r.members[userID]
	}
	return core.MembershipNone
}

// SetUnread flags a room as unread for a user.
func (s *Server) SetUnread(roomID, userID string, unread bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		r.unread[userID] = unread
	}
}

// Unread reports the stored read status.
func (s *Server) Unread(roomID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		return r.unread[userID]
	}
	return false
}

// Seed appends messages authored by authorID, oldest first, and returns
// their wire form.
func (s *Server) Seed(roomID, authorID string, texts ...string) []proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]proto.Message, 0, len(texts))
	for _, text := range texts {
		m := s.newMessageLocked(roomID, authorID, text)
		r.messages = append(r.messages, m)
		out = append(out, m)
	}
	if len(out) > 0 {
		r.info.LastMessage = out[len(out)-1].Content
	}
	return out
}

// SeedRaw appends a wire message verbatim.
func (s *Server) SeedRaw(roomID string, m proto.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		r.messages = append(r.messages, m)
	}
}

// Rewrite changes a stored message in place without notifying anyone, as
// if it was edited while the client was not listening.
func (s *Server) Rewrite(messageID, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, i := s.findMessageLocked(messageID)
	if r == nil {
		return false
	}
	r.messages[i].Content = content
	r.messages[i].UpdatedAt = proto.FormatTime(s.tickLocked())
	return true
}

// Messages returns a copy of the stored history of a room, oldest first.
func (s *Server) Messages(roomID string) []proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]proto.Message(nil), r.messages...)
}

// Deliver stores a message written by another participant and pushes it to
// every socket joined to the room.
func (s *Server) Deliver(roomID, authorID, text string) proto.Message {
	msgs := s.Seed(roomID, authorID, text)
	if len(msgs) == 0 {
		return proto.Message{}
	}
	s.mu.Lock()
	if r, ok := s.rooms[roomID]; ok {
		for uid := range r.members {
			if uid != authorID {
				r.unread[uid] = true
			}
		}
	}
	s.mu.Unlock()
	s.hub.toRoom(roomID, "", proto.EventReceiveMessage, msgs[0])
	return msgs[0]
}

// Push sends an event to every socket joined to roomID.
func (s *Server) Push(roomID, event string, payload any) {
	s.hub.toRoom(roomID, "", event, payload)
}

// PushUser sends an event to every socket of userID.
func (s *Server) PushUser(userID, event string, payload any) {
	s.hub.toUser(userID, event, payload)
}

// Approve accepts a join request and notifies the requester.
func (s *Server) Approve(roomID, userID string) {
	s.decide(roomID, userID, proto.ActionApproved)
}

// Reject declines a join request and notifies the requester.
func (s *Server) Reject(roomID, userID string) {
	s.decide(roomID, userID, proto.ActionRejected)
}

func (s *Server) decide(roomID, userID, action string) {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	name := ""
	if ok {
		name = r.info.Name
		if action == proto.ActionApproved {
			r.members[userID] = core.MembershipMember
		} else {
			delete(r.members, userID)
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.hub.toUser(userID, proto.EventJoinRequestHandled, proto.JoinRequestHandledData{
		UserID:   userID,
		ChatID:   roomID,
		ChatName: name,
		Action:   action,
	})
}

// Fail makes the next times calls of op answer with status.
func (s *Server) Fail(op string, status, times int) {
	s.FailWith(op, status, times, http.StatusText(status))
}

// FailWith is Fail with a custom error message.
func (s *Server) FailWith(op string, status, times int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{status: status, message: message, remaining: times}
}

// Delay makes every call of op wait d before being served.
func (s *Server) Delay(op string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		delete(s.delays, op)
		return
	}
	s.delays[op] = d
}

// Block holds every call of op until the returned release func is called.
func (s *Server) Block(op string) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates[op] = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[op] == gate {
				delete(s.gates, op)
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many requests reached op.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Frames returns the socket frames received for event, in arrival order.
func (s *Server) Frames(event string) []proto.Envelope {
	return s.hub.frames(event)
}

// Peers returns the number of connected sockets.
func (s *Server) Peers() int {
	return s.hub.count()
}

// Joined returns the users whose sockets are joined to roomID, sorted.
func (s *Server) Joined(roomID string) []string {
	return s.hub.joined(roomID)
}

// DropConnections closes every socket as if the server went away.
func (s *Server) DropConnections() {
	s.hub.closeAll()
}

func (s *Server) tickLocked() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Server) newMessageLocked(roomID, authorID, text string) proto.Message {
	s.seq++
	author := s.users[authorID]
	return proto.Message{
		ID:        fmt.Sprintf("srv-%d", s.seq),
		ChatID:    roomID,
		Content:   text,
		CreatedBy: authorID,
		CreatedAt: proto.FormatTime(s.tickLocked()),
		Sender:    &proto.Person{ID: authorID, GivenName: author.Name, Email: author.Email},
	}
}

func (s *Server) roomsOf(userID string) []proto.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]proto.Room, 0)
	for _, id := range s.order {
		r, ok := s.rooms[id]
		if !ok || r.members[userID] != core.MembershipMember {
			continue
		}
		w := proto.FromRoom(r.info)
		w.Unread = r.unread[userID]
		out = append(out, w)
	}
	return out
}

func (s *Server) findMessageLocked(id string) (*room, int) {
	for _, r := range s.rooms {
		for i := range r.messages {
			if r.messages[i].ID == id {
				return r, i
			}
		}
	}
	return nil, -1
}

func (s *Server) userName(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].Name
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, ok := range m {
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
