package backendtest

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

const peerBuffer = 64

type peer struct {
	userID string
	conn   *websocket.Conn
	send   chan proto.Envelope
	rooms  map[string]bool
}

// hub tracks connected sockets and their joined rooms.
type hub struct {
	srv *Server
	log *zerolog.Logger

	mu       sync.Mutex
	peers    map[*peer]struct{}
	received map[string][]proto.Envelope
}

func newHub(srv *Server, logger *zerolog.Logger) *hub {
	return &hub{
		srv:      srv,
		log:      logger,
		peers:    make(map[*peer]struct{}),
		received: make(map[string][]proto.Envelope),
	}
}

// ServeHTTP upgrades an authenticated GET /ws request.
func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.srv.authenticate(r.Header.Get("Authorization"))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws rejected")
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	p := &peer{
		userID: userID,
		conn:   conn,
		send:   make(chan proto.Envelope, peerBuffer),
		rooms:  make(map[string]bool),
	}
	h.register(p)
	defer h.unregister(p)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- h.readLoop(ctx, p) }()
	go func() { errCh <- h.writeLoop(ctx, p) }()

	err = <-errCh
	cancel()
	<-errCh

	if err != nil && !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
		h.log.Debug().Err(err).Str("user_id", p.userID).Msg("ws connection closed")
	}
	conn.Close(websocket.StatusNormalClosure, "closing")
}

func (h *hub) readLoop(ctx context.Context, p *peer) error {
	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, p.conn, &env); err != nil {
			return err
		}
		h.record(env)
		h.handle(p, env)
	}
}

func (h *hub) writeLoop(ctx context.Context, p *peer) error {
	for {
		select {
		case env := <-p.send:
			if err := wsjson.Write(ctx, p.conn, env); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *hub) handle(p *peer, env proto.Envelope) {
	switch env.Event {
	case proto.EventHello:
		var hello proto.HelloData
		if err := env.Decode(&hello); err == nil && hello.UserID != "" && p.userID == "" {
			h.mu.Lock()
			p.userID = hello.UserID
			h.mu.Unlock()
		}
	case proto.EventJoinRoom, proto.EventLeaveRoom:
		var rd proto.RoomData
		if err := env.Decode(&rd); err != nil {
			h.reject(p, err)
			return
		}
		h.mu.Lock()
		if env.Event == proto.EventJoinRoom {
			p.rooms[rd.RoomID] = true
		} else {
			delete(p.rooms, rd.RoomID)
		}
		h.mu.Unlock()
	case proto.EventTyping, proto.EventStopTyping:
		var td proto.TypingData
		if err := env.Decode(&td); err != nil {
			h.reject(p, err)
			return
		}
		td.UserID = p.userID
		if td.UserName == "" {
			td.UserName = h.srv.userName(p.userID)
		}
		out := proto.EventUserTyping
		if env.Event == proto.EventStopTyping {
			out = proto.EventUserStopTyping
		}
		h.toRoom(td.RoomID, p.userID, out, td)
	case proto.EventSendMessage:
		var sm proto.SendMessageData
		if err := env.Decode(&sm); err != nil {
			h.reject(p, err)
			return
		}
		h.toRoom(sm.RoomID, p.userID, proto.EventReceiveMessage, sm.Message)
	case proto.EventDeleteMessage:
		var dm proto.DeleteMessageData
		if err := env.Decode(&dm); err != nil {
			h.reject(p, err)
			return
		}
		h.toRoom(dm.ChatID, p.userID, proto.EventMessageDeleted, dm)
	default:
		h.log.Debug().Str("event", env.Event).Msg("unknown socket event")
	}
}

func (h *hub) reject(p *peer, err error) {
	env, _ := proto.NewEnvelope(proto.EventError, proto.Error{Code: "bad_request", Msg: err.Error()})
	h.deliver(p, env)
}

func (h *hub) register(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) unregister(p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
}

func (h *hub) record(env proto.Envelope) {
	h.mu.Lock()
	h.received[env.Event] = append(h.received[env.Event], env)
	h.mu.Unlock()
}

func (h *hub) frames(event string) []proto.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]proto.Envelope(nil), h.received[event]...)
}

// toRoom delivers to every peer joined to roomID except those of skipUser.
func (h *hub) toRoom(roomID, skipUser, event string, payload any) {
	env, err := proto.NewEnvelope(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode push")
		return
	}
	h.mu.Lock()
	targets := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		if p.rooms[roomID] && (skipUser == "" || p.userID != skipUser) {
			targets = append(targets, p)
		}
	}
	h.mu.Unlock()
	for _, p := range targets {
		h.deliver(p, env)
	}
}

func (h *hub) toUser(userID, event string, payload any) {
	env, err := proto.NewEnvelope(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encode push")
		return
	}
	h.mu.Lock()
	targets := make([]*peer, 0, 1)
	for p := range h.peers {
		if p.userID == userID {
			targets = append(targets, p)
		}
	}
	h.mu.Unlock()
	for _, p := range targets {
		h.deliver(p, env)
	}
}

func (h *hub) deliver(p *peer, env proto.Envelope) {
	select {
	case p.send <- env:
	default:
		h.log.Warn().Str("user_id", p.userID).Str("event", env.Event).Msg("peer buffer full, dropping")
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *hub) joined(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	users := make(map[string]bool)
	for p := range h.peers {
		if p.rooms[roomID] {
			users[p.userID] = true
		}
	}
	return sortedKeys(users)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		p.conn.Close(websocket.StatusGoingAway, "server going away")
	}
}
