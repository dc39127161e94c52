// Package roomsync orchestrates history fetches, live events and optimistic
// writes for the active room and feeds everything through the merge store.
//
// The Controller is an actor: Run owns every mutation. Public triggers post
// closures into its mailbox, backend calls run on their own goroutines and
// post their tagged results back.
package roomsync

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vovakirdan/wirechat-client/internal/backend"
	"github.com/vovakirdan/wirechat-client/internal/connectivity"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/merge"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/pagination"
	"github.com/vovakirdan/wirechat-client/internal/presence"
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/roomlist"
	"github.com/vovakirdan/wirechat-client/internal/session"
	"github.com/vovakirdan/wirechat-client/internal/socket"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

const (
	DefaultSwitchDebounce = 200 * time.Millisecond
	DefaultTypingIdle     = 2 * time.Second
	DefaultTypingInterval = time.Second

	mailboxSize  = 128
	eventsSize   = 256
	outboundSize = 64
)

// API is the subset of the backend client the controller calls.
type API interface {
	Rooms(ctx context.Context, userID string) ([]core.Room, error)
	ReadStatus(ctx context.Context, roomID, userID string) (bool, error)
	MarkRead(ctx context.Context, roomID, userID string) error
	Messages(ctx context.Context, roomID, cursor string) (core.Page, error)
	SendMessage(ctx context.Context, roomID string, req backend.SendRequest) (core.Message, error)
	EditMessage(ctx context.Context, messageID, userID, content string) (core.Message, error)
	DeleteMessage(ctx context.Context, messageID, userID string) error
	CheckMembership(ctx context.Context, roomID, userID string) (core.Membership, error)
	RequestJoin(ctx context.Context, roomID, userID string) error
	CreateRoom(ctx context.Context, userID string, req core.NewRoomRequest) (core.Room, error)
	DeleteRoom(ctx context.Context, roomID, userID string) error
	Upload(ctx context.Context, name string, r io.Reader) (core.Attachment, error)
}

// Socket is the live event channel.
type Socket interface {
	Subscribe(event string, h socket.Handler) *socket.Subscription
	OnConnect(fn func()) *socket.Subscription
	Emit(ctx context.Context, event string, payload any) error
}

// Deps are the collaborators owned by the session.
type Deps struct {
	API     API
	Socket  Socket
	Tracker *connectivity.Tracker
	Mapper  *proto.Mapper
	// User returns the logged-in user.
	User func() core.User
}

// FromSession extracts the controller's collaborators from a session.
func FromSession(s *session.Session) Deps {
	return Deps{
		API:     s.API(),
		Socket:  s.Socket(),
		Tracker: s.Tracker(),
		Mapper:  s.API().Mapper(),
		User:    s.CurrentUser,
	}
}

// Options tunes a Controller.
type Options struct {
	Cache   store.Cache
	Metrics *metrics.Metrics
	Logger  *zerolog.Logger

	SwitchDebounce time.Duration
	// TypingWindow is how long a remote typing signal stays visible.
	TypingWindow time.Duration
	// TypingIdle is the quiet period after which stop-typing is sent.
	TypingIdle time.Duration
	// TypingInterval is the minimum gap between two outbound typing signals.
	TypingInterval time.Duration

	Now func() time.Time
}

type retryKind int

const (
	retryNone retryKind = iota
	retryActivate
	retryPage
)

// activation is the state of one SwitchRoom call. A newer switch replaces it;
// completions carrying an older generation are ignored.
type activation struct {
	room    string
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	scope   *socket.Scope
	fetched bool
	cached  map[string]bool
	retry   retryKind
}

type outbound struct {
	event   string
	payload any
}

// Controller is the room synchronization controller.
type Controller struct {
	api     API
	sock    Socket
	tracker *connectivity.Tracker
	mapper  *proto.Mapper
	user    func() core.User
	cache   store.Cache
	metrics *metrics.Metrics
	log     *zerolog.Logger
	opts    Options
	now     func() time.Time

	store    *merge.Store
	pages    *pagination.Tracker
	rooms    *roomlist.List
	presence *presence.Set
	writer   *cacheWriter

	mailbox  chan func()
	events   chan core.Event
	outbound chan outbound
	done     chan struct{}
	runOnce  sync.Once

	// Owned by the Run goroutine.
	ctx         context.Context
	act         *activation
	gen         uint64
	typingRoom  string
	typingSeq   uint64
	typingTimer *time.Timer
	limiter     *rate.Limiter

	// Read by any goroutine, written by Run.
	mu      sync.RWMutex
	active  string
	states  map[string]core.RoomState
	drafts  map[string]string
	sending map[string]bool
}

// New builds a controller. Call Run to start it.
func New(deps Deps, opts Options) *Controller {
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.Cache == nil {
		opts.Cache = store.Nop{}
	}
	if opts.SwitchDebounce <= 0 {
		opts.SwitchDebounce = DefaultSwitchDebounce
	}
	if opts.TypingIdle <= 0 {
		opts.TypingIdle = DefaultTypingIdle
	}
	if opts.TypingInterval <= 0 {
		opts.TypingInterval = DefaultTypingInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Tracker == nil {
		deps.Tracker = connectivity.NewTracker()
	}
	if deps.Mapper == nil {
		deps.Mapper = proto.NewMapper(opts.Logger)
	}
	if deps.User == nil {
		deps.User = func() core.User { return core.User{} }
	}

	c := &Controller{
		api:      deps.API,
		sock:     deps.Socket,
		tracker:  deps.Tracker,
		mapper:   deps.Mapper,
		user:     deps.User,
		cache:    opts.Cache,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		opts:     opts,
		now:      opts.Now,
		store:    merge.NewStore(),
		pages:    pagination.NewTracker(),
		rooms:    roomlist.New(),
		presence: presence.New(opts.TypingWindow),
		mailbox:  make(chan func(), mailboxSize),
		events:   make(chan core.Event, eventsSize),
		outbound: make(chan outbound, outboundSize),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(rate.Every(opts.TypingInterval), 1),
		states:   make(map[string]core.RoomState),
		drafts:   make(map[string]string),
		sending:  make(map[string]bool),
	}
	c.store.SetClock(opts.Now)
	c.writer = newCacheWriter(opts.Cache, opts.Logger)
	c.store.OnChange(func(roomID string, messages []core.Message) {
		if roomID == c.ActiveRoom() {
			c.writer.save(roomID, messages)
		}
	})
	c.presence.OnChange(func(roomID string, names []string) {
		c.emit(core.Event{Kind: core.EventTyping, Room: roomID, Typing: names})
	})
	return c
}

// Events delivers notifications for the render layer. Slow consumers lose
// events once the buffer is full.
func (c *Controller) Events() <-chan core.Event {
	return c.events
}

// Run processes commands until ctx is done. It may only be called once.
func (c *Controller) Run(ctx context.Context) error {
	first := false
	c.runOnce.Do(func() { first = true })
	if !first {
		return core.ErrStopped
	}
	defer close(c.done)

	c.ctx = ctx
	global := &socket.Scope{}
	defer global.Release()
	if c.sock != nil {
		global.Add(c.sock.Subscribe(proto.EventReceiveMessage, c.onAnyMessage))
		global.Add(c.sock.Subscribe(proto.EventJoinRequestHandled, c.onJoinRequestHandled))
		global.Add(c.sock.Subscribe(proto.EventError, c.onSocketError))
		global.Add(c.sock.OnConnect(func() { c.post(c.rejoin) }))
	}
	unwatch := c.tracker.Subscribe(func(state connectivity.State, online bool) {
		c.log.Debug().Str("state", state.String()).Msg("connectivity changed")
		c.emit(core.Event{Kind: core.EventConnectivity, Online: online})
	})
	defer unwatch()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writer.run(ctx)
	}()
	go func() {
		defer wg.Done()
		c.emitLoop(ctx)
	}()

	c.log.Debug().Msg("room controller started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			wg.Wait()
			return nil
		case fn := <-c.mailbox:
			fn()
		}
	}
}

func (c *Controller) shutdown() {
	c.deactivate()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.presence.Close()
	c.log.Debug().Msg("room controller stopped")
}

// post queues fn on the Run goroutine.
func (c *Controller) post(fn func()) error {
	select {
	case c.mailbox <- fn:
		return nil
	case <-c.done:
		return core.ErrStopped
	}
}

// call runs fn on the Run goroutine and waits for its result.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	if err := c.post(func() { reply <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return core.ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) emit(ev core.Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Int("kind", int(ev.Kind)).Msg("event buffer full, dropping event")
	}
}

func (c *Controller) notice(level core.NoticeLevel, text string, err *core.CoreError) {
	c.emit(core.Event{Kind: core.EventNotice, Notice: text, Level: level, Error: err})
}

// emitSocket queues an outbound socket event. Emission is ordered and never
// blocks the Run goroutine.
func (c *Controller) emitSocket(event string, payload any) {
	if c.sock == nil {
		return
	}
	select {
	case c.outbound <- outbound{event: event, payload: payload}:
	default:
		c.log.Warn().Str("event", event).Msg("outbound queue full, dropping event")
	}
}

func (c *Controller) emitLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-c.outbound:
			if err := c.sock.Emit(ctx, o.event, o.payload); err != nil {
				c.log.Debug().Err(err).Str("event", o.event).Msg("socket emit failed")
			}
		}
	}
}

func (c *Controller) setActive(roomID string) {
	c.mu.Lock()
	c.active = roomID
	c.mu.Unlock()
}

func (c *Controller) setState(roomID string, st core.RoomState) {
	c.mu.Lock()
	prev := c.states[roomID]
	c.states[roomID] = st
	c.mu.Unlock()
	if prev != st {
		c.emit(core.Event{Kind: core.EventRoomState, Room: roomID, State: st})
	}
}

func (c *Controller) setDraft(roomID, text string) {
	c.mu.Lock()
	if text == "" {
		delete(c.drafts, roomID)
	} else {
		c.drafts[roomID] = text
	}
	c.mu.Unlock()
}

func (c *Controller) setSending(roomID string, v bool) {
	c.mu.Lock()
	if v {
		c.sending[roomID] = true
	} else {
		delete(c.sending, roomID)
	}
	c.mu.Unlock()
}

func (c *Controller) isSending(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sending[roomID]
}

// current returns the activation for gen if it is still the active one.
func (c *Controller) current(gen uint64) *activation {
	if c.act == nil || c.act.gen != gen {
		return nil
	}
	return c.act
}

func (c *Controller) changed(roomID string) {
	c.emit(core.Event{Kind: core.EventMessagesChanged, Room: roomID})
}

func (c *Controller) roomsChanged() {
	c.emit(core.Event{Kind: core.EventRoomsChanged})
}
