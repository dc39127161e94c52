package roomsync

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-client/internal/backendtest"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/session"
)

const waitTimeout = 3 * time.Second

type harness struct {
	t    *testing.T
	srv  *backendtest.Server
	sess *session.Session
	ctrl *Controller
	ctx  context.Context
}

type harnessOption func(*Options, *Deps)

func withCache(cache *memCache) harnessOption {
	return func(o *Options, _ *Deps) { o.Cache = cache }
}

func withMetrics(m *metrics.Metrics) harnessOption {
	return func(o *Options, _ *Deps) { o.Metrics = m }
}

func withDebounce(d time.Duration) harnessOption {
	return func(o *Options, _ *Deps) { o.SwitchDebounce = d }
}

// newHarness logs u1 (Ana) into a fake backend where rooms r1 and r2 are
// administered by u2 (Bob) and joined by both users.
func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	srv := backendtest.New(t, backendtest.WithPageSize(3))
	token := srv.AddUser("u1", "Ana")
	srv.AddUser("u2", "Bob")
	srv.AddRoom("r1", "general", "u2", "u1")
	srv.AddRoom("r2", "random", "u2", "u1")

	ctx, cancel := context.WithCancel(context.Background())

	sess := session.New(session.Options{
		APIBaseURL:         srv.URL,
		SocketURL:          srv.SocketURL,
		RequestTimeout:     2 * time.Second,
		ReconnectAttempts:  5,
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  50 * time.Millisecond,
	})
	_, err := sess.Login(ctx, token)
	require.NoError(t, err)
	require.NoError(t, sess.Start(ctx))

	o := Options{
		SwitchDebounce: 5 * time.Millisecond,
		TypingWindow:   300 * time.Millisecond,
		TypingIdle:     150 * time.Millisecond,
		TypingInterval: time.Hour,
	}
	deps := FromSession(sess)
	for _, opt := range opts {
		opt(&o, &deps)
	}
	ctrl := New(deps, o)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-runDone
		sess.Stop()
	})

	h := &harness{t: t, srv: srv, sess: sess, ctrl: ctrl, ctx: ctx}
	h.waitFor(func() bool { return sess.Tracker().Online() })
	return h
}

func (h *harness) waitFor(cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatal("condition not met in time")
}

// mustEvent drains events until one matches.
func (h *harness) mustEvent(match func(core.Event) bool) core.Event {
	h.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-h.ctrl.Events():
			if match(ev) {
				return ev
			}
		case <-deadline:
			h.t.Fatal("expected event not received")
			return core.Event{}
		}
	}
}

func (h *harness) mustKind(kind core.EventKind, roomID string) core.Event {
	h.t.Helper()
	return h.mustEvent(func(ev core.Event) bool { return ev.Kind == kind && ev.Room == roomID })
}

func (h *harness) mustState(roomID string, st core.RoomState) {
	h.t.Helper()
	h.mustEvent(func(ev core.Event) bool {
		return ev.Kind == core.EventRoomState && ev.Room == roomID && ev.State == st
	})
}

// open switches to roomID and waits for the initial load and its
// change notification.
func (h *harness) open(roomID string) {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.SwitchRoom(roomID))
	h.mustState(roomID, core.StateLoaded)
	h.mustKind(core.EventMessagesChanged, roomID)
	h.waitFor(func() bool { return slices.Contains(h.srv.Joined(roomID), "u1") })
}

func ids(msgs []core.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func contents(msgs []core.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

// memCache is an in-memory store.Cache.
type memCache struct {
	mu    sync.Mutex
	rooms map[string][]core.Message
}

func newMemCache() *memCache {
	return &memCache{rooms: make(map[string][]core.Message)}
}

func (m *memCache) Save(_ context.Context, roomID string, msgs []core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keep := make([]core.Message, 0, len(msgs))
	for _, msg := range msgs {
		if !msg.IsProvisional() {
			keep = append(keep, msg)
		}
	}
	m.rooms[roomID] = keep
	return nil
}

func (m *memCache) Load(_ context.Context, roomID string) ([]core.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.rooms[roomID]), nil
}

func (m *memCache) Clear(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	return nil
}

func (m *memCache) Close() error { return nil }

func (m *memCache) ids(roomID string) []string {
	msgs, _ := m.Load(context.Background(), roomID)
	return ids(msgs)
}
