// Package socket is the long-lived live event channel to the chat backend.
package socket

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/connectivity"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

var (
	ErrNotConnected       = errors.New("socket not connected")
	ErrReconnectExhausted = errors.New("socket reconnect attempts exhausted")
)

const (
	dialTimeout  = 10 * time.Second
	readLimit    = 1 << 20
	writeTimeout = 5 * time.Second
)

// Handler receives an inbound envelope. Handlers run on the read goroutine
// and must not block.
type Handler func(env proto.Envelope)

// Options configures a Client.
type Options struct {
	URL string
	// Token returns the bearer token used for the handshake.
	Token func() string
	// UserID returns the id announced in the hello frame.
	UserID    func() string
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Tracker   *connectivity.Tracker
	Logger    *zerolog.Logger
	// OnReconnect is called each time a dropped connection is retried.
	OnReconnect func()
}

// Client keeps one websocket connection alive across room switches.
type Client struct {
	opts Options
	log  *zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	handlers  map[string]map[uint64]Handler
	onConnect map[uint64]func()
	nextID    uint64
}

// New constructs a Client. It does not dial until Run is called.
func New(opts Options) *Client {
	if opts.Tracker == nil {
		opts.Tracker = connectivity.NewTracker()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay
	}
	if opts.Token == nil {
		opts.Token = func() string { return "" }
	}
	if opts.UserID == nil {
		opts.UserID = func() string { return "" }
	}
	return &Client{
		opts:      opts,
		log:       opts.Logger,
		handlers:  make(map[string]map[uint64]Handler),
		onConnect: make(map[uint64]func()),
	}
}

// Tracker returns the connectivity tracker fed by this client.
func (c *Client) Tracker() *connectivity.Tracker {
	return c.opts.Tracker
}

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run dials and keeps the connection alive until ctx is done or reconnect
// attempts are exhausted, in which case ErrReconnectExhausted is returned.
func (c *Client) Run(ctx context.Context) error {
	tracker := c.opts.Tracker
	tracker.Connecting()

	failures := 0
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			c.log.Warn().Err(err).Int("attempt", failures).Msg("socket dial failed")
			if failures > c.opts.Attempts {
				tracker.ReconnectExhausted()
				return ErrReconnectExhausted
			}
			if !c.sleep(ctx, failures) {
				return nil
			}
			continue
		}

		failures = 0
		c.setConn(conn)
		if err := c.hello(ctx, conn); err != nil {
			c.log.Warn().Err(err).Msg("socket hello failed")
		}
		tracker.Connected()
		c.log.Info().Str("url", c.opts.URL).Msg("socket connected")
		c.fireConnect()

		err = c.readLoop(ctx, conn)
		c.setConn(nil)
		conn.CloseNow()

		if ctx.Err() != nil {
			tracker.Disconnected()
			return nil
		}
		c.log.Warn().Err(err).Msg("socket disconnected, reconnecting")
		tracker.Disconnected()
		if c.opts.OnReconnect != nil {
			c.opts.OnReconnect()
		}
		failures = 1
		if failures > c.opts.Attempts {
			tracker.ReconnectExhausted()
			return ErrReconnectExhausted
		}
		if !c.sleep(ctx, failures) {
			return nil
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	header := http.Header{}
	if token := c.opts.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, _, err := websocket.Dial(dialCtx, c.opts.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

func (c *Client) hello(ctx context.Context, conn *websocket.Conn) error {
	env, err := proto.NewEnvelope(proto.EventHello, proto.HelloData{
		UserID:   c.opts.UserID(),
		Token:    c.opts.Token(),
		Protocol: proto.ProtocolVersion,
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, env)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return fmt.Errorf("closed by server: %w", err)
			}
			return err
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env proto.Envelope) {
	c.mu.Lock()
	hs := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, h := range c.handlers[env.Event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	if len(hs) == 0 {
		c.log.Debug().Str("event", env.Event).Msg("unhandled socket event")
		return
	}
	for _, h := range hs {
		h(env)
	}
}

func (c *Client) sleep(ctx context.Context, attempt int) bool {
	delay := Backoff(c.opts.BaseDelay, c.opts.MaxDelay, attempt)
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Backoff returns the delay before the given retry attempt (1-based):
// exponential from base, capped at max, with up to 20% jitter removed.
func Backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	if jitter := int64(d) / 5; jitter > 0 {
		d -= time.Duration(rand.Int64N(jitter))
	}
	return d
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Emit sends one event. It fails with ErrNotConnected while the socket is down.
func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	env, err := proto.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, env); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Close closes the current connection; Run will reconnect unless its context is done.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "bye")
}
