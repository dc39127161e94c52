// Package session owns the authenticated identity, the REST client and the
// live socket for one logged-in user.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/backend"
	"github.com/vovakirdan/wirechat-client/internal/connectivity"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/socket"
)

// Options configures a Session.
type Options struct {
	APIBaseURL     string
	SocketURL      string
	RequestTimeout time.Duration

	ReconnectAttempts  int
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
	// Now overrides the clock used for token expiry checks.
	Now func() time.Time
}

// Session is safe for concurrent use.
type Session struct {
	log     *zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	api     *backend.Client
	socket  *socket.Client
	tracker *connectivity.Tracker

	mu       sync.RWMutex
	token    string
	user     core.User
	loggedIn bool
	cancel   context.CancelFunc
	done     chan struct{}
	runErr   error
	onLogout []func()
}

// New wires the clients; nothing is dialed until Start.
func New(opts Options) *Session {
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		tracker: connectivity.NewTracker(),
	}

	s.api = backend.New(backend.Options{
		BaseURL:        opts.APIBaseURL,
		Timeout:        opts.RequestTimeout,
		Tokens:         backend.TokenFunc(s.Token),
		Logger:         opts.Logger,
		OnUnauthorized: s.expire,
	})
	s.socket = socket.New(socket.Options{
		URL:         opts.SocketURL,
		Token:       s.Token,
		UserID:      func() string { return s.CurrentUser().ID },
		Attempts:    opts.ReconnectAttempts,
		BaseDelay:   opts.ReconnectBaseDelay,
		MaxDelay:    opts.ReconnectMaxDelay,
		Tracker:     s.tracker,
		Logger:      opts.Logger,
		OnReconnect: opts.Metrics.Reconnect,
	})
	s.tracker.Subscribe(func(_ connectivity.State, online bool) {
		opts.Metrics.SetOnline(online)
	})
	return s
}

// Login validates the token locally, then confirms it with the backend.
func (s *Session) Login(ctx context.Context, token string) (core.User, error) {
	claims, err := auth.ParseUnverified(token)
	if err != nil {
		return core.User{}, core.NewError(core.KindUnauthorized, "login", "invalid token", err)
	}
	if claims.Expired(s.now()) {
		return core.User{}, core.NewError(core.KindUnauthorized, "login", "token expired", auth.ErrTokenExpired)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	user, err := s.api.Me(ctx)
	if err != nil {
		s.mu.Lock()
		s.token = ""
		s.mu.Unlock()
		return core.User{}, err
	}
	if sub := claims.SubjectID(); sub != "" && sub != user.ID {
		s.log.Warn().Str("token_subject", sub).Str("user_id", user.ID).Msg("token subject differs from profile")
	}

	s.mu.Lock()
	s.user = user
	s.loggedIn = true
	s.mu.Unlock()

	s.log.Info().Str("user_id", user.ID).Str("name", user.Name).Msg("logged in")
	return user, nil
}

// Start runs the socket in the background until Logout or ctx is done.
// Calling Start again after the socket gave up restarts it.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn {
		return core.ErrNotLoggedIn
	}
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return nil
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.runErr = nil

	go func() {
		defer close(done)
		err := s.socket.Run(runCtx)
		if errors.Is(err, socket.ErrReconnectExhausted) {
			s.log.Warn().Msg("live connection lost, working offline")
		}
		s.mu.Lock()
		s.runErr = err
		s.mu.Unlock()
	}()
	return nil
}

// Wait blocks until the socket loop ends and returns its error.
func (s *Session) Wait() error {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()
	if done == nil {
		return nil
	}
	<-done
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runErr
}

// Stop closes the socket without forgetting the identity.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.socket.Close()
	<-done
}

// Logout stops the socket, forgets the identity and notifies OnLogout hooks.
func (s *Session) Logout() {
	s.Stop()

	s.mu.Lock()
	wasLoggedIn := s.loggedIn
	s.token = ""
	s.user = core.User{}
	s.loggedIn = false
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	if !wasLoggedIn {
		return
	}
	s.log.Info().Msg("logged out")
	for _, fn := range hooks {
		fn()
	}
}

// OnLogout registers fn to run after every logout.
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	s.onLogout = append(s.onLogout, fn)
	s.mu.Unlock()
}

// expire runs when the backend rejects the token. It may be invoked from a
// request goroutine, so the teardown happens asynchronously.
func (s *Session) expire() {
	s.mu.RLock()
	loggedIn := s.loggedIn
	s.mu.RUnlock()
	if !loggedIn {
		return
	}
	s.log.Warn().Msg("token rejected by backend, logging out")
	go s.Logout()
}

// CurrentUser returns the logged-in user, or the zero value.
func (s *Session) CurrentUser() core.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// LoggedIn reports whether Login succeeded and no logout happened since.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// Token returns the bearer token, or "" when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) API() *backend.Client {
	return s.api
}

func (s *Session) Socket() *socket.Client {
	return s.socket
}

func (s *Session) Tracker() *connectivity.Tracker {
	return s.tracker
}
