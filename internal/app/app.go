package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/roomsync"
	"github.com/vovakirdan/wirechat-client/internal/session"
	"github.com/vovakirdan/wirechat-client/internal/socket"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/store/bolt"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
)

// App wires the session, the room controller and the local cache.
type App struct {
	cfg     config.Config
	log     *zerolog.Logger
	cache   store.Cache
	metrics *metrics.Metrics
	server  *stdhttp.Server
	sess    *session.Session
	ctrl    *roomsync.Controller
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cache, err := OpenCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	logger.Info().Str("driver", cfg.Cache.Driver).Str("path", cfg.Cache.Path).Msg("cache initialized")

	m := metrics.New()

	sess := session.New(session.Options{
		APIBaseURL:         cfg.APIBaseURL,
		SocketURL:          cfg.SocketURL,
		RequestTimeout:     cfg.RequestTimeout,
		ReconnectAttempts:  cfg.Reconnect.Attempts,
		ReconnectBaseDelay: cfg.Reconnect.BaseDelay,
		ReconnectMaxDelay:  cfg.Reconnect.MaxDelay,
		Logger:             logger,
		Metrics:            m,
	})

	ctrl := roomsync.New(roomsync.FromSession(sess), roomsync.Options{
		Cache:          cache,
		Metrics:        m,
		Logger:         logger,
		SwitchDebounce: cfg.RoomSwitchDebounce,
		TypingWindow:   cfg.Typing.Window,
		TypingIdle:     cfg.Typing.Idle,
		TypingInterval: cfg.Typing.Window / 3,
	})
	sess.OnLogout(func() {
		if err := ctrl.LoggedOut(); err != nil && !errors.Is(err, core.ErrStopped) {
			logger.Warn().Err(err).Msg("failed to reset rooms after logout")
		}
	})

	a := &App{
		cfg:     cfg,
		log:     logger,
		cache:   cache,
		metrics: m,
		sess:    sess,
		ctrl:    ctrl,
	}
	if cfg.MetricsAddr != "" {
		mux := stdhttp.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		a.server = &stdhttp.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

// OpenCache opens the cache driver named by cfg.
func OpenCache(cfg config.CacheConfig) (store.Cache, error) {
	switch cfg.Driver {
	case config.CacheSQLite:
		c, err := sqlite.New(cfg.Path, cfg.Limit)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.CacheBolt:
		c, err := bolt.New(cfg.Path, cfg.Limit)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.CacheNone, "":
		return store.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// Login authenticates with token, falling back to the configured one.
func (a *App) Login(ctx context.Context, token string) (core.User, error) {
	if token == "" {
		token = a.cfg.Token
	}
	if token == "" {
		return core.User{}, core.ErrNotLoggedIn
	}
	return a.sess.Login(ctx, token)
}

// Run connects the socket, loads the room directory and drives the
// controller until ctx is cancelled or the session ends.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	if err := a.sess.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.ctrl.Run(gctx) })
	g.Go(func() error {
		err := a.sess.Wait()
		if errors.Is(err, socket.ErrReconnectExhausted) {
			// Keep serving cached rooms until the caller gives up.
			a.log.Warn().Msg("working offline")
			return nil
		}
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := a.ctrl.RefreshRooms(gctx); err != nil && gctx.Err() == nil {
			a.log.Warn().Err(err).Msg("initial room refresh failed")
		}
		return nil
	})
	if a.server != nil {
		g.Go(func() error { return a.serveMetrics(gctx) })
	}

	<-gctx.Done()
	a.sess.Stop()
	return g.Wait()
}

func (a *App) serveMetrics(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("serving metrics")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		a.log.Info().Msg("shutting down metrics server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}

// Controller returns the room controller.
func (a *App) Controller() *roomsync.Controller { return a.ctrl }

// Session returns the session.
func (a *App) Session() *session.Session { return a.sess }

// Cache returns the local message cache.
func (a *App) Cache() store.Cache { return a.cache }

// Close releases the cache for apps that never ran.
func (a *App) Close() error {
	return a.cache.Close()
}

// cleanup closes the cache and other resources.
func (a *App) cleanup() {
	if err := a.cache.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close cache")
	} else {
		a.log.Info().Msg("cache closed")
	}
}
