package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-client/internal/backendtest"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/core"
	applog "github.com/vovakirdan/wirechat-client/internal/log"
	"github.com/vovakirdan/wirechat-client/internal/roomlist"
	"github.com/vovakirdan/wirechat-client/internal/store"
)

func TestOpenCache(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.CacheConfig
		wantErr bool
	}{
		{name: "none", cfg: config.CacheConfig{Driver: config.CacheNone}},
		{name: "empty driver", cfg: config.CacheConfig{}},
		{name: "sqlite", cfg: config.CacheConfig{Driver: config.CacheSQLite, Path: filepath.Join(dir, "cache.db"), Limit: 10}},
		{name: "bolt", cfg: config.CacheConfig{Driver: config.CacheBolt, Path: filepath.Join(dir, "cache.bolt"), Limit: 10}},
		{name: "unknown", cfg: config.CacheConfig{Driver: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := OpenCache(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer c.Close()

			msgs := []core.Message{{ID: "m1", ChatID: "r1", Content: "hi", CreatedAt: time.Unix(1700000000, 0).UTC()}}
			require.NoError(t, c.Save(context.Background(), "r1", msgs))
			got, err := c.Load(context.Background(), "r1")
			require.NoError(t, err)
			if _, nop := c.(store.Nop); nop {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, "hi", got[0].Content)
		})
	}
}

func testConfig(srv *backendtest.Server) config.Config {
	cfg := config.Default()
	cfg.APIBaseURL = srv.URL
	cfg.SocketURL = srv.SocketURL
	cfg.RequestTimeout = 2 * time.Second
	cfg.Reconnect.BaseDelay = 10 * time.Millisecond
	cfg.Reconnect.MaxDelay = 50 * time.Millisecond
	cfg.Cache.Driver = config.CacheNone
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Driver = "redis"

	_, err := New(cfg, applog.Nop())
	assert.Error(t, err)
}

func TestLoginRequiresToken(t *testing.T) {
	srv := backendtest.New(t)
	a, err := New(testConfig(srv), applog.Nop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Login(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrNotLoggedIn)
}

func TestRunLoadsRoomDirectory(t *testing.T) {
	srv := backendtest.New(t)
	token := srv.AddUser("u1", "Ana")
	srv.AddRoom("r1", "general", "u1")

	cfg := testConfig(srv)
	cfg.Token = token
	a, err := New(cfg, applog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	user, err := a.Login(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.Name)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(a.Controller().Rooms(roomlist.Filter{})) == 1
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, a.Controller().Online, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestLogoutEndsRun(t *testing.T) {
	srv := backendtest.New(t)
	token := srv.AddUser("u1", "Ana")
	srv.AddRoom("r1", "general", "u1")

	a, err := New(testConfig(srv), applog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = a.Login(ctx, token)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(a.Controller().Rooms(roomlist.Filter{})) == 1
	}, 3*time.Second, 10*time.Millisecond)

	a.Session().Logout()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop after logout")
	}
	assert.False(t, a.Session().LoggedIn())
}
