package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Cache drivers.
const (
	CacheSQLite = "sqlite"
	CacheBolt   = "bolt"
	CacheNone   = "none"
)

// Config holds client configuration values.
type Config struct {
	APIBaseURL         string          `mapstructure:"api_base_url" yaml:"api_base_url"`
	SocketURL          string          `mapstructure:"socket_url" yaml:"socket_url"`
	Token              string          `mapstructure:"token" yaml:"token"`
	RequestTimeout     time.Duration   `mapstructure:"request_timeout" yaml:"request_timeout"`
	RoomSwitchDebounce time.Duration   `mapstructure:"room_switch_debounce" yaml:"room_switch_debounce"`
	ShutdownTimeout    time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MetricsAddr        string          `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	Reconnect          ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
	Cache              CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Typing             TypingConfig    `mapstructure:"typing" yaml:"typing"`
	Log                LogConfig       `mapstructure:"log" yaml:"log"`
}

// ReconnectConfig bounds the socket reconnect policy.
type ReconnectConfig struct {
	Attempts  int           `mapstructure:"attempts" yaml:"attempts"`
	BaseDelay time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// CacheConfig selects the local message cache.
type CacheConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
	Limit  int    `mapstructure:"limit" yaml:"limit"`
}

// TypingConfig tunes typing indicators.
type TypingConfig struct {
	Window time.Duration `mapstructure:"window" yaml:"window"`
	Idle   time.Duration `mapstructure:"idle" yaml:"idle"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIBaseURL:         "http://localhost:8080/api",
		SocketURL:          "ws://localhost:8080/ws",
		RequestTimeout:     15 * time.Second,
		RoomSwitchDebounce: 200 * time.Millisecond,
		ShutdownTimeout:    5 * time.Second,
		Reconnect: ReconnectConfig{
			Attempts:  5,
			BaseDelay: 500 * time.Millisecond,
			MaxDelay:  10 * time.Second,
		},
		Cache: CacheConfig{
			Driver: CacheSQLite,
			Path:   "wirechat-cache.db",
			Limit:  100,
		},
		Typing: TypingConfig{
			Window: 3 * time.Second,
			Idle:   2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		return fmt.Errorf("api_base_url: %w", err)
	}
	if c.SocketURL != "" {
		u, err := url.Parse(c.SocketURL)
		if err != nil {
			return fmt.Errorf("socket_url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("socket_url: unsupported scheme %q", u.Scheme)
		}
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.Reconnect.Attempts < 0 {
		return errors.New("reconnect.attempts must not be negative")
	}
	switch c.Cache.Driver {
	case CacheSQLite, CacheBolt:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for driver %q", c.Cache.Driver)
		}
	case CacheNone, "":
	default:
		return fmt.Errorf("cache.driver: unknown driver %q", c.Cache.Driver)
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.SocketURL != "" {
		c.SocketURL = other.SocketURL
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.Cache.Driver != "" {
		c.Cache.Driver = other.Cache.Driver
	}
	if other.Cache.Path != "" {
		c.Cache.Path = other.Cache.Path
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.MetricsAddr != "" {
		c.MetricsAddr = other.MetricsAddr
	}
}
