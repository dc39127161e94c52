package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/app"
	"github.com/vovakirdan/wirechat-client/internal/config"
	applog "github.com/vovakirdan/wirechat-client/internal/log"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "wirechat",
	Short:         "Terminal client for wirechat rooms",
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("token", "", "access token (overrides config)")
	rootCmd.PersistentFlags().String("api", "", "REST base URL (overrides config)")
	rootCmd.PersistentFlags().String("socket", "", "socket URL (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration and the logger for a command.
func loadConfig(cmd *cobra.Command) (config.Config, *zerolog.Logger, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")

	bootLog := applog.New("warn")
	cfg, _, err := config.Load(bootLog, path)
	if err != nil {
		return cfg, nil, err
	}

	var override config.Config
	override.Token, _ = flags.GetString("token")
	override.APIBaseURL, _ = flags.GetString("api")
	override.SocketURL, _ = flags.GetString("socket")
	override.Log.Level, _ = flags.GetString("log-level")
	cfg.UpdateFrom(override)

	logger := applog.NewWithWriter(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	return cfg, logger, nil
}

// client is a logged-in application running in the background.
type client struct {
	app    *app.App
	cancel context.CancelFunc
	done   chan error
}

// startApp logs in and runs the application until stop is called.
func startApp(ctx context.Context, cmd *cobra.Command) (*client, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	user, err := a.Login(ctx, "")
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	logger.Info().Str("user_id", user.ID).Str("name", user.Name).Msg("logged in")

	runCtx, cancel := context.WithCancel(ctx)
	s := &client{app: a, cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- a.Run(runCtx) }()
	return s, nil
}

// stop shuts the application down and waits for it.
func (s *client) stop() error {
	s.cancel()
	select {
	case err := <-s.done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-time.After(10 * time.Second):
		return errors.New("timed out waiting for shutdown")
	}
}
