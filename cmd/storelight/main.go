// Command storelight runs the server-rendered storefront.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/storelight/storelight/internal/api"
	"github.com/storelight/storelight/internal/app"
	"github.com/storelight/storelight/internal/cache"
	"github.com/storelight/storelight/internal/config"
	"github.com/storelight/storelight/internal/render"
	"github.com/storelight/storelight/internal/server"
	"github.com/storelight/storelight/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("storelight exited with error")
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "storelight.yaml", "path to the YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dev := flag.Bool("dev", false, "enable dev mode: fresh template reads and /__reload")
	flag.Parse()

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dev {
		cfg.Dev.Reload = true
	}

	setupLogging(cfg.LogLevel)

	sess, err := buildSession(cfg)
	if err != nil {
		return err
	}

	store, err := buildCache(cfg)
	if err != nil {
		return err
	}

	gateway := api.NewClient(cfg.Backend.BaseURL, sess, api.RejectingReporter{},
		api.WithTimeout(cfg.Backend.Timeout.Std()),
		api.WithCache(store),
	)
	renderer := render.New(app.New(gateway))

	srv, err := server.New(cfg, renderer, store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("backend", cfg.Backend.BaseURL).
		Str("cache", cfg.Cache.Store).
		Str("platform", sess.Snapshot().Platform).
		Msg("storelight starting")

	return srv.Run(ctx)
}

// setupLogging configures the global zerolog logger: structured JSON by
// default, pretty console output when attached to a terminal.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if term.IsTerminal(int(os.Stdout.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}

// buildSession seeds the identity cell from config. When no token is
// configured and stdin is a terminal, prompt for one without echoing.
func buildSession(cfg *config.Config) (*session.Identity, error) {
	token := cfg.Session.Token
	if token == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "Backend token (leave empty for anonymous): ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading token: %w", err)
		}
		token = string(raw)
	}
	return session.New(token, cfg.Session.DeviceID, cfg.Session.Platform), nil
}

func buildCache(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Store {
	case "sqlite":
		return cache.OpenSQLite(cfg.Cache.Path, cfg.Cache.MaxEntries, cfg.Cache.TTL.Std())
	default:
		return cache.NewMemory(cfg.Cache.MaxEntries, cfg.Cache.TTL.Std()), nil
	}
}
