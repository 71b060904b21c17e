package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/mcdev12/setlist/go/internal/live/config"
	"github.com/mcdev12/setlist/go/internal/live/platform"
	"github.com/mcdev12/setlist/go/internal/live/session"
	"github.com/mcdev12/setlist/go/internal/live/setlist"
	"github.com/mcdev12/setlist/go/internal/live/stage"
	"github.com/mcdev12/setlist/go/internal/live/transport"
	"github.com/mcdev12/setlist/go/internal/live/transport/natsbus"
	"github.com/mcdev12/setlist/go/internal/live/transport/redisbus"
	"github.com/mcdev12/setlist/go/internal/live/transport/wsrelay"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", os.Getenv("LIVE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sl, err := loadSetlist(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load setlist")
	}
	if cfg.SessionID == "" {
		cfg.SessionID = sl.EventID
	}

	bus, err := openTransport(ctx, cfg)
	if err != nil {
		// A stage without a link still plays locally.
		log.Error().Err(err).Str("transport", cfg.Transport).Msg("sync transport unavailable, running local")
		bus = nil
	}
	if bus != nil {
		defer bus.Close()
	}

	sess, err := session.New(cfg.SessionConfig(), sl, bus, platform.Logging{}, clockwork.NewRealClock())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session")
	}
	sess.Observe(stage.NewStateLogger(log.Logger).Observe)

	log.Info().
		Str("session_id", cfg.SessionID).
		Str("client_id", sess.ClientID()).
		Str("transport", cfg.Transport).
		Int("songs", len(sl.Songs)).
		Msg("starting stage")

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(ctx)
	}()

	go func() {
		console := stage.NewConsole(sess, os.Stdout)
		if err := console.Run(ctx, os.Stdin); err != nil {
			log.Error().Err(err).Msg("console stopped")
		}
	}()

	// Wait for interrupt signal or the session ending on its own
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			log.Warn().Msg("session did not stop in time")
		}
	case err := <-done:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("session stopped")
		}
	}

	log.Info().Msg("stage shutdown complete")
}

// loadSetlist prefers the YAML file and falls back to the database, keyed by session id.
func loadSetlist(ctx context.Context, cfg *config.Config) (setlist.Setlist, error) {
	if cfg.SetlistFile != "" {
		return setlist.FileStore{Path: cfg.SetlistFile}.Load(ctx, cfg.SessionID)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return setlist.Setlist{}, err
	}
	defer db.Close()

	timeout := cfg.Database.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return setlist.Setlist{}, err
	}

	log.Info().Str("database", cfg.Database.Database).Str("event_id", cfg.SessionID).Msg("loading setlist from database")
	return setlist.NewPostgresStore(db).Load(ctx, cfg.SessionID)
}

func openTransport(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		natsCfg := natsbus.DefaultConfig()
		natsCfg.URL = cfg.NATSURL
		bus, err := natsbus.Connect(natsCfg)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case config.TransportRedis:
		bus, err := redisbus.Connect(ctx, cfg.RedisAddr, "", cfg.ClientID)
		if err != nil {
			return nil, err
		}
		return bus, nil
	case config.TransportWS:
		return wsrelay.NewClient(cfg.RelayURL, cfg.ClientID), nil
	}
	return nil, nil
}
