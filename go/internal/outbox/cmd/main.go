package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/dynasty-projections/go/internal/dbconfig"
	"github.com/mcdev12/dynasty-projections/go/internal/outbox"
	"github.com/mcdev12/dynasty-projections/go/internal/store/postgres"
)

type config struct {
	Mode             string        `env:"OUTBOX_MODE" envDefault:"listen"`
	NATSURL          string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	HealthPort       string        `env:"OUTBOX_HEALTH_PORT" envDefault:"8082"`
	FallbackInterval time.Duration `env:"FALLBACK_INTERVAL" envDefault:"30s"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	StaleAfter       time.Duration `env:"STALE_AFTER" envDefault:"2m"`
	DB               dbconfig.Config
}

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// configure zerolog console output and level
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("parse env")
	}

	db, err := cfg.DB.Open()
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	st := postgres.New(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// JetStream publisher
	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	publisher, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	relay, err := newRelay(cfg, st, publisher)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox relay")
	}

	health := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HealthPort),
		Handler: outbox.NewHealthChecker(relay, st, publisher, cfg.StaleAfter),
	}
	go func() {
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	// run relay
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("mode", cfg.Mode).Msg("starting outbox relay")
		errCh <- relay.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("relay exited unexpectedly")
		}
		if cfg.Mode == "poll" {
			// The worker returns from Start at once and keeps polling.
			<-ctx.Done()
		}
	}

	if w, ok := relay.(*outbox.Worker); ok {
		if err := w.Stop(); err != nil {
			log.Error().Err(err).Msg("stop worker")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown failed")
	}
	log.Info().Msg("graceful shutdown complete")
}

func newRelay(cfg config, st *postgres.Store, publisher outbox.Publisher) (outbox.Relay, error) {
	switch cfg.Mode {
	case "listen":
		ltCfg := outbox.DefaultListenerConfig()
		ltCfg.DatabaseURL = cfg.DB.DSN()
		ltCfg.FallbackInterval = cfg.FallbackInterval
		return outbox.NewListener(st, publisher, ltCfg)
	case "poll":
		wCfg := outbox.DefaultConfig()
		wCfg.PollInterval = cfg.PollInterval
		return outbox.NewWorker(st, publisher, wCfg, clockwork.NewRealClock()), nil
	}
	return nil, fmt.Errorf("OUTBOX_MODE must be listen or poll, got %q", cfg.Mode)
}
