package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/historical"
	"github.com/mcdev12/dynasty-projections/go/internal/outbox"
	"github.com/mcdev12/dynasty-projections/go/internal/override"
	"github.com/mcdev12/dynasty-projections/go/internal/player"
	"github.com/mcdev12/dynasty-projections/go/internal/projection"
	"github.com/mcdev12/dynasty-projections/go/internal/rookie"
	"github.com/mcdev12/dynasty-projections/go/internal/roster"
	"github.com/mcdev12/dynasty-projections/go/internal/scenario"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/mcdev12/dynasty-projections/go/internal/store/memory"
	"github.com/mcdev12/dynasty-projections/go/internal/store/postgres"
	"github.com/mcdev12/dynasty-projections/go/internal/teamadjust"
	"github.com/mcdev12/dynasty-projections/go/internal/teams"
	"github.com/mcdev12/dynasty-projections/go/internal/variance"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// backend is a store that can also feed an outbox relay.
type backend interface {
	store.Store
	store.OutboxReader
}

type Services struct {
	Players     *player.Service
	Scenarios   *scenario.Service
	Projections *projection.Service
	TeamAdjust  *teamadjust.Service
	Overrides   *override.Service
	Variance    *variance.Service
	Rosters     *roster.Service
	Teams       *teams.Service

	closers []func() error
}

// Close releases connections opened by setupServices, last opened first.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Error().Err(err).Msg("failed to close resource")
		}
	}
}

func setupServices(ctx context.Context, cfg Config, engine EngineConfig) (*Services, error) {
	// Wire up dependency injection chain
	// Store → historical source → App layer → Service layer
	svcs := &Services{}
	clock := clockwork.NewRealClock()

	var (
		st      backend
		history historical.Source
	)
	switch cfg.Store {
	case "memory":
		st = memory.New(memory.WithClock(clock))
		ds := historical.Dataset{}
		if cfg.HistoryFile != "" {
			loaded, err := historical.LoadDataset(cfg.HistoryFile)
			if err != nil {
				return nil, err
			}
			ds = *loaded
		}
		history = historical.NewStatic(ds)
		log.Info().Int("seasons", len(ds.Seasons)).Msg("using in-memory store")

	default:
		database, err := setupDatabase(cfg.DB)
		if err != nil {
			return nil, err
		}
		svcs.closers = append(svcs.closers, database.Close)
		st = postgres.New(database)
		history = historical.NewPostgres(database)
	}

	if cfg.RedisURL != "" {
		cached, closeRedis, err := cacheHistory(ctx, history, cfg)
		if err != nil {
			svcs.Close()
			return nil, err
		}
		svcs.closers = append(svcs.closers, closeRedis)
		history = cached
	}

	if cfg.Store == "memory" && cfg.NATSURL != "" {
		// No other process can read an in-memory outbox, so relay it here.
		stop, err := startRelay(ctx, st, cfg.NATSURL, clock)
		if err != nil {
			svcs.Close()
			return nil, err
		}
		svcs.closers = append(svcs.closers, stop)
	}

	templates := rookie.DefaultTemplates()
	if engine.Rookie.TemplateFile != "" {
		loaded, err := rookie.LoadTemplates(engine.Rookie.TemplateFile)
		if err != nil {
			svcs.Close()
			return nil, err
		}
		templates = loaded
	}
	rookies := rookie.NewGenerator(templates, history, engine.Rookie)

	// Scenarios
	scenarioApp := scenario.NewApp(st, clock)
	svcs.Scenarios = scenario.NewService(scenarioApp)

	// Players
	svcs.Players = player.NewService(player.NewApp(st, clock))

	// Projections
	projectionApp := projection.NewApp(st, history, rookies, engine.Builder, clock)
	svcs.Projections = projection.NewService(projectionApp)

	// Team adjustments
	svcs.TeamAdjust = teamadjust.NewService(teamadjust.NewApp(st, engine.policy, clock))

	// Overrides
	overrideApp := override.NewApp(st, override.Config{
		Policy:      engine.policy,
		Parallelism: engine.BatchParallelism,
	}, clock)
	svcs.Overrides = override.NewService(overrideApp)

	// Variance forks through the scenario app
	svcs.Variance = variance.NewService(variance.NewApp(st, history, scenarioApp, engine.Variance))

	// Rosters
	svcs.Rosters = roster.NewService(roster.NewApp(st))

	// Teams
	svcs.Teams = teams.NewService(teams.NewApp(st, clock))

	return svcs, nil
}

func cacheHistory(ctx context.Context, next historical.Source, cfg Config) (historical.Source, func() error, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Dur("ttl", cfg.RedisTTL).Msg("caching historical lookups in redis")
	return historical.NewCached(next, client, cfg.RedisTTL), client.Close, nil
}

// startRelay polls the outbox into JetStream until the returned func is called.
func startRelay(ctx context.Context, reader store.OutboxReader, natsURL string, clock clockwork.Clock) (func() error, error) {
	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = natsURL
	publisher, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
	}

	worker := outbox.NewWorker(reader, publisher, outbox.DefaultConfig(), clock)
	if err := worker.Start(ctx); err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to start outbox worker: %w", err)
	}
	return func() error {
		if err := worker.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop outbox worker")
		}
		return publisher.Close()
	}, nil
}
