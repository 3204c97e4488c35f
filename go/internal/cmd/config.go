package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mcdev12/dynasty-projections/go/internal/dbconfig"
	"github.com/mcdev12/dynasty-projections/go/internal/projection"
	"github.com/mcdev12/dynasty-projections/go/internal/rookie"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/variance"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the process environment.
type Config struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	Store        string        `env:"STORE" envDefault:"postgres"`
	EngineConfig string        `env:"ENGINE_CONFIG" envDefault:"config.yaml"`
	NATSURL      string        `env:"NATS_URL"`
	RedisURL     string        `env:"REDIS_URL"`
	RedisTTL     time.Duration `env:"REDIS_TTL" envDefault:"1h"`
	// HistoryFile seeds the static historical source when STORE=memory.
	HistoryFile string `env:"HISTORY_FILE"`
	DB          dbconfig.Config
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.Store {
	case "postgres", "memory":
	default:
		return Config{}, fmt.Errorf("STORE must be postgres or memory, got %q", cfg.Store)
	}
	return cfg, nil
}

// EngineConfig tunes the projection engines.
type EngineConfig struct {
	ConflictPolicy   string            `yaml:"conflict_policy"`
	BatchParallelism int               `yaml:"batch_parallelism"`
	Builder          projection.Config `yaml:"builder"`
	Variance         variance.Config   `yaml:"variance"`
	Rookie           rookie.Config     `yaml:"rookie"`

	policy stats.ConflictPolicy
}

func defaultEngineConfig() EngineConfig {
	return EngineConfig{
		ConflictPolicy:   "most_recent_wins",
		BatchParallelism: 8,
		Builder:          projection.DefaultConfig(),
		Variance:         variance.DefaultConfig(),
		Rookie:           rookie.DefaultConfig(),
		policy:           stats.MostRecentWins,
	}
}

// loadEngineConfig layers the YAML file over the defaults. A missing file keeps the defaults.
func loadEngineConfig(path string) (EngineConfig, error) {
	cfg := defaultEngineConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("engine config not found, using defaults")
		return cfg, nil
	}
	if err != nil {
		return EngineConfig{}, fmt.Errorf("failed to read engine config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("failed to parse engine config: %w", err)
	}

	cfg.policy, err = stats.ParseConflictPolicy(cfg.ConflictPolicy)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("engine config: %w", err)
	}
	if cfg.BatchParallelism <= 0 {
		cfg.BatchParallelism = 1
	}
	return cfg, nil
}
