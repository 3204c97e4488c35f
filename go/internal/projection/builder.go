// Package projection builds baseline season projections from historical per-game rates.
package projection

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// Config tunes the builder.
type Config struct {
	RecencyWeights []float64 `yaml:"recency_weights"`
	MinGames       float64   `yaml:"min_games"`
	Games          float64   `yaml:"games"`
}

func DefaultConfig() Config {
	return Config{
		RecencyWeights: []float64{0.5, 0.3, 0.2},
		MinGames:       4,
		Games:          stats.MaxGames,
	}
}

// families lists the counting stats that move with each team volume stat.
var families = map[stats.Stat][]stats.Stat{
	stats.PassAttempts: {stats.PassAttempts, stats.Completions, stats.PassYards, stats.PassTD, stats.Interceptions},
	stats.RushAttempts: {stats.RushAttempts, stats.RushYards, stats.RushTD},
	stats.Targets:      {stats.Targets, stats.Receptions, stats.RecYards, stats.RecTD},
}

// Family returns the counting stats scaled together with a volume stat.
func Family(volume stats.Stat) []stats.Stat {
	return append([]stats.Stat(nil), families[volume]...)
}

// ScaleFamily multiplies every stat in the volume's family by f.
func ScaleFamily(l stats.Line, volume stats.Stat, f float64) stats.Line {
	for _, s := range families[volume] {
		l.Set(s, l.Get(s)*f)
	}
	return l
}

// Input is everything the builder needs for one player.
type Input struct {
	PlayerID uuid.UUID
	Season   int
	// History is the player's past seasons; order does not matter.
	History []models.SeasonLine
	// TeamHistory holds the team volume for the seasons in History, used for pace.
	TeamHistory []models.TeamSeason
	// Forecast is the target team's volume for Season. Nil disables pace adjustment.
	Forecast stats.Totals
	// Games overrides the configured games assumption when positive.
	Games float64
}

// Builder turns history into a season line. It is pure and safe for concurrent use.
type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	if len(cfg.RecencyWeights) == 0 {
		cfg.RecencyWeights = DefaultConfig().RecencyWeights
	}
	if cfg.Games <= 0 {
		cfg.Games = stats.MaxGames
	}
	return &Builder{cfg: cfg}
}

// Build returns a fully derived season line with shares taken against the forecast.
func (b *Builder) Build(in Input) (stats.Line, error) {
	seasons := b.qualifying(in.History, in.Season)
	if len(seasons) == 0 {
		return stats.Line{}, &InsufficientHistoryError{PlayerID: in.PlayerID, Season: in.Season}
	}

	var weightSum float64
	for i := range seasons {
		weightSum += b.cfg.RecencyWeights[i]
	}

	var perGame stats.Line
	for i, sl := range seasons {
		w := b.cfg.RecencyWeights[i] / weightSum
		rate := sl.Stats.Scale(1 / sl.Stats.Games)
		for vol := range families {
			rate = ScaleFamily(rate, vol, pace(in.Forecast, teamVolume(in.TeamHistory, sl), vol))
		}
		for _, s := range stats.CountingStats() {
			if s == stats.Games {
				continue
			}
			perGame.Set(s, perGame.Get(s)+w*rate.Get(s))
		}
		perGame.SnapShare += w * sl.Stats.SnapShare
	}

	games := b.cfg.Games
	if in.Games > 0 {
		games = math.Min(in.Games, stats.MaxGames)
	}
	line := perGame.Scale(games)
	line.Games = games
	return stats.Derive(line, in.Forecast), nil
}

// qualifying returns the most recent seasons eligible for weighting, newest first.
func (b *Builder) qualifying(history []models.SeasonLine, season int) []models.SeasonLine {
	var out []models.SeasonLine
	for _, sl := range history {
		if sl.Season < season && sl.Stats.Games >= math.Max(b.cfg.MinGames, 1) {
			out = append(out, sl)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Season > out[j].Season })
	if len(out) > len(b.cfg.RecencyWeights) {
		out = out[:len(b.cfg.RecencyWeights)]
	}
	return out
}

func teamVolume(history []models.TeamSeason, sl models.SeasonLine) stats.Totals {
	for _, ts := range history {
		if ts.TeamID == sl.TeamID && ts.Season == sl.Season {
			return ts.Totals
		}
	}
	return nil
}

// pace is forecast volume over historical volume, or 1 when either is unknown.
func pace(forecast, historical stats.Totals, vol stats.Stat) float64 {
	f, h := forecast[vol], historical[vol]
	if f <= 0 || h <= 0 {
		return 1
	}
	return f / h
}
