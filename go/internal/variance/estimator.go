// Package variance estimates floor and ceiling outcomes for a projection.
package variance

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/rookie"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// Config tunes the comparable population.
type Config struct {
	MinSample int     `yaml:"min_sample"`
	UsageBand float64 `yaml:"usage_band"`
	MinGames  float64 `yaml:"min_games"`
}

func DefaultConfig() Config {
	return Config{MinSample: 10, UsageBand: 0.25, MinGames: 4}
}

// Bound is the spread of one counting stat.
type Bound struct {
	Stat   stats.Stat `json:"stat"`
	Mean   float64    `json:"mean"`
	StdDev float64    `json:"std_dev"`
	Low    float64    `json:"low"`
	High   float64    `json:"high"`
}

// Range is a projection's estimated outcome band at one confidence level.
type Range struct {
	PlayerID   uuid.UUID  `json:"player_id"`
	Season     int        `json:"season"`
	Confidence float64    `json:"confidence"`
	Sample     int        `json:"sample"`
	Bounds     []Bound    `json:"bounds"`
	Floor      stats.Line `json:"floor"`
	Ceiling    stats.Line `json:"ceiling"`
}

// Z returns the two-sided normal quantile for a confidence level.
func Z(confidence float64) float64 {
	return math.Sqrt2 * math.Erfinv(confidence)
}

// Comparables filters the pool down to seasons with the same position and a per-game
// primary volume within the usage band of the projection's.
func Comparables(p models.Projection, pool []models.SeasonLine, cfg Config) []models.SeasonLine {
	vol := rookie.PrimaryVolume(p.Position)
	target := perGame(p.Stats, vol)
	lo, hi := target*(1-cfg.UsageBand), target*(1+cfg.UsageBand)

	var out []models.SeasonLine
	for _, sl := range pool {
		if sl.Position != p.Position || sl.PlayerID == p.PlayerID || sl.Stats.Games < math.Max(cfg.MinGames, 1) {
			continue
		}
		v := perGame(sl.Stats, vol)
		if v < lo || v > hi {
			continue
		}
		out = append(out, sl)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Season != out[j].Season {
			return out[i].Season > out[j].Season
		}
		return out[i].PlayerID.String() < out[j].PlayerID.String()
	})
	return out
}

// Estimate computes mean ± z × sd for every counting stat over the comparable population,
// normalized to the projection's games. Bound lines are clipped and re-derived.
func Estimate(p models.Projection, pool []models.SeasonLine, confidence float64, totals stats.Totals, cfg Config) (*Range, error) {
	if !(confidence > 0 && confidence < 1) {
		return nil, ErrInvalidConfidence
	}
	comps := Comparables(p, pool, cfg)
	if len(comps) < cfg.MinSample || len(comps) < 2 {
		return nil, &InsufficientSampleError{PlayerID: p.PlayerID, Size: len(comps), Min: max(cfg.MinSample, 2)}
	}

	z := Z(confidence)
	games := p.Stats.Games
	r := &Range{PlayerID: p.PlayerID, Season: p.Season, Confidence: confidence, Sample: len(comps)}
	floor, ceiling := p.Stats, p.Stats

	sample := make([]float64, len(comps))
	for _, s := range stats.CountingStats() {
		if s == stats.Games {
			continue
		}
		for i, sl := range comps {
			sample[i] = perGame(sl.Stats, s) * games
		}
		mean, sd := meanStdDev(sample)
		b := Bound{
			Stat:   s,
			Mean:   mean,
			StdDev: sd,
			Low:    stats.Clamp(s, mean-z*sd),
			High:   stats.Clamp(s, mean+z*sd),
		}
		r.Bounds = append(r.Bounds, b)
		floor.Set(s, b.Low)
		ceiling.Set(s, b.High)
	}

	r.Floor = stats.Derive(clip(floor), totals)
	r.Ceiling = stats.Derive(clip(ceiling), totals)
	return r, nil
}

// clip keeps the nested counts physically possible.
func clip(l stats.Line) stats.Line {
	l.Completions = math.Min(l.Completions, l.PassAttempts)
	l.Receptions = math.Min(l.Receptions, l.Targets)
	return l
}

func perGame(l stats.Line, s stats.Stat) float64 {
	if l.Games <= 0 {
		return 0
	}
	return l.Get(s) / l.Games
}

// meanStdDev returns the mean and the sample standard deviation.
func meanStdDev(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}
