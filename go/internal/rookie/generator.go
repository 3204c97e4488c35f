package rookie

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// Config tunes the generator. BlendWeight is the share of the result taken from
// comparable veterans; PlayingTime scales the per-game profile for a partial role.
type Config struct {
	BlendWeight  float64 `yaml:"blend_weight"`
	PlayingTime  float64 `yaml:"playing_time"`
	Comparables  int     `yaml:"comparables"`
	Games        float64 `yaml:"games"`
	MinGames     float64 `yaml:"min_games"`
	TemplateFile string  `yaml:"template_file"`
}

func DefaultConfig() Config {
	return Config{
		BlendWeight: 0.3,
		PlayingTime: 0.75,
		Comparables: 5,
		Games:       stats.MaxGames,
		MinGames:    4,
	}
}

// Source supplies historical seasons for comparable selection.
type Source interface {
	PositionSeasons(ctx context.Context, pos models.Position, before int) ([]models.SeasonLine, error)
}

// Result is a generated rookie season line.
type Result struct {
	Bucket      Bucket
	Line        stats.Line
	Comparables []models.SeasonLine
}

// Generator builds projections for players without NFL history.
type Generator struct {
	templates Templates
	source    Source
	cfg       Config
}

func NewGenerator(templates Templates, source Source, cfg Config) *Generator {
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Generator{templates: templates, source: source, cfg: cfg}
}

// Generate returns counting stats for a rookie season. Derived stats are filled in
// without team totals; callers that know the team context re-derive shares.
func (g *Generator) Generate(ctx context.Context, p models.Player, season int) (*Result, error) {
	if _, err := models.ParsePosition(string(p.Position)); err != nil {
		return nil, err
	}
	template, bucket, ok := g.templates.Lookup(BucketFor(p.DraftPick, p.Undrafted), p.Position)
	if !ok {
		return nil, fmt.Errorf("no rookie template for %s: %w", p.Position, models.ErrUnknownPosition)
	}

	var comps []models.SeasonLine
	if g.source != nil && g.cfg.Comparables > 0 && g.cfg.BlendWeight > 0 {
		pool, err := g.source.PositionSeasons(ctx, p.Position, season)
		if err != nil {
			return nil, fmt.Errorf("failed to load comparable seasons: %w", err)
		}
		comps = Nearest(pool, p.ID, template, g.cfg.Comparables, g.cfg.MinGames)
	}

	perGame := Blend(template, perGameLines(comps), g.cfg.BlendWeight)
	return &Result{
		Bucket:      bucket,
		Line:        Season(perGame, g.cfg.Games, g.cfg.PlayingTime),
		Comparables: comps,
	}, nil
}

// Season turns a per-game profile into a season line.
func Season(perGame stats.Line, games, playingTime float64) stats.Line {
	l := perGame.Scale(games * playingTime)
	l.Games = games
	return stats.Derive(l, nil)
}

// Blend mixes the template with the mean of the comparables. With no comparables the
// template is returned unchanged.
func Blend(template stats.Line, comps []stats.Line, w float64) stats.Line {
	if len(comps) == 0 || w <= 0 {
		return template
	}
	w = math.Min(w, 1)
	out := template
	for _, s := range stats.CountingStats() {
		if s == stats.Games {
			continue
		}
		var mean float64
		for _, c := range comps {
			mean += c.Get(s)
		}
		mean /= float64(len(comps))
		out.Set(s, w*mean+(1-w)*template.Get(s))
	}
	var snap float64
	for _, c := range comps {
		snap += c.SnapShare
	}
	out.SnapShare = w*snap/float64(len(comps)) + (1-w)*template.SnapShare
	return out
}

// PrimaryVolume is the usage stat that best separates roles at a position.
func PrimaryVolume(pos models.Position) stats.Stat {
	switch pos {
	case models.PositionQB:
		return stats.PassAttempts
	case models.PositionRB:
		return stats.RushAttempts
	default:
		return stats.Targets
	}
}

// Nearest picks the k seasons whose per-game primary volume is closest to the
// template's. Ties break on season then player id so the choice is deterministic.
func Nearest(pool []models.SeasonLine, exclude uuid.UUID, template stats.Line, k int, minGames float64) []models.SeasonLine {
	type candidate struct {
		line models.SeasonLine
		dist float64
	}
	var cands []candidate
	for _, sl := range pool {
		if sl.PlayerID == exclude || sl.Stats.Games < math.Max(minGames, 1) {
			continue
		}
		vol := PrimaryVolume(sl.Position)
		perGame := sl.Stats.Get(vol) / sl.Stats.Games
		cands = append(cands, candidate{line: sl, dist: math.Abs(perGame - template.Get(vol))})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		if cands[i].line.Season != cands[j].line.Season {
			return cands[i].line.Season > cands[j].line.Season
		}
		return cands[i].line.PlayerID.String() < cands[j].line.PlayerID.String()
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	out := make([]models.SeasonLine, len(cands))
	for i, c := range cands {
		out[i] = c.line
	}
	return out
}

func perGameLines(seasons []models.SeasonLine) []stats.Line {
	out := make([]stats.Line, 0, len(seasons))
	for _, sl := range seasons {
		l := sl.Stats.Scale(1 / sl.Stats.Games)
		l.Games = 1
		out = append(out, l)
	}
	return out
}
