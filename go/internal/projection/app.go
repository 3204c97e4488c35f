package projection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/events"
	"github.com/mcdev12/dynasty-projections/go/internal/historical"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/outbox"
	"github.com/mcdev12/dynasty-projections/go/internal/rookie"
	"github.com/mcdev12/dynasty-projections/go/internal/roster"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/rs/zerolog/log"
)

// Store defines what the projection app needs from persistence
type Store interface {
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListPlayersByTeam(ctx context.Context, teamID uuid.UUID) ([]models.Player, error)
	GetScenario(ctx context.Context, id uuid.UUID) (*models.Scenario, error)
	GetProjection(ctx context.Context, playerID uuid.UUID, season int, scenarioID uuid.UUID) (*models.Projection, error)
	ListProjectionsByTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) ([]models.Projection, error)
	GetTeamStat(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) (*models.TeamStat, error)
	InTx(ctx context.Context, fn func(q store.Queries) error) error
}

// RookieGenerator builds lines for players the builder cannot project
type RookieGenerator interface {
	Generate(ctx context.Context, p models.Player, season int) (*rookie.Result, error)
}

// BuildRequest asks for one player's projection. A nil Forecast uses the scenario's
// team totals, then last season's team volume.
type BuildRequest struct {
	PlayerID   uuid.UUID
	Season     int
	ScenarioID uuid.UUID
	Forecast   stats.Totals
	Games      float64
}

// BuildTeamRequest asks for every player on a team plus the fill slot.
type BuildTeamRequest struct {
	TeamID     uuid.UUID
	Season     int
	ScenarioID uuid.UUID
	Forecast   stats.Totals
	Games      float64
}

// TeamBuild is the result of BuildTeam.
type TeamBuild struct {
	Projections []models.Projection `json:"projections"`
	TeamStat    models.TeamStat     `json:"team_stat"`
	Skipped     []uuid.UUID         `json:"skipped,omitempty"`
}

// App handles projection building and reads
type App struct {
	store   Store
	history historical.Source
	rookies RookieGenerator
	builder *Builder
	games   float64
	clock   clockwork.Clock
}

// NewApp creates a new projection App. rookies may be nil, in which case players
// without history fail with InsufficientHistoryError.
func NewApp(st Store, history historical.Source, rookies RookieGenerator, cfg Config, clock clockwork.Clock) *App {
	b := NewBuilder(cfg)
	return &App{
		store:   st,
		history: history,
		rookies: rookies,
		builder: b,
		games:   b.cfg.Games,
		clock:   clock,
	}
}

// Build projects one player and stores the result, replacing any earlier build and
// its overrides.
func (a *App) Build(ctx context.Context, req BuildRequest) (*models.Projection, error) {
	p, err := a.store.GetPlayer(ctx, req.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	if p.TeamID == nil {
		return nil, fmt.Errorf("player %s: %w", p.ID, ErrNoTeam)
	}
	if _, err := a.store.GetScenario(ctx, req.ScenarioID); err != nil {
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}

	forecast := req.Forecast
	if forecast == nil {
		if forecast, err = a.forecast(ctx, *p.TeamID, req.Season, req.ScenarioID); err != nil {
			return nil, err
		}
	}

	line, source, err := a.project(ctx, *p, req.Season, forecast, req.Games)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	var saved models.Projection
	err = a.store.InTx(ctx, func(q store.Queries) error {
		if err := q.LockTeam(ctx, *p.TeamID, req.Season, req.ScenarioID); err != nil {
			return fmt.Errorf("failed to lock team: %w", err)
		}
		s, err := save(ctx, q, models.Projection{
			ID:         uuid.New(),
			PlayerID:   p.ID,
			TeamID:     *p.TeamID,
			Season:     req.Season,
			ScenarioID: req.ScenarioID,
			Position:   p.Position,
			Source:     source,
			Stats:      line,
		}, now)
		if err != nil {
			return err
		}
		saved = s
		return outbox.Record(ctx, q, req.ScenarioID, events.ProjectionBuilt, events.ProjectionBuiltPayload{
			TeamID:    p.TeamID.String(),
			Season:    req.Season,
			PlayerIDs: []string{p.ID.String()},
			Source:    string(source),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save projection: %w", err)
	}

	log.Info().
		Str("player_id", p.ID.String()).
		Str("scenario_id", req.ScenarioID.String()).
		Str("source", string(source)).
		Float64("fantasy_points", line.FantasyPoints).
		Msg("projection built")
	return &saved, nil
}

// BuildTeam projects every rostered player, sets the team totals to the forecast and
// gives the fill player whatever the named players do not cover. Named players whose
// combined volume exceeds the forecast are scaled down to fit.
func (a *App) BuildTeam(ctx context.Context, req BuildTeamRequest) (*TeamBuild, error) {
	if _, err := a.store.GetScenario(ctx, req.ScenarioID); err != nil {
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}
	players, err := a.store.ListPlayersByTeam(ctx, req.TeamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}

	forecast := req.Forecast
	if forecast == nil {
		if forecast, err = a.forecast(ctx, req.TeamID, req.Season, req.ScenarioID); err != nil {
			return nil, err
		}
	}

	result := &TeamBuild{}
	var built []models.Projection
	for _, p := range players {
		line, source, err := a.project(ctx, p, req.Season, forecast, req.Games)
		if err != nil {
			var insufficient *InsufficientHistoryError
			if errors.As(err, &insufficient) {
				result.Skipped = append(result.Skipped, p.ID)
				continue
			}
			return nil, err
		}
		built = append(built, models.Projection{
			ID:         uuid.New(),
			PlayerID:   p.ID,
			TeamID:     req.TeamID,
			Season:     req.Season,
			ScenarioID: req.ScenarioID,
			Position:   p.Position,
			Source:     source,
			Stats:      line,
		})
	}

	totals := fit(built, forecast)
	now := a.clock.Now()
	fill := roster.NewFill(req.TeamID, req.Season, req.ScenarioID, now)
	fill.Stats.Games = a.games
	for _, vol := range stats.VolumeStats {
		fill.Stats.Set(vol, roster.Residual(totals[vol], built, vol))
	}
	built = append(built, fill)
	for i := range built {
		built[i].Stats = stats.Derive(built[i].Stats, totals)
	}

	teamStat := models.TeamStat{
		TeamID:     req.TeamID,
		Season:     req.Season,
		ScenarioID: req.ScenarioID,
		Totals:     totals,
		UpdatedAt:  now,
	}

	err = a.store.InTx(ctx, func(q store.Queries) error {
		if err := q.LockTeam(ctx, req.TeamID, req.Season, req.ScenarioID); err != nil {
			return fmt.Errorf("failed to lock team: %w", err)
		}
		ids := make([]string, 0, len(built))
		result.Projections = result.Projections[:0]
		for _, p := range built {
			saved, err := save(ctx, q, p, now)
			if err != nil {
				return err
			}
			result.Projections = append(result.Projections, saved)
			ids = append(ids, p.PlayerID.String())
		}
		if err := q.UpsertTeamStat(ctx, teamStat); err != nil {
			return fmt.Errorf("failed to upsert team stat: %w", err)
		}
		return outbox.Record(ctx, q, req.ScenarioID, events.ProjectionBuilt, events.ProjectionBuiltPayload{
			TeamID:    req.TeamID.String(),
			Season:    req.Season,
			PlayerIDs: ids,
			Source:    "team",
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save team build: %w", err)
	}
	result.TeamStat = teamStat

	log.Info().
		Str("team_id", req.TeamID.String()).
		Str("scenario_id", req.ScenarioID.String()).
		Int("players", len(built)-1).
		Int("skipped", len(result.Skipped)).
		Msg("team projections built")
	return result, nil
}

// Get returns one projection
func (a *App) Get(ctx context.Context, playerID uuid.UUID, season int, scenarioID uuid.UUID) (*models.Projection, error) {
	p, err := a.store.GetProjection(ctx, playerID, season, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get projection: %w", err)
	}
	return p, nil
}

// ListTeam returns a team's projections, fill player included
func (a *App) ListTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) ([]models.Projection, error) {
	ps, err := a.store.ListProjectionsByTeam(ctx, teamID, season, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team projections: %w", err)
	}
	return ps, nil
}

// project runs the builder and falls back to the rookie generator.
func (a *App) project(ctx context.Context, p models.Player, season int, forecast stats.Totals, games float64) (stats.Line, models.ProjectionSource, error) {
	if _, err := models.ParsePosition(string(p.Position)); err != nil {
		return stats.Line{}, "", err
	}

	history, err := a.history.PlayerSeasons(ctx, p.ID, season)
	if err != nil {
		return stats.Line{}, "", fmt.Errorf("failed to load history for player %s: %w", p.ID, err)
	}
	teamHistory, err := a.teamHistory(ctx, history)
	if err != nil {
		return stats.Line{}, "", err
	}

	line, err := a.builder.Build(Input{
		PlayerID:    p.ID,
		Season:      season,
		History:     history,
		TeamHistory: teamHistory,
		Forecast:    forecast,
		Games:       games,
	})
	if err == nil {
		return line, models.SourceHistory, nil
	}

	var insufficient *InsufficientHistoryError
	if !errors.As(err, &insufficient) || a.rookies == nil {
		return stats.Line{}, "", err
	}
	res, err := a.rookies.Generate(ctx, p, season)
	if err != nil {
		return stats.Line{}, "", fmt.Errorf("failed to generate rookie projection: %w", err)
	}
	line = res.Line
	if games > 0 && line.Games > 0 {
		g := math.Min(games, stats.MaxGames)
		line = line.Scale(g / line.Games)
		line.Games = g
	}
	return stats.Derive(line, forecast), models.SourceRookie, nil
}

func (a *App) teamHistory(ctx context.Context, history []models.SeasonLine) ([]models.TeamSeason, error) {
	type key struct {
		team   uuid.UUID
		season int
	}
	seen := make(map[key]bool)
	var out []models.TeamSeason
	for _, sl := range history {
		k := key{sl.TeamID, sl.Season}
		if seen[k] {
			continue
		}
		seen[k] = true
		ts, err := a.history.TeamSeason(ctx, sl.TeamID, sl.Season)
		if errors.Is(err, historical.ErrNoTeamSeason) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load team season: %w", err)
		}
		out = append(out, *ts)
	}
	return out, nil
}

// forecast picks the team volume a build scales to: the scenario's current totals,
// else last season's volume, else nothing.
func (a *App) forecast(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) (stats.Totals, error) {
	ts, err := a.store.GetTeamStat(ctx, teamID, season, scenarioID)
	switch {
	case err == nil:
		return ts.Totals.Clone(), nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to get team stat: %w", err)
	}

	last, err := a.history.TeamSeason(ctx, teamID, season-1)
	switch {
	case err == nil:
		return last.Totals.Clone(), nil
	case errors.Is(err, historical.ErrNoTeamSeason):
		return nil, nil
	}
	return nil, fmt.Errorf("failed to load team season: %w", err)
}

// fit returns the team totals for a build: the forecast where known, the named sum
// elsewhere. Named volume above the forecast is scaled down proportionally.
func fit(ps []models.Projection, forecast stats.Totals) stats.Totals {
	totals := make(stats.Totals, len(stats.VolumeStats))
	for _, vol := range stats.VolumeStats {
		named := roster.Named(ps, vol)
		total, ok := forecast[vol]
		if !ok || total < 0 {
			totals[vol] = named
			continue
		}
		totals[vol] = total
		if named > total && named > 0 {
			f := total / named
			for i := range ps {
				ps[i].Stats = ScaleFamily(ps[i].Stats, vol, f)
			}
		}
	}
	return totals
}

// save writes p, keeping the identity of an existing projection for the same slot and
// discarding its pins and overrides.
func save(ctx context.Context, q store.Queries, p models.Projection, now time.Time) (models.Projection, error) {
	p.Pinned = nil
	p.UpdatedAt = now

	existing, err := q.GetProjection(ctx, p.PlayerID, p.Season, p.ScenarioID)
	if errors.Is(err, store.ErrNotFound) {
		p.CreatedAt = now
		if err := q.InsertProjection(ctx, p); err != nil {
			return models.Projection{}, fmt.Errorf("failed to insert projection: %w", err)
		}
		return p, nil
	}
	if err != nil {
		return models.Projection{}, fmt.Errorf("failed to get projection: %w", err)
	}

	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	overrides, err := q.ListOverridesByProjection(ctx, p.ID)
	if err != nil {
		return models.Projection{}, fmt.Errorf("failed to list overrides: %w", err)
	}
	for _, o := range overrides {
		if err := q.DeleteOverride(ctx, p.ID, o.Stat); err != nil {
			return models.Projection{}, fmt.Errorf("failed to delete override: %w", err)
		}
	}
	if err := q.UpdateProjection(ctx, p); err != nil {
		return models.Projection{}, fmt.Errorf("failed to update projection: %w", err)
	}
	return p, nil
}
