package variance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/events"
	"github.com/mcdev12/dynasty-projections/go/internal/historical"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/outbox"
	"github.com/mcdev12/dynasty-projections/go/internal/roster"
	"github.com/mcdev12/dynasty-projections/go/internal/scenario"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/rs/zerolog/log"
)

// Store defines what the estimator needs from persistence
type Store interface {
	GetScenario(ctx context.Context, id uuid.UUID) (*models.Scenario, error)
	GetProjection(ctx context.Context, playerID uuid.UUID, season int, scenarioID uuid.UUID) (*models.Projection, error)
	GetTeamStat(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) (*models.TeamStat, error)
	InTx(ctx context.Context, fn func(q store.Queries) error) error
}

// Forker creates scenario copies and removes them again
type Forker interface {
	Fork(ctx context.Context, req scenario.ForkRequest) (*scenario.ForkResult, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// EstimateRequest asks for the range of one projection.
type EstimateRequest struct {
	PlayerID   uuid.UUID
	Season     int
	ScenarioID uuid.UUID
	Confidence float64
}

// MaterializeRequest writes floor and ceiling scenarios for a set of players.
type MaterializeRequest struct {
	ScenarioID uuid.UUID
	Season     int
	PlayerIDs  []uuid.UUID
	Confidence float64
}

// Materialized names the created scenarios.
type Materialized struct {
	Floor   models.Scenario `json:"floor"`
	Ceiling models.Scenario `json:"ceiling"`
	Ranges  []Range         `json:"ranges"`
}

// App estimates ranges against the historical population
type App struct {
	store   Store
	history historical.Source
	forker  Forker
	cfg     Config
}

// NewApp creates a new variance App
func NewApp(st Store, history historical.Source, forker Forker, cfg Config) *App {
	return &App{store: st, history: history, forker: forker, cfg: cfg}
}

// Estimate returns the range of one projection without writing anything.
func (a *App) Estimate(ctx context.Context, req EstimateRequest) (*Range, error) {
	p, err := a.store.GetProjection(ctx, req.PlayerID, req.Season, req.ScenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get projection: %w", err)
	}
	return a.estimate(ctx, p, req.Confidence)
}

func (a *App) estimate(ctx context.Context, p *models.Projection, confidence float64) (*Range, error) {
	pool, err := a.history.PositionSeasons(ctx, p.Position, p.Season)
	if err != nil {
		return nil, fmt.Errorf("failed to get position seasons: %w", err)
	}
	ts, err := a.store.GetTeamStat(ctx, p.TeamID, p.Season, p.ScenarioID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get team stat: %w", err)
	}
	return Estimate(*p, pool, confidence, roster.Totals(ts), a.cfg)
}

// Materialize forks "<name> floor" and "<name> ceiling" from a scenario with the
// requested players set to their bounds. Every range is estimated before anything is written.
func (a *App) Materialize(ctx context.Context, req MaterializeRequest) (*Materialized, error) {
	if len(req.PlayerIDs) == 0 {
		return nil, ErrNoPlayers
	}
	base, err := a.store.GetScenario(ctx, req.ScenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}

	out := &Materialized{}
	byPlayer := make(map[uuid.UUID]*Range, len(req.PlayerIDs))
	for _, id := range req.PlayerIDs {
		p, err := a.store.GetProjection(ctx, id, req.Season, req.ScenarioID)
		if err != nil {
			return nil, fmt.Errorf("failed to get projection: %w", err)
		}
		r, err := a.estimate(ctx, p, req.Confidence)
		if err != nil {
			return nil, err
		}
		byPlayer[id] = r
		out.Ranges = append(out.Ranges, *r)
	}

	bound := func(ceiling bool) scenario.Transform {
		return func(p *models.Projection) error {
			r, ok := byPlayer[p.PlayerID]
			if !ok || p.Season != req.Season {
				return nil
			}
			p.Stats = r.Floor
			if ceiling {
				p.Stats = r.Ceiling
			}
			p.Pinned = nil
			p.Source = models.SourceRange
			return nil
		}
	}

	floor, err := a.forker.Fork(ctx, scenario.ForkRequest{
		BaseScenarioID: base.ID,
		Name:           base.Name + " floor",
		Kind:           models.ScenarioFloor,
		Transform:      bound(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fork floor scenario: %w", err)
	}
	ceiling, err := a.forker.Fork(ctx, scenario.ForkRequest{
		BaseScenarioID: base.ID,
		Name:           base.Name + " ceiling",
		Kind:           models.ScenarioCeiling,
		Transform:      bound(true),
	})
	if err != nil {
		return nil, a.discard(ctx, fmt.Errorf("failed to fork ceiling scenario: %w", err), floor.Scenario.ID)
	}
	out.Floor, out.Ceiling = floor.Scenario, ceiling.Scenario

	players := make([]string, len(req.PlayerIDs))
	for i, id := range req.PlayerIDs {
		players[i] = id.String()
	}
	err = a.store.InTx(ctx, func(q store.Queries) error {
		return outbox.Record(ctx, q, base.ID, events.RangeMaterialized, events.RangeMaterializedPayload{
			BaseScenarioID:    base.ID.String(),
			FloorScenarioID:   floor.Scenario.ID.String(),
			CeilingScenarioID: ceiling.Scenario.ID.String(),
			Confidence:        req.Confidence,
			PlayerIDs:         players,
		})
	})
	if err != nil {
		return nil, a.discard(ctx, err, floor.Scenario.ID, ceiling.Scenario.ID)
	}

	log.Info().
		Str("scenario_id", base.ID.String()).
		Str("floor_scenario_id", floor.Scenario.ID.String()).
		Str("ceiling_scenario_id", ceiling.Scenario.ID.String()).
		Float64("confidence", req.Confidence).
		Int("players", len(req.PlayerIDs)).
		Msg("range materialized")
	return out, nil
}

// discard deletes scenarios forked by a materialization that failed part way.
func (a *App) discard(ctx context.Context, cause error, ids ...uuid.UUID) error {
	ctx = context.WithoutCancel(ctx)
	errs := []error{cause}
	for _, id := range ids {
		if err := a.forker.Delete(ctx, id); err != nil {
			log.Error().Err(err).Str("scenario_id", id.String()).Msg("failed to discard partial range scenario")
			errs = append(errs, fmt.Errorf("failed to discard scenario %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
