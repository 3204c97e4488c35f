// Package override applies manual stat edits and cascades them through dependent stats.
package override

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/events"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/outbox"
	"github.com/mcdev12/dynasty-projections/go/internal/roster"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config tunes the override engine.
type Config struct {
	Policy      stats.ConflictPolicy
	Parallelism int
}

func DefaultConfig() Config {
	return Config{Policy: stats.MostRecentWins, Parallelism: 8}
}

// Store defines what the override engine needs from persistence
type Store interface {
	GetProjection(ctx context.Context, playerID uuid.UUID, season int, scenarioID uuid.UUID) (*models.Projection, error)
	ListOverridesByProjection(ctx context.Context, projectionID uuid.UUID) ([]models.StatOverride, error)
	ListOverridesByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.StatOverride, error)
	InTx(ctx context.Context, fn func(q store.Queries) error) error
}

// Request pins one stat on one projection.
type Request struct {
	PlayerID   uuid.UUID
	Season     int
	ScenarioID uuid.UUID
	Stat       stats.Stat
	Value      float64
	Reason     string
}

// Result describes an applied or reverted override.
type Result struct {
	Projection models.Projection           `json:"projection"`
	Override   *models.StatOverride        `json:"override,omitempty"`
	Changed    []stats.Stat                `json:"changed"`
	Released   []stats.Stat                `json:"released,omitempty"`
	Warnings   []models.ConsistencyWarning `json:"warnings,omitempty"`
	NoOp       bool                        `json:"no_op,omitempty"`
}

// RevertRequest removes the override of one stat.
type RevertRequest struct {
	PlayerID   uuid.UUID
	Season     int
	ScenarioID uuid.UUID
	Stat       stats.Stat
}

// BatchRequest applies one adjustment of one stat to many players.
type BatchRequest struct {
	PlayerIDs  []uuid.UUID
	Season     int
	ScenarioID uuid.UUID
	Stat       stats.Stat
	Adjustment stats.Adjustment
	Reason     string
}

// ItemResult is the outcome for one player of a batch.
type ItemResult struct {
	PlayerID   uuid.UUID          `json:"player_id"`
	Projection *models.Projection `json:"projection,omitempty"`
	Changed    []stats.Stat       `json:"changed,omitempty"`
	Released   []stats.Stat       `json:"released,omitempty"`
	Error      string             `json:"error,omitempty"`
	Err        error              `json:"-"`
}

// BatchResult holds per-player outcomes in request order.
type BatchResult struct {
	Items    []ItemResult                `json:"items"`
	Applied  int                         `json:"applied"`
	Failed   int                         `json:"failed"`
	Warnings []models.ConsistencyWarning `json:"warnings,omitempty"`
}

// App applies overrides
type App struct {
	store Store
	cfg   Config
	clock clockwork.Clock
}

// NewApp creates a new override App
func NewApp(st Store, cfg Config, clock clockwork.Clock) *App {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultConfig().Parallelism
	}
	return &App{store: st, cfg: cfg, clock: clock}
}

// Apply pins a stat, records the override and cascades. Team totals are not
// re-enforced; mismatches come back as warnings.
func (a *App) Apply(ctx context.Context, req Request) (*Result, error) {
	if err := check(req.Stat, req.Value); err != nil {
		return nil, err
	}

	var result *Result
	err := a.store.InTx(ctx, func(q store.Queries) error {
		p, err := lockProjection(ctx, q, req.PlayerID, req.Season, req.ScenarioID)
		if err != nil {
			return err
		}
		opts, err := a.options(ctx, q, p)
		if err != nil {
			return err
		}
		pl, err := compute(*p, req.Stat, req.Value, opts)
		if err != nil {
			return err
		}
		if pl.noop {
			o, err := q.GetOverride(ctx, p.ID, req.Stat)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("failed to get override: %w", err)
			}
			result = &Result{Projection: pl.after, Override: o, NoOp: true}
			return nil
		}

		o, err := a.commit(ctx, q, pl, req.Reason)
		if err != nil {
			return err
		}
		warnings, err := teamWarnings(ctx, q, p.TeamID, p.Season, p.ScenarioID)
		if err != nil {
			return err
		}
		result = &Result{
			Projection: pl.after,
			Override:   o,
			Changed:    pl.outcome.Changed,
			Released:   pl.outcome.Released,
			Warnings:   warnings,
		}
		return outbox.Record(ctx, q, req.ScenarioID, events.OverrideApplied, events.OverrideAppliedPayload{
			PlayerID:        req.PlayerID.String(),
			TeamID:          p.TeamID.String(),
			Season:          req.Season,
			Stat:            req.Stat,
			CalculatedValue: o.CalculatedValue,
			ManualValue:     o.ManualValue,
			Changed:         pl.outcome.Changed,
			Released:        pl.outcome.Released,
		})
	})
	if err != nil {
		return nil, err
	}

	if !result.NoOp {
		logApplied(req.PlayerID, req.ScenarioID, req.Stat, result)
	}
	return result, nil
}

// Revert restores the calculated value of an overridden stat and cascades from it.
func (a *App) Revert(ctx context.Context, req RevertRequest) (*Result, error) {
	var result *Result
	err := a.store.InTx(ctx, func(q store.Queries) error {
		p, err := lockProjection(ctx, q, req.PlayerID, req.Season, req.ScenarioID)
		if err != nil {
			return err
		}
		o, err := q.GetOverride(ctx, p.ID, req.Stat)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s on player %s: %w", req.Stat, req.PlayerID, ErrOverrideNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get override: %w", err)
		}

		opts, err := a.options(ctx, q, p)
		if err != nil {
			return err
		}
		pl, err := release(*p, req.Stat, o.CalculatedValue, opts)
		if err != nil {
			return err
		}

		pl.after.UpdatedAt = a.clock.Now()
		if err := q.UpdateProjection(ctx, pl.after); err != nil {
			return fmt.Errorf("failed to update projection: %w", err)
		}
		if err := q.DeleteOverride(ctx, p.ID, req.Stat); err != nil {
			return fmt.Errorf("failed to delete override: %w", err)
		}
		if err := dropReleased(ctx, q, p.ID, pl.outcome.Released); err != nil {
			return err
		}
		warnings, err := teamWarnings(ctx, q, p.TeamID, p.Season, p.ScenarioID)
		if err != nil {
			return err
		}
		result = &Result{
			Projection: pl.after,
			Changed:    pl.outcome.Changed,
			Released:   pl.outcome.Released,
			Warnings:   warnings,
		}
		return outbox.Record(ctx, q, req.ScenarioID, events.OverrideReverted, events.OverrideRevertedPayload{
			PlayerID:      req.PlayerID.String(),
			Season:        req.Season,
			Stat:          req.Stat,
			RestoredValue: o.CalculatedValue,
			Changed:       pl.outcome.Changed,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("player_id", req.PlayerID.String()).
		Str("scenario_id", req.ScenarioID.String()).
		Str("stat", string(req.Stat)).
		Msg("override reverted")
	return result, nil
}

// ApplyBatch applies one adjustment to many players. Each player succeeds or fails on
// its own; the successful ones are stored together.
func (a *App) ApplyBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if _, ok := stats.KindOf(req.Stat); !ok {
		return nil, &stats.UnknownStatError{Name: string(req.Stat)}
	}
	if !req.Stat.Overridable() {
		return nil, stats.ErrNotOverridable
	}

	result := &BatchResult{Items: make([]ItemResult, len(req.PlayerIDs))}
	err := a.store.InTx(ctx, func(q store.Queries) error {
		type input struct {
			p    *models.Projection
			opts stats.Options
		}
		inputs := make([]input, len(req.PlayerIDs))
		seen := make(map[uuid.UUID]bool, len(req.PlayerIDs))
		var teams []uuid.UUID
		for i, id := range req.PlayerIDs {
			result.Items[i] = ItemResult{PlayerID: id}
			if seen[id] {
				result.Items[i].Err = fmt.Errorf("player %s: %w", id, ErrDuplicatePlayer)
				continue
			}
			seen[id] = true
			p, err := q.GetProjection(ctx, id, req.Season, req.ScenarioID)
			if err != nil {
				result.Items[i].Err = fmt.Errorf("failed to get projection: %w", err)
				continue
			}
			teams = append(teams, p.TeamID)
			inputs[i] = input{p: p}
		}

		// Teams are locked in one order so two batches over the same teams cannot deadlock.
		if err := lockTeams(ctx, q, teams, req.Season, req.ScenarioID); err != nil {
			return err
		}
		for i := range inputs {
			if inputs[i].p == nil {
				continue
			}
			p, err := q.GetProjection(ctx, req.PlayerIDs[i], req.Season, req.ScenarioID)
			if err == nil && !slices.Contains(teams, p.TeamID) {
				p, err = lockProjection(ctx, q, req.PlayerIDs[i], req.Season, req.ScenarioID)
			}
			if err != nil {
				return fmt.Errorf("failed to get projection: %w", err)
			}
			opts, err := a.options(ctx, q, p)
			if err != nil {
				return err
			}
			inputs[i] = input{p: p, opts: opts}
		}

		plans := make([]*plan, len(inputs))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.cfg.Parallelism)
		for i := range inputs {
			if inputs[i].p == nil {
				continue
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				in := inputs[i]
				value := req.Adjustment.Apply(in.p.Stats.Get(req.Stat))
				pl, err := compute(*in.p, req.Stat, value, in.opts)
				if err != nil {
					result.Items[i].Err = err
					return nil
				}
				plans[i] = pl
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		touched := make(map[uuid.UUID]*models.Projection)
		var applied []string
		for i, pl := range plans {
			if pl == nil {
				continue
			}
			if !pl.noop {
				if _, err := a.commit(ctx, q, pl, req.Reason); err != nil {
					return err
				}
			}
			after := pl.after
			result.Items[i].Projection = &after
			result.Items[i].Changed = pl.outcome.Changed
			result.Items[i].Released = pl.outcome.Released
			touched[after.TeamID] = &after
			applied = append(applied, after.PlayerID.String())
		}
		for teamID, p := range touched {
			warnings, err := teamWarnings(ctx, q, teamID, p.Season, p.ScenarioID)
			if err != nil {
				return err
			}
			result.Warnings = append(result.Warnings, warnings...)
		}

		for i := range result.Items {
			if result.Items[i].Err != nil {
				result.Items[i].Error = result.Items[i].Err.Error()
				result.Failed++
			} else {
				result.Applied++
			}
		}
		if len(applied) == 0 {
			return nil
		}
		return outbox.Record(ctx, q, req.ScenarioID, events.BatchOverrideApplied, events.BatchOverrideAppliedPayload{
			Season:     req.Season,
			Stat:       req.Stat,
			Adjustment: req.Adjustment.String(),
			Applied:    applied,
			Failed:     result.Failed,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("scenario_id", req.ScenarioID.String()).
		Str("stat", string(req.Stat)).
		Str("adjustment", req.Adjustment.String()).
		Int("applied", result.Applied).
		Int("failed", result.Failed).
		Msg("batch override applied")
	return result, nil
}

// ListOverrides returns the overrides on one projection
func (a *App) ListOverrides(ctx context.Context, playerID uuid.UUID, season int, scenarioID uuid.UUID) ([]models.StatOverride, error) {
	p, err := a.store.GetProjection(ctx, playerID, season, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get projection: %w", err)
	}
	list, err := a.store.ListOverridesByProjection(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	return list, nil
}

// ListScenarioOverrides returns every override in a scenario
func (a *App) ListScenarioOverrides(ctx context.Context, scenarioID uuid.UUID) ([]models.StatOverride, error) {
	list, err := a.store.ListOverridesByScenario(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	return list, nil
}

func (a *App) options(ctx context.Context, q store.Queries, p *models.Projection) (stats.Options, error) {
	ts, err := q.GetTeamStat(ctx, p.TeamID, p.Season, p.ScenarioID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return stats.Options{}, fmt.Errorf("failed to get team stat: %w", err)
	}
	return stats.Options{Policy: a.cfg.Policy, Totals: roster.Totals(ts)}, nil
}

// commit stores a computed plan. A re-override keeps the first calculated value.
func (a *App) commit(ctx context.Context, q store.Queries, pl *plan, reason string) (*models.StatOverride, error) {
	now := a.clock.Now()
	pl.after.UpdatedAt = now

	o := models.StatOverride{
		ID:              uuid.New(),
		ProjectionID:    pl.before.ID,
		Stat:            pl.stat,
		CalculatedValue: pl.before.Stats.Get(pl.stat),
		ManualValue:     pl.value,
		Reason:          reason,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	prev, err := q.GetOverride(ctx, pl.before.ID, pl.stat)
	switch {
	case err == nil:
		o.ID = prev.ID
		o.CalculatedValue = prev.CalculatedValue
		o.CreatedAt = prev.CreatedAt
		if reason == "" {
			o.Reason = prev.Reason
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to get override: %w", err)
	}

	if err := q.UpdateProjection(ctx, pl.after); err != nil {
		return nil, fmt.Errorf("failed to update projection: %w", err)
	}
	if err := q.UpsertOverride(ctx, o); err != nil {
		return nil, fmt.Errorf("failed to upsert override: %w", err)
	}
	if err := dropReleased(ctx, q, pl.before.ID, pl.outcome.Released); err != nil {
		return nil, err
	}
	return &o, nil
}

// lockProjection reads a projection under its team lock. The read is repeated
// after locking so a redistribution committed meanwhile is not overwritten.
func lockProjection(ctx context.Context, q store.Queries, playerID uuid.UUID, season int, scenarioID uuid.UUID) (*models.Projection, error) {
	var locked []uuid.UUID
	for {
		p, err := q.GetProjection(ctx, playerID, season, scenarioID)
		if err != nil {
			return nil, fmt.Errorf("failed to get projection: %w", err)
		}
		if slices.Contains(locked, p.TeamID) {
			return p, nil
		}
		if err := q.LockTeam(ctx, p.TeamID, season, scenarioID); err != nil {
			return nil, fmt.Errorf("failed to lock team: %w", err)
		}
		locked = append(locked, p.TeamID)
	}
}

func lockTeams(ctx context.Context, q store.Queries, teams []uuid.UUID, season int, scenarioID uuid.UUID) error {
	teams = slices.Clone(teams)
	slices.SortFunc(teams, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	for _, id := range slices.Compact(teams) {
		if err := q.LockTeam(ctx, id, season, scenarioID); err != nil {
			return fmt.Errorf("failed to lock team: %w", err)
		}
	}
	return nil
}

// dropReleased deletes the override records of pins a cascade released.
func dropReleased(ctx context.Context, q store.Queries, projectionID uuid.UUID, released []stats.Stat) error {
	for _, s := range released {
		err := q.DeleteOverride(ctx, projectionID, s)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to delete superseded override: %w", err)
		}
	}
	return nil
}

func teamWarnings(ctx context.Context, q store.Queries, teamID uuid.UUID, season int, scenarioID uuid.UUID) ([]models.ConsistencyWarning, error) {
	team, err := roster.Load(ctx, q, teamID, season, scenarioID)
	if err != nil {
		return nil, err
	}
	return roster.CheckConsistency(team.TeamStat, team.Projections), nil
}

func logApplied(playerID, scenarioID uuid.UUID, stat stats.Stat, r *Result) {
	for _, s := range r.Released {
		log.Warn().
			Str("player_id", playerID.String()).
			Str("stat", string(s)).
			Str("superseded_by", string(stat)).
			Msg("override superseded")
	}
	for _, w := range r.Warnings {
		log.Warn().
			Str("team_id", w.TeamID.String()).
			Str("stat", string(w.Stat)).
			Float64("expected", w.Expected).
			Float64("actual", w.Actual).
			Msg("team total out of sync after override")
	}
	log.Info().
		Str("player_id", playerID.String()).
		Str("scenario_id", scenarioID.String()).
		Str("stat", string(stat)).
		Int("changed", len(r.Changed)).
		Msg("override applied")
}
