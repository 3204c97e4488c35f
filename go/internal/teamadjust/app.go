// Package teamadjust redistributes team-level volume changes across a roster.
package teamadjust

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/events"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/outbox"
	"github.com/mcdev12/dynasty-projections/go/internal/roster"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/rs/zerolog/log"
)

// Store defines what the adjustment engine needs from persistence
type Store interface {
	InTx(ctx context.Context, fn func(q store.Queries) error) error
}

// Change sets one team total. The adjustment applies to the current total.
type Change struct {
	Stat       stats.Stat
	Adjustment stats.Adjustment
}

// Request is a team adjustment. Shares maps player to stat to an explicit share of the new total.
type Request struct {
	TeamID     uuid.UUID
	Season     int
	ScenarioID uuid.UUID
	Changes    []Change
	Shares     map[uuid.UUID]map[stats.Stat]float64
}

// Result is the state of the team after an adjustment.
type Result struct {
	TeamStat    models.TeamStat             `json:"team_stat"`
	Projections []models.Projection         `json:"projections"`
	FillVolume  map[stats.Stat]float64      `json:"fill_volume"`
	Released    []events.ReleasedPin        `json:"released,omitempty"`
	Warnings    []models.ConsistencyWarning `json:"warnings,omitempty"`
}

// App applies team adjustments
type App struct {
	store  Store
	policy stats.ConflictPolicy
	clock  clockwork.Clock
}

// NewApp creates a new team adjustment App
func NewApp(st Store, policy stats.ConflictPolicy, clock clockwork.Clock) *App {
	return &App{store: st, policy: policy, clock: clock}
}

// Adjust changes team totals and redistributes them, all in one transaction that
// holds the team-scenario lock.
func (a *App) Adjust(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var result *Result
	err := a.store.InTx(ctx, func(q store.Queries) error {
		if err := q.LockTeam(ctx, req.TeamID, req.Season, req.ScenarioID); err != nil {
			return fmt.Errorf("failed to lock team: %w", err)
		}
		team, err := roster.Load(ctx, q, req.TeamID, req.Season, req.ScenarioID)
		if err != nil {
			return err
		}
		if len(team.Projections) == 0 {
			return &UnknownTeamError{TeamID: req.TeamID, Season: req.Season, ScenarioID: req.ScenarioID}
		}

		r, err := a.redistribute(team, req)
		if err != nil {
			return err
		}
		if err := a.persist(ctx, q, team, r); err != nil {
			return err
		}

		payload := events.TeamAdjustedPayload{
			TeamID:     req.TeamID.String(),
			Season:     req.Season,
			Totals:     r.TeamStat.Totals,
			Players:    len(r.Projections),
			FillVolume: r.FillVolume,
			Released:   r.Released,
			Warnings:   r.Warnings,
		}
		if err := outbox.Record(ctx, q, req.ScenarioID, events.TeamAdjusted, payload); err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, w := range result.Warnings {
		log.Warn().
			Str("team_id", w.TeamID.String()).
			Str("stat", string(w.Stat)).
			Float64("expected", w.Expected).
			Float64("actual", w.Actual).
			Msg("team total out of sync after adjustment")
	}
	log.Info().
		Str("team_id", req.TeamID.String()).
		Str("scenario_id", req.ScenarioID.String()).
		Int("changes", len(req.Changes)).
		Int("released", len(result.Released)).
		Msg("team adjusted")
	return result, nil
}

func validate(req Request) error {
	if len(req.Changes) == 0 {
		return ErrNoChanges
	}
	for _, c := range req.Changes {
		if !c.Stat.IsVolume() {
			return &NotTeamStatError{Stat: c.Stat}
		}
	}

	sums := make(map[stats.Stat]float64)
	for _, byStat := range req.Shares {
		for s, share := range byStat {
			shareStat, ok := ShareStat(s)
			if !ok {
				return &NotTeamStatError{Stat: s}
			}
			if err := stats.Validate(shareStat, share); err != nil {
				return err
			}
			sums[s] += share
		}
	}
	for s, sum := range sums {
		if sum > 1+roster.Epsilon {
			return &ShareSumExceedsUnityError{Stat: s, Sum: sum}
		}
	}
	return nil
}

// redistribute computes the new roster lines without touching storage.
func (a *App) redistribute(team *roster.Team, req Request) (*Result, error) {
	ps := team.Projections
	for id := range req.Shares {
		if !onRoster(ps, id) {
			return nil, &NotRosteredError{PlayerID: id, TeamID: team.TeamID}
		}
	}

	now := a.clock.Now()
	if roster.FindFill(ps) < 0 {
		fill := roster.NewFill(team.TeamID, team.Season, team.ScenarioID, now)
		fill.Stats.Games = stats.MaxGames
		ps = append(ps, fill)
	}

	prior := make(stats.Totals, len(stats.VolumeStats))
	for _, s := range stats.VolumeStats {
		if v, ok := roster.Totals(team.TeamStat)[s]; ok {
			prior[s] = v
		} else {
			prior[s] = roster.Sum(ps, s)
		}
	}
	totals := prior.Clone()

	result := &Result{FillVolume: make(map[stats.Stat]float64)}
	plans := make([]*Plan, 0, len(req.Changes))
	for _, c := range req.Changes {
		total := c.Adjustment.Apply(totals[c.Stat])
		if err := stats.Validate(c.Stat, total); err != nil {
			return nil, err
		}
		totals[c.Stat] = total

		explicit := make(map[uuid.UUID]float64)
		for id, byStat := range req.Shares {
			if share, ok := byStat[c.Stat]; ok {
				explicit[id] = share
			}
		}
		plan, err := Allocate(ps, c.Stat, prior[c.Stat], total, explicit)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
		result.FillVolume[c.Stat] = plan.Fill
	}

	opts := stats.Options{Policy: a.policy, Totals: totals}
	for i := range ps {
		p := &ps[i]
		if p.IsFill {
			for _, plan := range plans {
				p.Stats.Set(plan.Stat, plan.Fill)
			}
			p.Stats = stats.Derive(p.Stats, totals)
			if err := stats.ValidateLine(p.Stats); err != nil {
				return nil, fmt.Errorf("fill player: %w", err)
			}
			p.UpdatedAt = now
			continue
		}

		for _, plan := range plans {
			if plan.Unpin[p.PlayerID] {
				p.Pinned = p.Pinned.Without(plan.Stat)
				result.Released = append(result.Released, events.ReleasedPin{PlayerID: p.PlayerID.String(), Stat: plan.Stat})
			}
			p.Stats.Set(plan.Stat, plan.Values[p.PlayerID])
			out, err := stats.Cascade(p.Stats, plan.Stat, p.Pinned, opts)
			if err != nil {
				return nil, fmt.Errorf("player %s: %w", p.PlayerID, err)
			}
			if err := stats.ValidateLine(out.Line); err != nil {
				return nil, fmt.Errorf("player %s: %w", p.PlayerID, err)
			}
			p.Stats, p.Pinned = out.Line, out.Pins
			for _, s := range out.Released {
				result.Released = append(result.Released, events.ReleasedPin{PlayerID: p.PlayerID.String(), Stat: s})
			}
		}
		p.UpdatedAt = now
	}

	result.Projections = ps
	result.TeamStat = models.TeamStat{
		TeamID:     team.TeamID,
		Season:     team.Season,
		ScenarioID: team.ScenarioID,
		Totals:     totals,
		UpdatedAt:  now,
	}
	result.Warnings = roster.CheckConsistency(&result.TeamStat, ps)
	return result, nil
}

// persist writes the redistributed roster, drops overrides for released pins and
// stores the new totals.
func (a *App) persist(ctx context.Context, q store.Queries, team *roster.Team, r *Result) error {
	existing := make(map[uuid.UUID]bool, len(team.Projections))
	for _, p := range team.Projections {
		existing[p.ID] = true
	}
	for _, p := range r.Projections {
		if existing[p.ID] {
			if err := q.UpdateProjection(ctx, p); err != nil {
				return fmt.Errorf("failed to update projection %s: %w", p.ID, err)
			}
			continue
		}
		if err := q.InsertProjection(ctx, p); err != nil {
			return fmt.Errorf("failed to insert fill projection: %w", err)
		}
	}

	byPlayer := make(map[string]uuid.UUID, len(r.Projections))
	for _, p := range r.Projections {
		byPlayer[p.PlayerID.String()] = p.ID
	}
	for _, rel := range r.Released {
		err := q.DeleteOverride(ctx, byPlayer[rel.PlayerID], rel.Stat)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to delete released override: %w", err)
		}
	}

	if err := q.UpsertTeamStat(ctx, r.TeamStat); err != nil {
		return fmt.Errorf("failed to upsert team stat: %w", err)
	}
	return nil
}

func onRoster(ps []models.Projection, playerID uuid.UUID) bool {
	for i := range ps {
		if !ps[i].IsFill && ps[i].PlayerID == playerID {
			return true
		}
	}
	return false
}
