// Package scenario manages independent branches of projections.
package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

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

// Store defines what the scenario manager needs from persistence
type Store interface {
	GetScenario(ctx context.Context, id uuid.UUID) (*models.Scenario, error)
	ListScenarios(ctx context.Context) ([]models.Scenario, error)
	InTx(ctx context.Context, fn func(q store.Queries) error) error
}

// Transform rewrites a copied projection inside the fork transaction.
// Overrides are carried only for stats still pinned afterwards.
type Transform func(p *models.Projection) error

// CreateRequest creates a baseline scenario.
type CreateRequest struct {
	Name     string
	Season   int
	Settings json.RawMessage
}

// ForkRequest copies a scenario.
type ForkRequest struct {
	BaseScenarioID uuid.UUID
	Name           string
	// Kind defaults to fork.
	Kind      models.ScenarioKind
	Settings  json.RawMessage
	Transform Transform
}

// ForkResult describes a completed fork.
type ForkResult struct {
	Scenario    models.Scenario `json:"scenario"`
	Projections int             `json:"projections"`
	TeamStats   int             `json:"team_stats"`
	Overrides   int             `json:"overrides"`
}

// App manages scenarios
type App struct {
	store Store
	clock clockwork.Clock
}

// NewApp creates a new scenario App
func NewApp(st Store, clock clockwork.Clock) *App {
	return &App{store: st, clock: clock}
}

// CreateBaseline creates the root scenario of a season.
func (a *App) CreateBaseline(ctx context.Context, req CreateRequest) (*models.Scenario, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if req.Season <= 0 {
		return nil, ErrInvalidSeason
	}

	sc := models.Scenario{
		ID:         uuid.New(),
		Name:       name,
		Season:     req.Season,
		IsBaseline: true,
		Kind:       models.ScenarioBaseline,
		Settings:   req.Settings,
		CreatedAt:  a.clock.Now(),
	}
	err := a.store.InTx(ctx, func(q store.Queries) error {
		existing, err := q.ListScenarios(ctx)
		if err != nil {
			return fmt.Errorf("failed to list scenarios: %w", err)
		}
		for _, s := range existing {
			if s.IsBaseline && s.Season == req.Season {
				return fmt.Errorf("%w: %s", ErrBaselineExists, s.Name)
			}
		}
		if err := q.CreateScenario(ctx, sc); err != nil {
			return fmt.Errorf("failed to create scenario: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("scenario_id", sc.ID.String()).
		Int("season", sc.Season).
		Msg("baseline scenario created")
	return &sc, nil
}

// Fork deep-copies every projection, team stat and override of a scenario into a new one.
// The copy gets fresh projection ids and shares nothing with its base.
func (a *App) Fork(ctx context.Context, req ForkRequest) (*ForkResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	kind := req.Kind
	if kind == "" {
		kind = models.ScenarioFork
	}

	var result *ForkResult
	err := a.store.InTx(ctx, func(q store.Queries) error {
		base, err := q.GetScenario(ctx, req.BaseScenarioID)
		if err != nil {
			return fmt.Errorf("failed to get base scenario: %w", err)
		}

		now := a.clock.Now()
		parent := base.ID
		sc := models.Scenario{
			ID:             uuid.New(),
			Name:           name,
			Season:         base.Season,
			BaseScenarioID: &parent,
			Kind:           kind,
			Settings:       req.Settings,
			CreatedAt:      now,
		}
		if sc.Settings == nil {
			sc.Settings = base.Settings
		}
		if err := q.CreateScenario(ctx, sc); err != nil {
			return fmt.Errorf("failed to create scenario: %w", err)
		}
		result = &ForkResult{Scenario: sc}

		ps, err := q.ListProjectionsByScenario(ctx, base.ID)
		if err != nil {
			return fmt.Errorf("failed to list projections: %w", err)
		}
		overrides, err := q.ListOverridesByScenario(ctx, base.ID)
		if err != nil {
			return fmt.Errorf("failed to list overrides: %w", err)
		}
		byProjection := make(map[uuid.UUID][]models.StatOverride)
		for _, o := range overrides {
			byProjection[o.ProjectionID] = append(byProjection[o.ProjectionID], o)
		}
		teamStats, err := q.ListTeamStatsByScenario(ctx, base.ID)
		if err != nil {
			return fmt.Errorf("failed to list team stats: %w", err)
		}

		copies := make([]models.Projection, 0, len(ps))
		for _, p := range ps {
			cp := p.Clone()
			cp.ID = uuid.New()
			cp.ScenarioID = sc.ID
			cp.CreatedAt, cp.UpdatedAt = now, now
			if req.Transform != nil {
				if err := req.Transform(&cp); err != nil {
					return err
				}
			}
			copies = append(copies, cp)
		}

		copiedStats := make([]models.TeamStat, 0, len(teamStats))
		for _, ts := range teamStats {
			cp := ts.Clone()
			cp.ScenarioID = sc.ID
			cp.UpdatedAt = now
			copiedStats = append(copiedStats, cp)
		}
		if req.Transform != nil {
			reconcile(copiedStats, copies)
		}

		for i, p := range ps {
			cp := copies[i]
			if err := q.InsertProjection(ctx, cp); err != nil {
				return fmt.Errorf("failed to copy projection: %w", err)
			}
			result.Projections++
			for _, o := range byProjection[p.ID] {
				if !cp.Pinned.Has(o.Stat) {
					continue
				}
				o.ID = uuid.New()
				o.ProjectionID = cp.ID
				if err := q.UpsertOverride(ctx, o); err != nil {
					return fmt.Errorf("failed to copy override: %w", err)
				}
				result.Overrides++
			}
		}
		for _, ts := range copiedStats {
			if err := q.UpsertTeamStat(ctx, ts); err != nil {
				return fmt.Errorf("failed to copy team stat: %w", err)
			}
			result.TeamStats++
		}

		return outbox.Record(ctx, q, sc.ID, events.ScenarioForked, events.ScenarioForkedPayload{
			BaseScenarioID: base.ID.String(),
			Name:           sc.Name,
			Kind:           string(sc.Kind),
			Projections:    result.Projections,
			TeamStats:      result.TeamStats,
			Overrides:      result.Overrides,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("scenario_id", result.Scenario.ID.String()).
		Str("base_scenario_id", req.BaseScenarioID.String()).
		Str("kind", string(kind)).
		Int("projections", result.Projections).
		Int("overrides", result.Overrides).
		Msg("scenario forked")
	return result, nil
}

// reconcile resets each team total to the sum of its rewritten projections and
// re-derives the players' shares against it.
func reconcile(teamStats []models.TeamStat, ps []models.Projection) {
	byTeam := make(map[uuid.UUID][]int)
	for i := range ps {
		byTeam[ps[i].TeamID] = append(byTeam[ps[i].TeamID], i)
	}
	for i := range teamStats {
		idx := byTeam[teamStats[i].TeamID]
		team := make([]models.Projection, 0, len(idx))
		for _, j := range idx {
			if ps[j].Season == teamStats[i].Season {
				team = append(team, ps[j])
			}
		}
		for s := range teamStats[i].Totals {
			teamStats[i].Totals[s] = roster.Sum(team, s)
		}
		for _, j := range idx {
			if ps[j].Season == teamStats[i].Season {
				ps[j].Stats = stats.Derive(ps[j].Stats, teamStats[i].Totals)
			}
		}
	}
}

// Delete removes a scenario with its projections, team stats and overrides.
// Child scenarios survive with their parent reference cleared.
func (a *App) Delete(ctx context.Context, id uuid.UUID) error {
	var name string
	err := a.store.InTx(ctx, func(q store.Queries) error {
		sc, err := q.GetScenario(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get scenario: %w", err)
		}
		if sc.IsBaseline {
			return &BaselineDeletionError{ScenarioID: sc.ID, Name: sc.Name}
		}
		name = sc.Name
		if err := q.DeleteScenario(ctx, id); err != nil {
			return fmt.Errorf("failed to delete scenario: %w", err)
		}
		return outbox.Record(ctx, q, id, events.ScenarioDeleted, events.ScenarioDeletedPayload{
			Name:      sc.Name,
			DeletedAt: a.clock.Now(),
		})
	})
	if err != nil {
		return err
	}

	log.Info().Str("scenario_id", id.String()).Str("name", name).Msg("scenario deleted")
	return nil
}

// Get returns one scenario
func (a *App) Get(ctx context.Context, id uuid.UUID) (*models.Scenario, error) {
	sc, err := a.store.GetScenario(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}
	return sc, nil
}

// List returns every scenario, oldest first
func (a *App) List(ctx context.Context) ([]models.Scenario, error) {
	list, err := a.store.ListScenarios(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	return list, nil
}

// Lineage walks parent references from a scenario up to its root.
func (a *App) Lineage(ctx context.Context, id uuid.UUID) ([]models.Scenario, error) {
	var chain []models.Scenario
	seen := make(map[uuid.UUID]bool)
	next := &id
	for next != nil && !seen[*next] {
		seen[*next] = true
		sc, err := a.store.GetScenario(ctx, *next)
		if errors.Is(err, store.ErrNotFound) && len(chain) > 0 {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get scenario: %w", err)
		}
		chain = append(chain, *sc)
		next = sc.BaseScenarioID
	}
	return chain, nil
}

// CompareRequest selects the scenarios and stats to line up.
type CompareRequest struct {
	ScenarioIDs []uuid.UUID
	// Stats defaults to every stat.
	Stats []stats.Stat
}

// Cell holds one stat of one player across the compared scenarios.
// A nil value means the player has no projection in that scenario.
type Cell struct {
	Stat    stats.Stat `json:"stat"`
	Values  []*float64 `json:"values"`
	Differs bool       `json:"differs"`
}

// Row is one player across the compared scenarios.
type Row struct {
	PlayerID uuid.UUID `json:"player_id"`
	TeamID   uuid.UUID `json:"team_id"`
	Season   int       `json:"season"`
	IsFill   bool      `json:"is_fill"`
	Cells    []Cell    `json:"cells"`
}

// Comparison is a side-by-side view of several scenarios.
type Comparison struct {
	ScenarioIDs []uuid.UUID  `json:"scenario_ids"`
	Stats       []stats.Stat `json:"stats"`
	Rows        []Row        `json:"rows"`
	Diffs       int          `json:"diffs"`
}

type rowKey struct {
	playerID uuid.UUID
	season   int
}

// Compare reads the scenarios in one snapshot and never writes.
func (a *App) Compare(ctx context.Context, req CompareRequest) (*Comparison, error) {
	if len(req.ScenarioIDs) == 0 {
		return nil, ErrNoScenarios
	}
	selected := req.Stats
	if len(selected) == 0 {
		selected = stats.All()
	}
	for _, s := range selected {
		if _, ok := stats.KindOf(s); !ok {
			return nil, &stats.UnknownStatError{Name: string(s)}
		}
	}

	sets := make([]map[rowKey]models.Projection, len(req.ScenarioIDs))
	rows := make(map[rowKey]*Row)
	err := a.store.InTx(ctx, func(q store.Queries) error {
		for i, id := range req.ScenarioIDs {
			if _, err := q.GetScenario(ctx, id); err != nil {
				return fmt.Errorf("failed to get scenario: %w", err)
			}
			ps, err := q.ListProjectionsByScenario(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to list projections: %w", err)
			}
			sets[i] = make(map[rowKey]models.Projection, len(ps))
			for _, p := range ps {
				k := rowKey{p.PlayerID, p.Season}
				sets[i][k] = p
				if _, ok := rows[k]; !ok {
					rows[k] = &Row{PlayerID: p.PlayerID, TeamID: p.TeamID, Season: p.Season, IsFill: p.IsFill}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &Comparison{ScenarioIDs: req.ScenarioIDs, Stats: selected, Rows: make([]Row, 0, len(rows))}
	for k, row := range rows {
		for _, s := range selected {
			cell := Cell{Stat: s, Values: make([]*float64, len(sets))}
			for i, set := range sets {
				if p, ok := set[k]; ok {
					v := p.Stats.Get(s)
					cell.Values[i] = &v
				}
			}
			cell.Differs = differs(cell.Values)
			if cell.Differs {
				out.Diffs++
			}
			row.Cells = append(row.Cells, cell)
		}
		out.Rows = append(out.Rows, *row)
	}
	sort.Slice(out.Rows, func(i, j int) bool {
		if out.Rows[i].Season != out.Rows[j].Season {
			return out.Rows[i].Season < out.Rows[j].Season
		}
		return out.Rows[i].PlayerID.String() < out.Rows[j].PlayerID.String()
	})
	return out, nil
}

func differs(values []*float64) bool {
	for _, v := range values {
		if v == nil {
			return true
		}
	}
	for _, v := range values[1:] {
		if !stats.Same(*v, *values[0]) {
			return true
		}
	}
	return false
}
