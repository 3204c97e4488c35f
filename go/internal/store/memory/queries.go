package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
)

// txn applies queries to one state snapshot.
type txn struct {
	st  *state
	now func() time.Time
}

var _ store.Queries = (*txn)(nil)

func (t *txn) CreateTeam(_ context.Context, team models.Team) error {
	if _, ok := t.st.teams[team.ID]; ok {
		return fmt.Errorf("team %s: %w", team.ID, store.ErrAlreadyExists)
	}
	if t.codeTaken(team.Code, team.ID) {
		return fmt.Errorf("team with code %q: %w", team.Code, store.ErrAlreadyExists)
	}
	t.st.teams[team.ID] = team
	return nil
}

func (t *txn) codeTaken(code string, except uuid.UUID) bool {
	for id, other := range t.st.teams {
		if id != except && other.Code == code {
			return true
		}
	}
	return false
}

func (t *txn) GetTeam(_ context.Context, id uuid.UUID) (*models.Team, error) {
	team, ok := t.st.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", id, store.ErrNotFound)
	}
	return &team, nil
}

func (t *txn) GetTeamByCode(_ context.Context, code string) (*models.Team, error) {
	for _, team := range t.st.teams {
		if team.Code == code {
			return &team, nil
		}
	}
	return nil, fmt.Errorf("team with code %q: %w", code, store.ErrNotFound)
}

func (t *txn) ListTeams(_ context.Context) ([]models.Team, error) {
	out := make([]models.Team, 0, len(t.st.teams))
	for _, team := range t.st.teams {
		out = append(out, team)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *txn) UpdateTeam(_ context.Context, team models.Team) error {
	if _, ok := t.st.teams[team.ID]; !ok {
		return fmt.Errorf("team %s: %w", team.ID, store.ErrNotFound)
	}
	if t.codeTaken(team.Code, team.ID) {
		return fmt.Errorf("team with code %q: %w", team.Code, store.ErrAlreadyExists)
	}
	t.st.teams[team.ID] = team
	return nil
}

func (t *txn) DeleteTeam(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.teams[id]; !ok {
		return fmt.Errorf("team %s: %w", id, store.ErrNotFound)
	}
	delete(t.st.teams, id)
	return nil
}

func (t *txn) CreatePlayer(_ context.Context, p models.Player) error {
	if _, ok := t.st.players[p.ID]; ok {
		return fmt.Errorf("player %s: %w", p.ID, store.ErrAlreadyExists)
	}
	for _, other := range t.st.players {
		if p.ExternalID != "" && other.ExternalID == p.ExternalID {
			return fmt.Errorf("player with external id %q: %w", p.ExternalID, store.ErrAlreadyExists)
		}
	}
	t.st.players[p.ID] = clonePlayer(p)
	return nil
}

func (t *txn) GetPlayer(_ context.Context, id uuid.UUID) (*models.Player, error) {
	p, ok := t.st.players[id]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", id, store.ErrNotFound)
	}
	p = clonePlayer(p)
	return &p, nil
}

func (t *txn) GetPlayerByExternalID(_ context.Context, externalID string) (*models.Player, error) {
	for _, p := range t.st.players {
		if p.ExternalID == externalID {
			p = clonePlayer(p)
			return &p, nil
		}
	}
	return nil, fmt.Errorf("player with external id %q: %w", externalID, store.ErrNotFound)
}

func (t *txn) ListPlayersByTeam(_ context.Context, teamID uuid.UUID) ([]models.Player, error) {
	var out []models.Player
	for _, p := range t.st.players {
		if p.TeamID != nil && *p.TeamID == teamID {
			out = append(out, clonePlayer(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (t *txn) UpdatePlayerTeam(_ context.Context, id uuid.UUID, teamID *uuid.UUID) error {
	p, ok := t.st.players[id]
	if !ok {
		return fmt.Errorf("player %s: %w", id, store.ErrNotFound)
	}
	p.TeamID = teamID
	t.st.players[id] = clonePlayer(p)
	return nil
}

func (t *txn) DeletePlayer(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.players[id]; !ok {
		return fmt.Errorf("player %s: %w", id, store.ErrNotFound)
	}
	delete(t.st.players, id)
	for pid, p := range t.st.projections {
		if p.PlayerID == id {
			t.deleteProjection(pid)
		}
	}
	return nil
}

func (t *txn) CreateScenario(_ context.Context, s models.Scenario) error {
	if _, ok := t.st.scenarios[s.ID]; ok {
		return fmt.Errorf("scenario %s: %w", s.ID, store.ErrAlreadyExists)
	}
	t.st.scenarios[s.ID] = cloneScenario(s)
	return nil
}

func (t *txn) GetScenario(_ context.Context, id uuid.UUID) (*models.Scenario, error) {
	s, ok := t.st.scenarios[id]
	if !ok {
		return nil, fmt.Errorf("scenario %s: %w", id, store.ErrNotFound)
	}
	s = cloneScenario(s)
	return &s, nil
}

func (t *txn) ListScenarios(_ context.Context) ([]models.Scenario, error) {
	out := make([]models.Scenario, 0, len(t.st.scenarios))
	for _, s := range t.st.scenarios {
		out = append(out, cloneScenario(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (t *txn) DeleteScenario(_ context.Context, id uuid.UUID) error {
	if _, ok := t.st.scenarios[id]; !ok {
		return fmt.Errorf("scenario %s: %w", id, store.ErrNotFound)
	}
	delete(t.st.scenarios, id)
	for pid, p := range t.st.projections {
		if p.ScenarioID == id {
			t.deleteProjection(pid)
		}
	}
	for k := range t.st.teamStats {
		if k.scenarioID == id {
			delete(t.st.teamStats, k)
		}
	}
	for sid, s := range t.st.scenarios {
		if s.BaseScenarioID != nil && *s.BaseScenarioID == id {
			s.BaseScenarioID = nil
			t.st.scenarios[sid] = s
		}
	}
	return nil
}

func (t *txn) deleteProjection(id uuid.UUID) {
	p := t.st.projections[id]
	delete(t.st.projections, id)
	delete(t.st.byKey, projectionKey{p.PlayerID, p.Season, p.ScenarioID})
	for k := range t.st.overrides {
		if k.projectionID == id {
			delete(t.st.overrides, k)
		}
	}
}

func (t *txn) InsertProjection(_ context.Context, p models.Projection) error {
	key := projectionKey{p.PlayerID, p.Season, p.ScenarioID}
	if _, ok := t.st.byKey[key]; ok {
		return fmt.Errorf("projection for player %s season %d: %w", p.PlayerID, p.Season, store.ErrAlreadyExists)
	}
	if _, ok := t.st.projections[p.ID]; ok {
		return fmt.Errorf("projection %s: %w", p.ID, store.ErrAlreadyExists)
	}
	t.st.projections[p.ID] = p.Clone()
	t.st.byKey[key] = p.ID
	return nil
}

func (t *txn) UpdateProjection(_ context.Context, p models.Projection) error {
	old, ok := t.st.projections[p.ID]
	if !ok {
		return fmt.Errorf("projection %s: %w", p.ID, store.ErrNotFound)
	}
	// identity columns are immutable
	p.PlayerID, p.Season, p.ScenarioID = old.PlayerID, old.Season, old.ScenarioID
	p.CreatedAt = old.CreatedAt
	t.st.projections[p.ID] = p.Clone()
	return nil
}

func (t *txn) GetProjection(_ context.Context, playerID uuid.UUID, season int, scenarioID uuid.UUID) (*models.Projection, error) {
	id, ok := t.st.byKey[projectionKey{playerID, season, scenarioID}]
	if !ok {
		return nil, fmt.Errorf("projection for player %s season %d: %w", playerID, season, store.ErrNotFound)
	}
	p := t.st.projections[id].Clone()
	return &p, nil
}

func (t *txn) ListProjectionsByTeam(_ context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) ([]models.Projection, error) {
	var out []models.Projection
	for _, p := range t.st.projections {
		if p.TeamID == teamID && p.Season == season && p.ScenarioID == scenarioID {
			out = append(out, p.Clone())
		}
	}
	sortProjections(out)
	return out, nil
}

func (t *txn) ListProjectionsByScenario(_ context.Context, scenarioID uuid.UUID) ([]models.Projection, error) {
	var out []models.Projection
	for _, p := range t.st.projections {
		if p.ScenarioID == scenarioID {
			out = append(out, p.Clone())
		}
	}
	sortProjections(out)
	return out, nil
}

// sortProjections matches the postgres ORDER BY is_fill, player_id.
func sortProjections(ps []models.Projection) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].IsFill != ps[j].IsFill {
			return !ps[i].IsFill
		}
		if ps[i].PlayerID != ps[j].PlayerID {
			return ps[i].PlayerID.String() < ps[j].PlayerID.String()
		}
		return ps[i].Season < ps[j].Season
	})
}

func (t *txn) GetTeamStat(_ context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) (*models.TeamStat, error) {
	ts, ok := t.st.teamStats[teamKey{teamID, season, scenarioID}]
	if !ok {
		return nil, fmt.Errorf("team stat for team %s season %d: %w", teamID, season, store.ErrNotFound)
	}
	ts = ts.Clone()
	return &ts, nil
}

func (t *txn) UpsertTeamStat(_ context.Context, ts models.TeamStat) error {
	t.st.teamStats[teamKey{ts.TeamID, ts.Season, ts.ScenarioID}] = ts.Clone()
	return nil
}

func (t *txn) ListTeamStatsByScenario(_ context.Context, scenarioID uuid.UUID) ([]models.TeamStat, error) {
	var out []models.TeamStat
	for k, ts := range t.st.teamStats {
		if k.scenarioID == scenarioID {
			out = append(out, ts.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TeamID != out[j].TeamID {
			return out[i].TeamID.String() < out[j].TeamID.String()
		}
		return out[i].Season < out[j].Season
	})
	return out, nil
}

func (t *txn) GetOverride(_ context.Context, projectionID uuid.UUID, stat stats.Stat) (*models.StatOverride, error) {
	o, ok := t.st.overrides[overrideKey{projectionID, stat}]
	if !ok {
		return nil, fmt.Errorf("override %s on projection %s: %w", stat, projectionID, store.ErrNotFound)
	}
	return &o, nil
}

func (t *txn) UpsertOverride(_ context.Context, o models.StatOverride) error {
	if _, ok := t.st.projections[o.ProjectionID]; !ok {
		return fmt.Errorf("projection %s: %w", o.ProjectionID, store.ErrNotFound)
	}
	t.st.overrides[overrideKey{o.ProjectionID, o.Stat}] = o
	return nil
}

func (t *txn) DeleteOverride(_ context.Context, projectionID uuid.UUID, stat stats.Stat) error {
	delete(t.st.overrides, overrideKey{projectionID, stat})
	return nil
}

func (t *txn) ListOverridesByProjection(_ context.Context, projectionID uuid.UUID) ([]models.StatOverride, error) {
	var out []models.StatOverride
	for k, o := range t.st.overrides {
		if k.projectionID == projectionID {
			out = append(out, o)
		}
	}
	sortOverrides(out)
	return out, nil
}

func (t *txn) ListOverridesByScenario(_ context.Context, scenarioID uuid.UUID) ([]models.StatOverride, error) {
	var out []models.StatOverride
	for k, o := range t.st.overrides {
		if p, ok := t.st.projections[k.projectionID]; ok && p.ScenarioID == scenarioID {
			out = append(out, o)
		}
	}
	sortOverrides(out)
	return out, nil
}

func sortOverrides(list []models.StatOverride) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].ProjectionID != list[j].ProjectionID {
			return list[i].ProjectionID.String() < list[j].ProjectionID.String()
		}
		return list[i].Stat < list[j].Stat
	})
}

// LockTeam is a no-op: memory transactions already run one at a time.
func (t *txn) LockTeam(context.Context, uuid.UUID, int, uuid.UUID) error {
	return nil
}

func (t *txn) InsertOutboxEvent(_ context.Context, ev models.OutboxEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = t.now()
	}
	t.st.outbox = append(t.st.outbox, cloneEvent(ev))
	return nil
}

func (t *txn) fetchUnsent(limit int32) []models.OutboxEvent {
	var out []models.OutboxEvent
	for _, ev := range t.st.outbox {
		if int32(len(out)) >= limit {
			break
		}
		if ev.SentAt == nil {
			out = append(out, cloneEvent(ev))
		}
	}
	return out
}

func (t *txn) fetchByID(id uuid.UUID) (*models.OutboxEvent, error) {
	for _, ev := range t.st.outbox {
		if ev.ID == id && ev.SentAt == nil {
			ev = cloneEvent(ev)
			return &ev, nil
		}
	}
	return nil, fmt.Errorf("outbox event %s not found or already sent: %w", id, store.ErrNotFound)
}

func (t *txn) markSent(ids []uuid.UUID) {
	now := t.now()
	for i := range t.st.outbox {
		for _, id := range ids {
			if t.st.outbox[i].ID == id && t.st.outbox[i].SentAt == nil {
				sent := now
				t.st.outbox[i].SentAt = &sent
			}
		}
	}
}
