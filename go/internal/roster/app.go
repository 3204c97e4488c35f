package roster

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
)

// Repository defines what the roster view needs from storage. Both the store and a
// transaction's queries satisfy it.
type Repository interface {
	ListProjectionsByTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) ([]models.Projection, error)
	GetTeamStat(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) (*models.TeamStat, error)
}

// ScenarioRepository adds the scenario-wide listing used by CheckScenario.
type ScenarioRepository interface {
	Repository
	ListTeamStatsByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.TeamStat, error)
}

// Team is one team's roster of projections inside a scenario.
type Team struct {
	TeamID      uuid.UUID                   `json:"team_id"`
	Season      int                         `json:"season"`
	ScenarioID  uuid.UUID                   `json:"scenario_id"`
	Projections []models.Projection         `json:"projections"`
	TeamStat    *models.TeamStat            `json:"team_stat,omitempty"`
	Warnings    []models.ConsistencyWarning `json:"warnings,omitempty"`
}

// Load reads a team's projections and totals. A missing team stat is not an error.
func Load(ctx context.Context, repo Repository, teamID uuid.UUID, season int, scenarioID uuid.UUID) (*Team, error) {
	ps, err := repo.ListProjectionsByTeam(ctx, teamID, season, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projections for team %s: %w", teamID, err)
	}
	ts, err := repo.GetTeamStat(ctx, teamID, season, scenarioID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get team stat for team %s: %w", teamID, err)
	}
	return &Team{
		TeamID:      teamID,
		Season:      season,
		ScenarioID:  scenarioID,
		Projections: ps,
		TeamStat:    ts,
	}, nil
}

// App serves read-only roster views.
type App struct {
	repo ScenarioRepository
}

// NewApp creates a new roster App
func NewApp(repo ScenarioRepository) *App {
	return &App{repo: repo}
}

// GetTeam returns the roster with its team-sum consistency warnings.
func (a *App) GetTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) (*Team, error) {
	team, err := Load(ctx, a.repo, teamID, season, scenarioID)
	if err != nil {
		return nil, err
	}
	team.Warnings = CheckConsistency(team.TeamStat, team.Projections)
	return team, nil
}

// CheckScenario reports every team in a scenario whose totals disagree with its players.
func (a *App) CheckScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.ConsistencyWarning, error) {
	teamStats, err := a.repo.ListTeamStatsByScenario(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team stats: %w", err)
	}

	var warnings []models.ConsistencyWarning
	for i := range teamStats {
		ts := &teamStats[i]
		ps, err := a.repo.ListProjectionsByTeam(ctx, ts.TeamID, ts.Season, scenarioID)
		if err != nil {
			return nil, fmt.Errorf("failed to list projections for team %s: %w", ts.TeamID, err)
		}
		warnings = append(warnings, CheckConsistency(ts, ps)...)
	}
	return warnings, nil
}
