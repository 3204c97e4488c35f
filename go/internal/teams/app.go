// Package teams is the NFL franchise registry players and projections are keyed to.
package teams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/rs/zerolog/log"
)

// TeamsRepository defines what the app layer needs from persistence
type TeamsRepository interface {
	CreateTeam(ctx context.Context, t models.Team) error
	GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	GetTeamByCode(ctx context.Context, code string) (*models.Team, error)
	ListTeams(ctx context.Context) ([]models.Team, error)
	UpdateTeam(ctx context.Context, t models.Team) error
	DeleteTeam(ctx context.Context, id uuid.UUID) error
	ListPlayersByTeam(ctx context.Context, teamID uuid.UUID) ([]models.Player, error)
}

// App handles teams business logic
type App struct {
	repo  TeamsRepository
	clock clockwork.Clock
}

// NewApp creates a new teams App
func NewApp(repo TeamsRepository, clock clockwork.Clock) *App {
	return &App{
		repo:  repo,
		clock: clock,
	}
}

// CreateTeam registers a team with validation
func (a *App) CreateTeam(ctx context.Context, req CreateTeamRequest) (*models.Team, error) {
	req = normalize(req)
	if err := validateCreateTeamRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	team := models.Team{
		ID:         uuid.New(),
		Code:       req.Code,
		Name:       req.Name,
		City:       req.City,
		Conference: req.Conference,
		Division:   req.Division,
		CreatedAt:  a.clock.Now().Truncate(time.Microsecond),
	}
	if err := a.repo.CreateTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	log.Info().Str("team_id", team.ID.String()).Str("code", team.Code).Msg("team created")
	return &team, nil
}

// GetTeam retrieves a team by ID
func (a *App) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	team, err := a.repo.GetTeam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

// GetTeamByCode retrieves a team by its abbreviation, case-insensitively
func (a *App) GetTeamByCode(ctx context.Context, code string) (*models.Team, error) {
	team, err := a.repo.GetTeamByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("failed to get team by code: %w", err)
	}
	return team, nil
}

// ListTeams retrieves teams with filtering and pagination, ordered by code
func (a *App) ListTeams(ctx context.Context, filter TeamFilter, pagination PaginationParams) (*TeamListResponse, error) {
	teams, err := a.repo.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	filtered := applyFilters(teams, filter)
	page := applyPagination(filtered, pagination)

	return &TeamListResponse{
		Teams:   page,
		Total:   len(filtered),
		Limit:   pagination.Limit,
		Offset:  pagination.Offset,
		HasMore: pagination.Offset+len(page) < len(filtered),
	}, nil
}

// UpdateTeam updates an existing team with validation
func (a *App) UpdateTeam(ctx context.Context, id uuid.UUID, req UpdateTeamRequest) (*models.Team, error) {
	team, err := a.repo.GetTeam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("team not found: %w", err)
	}

	if req.Code != nil {
		team.Code = *req.Code
	}
	if req.Name != nil {
		team.Name = *req.Name
	}
	if req.City != nil {
		team.City = *req.City
	}
	if req.Conference != nil {
		team.Conference = *req.Conference
	}
	if req.Division != nil {
		team.Division = *req.Division
	}
	next := normalize(CreateTeamRequest{Code: team.Code, Name: team.Name, City: team.City,
		Conference: team.Conference, Division: team.Division})
	if err := validateCreateTeamRequest(next); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	team.Code, team.Name, team.City, team.Conference, team.Division = next.Code, next.Name, next.City, next.Conference, next.Division

	if err := a.repo.UpdateTeam(ctx, *team); err != nil {
		return nil, fmt.Errorf("failed to update team: %w", err)
	}

	log.Info().Str("team_id", id.String()).Str("code", team.Code).Msg("team updated")
	return team, nil
}

// DeleteTeam deletes a team with no rostered players
func (a *App) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	team, err := a.repo.GetTeam(ctx, id)
	if err != nil {
		return fmt.Errorf("team not found: %w", err)
	}

	roster, err := a.repo.ListPlayersByTeam(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list team players: %w", err)
	}
	if len(roster) > 0 {
		return fmt.Errorf("team %s has %d players: %w", team.Code, len(roster), ErrTeamHasPlayers)
	}

	if err := a.repo.DeleteTeam(ctx, id); err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}

	log.Info().Str("team_id", id.String()).Str("code", team.Code).Msg("team deleted")
	return nil
}

// ImportTeams upserts teams by code. One bad row never stops the others.
func (a *App) ImportTeams(ctx context.Context, reqs []CreateTeamRequest) (*ImportResult, error) {
	result := &ImportResult{TotalProcessed: len(reqs)}

	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		isNew, err := a.upsertTeam(ctx, req)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to upsert team %s: %w", req.Code, err))
			continue
		}
		if isNew {
			result.Created++
		} else {
			result.Updated++
		}
	}

	log.Info().
		Int("processed", result.TotalProcessed).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("errors", len(result.Errors)).
		Msg("teams imported")
	return result, nil
}

// upsertTeam returns true if the team was created, false if an existing team was updated
func (a *App) upsertTeam(ctx context.Context, req CreateTeamRequest) (bool, error) {
	req = normalize(req)
	existing, err := a.repo.GetTeamByCode(ctx, req.Code)
	if errors.Is(err, store.ErrNotFound) {
		if _, err := a.CreateTeam(ctx, req); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	_, err = a.UpdateTeam(ctx, existing.ID, UpdateTeamRequest{
		Name:       &req.Name,
		City:       &req.City,
		Conference: &req.Conference,
		Division:   &req.Division,
	})
	return false, err
}

func applyFilters(teams []models.Team, filter TeamFilter) []models.Team {
	if filter.Conference == "" && filter.Division == "" {
		return teams
	}

	var filtered []models.Team
	for _, team := range teams {
		if filter.Conference != "" && !strings.EqualFold(team.Conference, filter.Conference) {
			continue
		}
		if filter.Division != "" && !strings.EqualFold(team.Division, filter.Division) {
			continue
		}
		filtered = append(filtered, team)
	}
	return filtered
}

func applyPagination(teams []models.Team, pagination PaginationParams) []models.Team {
	if pagination.Offset >= len(teams) {
		return []models.Team{}
	}
	end := len(teams)
	if pagination.Limit > 0 && pagination.Offset+pagination.Limit < end {
		end = pagination.Offset + pagination.Limit
	}
	return teams[pagination.Offset:end]
}

func normalize(req CreateTeamRequest) CreateTeamRequest {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	req.City = strings.TrimSpace(req.City)
	req.Conference = strings.ToUpper(strings.TrimSpace(req.Conference))
	req.Division = strings.TrimSpace(req.Division)
	if req.Division != "" {
		req.Division = strings.ToUpper(req.Division[:1]) + strings.ToLower(req.Division[1:])
	}
	return req
}

func validateCreateTeamRequest(req CreateTeamRequest) error {
	if req.Code == "" {
		return ErrCodeRequired
	}
	if req.Name == "" {
		return ErrNameRequired
	}
	if req.City == "" {
		return ErrCityRequired
	}
	switch req.Conference {
	case "", "AFC", "NFC":
	default:
		return ErrInvalidConference
	}
	switch req.Division {
	case "", "East", "North", "South", "West":
	default:
		return ErrInvalidDivision
	}
	return nil
}
