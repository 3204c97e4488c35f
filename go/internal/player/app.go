package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/rs/zerolog/log"
)

// PlayerRepository defines what the app layer needs from persistence
type PlayerRepository interface {
	CreatePlayer(ctx context.Context, p models.Player) error
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	GetPlayerByExternalID(ctx context.Context, externalID string) (*models.Player, error)
	ListPlayersByTeam(ctx context.Context, teamID uuid.UUID) ([]models.Player, error)
	UpdatePlayerTeam(ctx context.Context, id uuid.UUID, teamID *uuid.UUID) error
	DeletePlayer(ctx context.Context, id uuid.UUID) error
	GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
}

// CreatePlayerRequest registers a player
type CreatePlayerRequest struct {
	ExternalID string     `json:"external_id"`
	FullName   string     `json:"full_name"`
	Position   string     `json:"position"`
	TeamID     *uuid.UUID `json:"team_id,omitempty"`
	DraftYear  *int       `json:"draft_year,omitempty"`
	DraftPick  *int       `json:"draft_pick,omitempty"`
	Undrafted  bool       `json:"undrafted"`
}

// ImportResult represents the result of importing a roster
type ImportResult struct {
	TotalProcessed int     `json:"total_processed"`
	Created        int     `json:"created"`
	Updated        int     `json:"updated"`
	Unchanged      int     `json:"unchanged"`
	Errors         []error `json:"-"`
}

// App handles player business logic
type App struct {
	repo  PlayerRepository
	clock clockwork.Clock
}

// NewApp creates a new player App
func NewApp(repo PlayerRepository, clock clockwork.Clock) *App {
	return &App{
		repo:  repo,
		clock: clock,
	}
}

// CreatePlayer creates a new player with validation
func (a *App) CreatePlayer(ctx context.Context, req CreatePlayerRequest) (*models.Player, error) {
	p, err := a.newPlayer(req)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := a.checkTeam(ctx, p.TeamID); err != nil {
		return nil, err
	}

	if err := a.repo.CreatePlayer(ctx, *p); err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}
	return p, nil
}

// GetPlayer retrieves a player by ID
func (a *App) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	player, err := a.repo.GetPlayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return player, nil
}

// GetPlayerByExternalID retrieves a player by external ID
func (a *App) GetPlayerByExternalID(ctx context.Context, externalID string) (*models.Player, error) {
	player, err := a.repo.GetPlayerByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player by external ID: %w", err)
	}
	return player, nil
}

// ListPlayersByTeam lists the players rostered on a team
func (a *App) ListPlayersByTeam(ctx context.Context, teamID uuid.UUID) ([]models.Player, error) {
	players, err := a.repo.ListPlayersByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	return players, nil
}

// UpdatePlayerTeam moves a player to another team, or releases them with a nil team.
// Existing projections keep the team they were built for.
func (a *App) UpdatePlayerTeam(ctx context.Context, id uuid.UUID, teamID *uuid.UUID) (*models.Player, error) {
	if err := a.checkTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if err := a.repo.UpdatePlayerTeam(ctx, id, teamID); err != nil {
		return nil, fmt.Errorf("failed to update player team: %w", err)
	}
	return a.GetPlayer(ctx, id)
}

// DeletePlayer deletes a player and every projection of that player
func (a *App) DeletePlayer(ctx context.Context, id uuid.UUID) error {
	if err := a.repo.DeletePlayer(ctx, id); err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	log.Info().Str("player_id", id.String()).Msg("player deleted")
	return nil
}

// ImportPlayers upserts a roster by external ID. New players are created and known
// players only have their team updated. One bad row never stops the others.
func (a *App) ImportPlayers(ctx context.Context, reqs []CreatePlayerRequest) (*ImportResult, error) {
	result := &ImportResult{TotalProcessed: len(reqs)}

	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, err := a.upsertPlayer(ctx, req)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to upsert player %s: %w", req.ExternalID, err))
			continue
		}
		switch outcome {
		case created:
			result.Created++
		case updated:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	log.Info().
		Int("processed", result.TotalProcessed).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("errors", len(result.Errors)).
		Msg("players imported")
	return result, nil
}

type upsertOutcome int

const (
	unchanged upsertOutcome = iota
	created
	updated
)

func (a *App) upsertPlayer(ctx context.Context, req CreatePlayerRequest) (upsertOutcome, error) {
	existing, err := a.repo.GetPlayerByExternalID(ctx, req.ExternalID)
	if errors.Is(err, store.ErrNotFound) {
		if _, err := a.CreatePlayer(ctx, req); err != nil {
			return unchanged, err
		}
		return created, nil
	}
	if err != nil {
		return unchanged, err
	}

	if sameTeam(existing.TeamID, req.TeamID) {
		return unchanged, nil
	}
	if err := a.checkTeam(ctx, req.TeamID); err != nil {
		return unchanged, err
	}
	if err := a.repo.UpdatePlayerTeam(ctx, existing.ID, req.TeamID); err != nil {
		return unchanged, fmt.Errorf("failed to update player team: %w", err)
	}
	return updated, nil
}

// checkTeam requires a non-nil team to be registered.
func (a *App) checkTeam(ctx context.Context, teamID *uuid.UUID) error {
	if teamID == nil {
		return nil
	}
	_, err := a.repo.GetTeam(ctx, *teamID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("team %s: %w", teamID, ErrUnknownTeam)
	}
	if err != nil {
		return fmt.Errorf("failed to get team: %w", err)
	}
	return nil
}

func sameTeam(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// newPlayer validates a create request
func (a *App) newPlayer(req CreatePlayerRequest) (*models.Player, error) {
	if req.ExternalID == "" {
		return nil, ErrExternalIDRequired
	}
	if req.FullName == "" {
		return nil, ErrFullNameRequired
	}
	pos, err := models.ParsePosition(req.Position)
	if err != nil {
		return nil, err
	}
	if req.DraftPick != nil && *req.DraftPick <= 0 {
		return nil, ErrInvalidDraftPick
	}
	if req.Undrafted && req.DraftPick != nil {
		return nil, ErrInvalidDraftPick
	}

	return &models.Player{
		ID:         uuid.New(),
		ExternalID: req.ExternalID,
		FullName:   req.FullName,
		Position:   pos,
		TeamID:     req.TeamID,
		CreatedAt:  a.clock.Now().Truncate(time.Microsecond),
		DraftYear:  req.DraftYear,
		DraftPick:  req.DraftPick,
		Undrafted:  req.Undrafted,
	}, nil
}
