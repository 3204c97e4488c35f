// Package historical supplies read-only past seasons to the projection engines.
package historical

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
)

// ErrNoTeamSeason is returned when a team has no recorded volume for a season.
var ErrNoTeamSeason = errors.New("no team season")

// Source is the historical stats collaborator. Seasons are returned most recent first.
type Source interface {
	// PlayerSeasons returns a player's seasons strictly before the given season.
	PlayerSeasons(ctx context.Context, playerID uuid.UUID, before int) ([]models.SeasonLine, error)
	// PositionSeasons returns every player-season at a position strictly before the given season.
	PositionSeasons(ctx context.Context, pos models.Position, before int) ([]models.SeasonLine, error)
	TeamSeason(ctx context.Context, teamID uuid.UUID, season int) (*models.TeamSeason, error)
}
