package models

import (
	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// SeasonLine is one historical player-season.
type SeasonLine struct {
	PlayerID uuid.UUID  `json:"player_id"`
	Season   int        `json:"season"`
	TeamID   uuid.UUID  `json:"team_id"`
	Position Position   `json:"position"`
	Stats    stats.Line `json:"stats"`
}

// TeamSeason is one historical team-season of volume totals.
type TeamSeason struct {
	TeamID uuid.UUID    `json:"team_id"`
	Season int          `json:"season"`
	Totals stats.Totals `json:"totals"`
}
