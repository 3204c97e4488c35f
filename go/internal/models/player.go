package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownPosition is returned for positions the engine does not project.
var ErrUnknownPosition = errors.New("unknown position")

// Position is an offensive skill position.
type Position string

const (
	PositionQB   Position = "QB"
	PositionRB   Position = "RB"
	PositionWR   Position = "WR"
	PositionTE   Position = "TE"
	PositionFill Position = "FILL"
)

// ParsePosition validates a projectable position.
func ParsePosition(s string) (Position, error) {
	switch p := Position(s); p {
	case PositionQB, PositionRB, PositionWR, PositionTE:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPosition, s)
}

// Player represents an NFL player in the system
type Player struct {
	ID         uuid.UUID  `json:"id"`
	ExternalID string     `json:"external_id"`
	FullName   string     `json:"full_name"`
	Position   Position   `json:"position"`
	TeamID     *uuid.UUID `json:"team_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	// Draft metadata
	DraftYear *int `json:"draft_year,omitempty"`
	DraftPick *int `json:"draft_pick,omitempty"` // overall pick number
	Undrafted bool `json:"undrafted"`
}
