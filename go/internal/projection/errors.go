package projection

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNoTeam is returned when a player without a team is projected.
var ErrNoTeam = errors.New("player has no team")

// InsufficientHistoryError is returned when no qualifying past season exists.
type InsufficientHistoryError struct {
	PlayerID uuid.UUID
	Season   int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("no qualifying history for player %s before %d", e.PlayerID, e.Season)
}
