package variance

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidConfidence is returned for confidence levels outside (0, 1).
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
	ErrNoPlayers         = errors.New("at least one player is required")
)

// InsufficientSampleError is returned when too few comparable seasons exist for a reliable range.
type InsufficientSampleError struct {
	PlayerID uuid.UUID
	Size     int
	Min      int
}

func (e *InsufficientSampleError) Error() string {
	return fmt.Sprintf("only %d comparable seasons for player %s, need %d", e.Size, e.PlayerID, e.Min)
}
