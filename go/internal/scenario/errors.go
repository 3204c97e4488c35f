package scenario

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNameRequired   = errors.New("scenario name is required")
	ErrNoScenarios    = errors.New("at least one scenario is required")
	ErrBaselineExists = errors.New("a baseline already exists for this season")
	ErrInvalidSeason  = errors.New("season must be positive")
)

// BaselineDeletionError is returned when deleting a baseline scenario.
type BaselineDeletionError struct {
	ScenarioID uuid.UUID
	Name       string
}

func (e *BaselineDeletionError) Error() string {
	return fmt.Sprintf("scenario %q (%s) is a baseline and cannot be deleted", e.Name, e.ScenarioID)
}
