package teamadjust

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// ErrNoChanges is returned for an adjustment that changes no team total.
var ErrNoChanges = errors.New("no team changes requested")

// ShareSumExceedsUnityError is returned when explicit shares for one stat add up to more than 1.
type ShareSumExceedsUnityError struct {
	Stat stats.Stat
	Sum  float64
}

func (e *ShareSumExceedsUnityError) Error() string {
	return fmt.Sprintf("explicit %s shares sum to %g, above 1", e.Stat, e.Sum)
}

// UnknownTeamError is returned when a team has no projections in the scenario.
type UnknownTeamError struct {
	TeamID     uuid.UUID
	Season     int
	ScenarioID uuid.UUID
}

func (e *UnknownTeamError) Error() string {
	return fmt.Sprintf("no roster for team %s season %d in scenario %s", e.TeamID, e.Season, e.ScenarioID)
}

// OverAllocatedError is returned when fixed allocations leave the fill player negative volume.
type OverAllocatedError struct {
	Stat      stats.Stat
	Allocated float64
	Total     float64
}

func (e *OverAllocatedError) Error() string {
	return fmt.Sprintf("%s: %g allocated to named players exceeds team total %g", e.Stat, e.Allocated, e.Total)
}

// NotTeamStatError is returned for stats without a team-level total.
type NotTeamStatError struct {
	Stat stats.Stat
}

func (e *NotTeamStatError) Error() string {
	return fmt.Sprintf("%s has no team total", e.Stat)
}

// NotRosteredError is returned when an explicit share names a player outside the roster.
type NotRosteredError struct {
	PlayerID uuid.UUID
	TeamID   uuid.UUID
}

func (e *NotRosteredError) Error() string {
	return fmt.Sprintf("player %s has no projection on team %s", e.PlayerID, e.TeamID)
}
