package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// ProjectionSource records which generator produced a projection.
type ProjectionSource string

const (
	SourceHistory ProjectionSource = "history"
	SourceRookie  ProjectionSource = "rookie"
	SourceFill    ProjectionSource = "fill"
	SourceRange   ProjectionSource = "range"
)

// Projection is one player's season profile within a scenario.
type Projection struct {
	ID         uuid.UUID        `json:"id"`
	PlayerID   uuid.UUID        `json:"player_id"`
	TeamID     uuid.UUID        `json:"team_id"`
	Season     int              `json:"season"`
	ScenarioID uuid.UUID        `json:"scenario_id"`
	Position   Position         `json:"position"`
	IsFill     bool             `json:"is_fill"`
	Source     ProjectionSource `json:"source"`
	Stats      stats.Line       `json:"stats"`
	Pinned     stats.Pins       `json:"pinned"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// HasOverrides reports whether any stat is pinned by a manual edit.
func (p *Projection) HasOverrides() bool {
	return len(p.Pinned) > 0
}

// MarshalJSON adds the derived has_overrides flag.
func (p Projection) MarshalJSON() ([]byte, error) {
	type wire Projection
	return json.Marshal(struct {
		wire
		HasOverrides bool `json:"has_overrides"`
	}{wire(p), p.HasOverrides()})
}

// Clone returns a copy that shares no mutable state with p.
func (p Projection) Clone() Projection {
	p.Pinned = append(stats.Pins(nil), p.Pinned...)
	return p
}

// StatOverride records a manual pin of one stat on one projection.
type StatOverride struct {
	ID              uuid.UUID  `json:"id"`
	ProjectionID    uuid.UUID  `json:"projection_id"`
	Stat            stats.Stat `json:"stat"`
	CalculatedValue float64    `json:"calculated_value"`
	ManualValue     float64    `json:"manual_value"`
	Reason          string     `json:"reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TeamStat holds team season totals within a scenario.
type TeamStat struct {
	TeamID     uuid.UUID    `json:"team_id"`
	Season     int          `json:"season"`
	ScenarioID uuid.UUID    `json:"scenario_id"`
	Totals     stats.Totals `json:"totals"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Clone returns a copy that shares no mutable state with t.
func (t TeamStat) Clone() TeamStat {
	t.Totals = t.Totals.Clone()
	return t
}

// ConsistencyWarning flags a team total that no longer matches the sum of its players.
type ConsistencyWarning struct {
	TeamID   uuid.UUID  `json:"team_id"`
	Stat     stats.Stat `json:"stat"`
	Expected float64    `json:"expected"`
	Actual   float64    `json:"actual"`
}
