package events

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// Event types written to the outbox and published on the scenario stream
const (
	ProjectionBuilt      = "ProjectionBuilt"
	TeamAdjusted         = "TeamAdjusted"
	OverrideApplied      = "OverrideApplied"
	OverrideReverted     = "OverrideReverted"
	BatchOverrideApplied = "BatchOverrideApplied"
	ScenarioForked       = "ScenarioForked"
	ScenarioDeleted      = "ScenarioDeleted"
	RangeMaterialized    = "RangeMaterialized"
)

// Known reports whether eventType is one of the engine's event types.
func Known(eventType string) bool {
	switch eventType {
	case ProjectionBuilt, TeamAdjusted, OverrideApplied, OverrideReverted,
		BatchOverrideApplied, ScenarioForked, ScenarioDeleted, RangeMaterialized:
		return true
	}
	return false
}

// Envelope is the JSON document published to JetStream and forwarded to websocket clients.
type Envelope struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	ScenarioID string          `json:"scenarioId"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

// ProjectionBuiltPayload is the payload for a ProjectionBuilt event
type ProjectionBuiltPayload struct {
	TeamID    string   `json:"team_id"`
	Season    int      `json:"season"`
	PlayerIDs []string `json:"player_ids"`
	Source    string   `json:"source"`
}

// TeamAdjustedPayload is the payload for a TeamAdjusted event
type TeamAdjustedPayload struct {
	TeamID     string                      `json:"team_id"`
	Season     int                         `json:"season"`
	Totals     stats.Totals                `json:"totals"`
	Players    int                         `json:"players"`
	FillVolume map[stats.Stat]float64      `json:"fill_volume"`
	Released   []ReleasedPin               `json:"released,omitempty"`
	Warnings   []models.ConsistencyWarning `json:"warnings,omitempty"`
}

// ReleasedPin names a pin dropped because a newer edit contradicted it.
type ReleasedPin struct {
	PlayerID string     `json:"player_id"`
	Stat     stats.Stat `json:"stat"`
}

// OverrideAppliedPayload is the payload for an OverrideApplied event
type OverrideAppliedPayload struct {
	PlayerID        string       `json:"player_id"`
	TeamID          string       `json:"team_id"`
	Season          int          `json:"season"`
	Stat            stats.Stat   `json:"stat"`
	CalculatedValue float64      `json:"calculated_value"`
	ManualValue     float64      `json:"manual_value"`
	Changed         []stats.Stat `json:"changed"`
	Released        []stats.Stat `json:"released,omitempty"`
}

// OverrideRevertedPayload is the payload for an OverrideReverted event
type OverrideRevertedPayload struct {
	PlayerID      string       `json:"player_id"`
	Season        int          `json:"season"`
	Stat          stats.Stat   `json:"stat"`
	RestoredValue float64      `json:"restored_value"`
	Changed       []stats.Stat `json:"changed"`
}

// BatchOverrideAppliedPayload is the payload for a BatchOverrideApplied event
type BatchOverrideAppliedPayload struct {
	Season     int        `json:"season"`
	Stat       stats.Stat `json:"stat"`
	Adjustment string     `json:"adjustment"`
	Applied    []string   `json:"applied"`
	Failed     int        `json:"failed"`
}

// ScenarioForkedPayload is the payload for a ScenarioForked event
type ScenarioForkedPayload struct {
	BaseScenarioID string `json:"base_scenario_id"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	Projections    int    `json:"projections"`
	TeamStats      int    `json:"team_stats"`
	Overrides      int    `json:"overrides"`
}

// ScenarioDeletedPayload is the payload for a ScenarioDeleted event
type ScenarioDeletedPayload struct {
	Name      string    `json:"name"`
	DeletedAt time.Time `json:"deleted_at"`
}

// RangeMaterializedPayload is the payload for a RangeMaterialized event
type RangeMaterializedPayload struct {
	BaseScenarioID    string   `json:"base_scenario_id"`
	FloorScenarioID   string   `json:"floor_scenario_id"`
	CeilingScenarioID string   `json:"ceiling_scenario_id"`
	Confidence        float64  `json:"confidence"`
	PlayerIDs         []string `json:"player_ids"`
}
