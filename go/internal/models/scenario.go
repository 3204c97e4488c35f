package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScenarioKind describes how a scenario came to be.
type ScenarioKind string

const (
	ScenarioBaseline ScenarioKind = "baseline"
	ScenarioFork     ScenarioKind = "fork"
	ScenarioFloor    ScenarioKind = "floor"
	ScenarioCeiling  ScenarioKind = "ceiling"
)

// Scenario is a named, independently mutable branch of projections.
type Scenario struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Season         int             `json:"season"`
	BaseScenarioID *uuid.UUID      `json:"base_scenario_id,omitempty"`
	IsBaseline     bool            `json:"is_baseline"`
	Kind           ScenarioKind    `json:"kind"`
	Settings       json.RawMessage `json:"settings,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
