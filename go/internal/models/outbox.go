package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is a domain event written in the same transaction as the change it describes
type OutboxEvent struct {
	ID         uuid.UUID       `json:"id"`
	ScenarioID uuid.UUID       `json:"scenario_id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	SentAt     *time.Time      `json:"sent_at,omitempty"`
}
