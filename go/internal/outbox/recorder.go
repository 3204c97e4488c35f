package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
)

// Writer is the part of a transaction the recorder needs.
type Writer interface {
	InsertOutboxEvent(ctx context.Context, ev models.OutboxEvent) error
}

// Record appends an event to the outbox using the caller's transaction, so the event
// becomes visible exactly when the mutation it describes commits.
func Record(ctx context.Context, w Writer, scenarioID uuid.UUID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	err = w.InsertOutboxEvent(ctx, models.OutboxEvent{
		ID:         uuid.New(),
		ScenarioID: scenarioID,
		EventType:  eventType,
		Payload:    data,
	})
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}
