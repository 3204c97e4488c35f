package models

import (
	"time"

	"github.com/google/uuid"
)

// Team is an NFL franchise. Code is its unique abbreviation, e.g. "KC".
type Team struct {
	ID         uuid.UUID `json:"id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	City       string    `json:"city"`
	Conference string    `json:"conference,omitempty"`
	Division   string    `json:"division,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
