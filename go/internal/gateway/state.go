package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/rs/zerolog/log"
)

// SnapshotType is the frame type of the snapshot sent when a client subscribes.
const SnapshotType = "ScenarioSnapshot"

// StateProvider reads the current state of a scenario
type StateProvider interface {
	GetScenario(ctx context.Context, id uuid.UUID) (*models.Scenario, error)
	ListProjectionsByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.Projection, error)
	ListTeamStatsByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.TeamStat, error)
}

// ScenarioSnapshot is the full state of a scenario at subscribe time
type ScenarioSnapshot struct {
	Type        string              `json:"type"`
	Scenario    *models.Scenario    `json:"scenario"`
	Projections []models.Projection `json:"projections"`
	TeamStats   []models.TeamStat   `json:"team_stats"`
	TakenAt     time.Time           `json:"taken_at"`
}

// Snapshot loads a scenario's projections and team totals ordered by team, season and player.
func Snapshot(ctx context.Context, p StateProvider, scenarioID uuid.UUID) (*ScenarioSnapshot, error) {
	sc, err := p.GetScenario(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}
	projections, err := p.ListProjectionsByScenario(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projections: %w", err)
	}
	teamStats, err := p.ListTeamStatsByScenario(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team stats: %w", err)
	}

	sort.Slice(projections, func(i, j int) bool {
		a, b := projections[i], projections[j]
		if a.TeamID != b.TeamID {
			return a.TeamID.String() < b.TeamID.String()
		}
		if a.Season != b.Season {
			return a.Season < b.Season
		}
		return a.PlayerID.String() < b.PlayerID.String()
	})
	sort.Slice(teamStats, func(i, j int) bool {
		if teamStats[i].TeamID != teamStats[j].TeamID {
			return teamStats[i].TeamID.String() < teamStats[j].TeamID.String()
		}
		return teamStats[i].Season < teamStats[j].Season
	})

	return &ScenarioSnapshot{
		Type:        SnapshotType,
		Scenario:    sc,
		Projections: projections,
		TeamStats:   teamStats,
		TakenAt:     time.Now().UTC(),
	}, nil
}

// StateHandler serves scenario snapshots over plain HTTP
type StateHandler struct {
	provider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{provider: provider}
}

// HandleGetScenarioState handles GET /api/scenarios/{id}/state
func (h *StateHandler) HandleGetScenarioState(w http.ResponseWriter, r *http.Request) {
	scenarioID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid scenario id format", http.StatusBadRequest)
		return
	}

	snap, err := Snapshot(r.Context(), h.provider, scenarioID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "scenario not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("scenario_id", scenarioID.String()).Msg("failed to get scenario state")
		http.Error(w, "failed to get scenario state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Error().Err(err).Msg("failed to encode scenario state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/scenarios/{id}/state", h.HandleGetScenarioState)
}
