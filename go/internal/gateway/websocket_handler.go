package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/events"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for scenario subscriptions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	provider          StateProvider
}

// NewWebSocketHandler creates a new WebSocket handler. provider may be nil, in which case
// clients receive events only.
func NewWebSocketHandler(cm *ConnectionManager, provider StateProvider) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		provider:          provider,
	}
}

// HandleScenarioConnection subscribes a client to one scenario.
// Query parameters: scenario_id (required), types (optional comma separated event types).
func (h *WebSocketHandler) HandleScenarioConnection(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("scenario_id")
	if raw == "" {
		http.Error(w, "scenario_id is required", http.StatusBadRequest)
		return
	}
	scenarioID, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid scenario_id format", http.StatusBadRequest)
		return
	}

	var types []string
	if t := r.URL.Query().Get("types"); t != "" {
		for _, name := range strings.Split(t, ",") {
			name = strings.TrimSpace(name)
			if !events.Known(name) {
				http.Error(w, "unknown event type: "+name, http.StatusBadRequest)
				return
			}
			types = append(types, name)
		}
	}

	var snapshot []byte
	if h.provider != nil {
		snap, err := Snapshot(r.Context(), h.provider, scenarioID)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "scenario not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error().Err(err).Str("scenario_id", scenarioID.String()).Msg("failed to load scenario snapshot")
			http.Error(w, "failed to load scenario", http.StatusInternalServerError)
			return
		}
		if snapshot, err = json.Marshal(snap); err != nil {
			http.Error(w, "failed to encode scenario", http.StatusInternalServerError)
			return
		}
	}

	// The upgrader has already written an HTTP error when this fails.
	if err := h.connectionManager.UpgradeConnection(w, r, scenarioID, types, snapshot); err != nil {
		log.Error().
			Err(err).
			Str("scenario_id", scenarioID.String()).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/scenario", h.HandleScenarioConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
