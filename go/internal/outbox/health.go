package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
)

type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	RelayRunning    bool      `json:"relay_running"`
	EventsProcessed uint64    `json:"events_processed"`
	LastEventTime   time.Time `json:"last_event_time"`
	PendingEvents   int       `json:"pending_events"`
	NATSConnected   bool      `json:"nats_connected"`
	Errors          []string  `json:"errors"`
}

// connectivity is satisfied by *JetStreamPublisher.
type connectivity interface {
	Connected() bool
}

// HealthChecker reports relay health over HTTP.
type HealthChecker struct {
	relay     Relay
	reader    store.OutboxReader
	publisher connectivity
	clock     clockwork.Clock
	threshold time.Duration // How long pending events may wait before unhealthy
}

func NewHealthChecker(relay Relay, reader store.OutboxReader, publisher connectivity, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		relay:     relay,
		reader:    reader,
		publisher: publisher,
		clock:     clockwork.NewRealClock(),
		threshold: threshold,
	}
}

// pendingProbe caps how many unsent rows a health check reads.
const pendingProbe = 1000

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{Healthy: true, Errors: []string{}}

	status.EventsProcessed, status.LastEventTime, status.RelayRunning = h.relay.Stats()
	if !status.RelayRunning {
		status.Healthy = false
		status.Errors = append(status.Errors, "relay not running")
	}

	if h.publisher != nil {
		status.NATSConnected = h.publisher.Connected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	pending, err := h.reader.FetchUnsentOutbox(ctx, pendingProbe)
	if err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		return status
	}
	status.PendingEvents = len(pending)
	if len(pending) > 0 {
		oldest := h.clock.Since(pending[0].CreatedAt)
		if oldest > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("oldest pending event waiting %s", oldest.Round(time.Second)))
		}
	}
	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
