package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/dynasty-projections/go/internal/events"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig describes the stream scenario events are relayed into.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxAge        time.Duration
	// DuplicateWindow bounds how long a re-published outbox id is dropped by the server.
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "SCENARIO_EVENTS",
		SubjectPrefix:   "scenario.events",
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Hour,
	}
}

// Subject is the JetStream subject for one event: <prefix>.<scenario>.<type>.
func Subject(prefix string, event models.OutboxEvent) string {
	return fmt.Sprintf("%s.%s.%s", prefix, event.ScenarioID, event.EventType)
}

// EncodeEnvelope wraps an outbox row in the published JSON envelope.
func EncodeEnvelope(event models.OutboxEvent, at time.Time) ([]byte, error) {
	data, err := json.Marshal(events.Envelope{
		EventID:    event.ID.String(),
		EventType:  event.EventType,
		ScenarioID: event.ScenarioID.String(),
		Timestamp:  at.UTC(),
		Payload:    event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// JetStreamPublisher publishes outbox rows to the scenario stream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewJetStreamPublisher connects and creates or reconciles the stream.
func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, js, err := Dial(cfg.URL, "outbox-relay")
	if err != nil {
		return nil, err
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Scenario mutation events relayed from the outbox",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     -1,
		Replicas:    1,
		Duplicates:  cfg.DuplicateWindow,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.StreamName, err)
	}
	log.Info().
		Str("stream", stream.CachedInfo().Config.Name).
		Uint64("messages", stream.CachedInfo().State.Msgs).
		Msg("JetStream stream ready")

	return &JetStreamPublisher{nc: nc, js: js, config: cfg}, nil
}

// Publish sends the event with its outbox id as the message id, so a relay that
// crashes between publish and mark-sent is deduplicated by the server.
func (p *JetStreamPublisher) Publish(ctx context.Context, event models.OutboxEvent) error {
	data, err := EncodeEnvelope(event, time.Now())
	if err != nil {
		return err
	}

	msg := nats.NewMsg(Subject(p.config.SubjectPrefix, event))
	msg.Data = data
	msg.Header.Set("Event-Type", event.EventType)
	msg.Header.Set("Scenario-ID", event.ScenarioID.String())

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(event.ID.String()),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}
	if ack.Duplicate {
		log.Debug().Str("event_id", event.ID.String()).Msg("duplicate publish dropped by JetStream")
		return nil
	}

	log.Info().
		Str("subject", msg.Subject).
		Str("event_id", event.ID.String()).
		Uint64("sequence", ack.Sequence).
		Msg("published to JetStream")
	return nil
}

// Connected reports whether the NATS connection is up.
func (p *JetStreamPublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
