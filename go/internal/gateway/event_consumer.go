package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/events"
	"github.com/mcdev12/dynasty-projections/go/internal/outbox"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConsumerConfig describes the durable consumer the gateway reads scenario events from.
type JetStreamConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
}

func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "SCENARIO_EVENTS",
		ConsumerName:  "scenario-gateway",
		SubjectFilter: "scenario.events.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	}
}

// Broadcaster receives decoded scenario events.
type Broadcaster interface {
	BroadcastToScenario(scenarioID uuid.UUID, event *events.Envelope)
}

// EventConsumer feeds JetStream scenario events to a Broadcaster.
type EventConsumer struct {
	broadcaster Broadcaster
	nc          *nats.Conn
	consumer    jetstream.Consumer
	config      JetStreamConsumerConfig
}

// NewEventConsumer connects and creates or reconciles the durable consumer.
// The stream itself is owned by the outbox relay and must already exist.
func NewEventConsumer(ctx context.Context, b Broadcaster, config JetStreamConsumerConfig) (*EventConsumer, error) {
	nc, js, err := outbox.Dial(config.URL, "scenario-gateway")
	if err != nil {
		return nil, err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, config.StreamName, jetstream.ConsumerConfig{
		Durable:       config.ConsumerName,
		Description:   "Scenario gateway WebSocket consumer",
		FilterSubject: config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    config.MaxDeliver,
		AckWait:       config.AckWait,
		MaxAckPending: config.MaxAckPending,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure consumer %s on %s: %w", config.ConsumerName, config.StreamName, err)
	}

	return &EventConsumer{broadcaster: b, nc: nc, consumer: consumer, config: config}, nil
}

// Start consumes until ctx is done.
func (ec *EventConsumer) Start(ctx context.Context) error {
	cc, err := ec.consumer.Consume(ec.handle,
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			log.Warn().Err(err).Str("consumer", ec.config.ConsumerName).Msg("consume error")
		}),
	)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("consuming scenario events")

	<-ctx.Done()
	cc.Drain()
	<-cc.Closed()
	log.Info().Msg("event consumer stopped")
	return nil
}

// handle acks dispatched messages and terminates malformed ones so they are not redelivered.
func (ec *EventConsumer) handle(msg jetstream.Msg) {
	if err := Dispatch(ec.broadcaster, msg.Data()); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed event")
		if err := msg.Term(); err != nil {
			log.Error().Err(err).Msg("failed to terminate message")
		}
		return
	}
	if err := msg.Ack(); err != nil {
		log.Error().Err(err).Msg("failed to ack message")
	}
}

// Dispatch decodes a published envelope and broadcasts it to the scenario's clients.
func Dispatch(b Broadcaster, data []byte) error {
	var envelope events.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if !events.Known(envelope.EventType) {
		return fmt.Errorf("unknown event type: %s", envelope.EventType)
	}
	scenarioID, err := uuid.Parse(envelope.ScenarioID)
	if err != nil {
		return fmt.Errorf("parse scenario ID: %w", err)
	}

	b.BroadcastToScenario(scenarioID, &envelope)

	log.Debug().
		Str("event_id", envelope.EventID).
		Str("scenario_id", envelope.ScenarioID).
		Str("event_type", envelope.EventType).
		Msg("event dispatched to WebSocket clients")
	return nil
}

// Stop closes the NATS connection.
func (ec *EventConsumer) Stop() error {
	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}

// Connected reports whether the NATS connection is up.
func (ec *EventConsumer) Connected() bool {
	return ec.nc != nil && ec.nc.IsConnected()
}
