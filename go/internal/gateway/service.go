// Package gateway pushes scenario events to WebSocket clients. Events arrive from the
// JetStream stream the outbox relay publishes to, keyed by scenario.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Service wires the connection manager, WebSocket handler and JetStream consumer
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	eventConsumer     *EventConsumer
	allowedOrigins    []string
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
	AllowedOrigins   []string
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
		AllowedOrigins:   []string{"*"},
	}
}

// NewService connects the JetStream consumer and builds the HTTP handlers
func NewService(ctx context.Context, config Config, provider StateProvider) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	eventConsumer, err := NewEventConsumer(ctx, connectionManager, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, provider),
		stateHandler:      NewStateHandler(provider),
		eventConsumer:     eventConsumer,
		allowedOrigins:    config.AllowedOrigins,
	}, nil
}

// Start runs the connection manager and event consumer until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting scenario gateway service")

	go s.connectionManager.Start(ctx)
	go func() {
		if err := s.eventConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("scenario gateway service shutting down")
	return s.Stop()
}

// Stop closes the consumer's NATS connection
func (s *Service) Stop() error {
	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("scenario gateway service stopped")
	return nil
}

// Handler returns the gateway routes wrapped in CORS
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.HandleFunc("/health", s.handleHealth)
	return cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
		MaxAge:         86400,
	}).Handler(mux)
}

type healthResponse struct {
	Healthy       bool  `json:"healthy"`
	NATSConnected bool  `json:"nats_connected"`
	Connections   Stats `json:"connections"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		NATSConnected: s.eventConsumer.Connected(),
		Connections:   s.connectionManager.GetConnectionStats(),
	}
	resp.Healthy = resp.NATSConnected

	w.Header().Set("Content-Type", "application/json")
	if !resp.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
