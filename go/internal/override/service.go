package override

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/rpcutil"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

const ServiceName = "projections.v1.OverrideService"

// OverrideApp defines what the service layer needs from the override engine
type OverrideApp interface {
	Apply(ctx context.Context, req Request) (*Result, error)
	Revert(ctx context.Context, req RevertRequest) (*Result, error)
	ApplyBatch(ctx context.Context, req BatchRequest) (*BatchResult, error)
	ListOverrides(ctx context.Context, playerID uuid.UUID, season int, scenarioID uuid.UUID) ([]models.StatOverride, error)
	ListScenarioOverrides(ctx context.Context, scenarioID uuid.UUID) ([]models.StatOverride, error)
}

type ApplyOverrideRequest struct {
	PlayerID   string  `json:"player_id"`
	Season     int     `json:"season"`
	ScenarioID string  `json:"scenario_id"`
	Stat       string  `json:"stat"`
	Value      float64 `json:"value"`
	Reason     string  `json:"reason,omitempty"`
}

type ApplyOverrideResponse struct {
	Result *Result `json:"result"`
}

type RevertOverrideRequest struct {
	PlayerID   string `json:"player_id"`
	Season     int    `json:"season"`
	ScenarioID string `json:"scenario_id"`
	Stat       string `json:"stat"`
}

type RevertOverrideResponse struct {
	Result *Result `json:"result"`
}

type ApplyBatchOverrideRequest struct {
	PlayerIDs  []string `json:"player_ids"`
	Season     int      `json:"season"`
	ScenarioID string   `json:"scenario_id"`
	Stat       string   `json:"stat"`
	Adjustment string   `json:"adjustment"`
	Reason     string   `json:"reason,omitempty"`
}

type ApplyBatchOverrideResponse struct {
	Result *BatchResult `json:"result"`
}

type ListOverridesRequest struct {
	ScenarioID string `json:"scenario_id"`
	// PlayerID narrows the listing to one projection when set.
	PlayerID string `json:"player_id,omitempty"`
	Season   int    `json:"season,omitempty"`
}

type ListOverridesResponse struct {
	Overrides []models.StatOverride `json:"overrides"`
}

// Service implements the override connect service
type Service struct {
	app OverrideApp
}

// NewService creates a new override service
func NewService(app OverrideApp) *Service {
	return &Service{app: app}
}

// Handler returns the mount path and handler for the service.
func (s *Service) Handler() (string, http.Handler) {
	return rpcutil.NewServiceHandler(ServiceName,
		rpcutil.Unary(ServiceName, "ApplyOverride", s.ApplyOverride),
		rpcutil.Unary(ServiceName, "RevertOverride", s.RevertOverride),
		rpcutil.Unary(ServiceName, "ApplyBatchOverride", s.ApplyBatchOverride),
		rpcutil.Unary(ServiceName, "ListOverrides", s.ListOverrides),
	)
}

// Classify maps override errors to connect codes.
func Classify(err error) (connect.Code, bool) {
	if errors.Is(err, ErrOverrideNotFound) {
		return connect.CodeNotFound, true
	}
	return 0, false
}

// ApplyOverride pins one stat on one player
func (s *Service) ApplyOverride(ctx context.Context, req *connect.Request[ApplyOverrideRequest]) (*connect.Response[ApplyOverrideResponse], error) {
	playerID, err := rpcutil.ParseUUID("player_id", req.Msg.PlayerID)
	if err != nil {
		return nil, err
	}
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}
	stat, err := rpcutil.ParseStat(req.Msg.Stat)
	if err != nil {
		return nil, err
	}

	result, err := s.app.Apply(ctx, Request{
		PlayerID:   playerID,
		Season:     req.Msg.Season,
		ScenarioID: scenarioID,
		Stat:       stat,
		Value:      req.Msg.Value,
		Reason:     req.Msg.Reason,
	})
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&ApplyOverrideResponse{Result: result}), nil
}

// RevertOverride removes one override and restores the calculated value
func (s *Service) RevertOverride(ctx context.Context, req *connect.Request[RevertOverrideRequest]) (*connect.Response[RevertOverrideResponse], error) {
	playerID, err := rpcutil.ParseUUID("player_id", req.Msg.PlayerID)
	if err != nil {
		return nil, err
	}
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}
	stat, err := rpcutil.ParseStat(req.Msg.Stat)
	if err != nil {
		return nil, err
	}

	result, err := s.app.Revert(ctx, RevertRequest{
		PlayerID:   playerID,
		Season:     req.Msg.Season,
		ScenarioID: scenarioID,
		Stat:       stat,
	})
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&RevertOverrideResponse{Result: result}), nil
}

// ApplyBatchOverride applies one adjustment to many players
func (s *Service) ApplyBatchOverride(ctx context.Context, req *connect.Request[ApplyBatchOverrideRequest]) (*connect.Response[ApplyBatchOverrideResponse], error) {
	playerIDs, err := rpcutil.ParseUUIDs("player_ids", req.Msg.PlayerIDs)
	if err != nil {
		return nil, err
	}
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}
	stat, err := rpcutil.ParseStat(req.Msg.Stat)
	if err != nil {
		return nil, err
	}
	adj, err := stats.ParseAdjustment(req.Msg.Adjustment)
	if err != nil {
		return nil, rpcutil.Error(err)
	}

	result, err := s.app.ApplyBatch(ctx, BatchRequest{
		PlayerIDs:  playerIDs,
		Season:     req.Msg.Season,
		ScenarioID: scenarioID,
		Stat:       stat,
		Adjustment: adj,
		Reason:     req.Msg.Reason,
	})
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&ApplyBatchOverrideResponse{Result: result}), nil
}

// ListOverrides lists overrides for a scenario or a single projection
func (s *Service) ListOverrides(ctx context.Context, req *connect.Request[ListOverridesRequest]) (*connect.Response[ListOverridesResponse], error) {
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}

	var list []models.StatOverride
	if req.Msg.PlayerID == "" {
		list, err = s.app.ListScenarioOverrides(ctx, scenarioID)
	} else {
		playerID, perr := rpcutil.ParseUUID("player_id", req.Msg.PlayerID)
		if perr != nil {
			return nil, perr
		}
		list, err = s.app.ListOverrides(ctx, playerID, req.Msg.Season, scenarioID)
	}
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&ListOverridesResponse{Overrides: list}), nil
}
