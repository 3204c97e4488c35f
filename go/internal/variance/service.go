package variance

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/dynasty-projections/go/internal/rpcutil"
)

const ServiceName = "projections.v1.VarianceService"

// VarianceApp defines what the service layer needs from the estimator
type VarianceApp interface {
	Estimate(ctx context.Context, req EstimateRequest) (*Range, error)
	Materialize(ctx context.Context, req MaterializeRequest) (*Materialized, error)
}

type EstimateRangeRequest struct {
	PlayerID   string  `json:"player_id"`
	Season     int     `json:"season"`
	ScenarioID string  `json:"scenario_id"`
	Confidence float64 `json:"confidence"`
}

type EstimateRangeResponse struct {
	Range *Range `json:"range"`
}

type MaterializeRangeRequest struct {
	ScenarioID string   `json:"scenario_id"`
	Season     int      `json:"season"`
	PlayerIDs  []string `json:"player_ids"`
	Confidence float64  `json:"confidence"`
}

type MaterializeRangeResponse struct {
	Result *Materialized `json:"result"`
}

// Service implements the variance connect service
type Service struct {
	app VarianceApp
}

// NewService creates a new variance service
func NewService(app VarianceApp) *Service {
	return &Service{app: app}
}

// Handler returns the mount path and handler for the service.
func (s *Service) Handler() (string, http.Handler) {
	return rpcutil.NewServiceHandler(ServiceName,
		rpcutil.Unary(ServiceName, "EstimateRange", s.EstimateRange),
		rpcutil.Unary(ServiceName, "MaterializeRange", s.MaterializeRange),
	)
}

// Classify maps estimator errors to connect codes.
func Classify(err error) (connect.Code, bool) {
	var sample *InsufficientSampleError
	switch {
	case errors.As(err, &sample):
		return connect.CodeFailedPrecondition, true
	case errors.Is(err, ErrInvalidConfidence), errors.Is(err, ErrNoPlayers):
		return connect.CodeInvalidArgument, true
	}
	return 0, false
}

func (s *Service) EstimateRange(ctx context.Context, req *connect.Request[EstimateRangeRequest]) (*connect.Response[EstimateRangeResponse], error) {
	playerID, err := rpcutil.ParseUUID("player_id", req.Msg.PlayerID)
	if err != nil {
		return nil, err
	}
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}

	r, err := s.app.Estimate(ctx, EstimateRequest{
		PlayerID:   playerID,
		Season:     req.Msg.Season,
		ScenarioID: scenarioID,
		Confidence: req.Msg.Confidence,
	})
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&EstimateRangeResponse{Range: r}), nil
}

func (s *Service) MaterializeRange(ctx context.Context, req *connect.Request[MaterializeRangeRequest]) (*connect.Response[MaterializeRangeResponse], error) {
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}
	playerIDs, err := rpcutil.ParseUUIDs("player_ids", req.Msg.PlayerIDs)
	if err != nil {
		return nil, err
	}

	res, err := s.app.Materialize(ctx, MaterializeRequest{
		ScenarioID: scenarioID,
		Season:     req.Msg.Season,
		PlayerIDs:  playerIDs,
		Confidence: req.Msg.Confidence,
	})
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&MaterializeRangeResponse{Result: res}), nil
}
