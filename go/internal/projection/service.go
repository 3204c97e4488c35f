package projection

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

const ServiceName = "projections.v1.ProjectionService"

// ProjectionApp defines what the service layer needs from the projection application
type ProjectionApp interface {
	Build(ctx context.Context, req BuildRequest) (*models.Projection, error)
	BuildTeam(ctx context.Context, req BuildTeamRequest) (*TeamBuild, error)
	Get(ctx context.Context, playerID uuid.UUID, season int, scenarioID uuid.UUID) (*models.Projection, error)
	ListTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) ([]models.Projection, error)
}

type BuildProjectionRequest struct {
	PlayerID   string       `json:"player_id"`
	Season     int          `json:"season"`
	ScenarioID string       `json:"scenario_id"`
	Forecast   stats.Totals `json:"forecast,omitempty"`
	Games      float64      `json:"games,omitempty"`
}

type BuildProjectionResponse struct {
	Projection *models.Projection `json:"projection"`
}

type BuildTeamProjectionsRequest struct {
	TeamID     string       `json:"team_id"`
	Season     int          `json:"season"`
	ScenarioID string       `json:"scenario_id"`
	Forecast   stats.Totals `json:"forecast,omitempty"`
	Games      float64      `json:"games,omitempty"`
}

type BuildTeamProjectionsResponse struct {
	Build *TeamBuild `json:"build"`
}

type GetProjectionRequest struct {
	PlayerID   string `json:"player_id"`
	Season     int    `json:"season"`
	ScenarioID string `json:"scenario_id"`
}

type GetProjectionResponse struct {
	Projection *models.Projection `json:"projection"`
}

type ListTeamProjectionsRequest struct {
	TeamID     string `json:"team_id"`
	Season     int    `json:"season"`
	ScenarioID string `json:"scenario_id"`
}

type ListTeamProjectionsResponse struct {
	Projections []models.Projection `json:"projections"`
}

// Service implements the projection connect service
type Service struct {
	app ProjectionApp
}

// NewService creates a new projection service
func NewService(app ProjectionApp) *Service {
	return &Service{app: app}
}

// Handler returns the mount path and handler for the service.
func (s *Service) Handler() (string, http.Handler) {
	return rpcutil.NewServiceHandler(ServiceName,
		rpcutil.Unary(ServiceName, "BuildProjection", s.BuildProjection),
		rpcutil.Unary(ServiceName, "BuildTeamProjections", s.BuildTeamProjections),
		rpcutil.Unary(ServiceName, "GetProjection", s.GetProjection),
		rpcutil.Unary(ServiceName, "ListTeamProjections", s.ListTeamProjections),
	)
}

// Classify maps projection errors to connect codes.
func Classify(err error) (connect.Code, bool) {
	var insufficient *InsufficientHistoryError
	if errors.As(err, &insufficient) || errors.Is(err, ErrNoTeam) {
		return connect.CodeFailedPrecondition, true
	}
	return 0, false
}

// BuildProjection builds and stores one player's projection
func (s *Service) BuildProjection(ctx context.Context, req *connect.Request[BuildProjectionRequest]) (*connect.Response[BuildProjectionResponse], error) {
	playerID, err := rpcutil.ParseUUID("player_id", req.Msg.PlayerID)
	if err != nil {
		return nil, err
	}
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}

	p, err := s.app.Build(ctx, BuildRequest{
		PlayerID:   playerID,
		Season:     req.Msg.Season,
		ScenarioID: scenarioID,
		Forecast:   req.Msg.Forecast,
		Games:      req.Msg.Games,
	})
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&BuildProjectionResponse{Projection: p}), nil
}

// BuildTeamProjections builds a whole roster and its fill player
func (s *Service) BuildTeamProjections(ctx context.Context, req *connect.Request[BuildTeamProjectionsRequest]) (*connect.Response[BuildTeamProjectionsResponse], error) {
	teamID, err := rpcutil.ParseUUID("team_id", req.Msg.TeamID)
	if err != nil {
		return nil, err
	}
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}

	build, err := s.app.BuildTeam(ctx, BuildTeamRequest{
		TeamID:     teamID,
		Season:     req.Msg.Season,
		ScenarioID: scenarioID,
		Forecast:   req.Msg.Forecast,
		Games:      req.Msg.Games,
	})
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&BuildTeamProjectionsResponse{Build: build}), nil
}

// GetProjection returns one projection
func (s *Service) GetProjection(ctx context.Context, req *connect.Request[GetProjectionRequest]) (*connect.Response[GetProjectionResponse], error) {
	playerID, err := rpcutil.ParseUUID("player_id", req.Msg.PlayerID)
	if err != nil {
		return nil, err
	}
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}

	p, err := s.app.Get(ctx, playerID, req.Msg.Season, scenarioID)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&GetProjectionResponse{Projection: p}), nil
}

// ListTeamProjections returns every projection on a team
func (s *Service) ListTeamProjections(ctx context.Context, req *connect.Request[ListTeamProjectionsRequest]) (*connect.Response[ListTeamProjectionsResponse], error) {
	teamID, err := rpcutil.ParseUUID("team_id", req.Msg.TeamID)
	if err != nil {
		return nil, err
	}
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}

	ps, err := s.app.ListTeam(ctx, teamID, req.Msg.Season, scenarioID)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&ListTeamProjectionsResponse{Projections: ps}), nil
}
