package roster

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/rpcutil"
)

const ServiceName = "projections.v1.RosterService"

// RosterApp defines what the service layer needs from the roster application
type RosterApp interface {
	GetTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) (*Team, error)
	CheckScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.ConsistencyWarning, error)
}

type GetTeamRequest struct {
	TeamID     string `json:"team_id"`
	Season     int    `json:"season"`
	ScenarioID string `json:"scenario_id"`
}

type GetTeamResponse struct {
	Team *Team `json:"team"`
}

type CheckScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type CheckScenarioResponse struct {
	Consistent bool                        `json:"consistent"`
	Warnings   []models.ConsistencyWarning `json:"warnings"`
}

// Service exposes roster views over connect
type Service struct {
	app RosterApp
}

func NewService(app RosterApp) *Service {
	return &Service{app: app}
}

// Handler returns the mount path and handler for the service.
func (s *Service) Handler() (string, http.Handler) {
	return rpcutil.NewServiceHandler(ServiceName,
		rpcutil.Unary(ServiceName, "GetTeam", s.GetTeam),
		rpcutil.Unary(ServiceName, "CheckScenario", s.CheckScenario),
	)
}

// GetTeam returns one team's projections, totals and consistency warnings
func (s *Service) GetTeam(ctx context.Context, req *connect.Request[GetTeamRequest]) (*connect.Response[GetTeamResponse], error) {
	teamID, err := rpcutil.ParseUUID("team_id", req.Msg.TeamID)
	if err != nil {
		return nil, err
	}
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}

	team, err := s.app.GetTeam(ctx, teamID, req.Msg.Season, scenarioID)
	if err != nil {
		return nil, rpcutil.Error(err)
	}
	return connect.NewResponse(&GetTeamResponse{Team: team}), nil
}

// CheckScenario lists every team-sum mismatch in a scenario
func (s *Service) CheckScenario(ctx context.Context, req *connect.Request[CheckScenarioRequest]) (*connect.Response[CheckScenarioResponse], error) {
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}

	warnings, err := s.app.CheckScenario(ctx, scenarioID)
	if err != nil {
		return nil, rpcutil.Error(err)
	}
	return connect.NewResponse(&CheckScenarioResponse{
		Consistent: len(warnings) == 0,
		Warnings:   warnings,
	}), nil
}
