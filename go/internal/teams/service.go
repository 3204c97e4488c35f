package teams

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/rpcutil"
)

const ServiceName = "projections.v1.TeamService"

// TeamApp defines what the service layer needs from the teams application
type TeamApp interface {
	CreateTeam(ctx context.Context, req CreateTeamRequest) (*models.Team, error)
	GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	GetTeamByCode(ctx context.Context, code string) (*models.Team, error)
	ListTeams(ctx context.Context, filter TeamFilter, pagination PaginationParams) (*TeamListResponse, error)
	UpdateTeam(ctx context.Context, id uuid.UUID, req UpdateTeamRequest) (*models.Team, error)
	DeleteTeam(ctx context.Context, id uuid.UUID) error
	ImportTeams(ctx context.Context, reqs []CreateTeamRequest) (*ImportResult, error)
}

type TeamResponse struct {
	Team *models.Team `json:"team"`
}

type GetTeamRequest struct {
	ID string `json:"id"`
}

type GetTeamByCodeRequest struct {
	Code string `json:"code"`
}

type ListTeamsRequest struct {
	Filter     TeamFilter       `json:"filter"`
	Pagination PaginationParams `json:"pagination"`
}

type UpdateTeamByIDRequest struct {
	ID string `json:"id"`
	UpdateTeamRequest
}

type DeleteTeamRequest struct {
	ID string `json:"id"`
}

type DeleteTeamResponse struct {
	Success bool `json:"success"`
}

type ImportTeamsRequest struct {
	Teams []CreateTeamRequest `json:"teams"`
}

type ImportTeamsResponse struct {
	TotalProcessed int      `json:"total_processed"`
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	Errors         []string `json:"errors,omitempty"`
}

// Service implements the team connect service
type Service struct {
	app TeamApp
}

// NewService creates a new team service
func NewService(app TeamApp) *Service {
	return &Service{
		app: app,
	}
}

// Handler returns the mount path and handler for the service.
func (s *Service) Handler() (string, http.Handler) {
	return rpcutil.NewServiceHandler(ServiceName,
		rpcutil.Unary(ServiceName, "CreateTeam", s.CreateTeam),
		rpcutil.Unary(ServiceName, "GetTeam", s.GetTeam),
		rpcutil.Unary(ServiceName, "GetTeamByCode", s.GetTeamByCode),
		rpcutil.Unary(ServiceName, "ListTeams", s.ListTeams),
		rpcutil.Unary(ServiceName, "UpdateTeam", s.UpdateTeam),
		rpcutil.Unary(ServiceName, "DeleteTeam", s.DeleteTeam),
		rpcutil.Unary(ServiceName, "ImportTeams", s.ImportTeams),
	)
}

// Classify maps team errors to connect codes.
func Classify(err error) (connect.Code, bool) {
	switch {
	case errors.Is(err, ErrCodeRequired), errors.Is(err, ErrNameRequired), errors.Is(err, ErrCityRequired),
		errors.Is(err, ErrInvalidConference), errors.Is(err, ErrInvalidDivision):
		return connect.CodeInvalidArgument, true
	case errors.Is(err, ErrTeamHasPlayers):
		return connect.CodeFailedPrecondition, true
	}
	return 0, false
}

// CreateTeam registers a team
func (s *Service) CreateTeam(ctx context.Context, req *connect.Request[CreateTeamRequest]) (*connect.Response[TeamResponse], error) {
	team, err := s.app.CreateTeam(ctx, *req.Msg)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&TeamResponse{Team: team}), nil
}

// GetTeam retrieves a team by ID
func (s *Service) GetTeam(ctx context.Context, req *connect.Request[GetTeamRequest]) (*connect.Response[TeamResponse], error) {
	id, err := rpcutil.ParseUUID("id", req.Msg.ID)
	if err != nil {
		return nil, err
	}

	team, err := s.app.GetTeam(ctx, id)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&TeamResponse{Team: team}), nil
}

// GetTeamByCode retrieves a team by abbreviation
func (s *Service) GetTeamByCode(ctx context.Context, req *connect.Request[GetTeamByCodeRequest]) (*connect.Response[TeamResponse], error) {
	team, err := s.app.GetTeamByCode(ctx, req.Msg.Code)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&TeamResponse{Team: team}), nil
}

// ListTeams lists teams with optional filter and pagination
func (s *Service) ListTeams(ctx context.Context, req *connect.Request[ListTeamsRequest]) (*connect.Response[TeamListResponse], error) {
	if req.Msg.Pagination.Limit < 0 || req.Msg.Pagination.Offset < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("limit and offset must not be negative"))
	}

	list, err := s.app.ListTeams(ctx, req.Msg.Filter, req.Msg.Pagination)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(list), nil
}

// UpdateTeam updates a team
func (s *Service) UpdateTeam(ctx context.Context, req *connect.Request[UpdateTeamByIDRequest]) (*connect.Response[TeamResponse], error) {
	id, err := rpcutil.ParseUUID("id", req.Msg.ID)
	if err != nil {
		return nil, err
	}

	team, err := s.app.UpdateTeam(ctx, id, req.Msg.UpdateTeamRequest)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&TeamResponse{Team: team}), nil
}

// DeleteTeam deletes a team by ID
func (s *Service) DeleteTeam(ctx context.Context, req *connect.Request[DeleteTeamRequest]) (*connect.Response[DeleteTeamResponse], error) {
	id, err := rpcutil.ParseUUID("id", req.Msg.ID)
	if err != nil {
		return nil, err
	}

	if err := s.app.DeleteTeam(ctx, id); err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&DeleteTeamResponse{Success: true}), nil
}

// ImportTeams upserts teams by code
func (s *Service) ImportTeams(ctx context.Context, req *connect.Request[ImportTeamsRequest]) (*connect.Response[ImportTeamsResponse], error) {
	result, err := s.app.ImportTeams(ctx, req.Msg.Teams)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}

	out := &ImportTeamsResponse{
		TotalProcessed: result.TotalProcessed,
		Created:        result.Created,
		Updated:        result.Updated,
	}
	for _, err := range result.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return connect.NewResponse(out), nil
}
