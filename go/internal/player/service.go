package player

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/rpcutil"
)

const ServiceName = "projections.v1.PlayerService"

// PlayerApp defines what the service layer needs from the player application
type PlayerApp interface {
	CreatePlayer(ctx context.Context, req CreatePlayerRequest) (*models.Player, error)
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	GetPlayerByExternalID(ctx context.Context, externalID string) (*models.Player, error)
	ListPlayersByTeam(ctx context.Context, teamID uuid.UUID) ([]models.Player, error)
	UpdatePlayerTeam(ctx context.Context, id uuid.UUID, teamID *uuid.UUID) (*models.Player, error)
	DeletePlayer(ctx context.Context, id uuid.UUID) error
	ImportPlayers(ctx context.Context, reqs []CreatePlayerRequest) (*ImportResult, error)
}

type PlayerResponse struct {
	Player *models.Player `json:"player"`
}

type GetPlayerRequest struct {
	ID string `json:"id"`
}

type GetPlayerByExternalIDRequest struct {
	ExternalID string `json:"external_id"`
}

type ListPlayersByTeamRequest struct {
	TeamID string `json:"team_id"`
}

type ListPlayersResponse struct {
	Players []models.Player `json:"players"`
}

type UpdatePlayerTeamRequest struct {
	ID string `json:"id"`
	// TeamID empty releases the player.
	TeamID string `json:"team_id,omitempty"`
}

type DeletePlayerRequest struct {
	ID string `json:"id"`
}

type DeletePlayerResponse struct {
	Success bool `json:"success"`
}

type ImportPlayersRequest struct {
	Players []CreatePlayerRequest `json:"players"`
}

type ImportPlayersResponse struct {
	TotalProcessed int      `json:"total_processed"`
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	Unchanged      int      `json:"unchanged"`
	Errors         []string `json:"errors,omitempty"`
}

// Service implements the player connect service
type Service struct {
	app PlayerApp
}

// NewService creates a new player service
func NewService(app PlayerApp) *Service {
	return &Service{
		app: app,
	}
}

// Handler returns the mount path and handler for the service.
func (s *Service) Handler() (string, http.Handler) {
	return rpcutil.NewServiceHandler(ServiceName,
		rpcutil.Unary(ServiceName, "CreatePlayer", s.CreatePlayer),
		rpcutil.Unary(ServiceName, "GetPlayer", s.GetPlayer),
		rpcutil.Unary(ServiceName, "GetPlayerByExternalID", s.GetPlayerByExternalID),
		rpcutil.Unary(ServiceName, "ListPlayersByTeam", s.ListPlayersByTeam),
		rpcutil.Unary(ServiceName, "UpdatePlayerTeam", s.UpdatePlayerTeam),
		rpcutil.Unary(ServiceName, "DeletePlayer", s.DeletePlayer),
		rpcutil.Unary(ServiceName, "ImportPlayers", s.ImportPlayers),
	)
}

// Classify maps player validation errors to connect codes.
func Classify(err error) (connect.Code, bool) {
	switch {
	case errors.Is(err, ErrExternalIDRequired), errors.Is(err, ErrFullNameRequired), errors.Is(err, ErrInvalidDraftPick),
		errors.Is(err, ErrUnknownTeam):
		return connect.CodeInvalidArgument, true
	}
	return 0, false
}

// CreatePlayer creates a new player
func (s *Service) CreatePlayer(ctx context.Context, req *connect.Request[CreatePlayerRequest]) (*connect.Response[PlayerResponse], error) {
	player, err := s.app.CreatePlayer(ctx, *req.Msg)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&PlayerResponse{Player: player}), nil
}

// GetPlayer retrieves a player by ID
func (s *Service) GetPlayer(ctx context.Context, req *connect.Request[GetPlayerRequest]) (*connect.Response[PlayerResponse], error) {
	id, err := rpcutil.ParseUUID("id", req.Msg.ID)
	if err != nil {
		return nil, err
	}

	player, err := s.app.GetPlayer(ctx, id)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&PlayerResponse{Player: player}), nil
}

// GetPlayerByExternalID retrieves a player by external ID
func (s *Service) GetPlayerByExternalID(ctx context.Context, req *connect.Request[GetPlayerByExternalIDRequest]) (*connect.Response[PlayerResponse], error) {
	player, err := s.app.GetPlayerByExternalID(ctx, req.Msg.ExternalID)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&PlayerResponse{Player: player}), nil
}

// ListPlayersByTeam lists a team's roster
func (s *Service) ListPlayersByTeam(ctx context.Context, req *connect.Request[ListPlayersByTeamRequest]) (*connect.Response[ListPlayersResponse], error) {
	teamID, err := rpcutil.ParseUUID("team_id", req.Msg.TeamID)
	if err != nil {
		return nil, err
	}

	players, err := s.app.ListPlayersByTeam(ctx, teamID)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&ListPlayersResponse{Players: players}), nil
}

// UpdatePlayerTeam moves or releases a player
func (s *Service) UpdatePlayerTeam(ctx context.Context, req *connect.Request[UpdatePlayerTeamRequest]) (*connect.Response[PlayerResponse], error) {
	id, err := rpcutil.ParseUUID("id", req.Msg.ID)
	if err != nil {
		return nil, err
	}
	var teamID *uuid.UUID
	if req.Msg.TeamID != "" {
		t, err := rpcutil.ParseUUID("team_id", req.Msg.TeamID)
		if err != nil {
			return nil, err
		}
		teamID = &t
	}

	player, err := s.app.UpdatePlayerTeam(ctx, id, teamID)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&PlayerResponse{Player: player}), nil
}

// DeletePlayer deletes a player by ID
func (s *Service) DeletePlayer(ctx context.Context, req *connect.Request[DeletePlayerRequest]) (*connect.Response[DeletePlayerResponse], error) {
	id, err := rpcutil.ParseUUID("id", req.Msg.ID)
	if err != nil {
		return nil, err
	}

	if err := s.app.DeletePlayer(ctx, id); err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&DeletePlayerResponse{Success: true}), nil
}

// ImportPlayers upserts a roster by external ID
func (s *Service) ImportPlayers(ctx context.Context, req *connect.Request[ImportPlayersRequest]) (*connect.Response[ImportPlayersResponse], error) {
	result, err := s.app.ImportPlayers(ctx, req.Msg.Players)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(importResultToResponse(result)), nil
}

func importResultToResponse(r *ImportResult) *ImportPlayersResponse {
	out := &ImportPlayersResponse{
		TotalProcessed: r.TotalProcessed,
		Created:        r.Created,
		Updated:        r.Updated,
		Unchanged:      r.Unchanged,
	}
	for _, err := range r.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}
