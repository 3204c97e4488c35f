package teamadjust

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/rpcutil"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

const ServiceName = "projections.v1.TeamAdjustmentService"

// TeamAdjustApp defines what the service layer needs from the adjustment engine
type TeamAdjustApp interface {
	Adjust(ctx context.Context, req Request) (*Result, error)
}

type TeamChange struct {
	Stat       string `json:"stat"`
	Adjustment string `json:"adjustment"`
}

type PlayerShare struct {
	PlayerID string  `json:"player_id"`
	Stat     string  `json:"stat"`
	Share    float64 `json:"share"`
}

type AdjustTeamRequest struct {
	TeamID     string        `json:"team_id"`
	Season     int           `json:"season"`
	ScenarioID string        `json:"scenario_id"`
	Changes    []TeamChange  `json:"changes"`
	Shares     []PlayerShare `json:"shares,omitempty"`
}

type AdjustTeamResponse struct {
	Result *Result `json:"result"`
}

// Service implements the team adjustment connect service
type Service struct {
	app TeamAdjustApp
}

// NewService creates a new team adjustment service
func NewService(app TeamAdjustApp) *Service {
	return &Service{app: app}
}

// Handler returns the mount path and handler for the service.
func (s *Service) Handler() (string, http.Handler) {
	return rpcutil.NewServiceHandler(ServiceName,
		rpcutil.Unary(ServiceName, "AdjustTeam", s.AdjustTeam),
	)
}

// Classify maps adjustment errors to connect codes.
func Classify(err error) (connect.Code, bool) {
	var (
		shareSum    *ShareSumExceedsUnityError
		notTeam     *NotTeamStatError
		notRostered *NotRosteredError
		overAlloc   *OverAllocatedError
		unknownTeam *UnknownTeamError
	)
	switch {
	case errors.As(err, &shareSum), errors.As(err, &notTeam), errors.As(err, &notRostered),
		errors.Is(err, ErrNoChanges):
		return connect.CodeInvalidArgument, true
	case errors.As(err, &overAlloc):
		return connect.CodeFailedPrecondition, true
	case errors.As(err, &unknownTeam):
		return connect.CodeNotFound, true
	}
	return 0, false
}

// AdjustTeam changes team totals and redistributes them across the roster
func (s *Service) AdjustTeam(ctx context.Context, req *connect.Request[AdjustTeamRequest]) (*connect.Response[AdjustTeamResponse], error) {
	teamID, err := rpcutil.ParseUUID("team_id", req.Msg.TeamID)
	if err != nil {
		return nil, err
	}
	scenarioID, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}

	changes := make([]Change, 0, len(req.Msg.Changes))
	for _, c := range req.Msg.Changes {
		stat, err := rpcutil.ParseStat(c.Stat)
		if err != nil {
			return nil, err
		}
		adj, err := stats.ParseAdjustment(c.Adjustment)
		if err != nil {
			return nil, rpcutil.Error(err)
		}
		changes = append(changes, Change{Stat: stat, Adjustment: adj})
	}

	shares := make(map[uuid.UUID]map[stats.Stat]float64)
	for _, sh := range req.Msg.Shares {
		playerID, err := rpcutil.ParseUUID("player_id", sh.PlayerID)
		if err != nil {
			return nil, err
		}
		stat, err := rpcutil.ParseStat(sh.Stat)
		if err != nil {
			return nil, err
		}
		if shares[playerID] == nil {
			shares[playerID] = make(map[stats.Stat]float64)
		}
		shares[playerID][stat] = sh.Share
	}

	result, err := s.app.Adjust(ctx, Request{
		TeamID:     teamID,
		Season:     req.Msg.Season,
		ScenarioID: scenarioID,
		Changes:    changes,
		Shares:     shares,
	})
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&AdjustTeamResponse{Result: result}), nil
}
