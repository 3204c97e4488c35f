package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/rpcutil"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

const ServiceName = "projections.v1.ScenarioService"

// ScenarioApp defines what the service layer needs from the scenario manager
type ScenarioApp interface {
	CreateBaseline(ctx context.Context, req CreateRequest) (*models.Scenario, error)
	Fork(ctx context.Context, req ForkRequest) (*ForkResult, error)
	Compare(ctx context.Context, req CompareRequest) (*Comparison, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Scenario, error)
	List(ctx context.Context) ([]models.Scenario, error)
	Lineage(ctx context.Context, id uuid.UUID) ([]models.Scenario, error)
}

type CreateBaselineRequest struct {
	Name     string          `json:"name"`
	Season   int             `json:"season"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

type ForkScenarioRequest struct {
	BaseScenarioID string          `json:"base_scenario_id"`
	Name           string          `json:"name"`
	Settings       json.RawMessage `json:"settings,omitempty"`
}

type ForkScenarioResponse struct {
	Result *ForkResult `json:"result"`
}

type CompareScenariosRequest struct {
	ScenarioIDs []string `json:"scenario_ids"`
	Stats       []string `json:"stats,omitempty"`
}

type CompareScenariosResponse struct {
	Comparison *Comparison `json:"comparison"`
}

type ScenarioIDRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type ScenarioResponse struct {
	Scenario *models.Scenario `json:"scenario"`
}

type ListScenariosRequest struct{}

type ListScenariosResponse struct {
	Scenarios []models.Scenario `json:"scenarios"`
}

type DeleteScenarioResponse struct{}

// Service implements the scenario connect service
type Service struct {
	app ScenarioApp
}

// NewService creates a new scenario service
func NewService(app ScenarioApp) *Service {
	return &Service{app: app}
}

// Handler returns the mount path and handler for the service.
func (s *Service) Handler() (string, http.Handler) {
	return rpcutil.NewServiceHandler(ServiceName,
		rpcutil.Unary(ServiceName, "CreateBaseline", s.CreateBaseline),
		rpcutil.Unary(ServiceName, "ForkScenario", s.ForkScenario),
		rpcutil.Unary(ServiceName, "CompareScenarios", s.CompareScenarios),
		rpcutil.Unary(ServiceName, "DeleteScenario", s.DeleteScenario),
		rpcutil.Unary(ServiceName, "GetScenario", s.GetScenario),
		rpcutil.Unary(ServiceName, "ListScenarios", s.ListScenarios),
		rpcutil.Unary(ServiceName, "GetLineage", s.GetLineage),
	)
}

// Classify maps scenario errors to connect codes.
func Classify(err error) (connect.Code, bool) {
	var baseline *BaselineDeletionError
	switch {
	case errors.As(err, &baseline):
		return connect.CodeFailedPrecondition, true
	case errors.Is(err, ErrBaselineExists):
		return connect.CodeAlreadyExists, true
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrNoScenarios), errors.Is(err, ErrInvalidSeason):
		return connect.CodeInvalidArgument, true
	}
	return 0, false
}

func (s *Service) CreateBaseline(ctx context.Context, req *connect.Request[CreateBaselineRequest]) (*connect.Response[ScenarioResponse], error) {
	sc, err := s.app.CreateBaseline(ctx, CreateRequest{
		Name:     req.Msg.Name,
		Season:   req.Msg.Season,
		Settings: req.Msg.Settings,
	})
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&ScenarioResponse{Scenario: sc}), nil
}

func (s *Service) ForkScenario(ctx context.Context, req *connect.Request[ForkScenarioRequest]) (*connect.Response[ForkScenarioResponse], error) {
	baseID, err := rpcutil.ParseUUID("base_scenario_id", req.Msg.BaseScenarioID)
	if err != nil {
		return nil, err
	}

	result, err := s.app.Fork(ctx, ForkRequest{
		BaseScenarioID: baseID,
		Name:           req.Msg.Name,
		Settings:       req.Msg.Settings,
	})
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&ForkScenarioResponse{Result: result}), nil
}

func (s *Service) CompareScenarios(ctx context.Context, req *connect.Request[CompareScenariosRequest]) (*connect.Response[CompareScenariosResponse], error) {
	ids, err := rpcutil.ParseUUIDs("scenario_ids", req.Msg.ScenarioIDs)
	if err != nil {
		return nil, err
	}
	var subset []stats.Stat
	for _, name := range req.Msg.Stats {
		st, err := rpcutil.ParseStat(name)
		if err != nil {
			return nil, err
		}
		subset = append(subset, st)
	}

	cmp, err := s.app.Compare(ctx, CompareRequest{ScenarioIDs: ids, Stats: subset})
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&CompareScenariosResponse{Comparison: cmp}), nil
}

func (s *Service) DeleteScenario(ctx context.Context, req *connect.Request[ScenarioIDRequest]) (*connect.Response[DeleteScenarioResponse], error) {
	id, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}
	if err := s.app.Delete(ctx, id); err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&DeleteScenarioResponse{}), nil
}

func (s *Service) GetScenario(ctx context.Context, req *connect.Request[ScenarioIDRequest]) (*connect.Response[ScenarioResponse], error) {
	id, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}
	sc, err := s.app.Get(ctx, id)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&ScenarioResponse{Scenario: sc}), nil
}

func (s *Service) ListScenarios(ctx context.Context, _ *connect.Request[ListScenariosRequest]) (*connect.Response[ListScenariosResponse], error) {
	list, err := s.app.List(ctx)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&ListScenariosResponse{Scenarios: list}), nil
}

func (s *Service) GetLineage(ctx context.Context, req *connect.Request[ScenarioIDRequest]) (*connect.Response[ListScenariosResponse], error) {
	id, err := rpcutil.ParseUUID("scenario_id", req.Msg.ScenarioID)
	if err != nil {
		return nil, err
	}
	chain, err := s.app.Lineage(ctx, id)
	if err != nil {
		return nil, rpcutil.Error(err, Classify)
	}
	return connect.NewResponse(&ListScenariosResponse{Scenarios: chain}), nil
}
