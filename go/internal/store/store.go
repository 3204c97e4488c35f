// Package store defines the persistence contract shared by the projection engines.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// ErrNotFound is returned (wrapped) when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned (wrapped) when an insert collides with an existing record.
var ErrAlreadyExists = errors.New("already exists")

// Queries is the full set of reads and writes. Implementations bound to a transaction
// see their own uncommitted writes.
type Queries interface {
	// Players
	CreatePlayer(ctx context.Context, p models.Player) error
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	GetPlayerByExternalID(ctx context.Context, externalID string) (*models.Player, error)
	ListPlayersByTeam(ctx context.Context, teamID uuid.UUID) ([]models.Player, error)
	UpdatePlayerTeam(ctx context.Context, id uuid.UUID, teamID *uuid.UUID) error
	DeletePlayer(ctx context.Context, id uuid.UUID) error

	// Teams
	CreateTeam(ctx context.Context, t models.Team) error
	GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error)
	GetTeamByCode(ctx context.Context, code string) (*models.Team, error)
	ListTeams(ctx context.Context) ([]models.Team, error)
	UpdateTeam(ctx context.Context, t models.Team) error
	DeleteTeam(ctx context.Context, id uuid.UUID) error

	// Scenarios
	CreateScenario(ctx context.Context, s models.Scenario) error
	GetScenario(ctx context.Context, id uuid.UUID) (*models.Scenario, error)
	ListScenarios(ctx context.Context) ([]models.Scenario, error)
	DeleteScenario(ctx context.Context, id uuid.UUID) error

	// Projections
	InsertProjection(ctx context.Context, p models.Projection) error
	UpdateProjection(ctx context.Context, p models.Projection) error
	GetProjection(ctx context.Context, playerID uuid.UUID, season int, scenarioID uuid.UUID) (*models.Projection, error)
	ListProjectionsByTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) ([]models.Projection, error)
	ListProjectionsByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.Projection, error)

	// Team stats
	GetTeamStat(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) (*models.TeamStat, error)
	UpsertTeamStat(ctx context.Context, ts models.TeamStat) error
	ListTeamStatsByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.TeamStat, error)

	// Overrides
	GetOverride(ctx context.Context, projectionID uuid.UUID, stat stats.Stat) (*models.StatOverride, error)
	UpsertOverride(ctx context.Context, o models.StatOverride) error
	DeleteOverride(ctx context.Context, projectionID uuid.UUID, stat stats.Stat) error
	ListOverridesByProjection(ctx context.Context, projectionID uuid.UUID) ([]models.StatOverride, error)
	ListOverridesByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.StatOverride, error)

	// LockTeam serializes redistributions of one team-season-scenario until the transaction ends.
	LockTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) error

	// Outbox
	InsertOutboxEvent(ctx context.Context, ev models.OutboxEvent) error
}

// Store runs reads directly and groups writes into all-or-nothing transactions.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
}

// OutboxReader is used by the outbox relay to drain unsent events.
type OutboxReader interface {
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]models.OutboxEvent, error)
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, ids ...uuid.UUID) error
}
