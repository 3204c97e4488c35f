// Package memory is an in-process implementation of store.Store.
// Transactions clone the whole state, run against the clone, and swap it in on success.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
)

// Store is safe for concurrent use. Writers are serialized.
type Store struct {
	mu    sync.RWMutex
	state state
	clock clockwork.Clock
}

var (
	_ store.Store        = (*Store)(nil)
	_ store.OutboxReader = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for outbox timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{state: newState(), clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InTx runs fn against a private copy of the state and commits it only if fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &txn{st: ptr(s.state.clone()), now: s.clock.Now}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = *tx.st
	return nil
}

func ptr(st state) *state { return &st }

func (s *Store) view() *txn {
	return &txn{st: &s.state, now: s.clock.Now}
}

func (s *Store) write(ctx context.Context, fn func(q *txn) error) error {
	return s.InTx(ctx, func(q store.Queries) error { return fn(q.(*txn)) })
}

func (s *Store) CreateTeam(ctx context.Context, t models.Team) error {
	return s.write(ctx, func(q *txn) error { return q.CreateTeam(ctx, t) })
}

func (s *Store) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetTeam(ctx, id)
}

func (s *Store) GetTeamByCode(ctx context.Context, code string) (*models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetTeamByCode(ctx, code)
}

func (s *Store) ListTeams(ctx context.Context) ([]models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListTeams(ctx)
}

func (s *Store) UpdateTeam(ctx context.Context, t models.Team) error {
	return s.write(ctx, func(q *txn) error { return q.UpdateTeam(ctx, t) })
}

func (s *Store) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	return s.write(ctx, func(q *txn) error { return q.DeleteTeam(ctx, id) })
}

func (s *Store) CreatePlayer(ctx context.Context, p models.Player) error {
	return s.write(ctx, func(q *txn) error { return q.CreatePlayer(ctx, p) })
}

func (s *Store) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetPlayer(ctx, id)
}

func (s *Store) GetPlayerByExternalID(ctx context.Context, externalID string) (*models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetPlayerByExternalID(ctx, externalID)
}

func (s *Store) ListPlayersByTeam(ctx context.Context, teamID uuid.UUID) ([]models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListPlayersByTeam(ctx, teamID)
}

func (s *Store) UpdatePlayerTeam(ctx context.Context, id uuid.UUID, teamID *uuid.UUID) error {
	return s.write(ctx, func(q *txn) error { return q.UpdatePlayerTeam(ctx, id, teamID) })
}

func (s *Store) DeletePlayer(ctx context.Context, id uuid.UUID) error {
	return s.write(ctx, func(q *txn) error { return q.DeletePlayer(ctx, id) })
}

func (s *Store) CreateScenario(ctx context.Context, sc models.Scenario) error {
	return s.write(ctx, func(q *txn) error { return q.CreateScenario(ctx, sc) })
}

func (s *Store) GetScenario(ctx context.Context, id uuid.UUID) (*models.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetScenario(ctx, id)
}

func (s *Store) ListScenarios(ctx context.Context) ([]models.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListScenarios(ctx)
}

func (s *Store) DeleteScenario(ctx context.Context, id uuid.UUID) error {
	return s.write(ctx, func(q *txn) error { return q.DeleteScenario(ctx, id) })
}

func (s *Store) InsertProjection(ctx context.Context, p models.Projection) error {
	return s.write(ctx, func(q *txn) error { return q.InsertProjection(ctx, p) })
}

func (s *Store) UpdateProjection(ctx context.Context, p models.Projection) error {
	return s.write(ctx, func(q *txn) error { return q.UpdateProjection(ctx, p) })
}

func (s *Store) GetProjection(ctx context.Context, playerID uuid.UUID, season int, scenarioID uuid.UUID) (*models.Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetProjection(ctx, playerID, season, scenarioID)
}

func (s *Store) ListProjectionsByTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) ([]models.Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListProjectionsByTeam(ctx, teamID, season, scenarioID)
}

func (s *Store) ListProjectionsByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.Projection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListProjectionsByScenario(ctx, scenarioID)
}

func (s *Store) GetTeamStat(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) (*models.TeamStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetTeamStat(ctx, teamID, season, scenarioID)
}

func (s *Store) UpsertTeamStat(ctx context.Context, ts models.TeamStat) error {
	return s.write(ctx, func(q *txn) error { return q.UpsertTeamStat(ctx, ts) })
}

func (s *Store) ListTeamStatsByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.TeamStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListTeamStatsByScenario(ctx, scenarioID)
}

func (s *Store) GetOverride(ctx context.Context, projectionID uuid.UUID, stat stats.Stat) (*models.StatOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().GetOverride(ctx, projectionID, stat)
}

func (s *Store) UpsertOverride(ctx context.Context, o models.StatOverride) error {
	return s.write(ctx, func(q *txn) error { return q.UpsertOverride(ctx, o) })
}

func (s *Store) DeleteOverride(ctx context.Context, projectionID uuid.UUID, stat stats.Stat) error {
	return s.write(ctx, func(q *txn) error { return q.DeleteOverride(ctx, projectionID, stat) })
}

func (s *Store) ListOverridesByProjection(ctx context.Context, projectionID uuid.UUID) ([]models.StatOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListOverridesByProjection(ctx, projectionID)
}

func (s *Store) ListOverridesByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.StatOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().ListOverridesByScenario(ctx, scenarioID)
}

func (s *Store) LockTeam(context.Context, uuid.UUID, int, uuid.UUID) error {
	return nil
}

func (s *Store) InsertOutboxEvent(ctx context.Context, ev models.OutboxEvent) error {
	return s.write(ctx, func(q *txn) error { return q.InsertOutboxEvent(ctx, ev) })
}

func (s *Store) FetchUnsentOutbox(_ context.Context, limit int32) ([]models.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().fetchUnsent(limit), nil
}

func (s *Store) FetchOutboxByID(_ context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view().fetchByID(id)
}

func (s *Store) MarkOutboxSent(ctx context.Context, ids ...uuid.UUID) error {
	return s.write(ctx, func(q *txn) error {
		q.markSent(ids)
		return nil
	})
}
