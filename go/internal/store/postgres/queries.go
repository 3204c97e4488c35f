package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/sqlutil"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries implements store.Queries over a pool or a transaction.
type Queries struct {
	db DBTX
}

var _ store.Queries = (*Queries)(nil)

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Teams

const createTeam = `-- name: CreateTeam :exec
INSERT INTO teams (id, code, name, city, conference, division, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (q *Queries) CreateTeam(ctx context.Context, t models.Team) error {
	_, err := q.db.ExecContext(ctx, createTeam, t.ID, t.Code, t.Name, t.City, t.Conference, t.Division, t.CreatedAt)
	return mapErr(err, fmt.Sprintf("team %s", t.Code))
}

const teamColumns = `id, code, name, city, conference, division, created_at`

func scanTeam(row rowScanner) (models.Team, error) {
	var t models.Team
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.City, &t.Conference, &t.Division, &t.CreatedAt)
	return t, err
}

const getTeam = `-- name: GetTeam :one
SELECT ` + teamColumns + ` FROM teams WHERE id = $1`

func (q *Queries) GetTeam(ctx context.Context, id uuid.UUID) (*models.Team, error) {
	t, err := scanTeam(q.db.QueryRowContext(ctx, getTeam, id))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("team %s", id))
	}
	return &t, nil
}

const getTeamByCode = `-- name: GetTeamByCode :one
SELECT ` + teamColumns + ` FROM teams WHERE code = $1`

func (q *Queries) GetTeamByCode(ctx context.Context, code string) (*models.Team, error) {
	t, err := scanTeam(q.db.QueryRowContext(ctx, getTeamByCode, code))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("team with code %q", code))
	}
	return &t, nil
}

const listTeams = `-- name: ListTeams :many
SELECT ` + teamColumns + ` FROM teams ORDER BY code`

func (q *Queries) ListTeams(ctx context.Context) ([]models.Team, error) {
	rows, err := q.db.QueryContext(ctx, listTeams)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var out []models.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const updateTeam = `-- name: UpdateTeam :execrows
UPDATE teams SET code = $2, name = $3, city = $4, conference = $5, division = $6 WHERE id = $1`

func (q *Queries) UpdateTeam(ctx context.Context, t models.Team) error {
	res, err := q.db.ExecContext(ctx, updateTeam, t.ID, t.Code, t.Name, t.City, t.Conference, t.Division)
	if err != nil {
		return mapErr(err, fmt.Sprintf("team %s", t.Code))
	}
	return requireRow(res, fmt.Sprintf("team %s", t.ID))
}

const deleteTeam = `-- name: DeleteTeam :execrows
DELETE FROM teams WHERE id = $1`

func (q *Queries) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, deleteTeam, id)
	if err != nil {
		return mapErr(err, fmt.Sprintf("team %s", id))
	}
	return requireRow(res, fmt.Sprintf("team %s", id))
}

// Players

const createPlayer = `-- name: CreatePlayer :exec
INSERT INTO players (id, external_id, full_name, position, team_id, draft_year, draft_pick, undrafted, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (q *Queries) CreatePlayer(ctx context.Context, p models.Player) error {
	_, err := q.db.ExecContext(ctx, createPlayer,
		p.ID, p.ExternalID, p.FullName, string(p.Position), p.TeamID,
		p.DraftYear, p.DraftPick, p.Undrafted, p.CreatedAt,
	)
	return mapErr(err, fmt.Sprintf("player %s", p.ID))
}

const playerColumns = `id, external_id, full_name, position, team_id, draft_year, draft_pick, undrafted, created_at`

func scanPlayer(row rowScanner) (models.Player, error) {
	var (
		p         models.Player
		pos       string
		teamID    sql.Null[uuid.UUID]
		draftYear sql.Null[int]
		draftPick sql.Null[int]
	)
	if err := row.Scan(&p.ID, &p.ExternalID, &p.FullName, &pos, &teamID, &draftYear, &draftPick, &p.Undrafted, &p.CreatedAt); err != nil {
		return models.Player{}, err
	}
	p.Position = models.Position(pos)
	p.TeamID = sqlutil.Ptr(teamID)
	p.DraftYear = sqlutil.Ptr(draftYear)
	p.DraftPick = sqlutil.Ptr(draftPick)
	return p, nil
}

const getPlayer = `-- name: GetPlayer :one
SELECT ` + playerColumns + ` FROM players WHERE id = $1`

func (q *Queries) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	p, err := scanPlayer(q.db.QueryRowContext(ctx, getPlayer, id))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("player %s", id))
	}
	return &p, nil
}

const getPlayerByExternalID = `-- name: GetPlayerByExternalID :one
SELECT ` + playerColumns + ` FROM players WHERE external_id = $1`

func (q *Queries) GetPlayerByExternalID(ctx context.Context, externalID string) (*models.Player, error) {
	p, err := scanPlayer(q.db.QueryRowContext(ctx, getPlayerByExternalID, externalID))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("player with external id %q", externalID))
	}
	return &p, nil
}

const listPlayersByTeam = `-- name: ListPlayersByTeam :many
SELECT ` + playerColumns + ` FROM players WHERE team_id = $1 ORDER BY id`

func (q *Queries) ListPlayersByTeam(ctx context.Context, teamID uuid.UUID) ([]models.Player, error) {
	rows, err := q.db.QueryContext(ctx, listPlayersByTeam, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var out []models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const updatePlayerTeam = `-- name: UpdatePlayerTeam :execrows
UPDATE players SET team_id = $2 WHERE id = $1`

func (q *Queries) UpdatePlayerTeam(ctx context.Context, id uuid.UUID, teamID *uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, updatePlayerTeam, id, teamID)
	if err != nil {
		return mapErr(err, fmt.Sprintf("player %s", id))
	}
	return requireRow(res, fmt.Sprintf("player %s", id))
}

// Fill projections have no players row, so projections are removed here rather than by a foreign key.
const deletePlayer = `-- name: DeletePlayer :one
WITH gone AS (
    DELETE FROM players WHERE id = $1 RETURNING id
), dropped AS (
    DELETE FROM projections WHERE player_id IN (SELECT id FROM gone)
)
SELECT count(*) FROM gone`

func (q *Queries) DeletePlayer(ctx context.Context, id uuid.UUID) error {
	var n int
	if err := q.db.QueryRowContext(ctx, deletePlayer, id).Scan(&n); err != nil {
		return mapErr(err, fmt.Sprintf("player %s", id))
	}
	if n == 0 {
		return fmt.Errorf("player %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// Scenarios

const createScenario = `-- name: CreateScenario :exec
INSERT INTO scenarios (id, name, season, base_scenario_id, is_baseline, kind, settings, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (q *Queries) CreateScenario(ctx context.Context, s models.Scenario) error {
	_, err := q.db.ExecContext(ctx, createScenario,
		s.ID, s.Name, s.Season, s.BaseScenarioID, s.IsBaseline, string(s.Kind),
		pqtype.NullRawMessage{RawMessage: s.Settings, Valid: len(s.Settings) > 0}, s.CreatedAt,
	)
	return mapErr(err, fmt.Sprintf("scenario %s", s.ID))
}

const scenarioColumns = `id, name, season, base_scenario_id, is_baseline, kind, settings, created_at`

func scanScenario(row rowScanner) (models.Scenario, error) {
	var (
		s        models.Scenario
		base     sql.Null[uuid.UUID]
		kind     string
		settings pqtype.NullRawMessage
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Season, &base, &s.IsBaseline, &kind, &settings, &s.CreatedAt); err != nil {
		return models.Scenario{}, err
	}
	s.BaseScenarioID = sqlutil.Ptr(base)
	s.Kind = models.ScenarioKind(kind)
	if settings.Valid {
		s.Settings = settings.RawMessage
	}
	return s, nil
}

const getScenario = `-- name: GetScenario :one
SELECT ` + scenarioColumns + ` FROM scenarios WHERE id = $1`

func (q *Queries) GetScenario(ctx context.Context, id uuid.UUID) (*models.Scenario, error) {
	s, err := scanScenario(q.db.QueryRowContext(ctx, getScenario, id))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("scenario %s", id))
	}
	return &s, nil
}

const listScenarios = `-- name: ListScenarios :many
SELECT ` + scenarioColumns + ` FROM scenarios ORDER BY created_at, id`

func (q *Queries) ListScenarios(ctx context.Context) ([]models.Scenario, error) {
	rows, err := q.db.QueryContext(ctx, listScenarios)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	defer rows.Close()

	var out []models.Scenario
	for rows.Next() {
		s, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Projections, team stats and overrides go with the scenario through ON DELETE CASCADE;
// children keep existing with base_scenario_id set to NULL.
const deleteScenario = `-- name: DeleteScenario :execrows
DELETE FROM scenarios WHERE id = $1`

func (q *Queries) DeleteScenario(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, deleteScenario, id)
	if err != nil {
		return mapErr(err, fmt.Sprintf("scenario %s", id))
	}
	return requireRow(res, fmt.Sprintf("scenario %s", id))
}

// Projections

const insertProjection = `-- name: InsertProjection :exec
INSERT INTO projections (id, player_id, team_id, season, scenario_id, position, is_fill, source, stats, pinned, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (q *Queries) InsertProjection(ctx context.Context, p models.Projection) error {
	line, err := json.Marshal(p.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode projection stats: %w", err)
	}
	_, err = q.db.ExecContext(ctx, insertProjection,
		p.ID, p.PlayerID, p.TeamID, p.Season, p.ScenarioID, string(p.Position), p.IsFill, string(p.Source),
		line, pq.Array(pinNames(p.Pinned)), p.CreatedAt, p.UpdatedAt,
	)
	return mapErr(err, fmt.Sprintf("projection for player %s season %d", p.PlayerID, p.Season))
}

const updateProjection = `-- name: UpdateProjection :execrows
UPDATE projections
SET team_id = $2, position = $3, is_fill = $4, source = $5, stats = $6, pinned = $7, updated_at = $8
WHERE id = $1`

func (q *Queries) UpdateProjection(ctx context.Context, p models.Projection) error {
	line, err := json.Marshal(p.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode projection stats: %w", err)
	}
	res, err := q.db.ExecContext(ctx, updateProjection,
		p.ID, p.TeamID, string(p.Position), p.IsFill, string(p.Source), line, pq.Array(pinNames(p.Pinned)), p.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, fmt.Sprintf("projection %s", p.ID))
	}
	return requireRow(res, fmt.Sprintf("projection %s", p.ID))
}

const projectionColumns = `id, player_id, team_id, season, scenario_id, position, is_fill, source, stats, pinned, created_at, updated_at`

func scanProjection(row rowScanner) (models.Projection, error) {
	var (
		p      models.Projection
		pos    string
		source string
		line   []byte
		pinned []string
	)
	if err := row.Scan(&p.ID, &p.PlayerID, &p.TeamID, &p.Season, &p.ScenarioID, &pos, &p.IsFill, &source,
		&line, pq.Array(&pinned), &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.Projection{}, err
	}
	if err := json.Unmarshal(line, &p.Stats); err != nil {
		return models.Projection{}, fmt.Errorf("failed to decode projection stats: %w", err)
	}
	p.Position = models.Position(pos)
	p.Source = models.ProjectionSource(source)
	for _, name := range pinned {
		p.Pinned = append(p.Pinned, stats.Stat(name))
	}
	return p, nil
}

const getProjection = `-- name: GetProjection :one
SELECT ` + projectionColumns + ` FROM projections
WHERE player_id = $1 AND season = $2 AND scenario_id = $3`

func (q *Queries) GetProjection(ctx context.Context, playerID uuid.UUID, season int, scenarioID uuid.UUID) (*models.Projection, error) {
	p, err := scanProjection(q.db.QueryRowContext(ctx, getProjection, playerID, season, scenarioID))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("projection for player %s season %d", playerID, season))
	}
	return &p, nil
}

const listProjectionsByTeam = `-- name: ListProjectionsByTeam :many
SELECT ` + projectionColumns + ` FROM projections
WHERE team_id = $1 AND season = $2 AND scenario_id = $3
ORDER BY is_fill, player_id, season`

func (q *Queries) ListProjectionsByTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) ([]models.Projection, error) {
	return q.listProjections(ctx, listProjectionsByTeam, teamID, season, scenarioID)
}

const listProjectionsByScenario = `-- name: ListProjectionsByScenario :many
SELECT ` + projectionColumns + ` FROM projections
WHERE scenario_id = $1
ORDER BY is_fill, player_id, season`

func (q *Queries) ListProjectionsByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.Projection, error) {
	return q.listProjections(ctx, listProjectionsByScenario, scenarioID)
}

func (q *Queries) listProjections(ctx context.Context, query string, args ...interface{}) ([]models.Projection, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projections: %w", err)
	}
	defer rows.Close()

	var out []models.Projection
	for rows.Next() {
		p, err := scanProjection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan projection: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Team stats

const getTeamStat = `-- name: GetTeamStat :one
SELECT team_id, season, scenario_id, totals, updated_at FROM team_stats
WHERE team_id = $1 AND season = $2 AND scenario_id = $3`

func scanTeamStat(row rowScanner) (models.TeamStat, error) {
	var (
		ts     models.TeamStat
		totals []byte
	)
	if err := row.Scan(&ts.TeamID, &ts.Season, &ts.ScenarioID, &totals, &ts.UpdatedAt); err != nil {
		return models.TeamStat{}, err
	}
	if err := json.Unmarshal(totals, &ts.Totals); err != nil {
		return models.TeamStat{}, fmt.Errorf("failed to decode team totals: %w", err)
	}
	return ts, nil
}

func (q *Queries) GetTeamStat(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) (*models.TeamStat, error) {
	ts, err := scanTeamStat(q.db.QueryRowContext(ctx, getTeamStat, teamID, season, scenarioID))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("team stat for team %s season %d", teamID, season))
	}
	return &ts, nil
}

const upsertTeamStat = `-- name: UpsertTeamStat :exec
INSERT INTO team_stats (team_id, season, scenario_id, totals, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (team_id, season, scenario_id)
DO UPDATE SET totals = EXCLUDED.totals, updated_at = EXCLUDED.updated_at`

func (q *Queries) UpsertTeamStat(ctx context.Context, ts models.TeamStat) error {
	totals, err := json.Marshal(ts.Totals)
	if err != nil {
		return fmt.Errorf("failed to encode team totals: %w", err)
	}
	_, err = q.db.ExecContext(ctx, upsertTeamStat, ts.TeamID, ts.Season, ts.ScenarioID, totals, ts.UpdatedAt)
	return mapErr(err, fmt.Sprintf("team stat for team %s season %d", ts.TeamID, ts.Season))
}

const listTeamStatsByScenario = `-- name: ListTeamStatsByScenario :many
SELECT team_id, season, scenario_id, totals, updated_at FROM team_stats
WHERE scenario_id = $1
ORDER BY team_id, season`

func (q *Queries) ListTeamStatsByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.TeamStat, error) {
	rows, err := q.db.QueryContext(ctx, listTeamStatsByScenario, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team stats: %w", err)
	}
	defer rows.Close()

	var out []models.TeamStat
	for rows.Next() {
		ts, err := scanTeamStat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team stat: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// Overrides

const overrideColumns = `o.id, o.projection_id, o.stat, o.calculated_value, o.manual_value, o.reason, o.created_at, o.updated_at`

func scanOverride(row rowScanner) (models.StatOverride, error) {
	var (
		o    models.StatOverride
		stat string
	)
	if err := row.Scan(&o.ID, &o.ProjectionID, &stat, &o.CalculatedValue, &o.ManualValue, &o.Reason, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return models.StatOverride{}, err
	}
	o.Stat = stats.Stat(stat)
	return o, nil
}

const getOverride = `-- name: GetOverride :one
SELECT ` + overrideColumns + ` FROM stat_overrides o
WHERE o.projection_id = $1 AND o.stat = $2`

func (q *Queries) GetOverride(ctx context.Context, projectionID uuid.UUID, stat stats.Stat) (*models.StatOverride, error) {
	o, err := scanOverride(q.db.QueryRowContext(ctx, getOverride, projectionID, string(stat)))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("override %s on projection %s", stat, projectionID))
	}
	return &o, nil
}

// The first override keeps its id and created_at; later edits update the values.
const upsertOverride = `-- name: UpsertOverride :exec
INSERT INTO stat_overrides (id, projection_id, stat, calculated_value, manual_value, reason, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (projection_id, stat)
DO UPDATE SET calculated_value = EXCLUDED.calculated_value,
              manual_value = EXCLUDED.manual_value,
              reason = EXCLUDED.reason,
              updated_at = EXCLUDED.updated_at`

func (q *Queries) UpsertOverride(ctx context.Context, o models.StatOverride) error {
	_, err := q.db.ExecContext(ctx, upsertOverride,
		o.ID, o.ProjectionID, string(o.Stat), o.CalculatedValue, o.ManualValue, o.Reason, o.CreatedAt, o.UpdatedAt,
	)
	return mapErr(err, fmt.Sprintf("override %s on projection %s", o.Stat, o.ProjectionID))
}

const deleteOverride = `-- name: DeleteOverride :exec
DELETE FROM stat_overrides WHERE projection_id = $1 AND stat = $2`

func (q *Queries) DeleteOverride(ctx context.Context, projectionID uuid.UUID, stat stats.Stat) error {
	if _, err := q.db.ExecContext(ctx, deleteOverride, projectionID, string(stat)); err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	return nil
}

const listOverridesByProjection = `-- name: ListOverridesByProjection :many
SELECT ` + overrideColumns + ` FROM stat_overrides o
WHERE o.projection_id = $1
ORDER BY o.stat`

func (q *Queries) ListOverridesByProjection(ctx context.Context, projectionID uuid.UUID) ([]models.StatOverride, error) {
	return q.listOverrides(ctx, listOverridesByProjection, projectionID)
}

const listOverridesByScenario = `-- name: ListOverridesByScenario :many
SELECT ` + overrideColumns + ` FROM stat_overrides o
JOIN projections p ON p.id = o.projection_id
WHERE p.scenario_id = $1
ORDER BY o.projection_id, o.stat`

func (q *Queries) ListOverridesByScenario(ctx context.Context, scenarioID uuid.UUID) ([]models.StatOverride, error) {
	return q.listOverrides(ctx, listOverridesByScenario, scenarioID)
}

func (q *Queries) listOverrides(ctx context.Context, query string, arg uuid.UUID) ([]models.StatOverride, error) {
	rows, err := q.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var out []models.StatOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Locks

// The lock is released when the surrounding transaction ends. Outside a transaction
// it only lasts for the statement.
const lockTeam = `-- name: LockTeam :exec
SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

func (q *Queries) LockTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) error {
	key := fmt.Sprintf("team:%s:%d:%s", teamID, season, scenarioID)
	if _, err := q.db.ExecContext(ctx, lockTeam, key); err != nil {
		return fmt.Errorf("failed to lock team %s: %w", teamID, err)
	}
	return nil
}

// Outbox

const insertOutboxEvent = `-- name: InsertOutboxEvent :exec
INSERT INTO outbox (id, scenario_id, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, COALESCE($5, now()))`

func (q *Queries) InsertOutboxEvent(ctx context.Context, ev models.OutboxEvent) error {
	_, err := q.db.ExecContext(ctx, insertOutboxEvent,
		ev.ID, ev.ScenarioID, ev.EventType, []byte(ev.Payload), sqlutil.NullTime(ev.CreatedAt),
	)
	return mapErr(err, fmt.Sprintf("outbox event %s", ev.ID))
}

const fetchUnsentOutbox = `-- name: FetchUnsentOutbox :many
SELECT id, scenario_id, event_type, payload, created_at, sent_at
FROM outbox
WHERE sent_at IS NULL
ORDER BY created_at, id
LIMIT $1`

func scanOutboxEvent(row rowScanner) (models.OutboxEvent, error) {
	var (
		ev      models.OutboxEvent
		payload []byte
		sentAt  sql.Null[time.Time]
	)
	if err := row.Scan(&ev.ID, &ev.ScenarioID, &ev.EventType, &payload, &ev.CreatedAt, &sentAt); err != nil {
		return models.OutboxEvent{}, err
	}
	ev.Payload = json.RawMessage(payload)
	ev.SentAt = sqlutil.Ptr(sentAt)
	return ev, nil
}

func (q *Queries) FetchUnsentOutbox(ctx context.Context, limit int32) ([]models.OutboxEvent, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox: %w", err)
	}
	defer rows.Close()

	var out []models.OutboxEvent
	for rows.Next() {
		ev, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

const fetchOutboxByID = `-- name: FetchOutboxByID :one
SELECT id, scenario_id, event_type, payload, created_at, sent_at
FROM outbox
WHERE id = $1 AND sent_at IS NULL`

func (q *Queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	ev, err := scanOutboxEvent(q.db.QueryRowContext(ctx, fetchOutboxByID, id))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("outbox event %s not found or already sent", id))
	}
	return &ev, nil
}

const markOutboxSent = `-- name: MarkOutboxSent :exec
UPDATE outbox SET sent_at = $2 WHERE id = ANY($1::uuid[]) AND sent_at IS NULL`

func (q *Queries) MarkOutboxSent(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	if _, err := q.db.ExecContext(ctx, markOutboxSent, pq.Array(strs), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark outbox sent: %w", err)
	}
	return nil
}

func pinNames(p stats.Pins) []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = string(s)
	}
	return out
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}
