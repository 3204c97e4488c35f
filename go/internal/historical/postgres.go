package historical

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Postgres reads the player_seasons and team_seasons tables.
type Postgres struct {
	db DBTX
}

var _ Source = (*Postgres)(nil)

func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

const playerSeasons = `-- name: PlayerSeasons :many
SELECT player_id, season, team_id, position, stats
FROM player_seasons
WHERE player_id = $1 AND season < $2
ORDER BY season DESC, team_id`

func (p *Postgres) PlayerSeasons(ctx context.Context, playerID uuid.UUID, before int) ([]models.SeasonLine, error) {
	rows, err := p.db.QueryContext(ctx, playerSeasons, playerID, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query player seasons: %w", err)
	}
	return scanSeasons(rows)
}

const positionSeasons = `-- name: PositionSeasons :many
SELECT player_id, season, team_id, position, stats
FROM player_seasons
WHERE position = $1 AND season < $2
ORDER BY season DESC, player_id`

func (p *Postgres) PositionSeasons(ctx context.Context, pos models.Position, before int) ([]models.SeasonLine, error) {
	rows, err := p.db.QueryContext(ctx, positionSeasons, string(pos), before)
	if err != nil {
		return nil, fmt.Errorf("failed to query position seasons: %w", err)
	}
	return scanSeasons(rows)
}

const teamSeason = `-- name: TeamSeason :one
SELECT team_id, season, totals
FROM team_seasons
WHERE team_id = $1 AND season = $2`

func (p *Postgres) TeamSeason(ctx context.Context, teamID uuid.UUID, season int) (*models.TeamSeason, error) {
	var (
		ts     models.TeamSeason
		totals []byte
	)
	err := p.db.QueryRowContext(ctx, teamSeason, teamID, season).Scan(&ts.TeamID, &ts.Season, &totals)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("team %s season %d: %w", teamID, season, ErrNoTeamSeason)
		}
		return nil, fmt.Errorf("failed to get team season: %w", err)
	}
	if err := json.Unmarshal(totals, &ts.Totals); err != nil {
		return nil, fmt.Errorf("failed to decode team season totals: %w", err)
	}
	return &ts, nil
}

func scanSeasons(rows *sql.Rows) ([]models.SeasonLine, error) {
	defer rows.Close()
	var out []models.SeasonLine
	for rows.Next() {
		var (
			sl  models.SeasonLine
			pos string
			raw []byte
		)
		if err := rows.Scan(&sl.PlayerID, &sl.Season, &sl.TeamID, &pos, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan player season: %w", err)
		}
		sl.Position = models.Position(pos)
		var line stats.Line
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, fmt.Errorf("failed to decode player season stats: %w", err)
		}
		sl.Stats = line
		out = append(out, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read player seasons: %w", err)
	}
	return out, nil
}
