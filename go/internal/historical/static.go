package historical

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
)

// Dataset is the JSON document accepted by the static source and the seed tool.
type Dataset struct {
	Seasons     []models.SeasonLine `json:"seasons"`
	TeamSeasons []models.TeamSeason `json:"team_seasons"`
}

// LoadDataset reads a dataset file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	return &ds, nil
}

// Static serves a fixed in-memory dataset.
type Static struct {
	seasons []models.SeasonLine
	teams   map[teamSeasonKey]models.TeamSeason
}

type teamSeasonKey struct {
	teamID uuid.UUID
	season int
}

var _ Source = (*Static)(nil)

func NewStatic(ds Dataset) *Static {
	s := &Static{
		seasons: append([]models.SeasonLine(nil), ds.Seasons...),
		teams:   make(map[teamSeasonKey]models.TeamSeason, len(ds.TeamSeasons)),
	}
	sortSeasons(s.seasons)
	for _, ts := range ds.TeamSeasons {
		s.teams[teamSeasonKey{ts.TeamID, ts.Season}] = ts
	}
	return s
}

func (s *Static) PlayerSeasons(_ context.Context, playerID uuid.UUID, before int) ([]models.SeasonLine, error) {
	var out []models.SeasonLine
	for _, sl := range s.seasons {
		if sl.PlayerID == playerID && sl.Season < before {
			out = append(out, sl)
		}
	}
	return out, nil
}

func (s *Static) PositionSeasons(_ context.Context, pos models.Position, before int) ([]models.SeasonLine, error) {
	var out []models.SeasonLine
	for _, sl := range s.seasons {
		if sl.Position == pos && sl.Season < before {
			out = append(out, sl)
		}
	}
	return out, nil
}

func (s *Static) TeamSeason(_ context.Context, teamID uuid.UUID, season int) (*models.TeamSeason, error) {
	ts, ok := s.teams[teamSeasonKey{teamID, season}]
	if !ok {
		return nil, fmt.Errorf("team %s season %d: %w", teamID, season, ErrNoTeamSeason)
	}
	ts.Totals = ts.Totals.Clone()
	return &ts, nil
}

// sortSeasons orders most recent first, then by player id.
func sortSeasons(seasons []models.SeasonLine) {
	sort.SliceStable(seasons, func(i, j int) bool {
		if seasons[i].Season != seasons[j].Season {
			return seasons[i].Season > seasons[j].Season
		}
		return seasons[i].PlayerID.String() < seasons[j].PlayerID.String()
	})
}
