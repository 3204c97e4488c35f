package roster

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// Epsilon is the tolerance for the team-sum invariant.
const Epsilon = 1e-6

// fillNamespace seeds deterministic fill player ids.
var fillNamespace = uuid.MustParse("6f1c2a52-93d4-4c3e-9d0b-6a7f2f0e7b11")

// FillPlayerID is the synthetic player that absorbs a team's unattributed volume.
// It is the same in every scenario so forks line up in comparisons.
func FillPlayerID(teamID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(fillNamespace, teamID[:])
}

// NewFill returns an empty fill projection for a team.
func NewFill(teamID uuid.UUID, season int, scenarioID uuid.UUID, now time.Time) models.Projection {
	return models.Projection{
		ID:         uuid.New(),
		PlayerID:   FillPlayerID(teamID),
		TeamID:     teamID,
		Season:     season,
		ScenarioID: scenarioID,
		Position:   models.PositionFill,
		IsFill:     true,
		Source:     models.SourceFill,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// FindFill returns the index of the fill projection, or -1.
func FindFill(ps []models.Projection) int {
	for i := range ps {
		if ps[i].IsFill {
			return i
		}
	}
	return -1
}

// Sum adds a stat across every projection, fill included.
func Sum(ps []models.Projection, s stats.Stat) float64 {
	var total float64
	for i := range ps {
		total += ps[i].Stats.Get(s)
	}
	return total
}

// Named adds a stat across named (non-fill) players.
func Named(ps []models.Projection, s stats.Stat) float64 {
	var total float64
	for i := range ps {
		if !ps[i].IsFill {
			total += ps[i].Stats.Get(s)
		}
	}
	return total
}

// Residual is the volume left for the fill player once named players are allocated.
// Values within Epsilon of zero are snapped to zero.
func Residual(total float64, ps []models.Projection, s stats.Stat) float64 {
	r := total - Named(ps, s)
	if math.Abs(r) <= Epsilon*math.Max(1, total) {
		return 0
	}
	return r
}

// Totals returns the team totals for cascades, or nil when no team stat exists.
func Totals(ts *models.TeamStat) stats.Totals {
	if ts == nil {
		return nil
	}
	return ts.Totals
}

// CheckConsistency compares each team total with the sum of the roster's projections.
// Mismatches are reported, never corrected.
func CheckConsistency(ts *models.TeamStat, ps []models.Projection) []models.ConsistencyWarning {
	if ts == nil {
		return nil
	}
	var warnings []models.ConsistencyWarning
	for _, s := range stats.VolumeStats {
		expected, ok := ts.Totals[s]
		if !ok {
			continue
		}
		actual := Sum(ps, s)
		if math.Abs(actual-expected) > Epsilon*math.Max(1, math.Abs(expected)) {
			warnings = append(warnings, models.ConsistencyWarning{
				TeamID:   ts.TeamID,
				Stat:     s,
				Expected: expected,
				Actual:   actual,
			})
		}
	}
	return warnings
}
