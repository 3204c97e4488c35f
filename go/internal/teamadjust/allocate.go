package teamadjust

import (
	"math"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/roster"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// ShareStat returns the usage share tied to a team volume stat.
func ShareStat(volume stats.Stat) (stats.Stat, bool) {
	for _, r := range stats.Relations() {
		if r.TeamBase && r.Out == volume {
			return r.Rate, true
		}
	}
	return "", false
}

// Plan is the redistribution of one team stat.
type Plan struct {
	Stat  stats.Stat
	Total float64
	// Values holds the new volume of each named player.
	Values map[uuid.UUID]float64
	// Unpin lists players whose pinned volume gave way to an explicit share.
	Unpin map[uuid.UUID]bool
	Fill  float64
}

// Allocate splits total across the named players in ps. In order of precedence a
// player gets: an explicit share, their pinned share, their pinned volume unchanged,
// or their share of the prior total. Prior-share allocations shrink proportionally
// when the fixed ones leave too little; whatever remains goes to the fill player.
func Allocate(ps []models.Projection, stat stats.Stat, prior, total float64, explicit map[uuid.UUID]float64) (*Plan, error) {
	shareStat, ok := ShareStat(stat)
	if !ok {
		return nil, &NotTeamStatError{Stat: stat}
	}

	plan := &Plan{
		Stat:   stat,
		Total:  total,
		Values: make(map[uuid.UUID]float64, len(ps)),
		Unpin:  make(map[uuid.UUID]bool),
	}

	var fixed, derived float64
	var floating []uuid.UUID
	for i := range ps {
		p := &ps[i]
		if p.IsFill {
			continue
		}
		current := p.Stats.Get(stat)

		if share, ok := explicit[p.PlayerID]; ok {
			plan.Values[p.PlayerID] = total * share
			if p.Pinned.Has(stat) {
				plan.Unpin[p.PlayerID] = true
			}
			fixed += total * share
			continue
		}

		sharePinned, volumePinned := p.Pinned.Has(shareStat), p.Pinned.Has(stat)
		switch {
		case sharePinned && (!volumePinned || newer(p.Pinned, shareStat, stat)):
			v := total * p.Stats.Get(shareStat)
			plan.Values[p.PlayerID] = v
			fixed += v
		case volumePinned:
			plan.Values[p.PlayerID] = current
			fixed += current
		default:
			v := 0.0
			if prior > 0 {
				v = total * current / prior
			}
			plan.Values[p.PlayerID] = v
			derived += v
			floating = append(floating, p.PlayerID)
		}
	}

	remaining := total - fixed
	if derived > 0 && derived > remaining {
		f := math.Max(remaining, 0) / derived
		for _, id := range floating {
			plan.Values[id] *= f
		}
	}

	var named float64
	for _, v := range plan.Values {
		named += v
	}
	fill := total - named
	switch {
	case math.Abs(fill) <= roster.Epsilon*math.Max(1, total):
		fill = 0
	case fill < 0:
		return nil, &OverAllocatedError{Stat: stat, Allocated: named, Total: total}
	}
	plan.Fill = fill
	return plan, nil
}

// newer reports whether a was pinned more recently than b.
func newer(pins stats.Pins, a, b stats.Stat) bool {
	ra, rb := -1, -1
	for i, s := range pins {
		switch s {
		case a:
			ra = i
		case b:
			rb = i
		}
	}
	return ra > rb
}
