package stats

import "math"

// Hold says which side of a relation stays fixed when its base moves.
type Hold int

const (
	// RateHeld keeps the rate, so out = base * rate.
	RateHeld Hold = iota
	// CountHeld keeps the count, so rate = out / base.
	CountHeld
)

// Relation ties a derived rate to its counting stats: rate = out / base.
// When TeamBase is set the base is the team total of Out rather than a player stat.
type Relation struct {
	Base     Stat
	Rate     Stat
	Out      Stat
	Hold     Hold
	TeamBase bool
}

var relations = []Relation{
	{Base: PassAttempts, Rate: CompPct, Out: Completions, Hold: RateHeld},
	{Base: PassAttempts, Rate: YardsPerAtt, Out: PassYards, Hold: RateHeld},
	{Base: PassAttempts, Rate: PassTDRate, Out: PassTD, Hold: CountHeld},
	{Base: PassAttempts, Rate: IntRate, Out: Interceptions, Hold: RateHeld},
	{Base: RushAttempts, Rate: YardsPerCarry, Out: RushYards, Hold: RateHeld},
	{Base: RushAttempts, Rate: RushTDRate, Out: RushTD, Hold: CountHeld},
	{Base: Targets, Rate: CatchPct, Out: Receptions, Hold: RateHeld},
	{Base: Receptions, Rate: YardsPerRec, Out: RecYards, Hold: RateHeld},
	{Base: Targets, Rate: RecTDRate, Out: RecTD, Hold: CountHeld},
	{Base: PassAttempts, Rate: PassShare, Out: PassAttempts, Hold: CountHeld, TeamBase: true},
	{Base: RushAttempts, Rate: RushShare, Out: RushAttempts, Hold: CountHeld, TeamBase: true},
	{Base: Targets, Rate: TargetShare, Out: Targets, Hold: CountHeld, TeamBase: true},
}

// Relations returns the static relation table.
func Relations() []Relation {
	out := make([]Relation, len(relations))
	copy(out, relations)
	return out
}

// scoring is the half-PPR table: points per unit of each counting stat.
var scoring = []struct {
	stat   Stat
	points float64
}{
	{PassYards, 0.04},
	{PassTD, 4},
	{Interceptions, -2},
	{RushYards, 0.1},
	{RushTD, 6},
	{Receptions, 0.5},
	{RecYards, 0.1},
	{RecTD, 6},
	{FumblesLost, -2},
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Score computes fantasy points for a line with the half-point-per-reception table, rounded to one decimal.
func Score(l Line) float64 {
	var total float64
	for _, w := range scoring {
		total += l.Get(w.stat) * w.points
	}
	return round(total, 1)
}

// PointsPerGame divides points by games, rounded to two decimals.
func PointsPerGame(points, games float64) float64 {
	return round(ratio(points, games), 2)
}

func (l *Line) score() {
	l.FantasyPoints = Score(*l)
	l.FantasyPPG = PointsPerGame(l.FantasyPoints, l.Games)
}

// Derive recomputes every derived stat from the counting stats.
// Shares are recomputed only for volumes whose team total is known and positive.
func Derive(l Line, totals Totals) Line {
	for _, r := range relations {
		if r.TeamBase {
			if t := totals[r.Out]; t > 0 {
				l.Set(r.Rate, l.Get(r.Out)/t)
			}
			continue
		}
		l.Set(r.Rate, ratio(l.Get(r.Out), l.Get(r.Base)))
	}
	l.score()
	return l
}

// DependsOn returns the formula inputs of s. Counting stats and snap share have none.
func DependsOn(s Stat) []Stat {
	switch s {
	case FantasyPoints:
		out := make([]Stat, 0, len(scoring))
		for _, w := range scoring {
			out = append(out, w.stat)
		}
		return out
	case FantasyPPG:
		return []Stat{FantasyPoints, Games}
	}
	for _, r := range relations {
		if r.Rate == s {
			if r.TeamBase {
				return []Stat{r.Out}
			}
			return []Stat{r.Out, r.Base}
		}
	}
	return nil
}

var downstream = buildDownstream()

func buildDownstream() map[Stat]map[Stat]bool {
	edges := make(map[Stat][]Stat)
	add := func(from, to Stat) { edges[from] = append(edges[from], to) }
	for _, r := range relations {
		if !r.TeamBase {
			add(r.Base, r.Rate)
			add(r.Base, r.Out)
		}
		add(r.Rate, r.Out)
		add(r.Out, r.Rate)
	}
	for _, w := range scoring {
		add(w.stat, FantasyPoints)
	}
	add(FantasyPoints, FantasyPPG)
	add(Games, FantasyPPG)

	out := make(map[Stat]map[Stat]bool, len(kinds))
	for s := range kinds {
		seen := map[Stat]bool{}
		queue := []Stat{s}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range edges[cur] {
				if next != s && !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
		out[s] = seen
	}
	return out
}

// Downstream reports whether a cascade started at from may change to.
func Downstream(from, to Stat) bool {
	return downstream[from][to]
}

// DownstreamOf returns every stat a cascade started at s may change.
func DownstreamOf(s Stat) []Stat {
	var out []Stat
	for _, t := range All() {
		if downstream[s][t] {
			out = append(out, t)
		}
	}
	return out
}
