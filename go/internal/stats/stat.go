package stats

import "sort"

// Stat names a single statistic on a projection.
type Stat string

// Counting stats
const (
	Games         Stat = "games"
	PassAttempts  Stat = "pass_attempts"
	Completions   Stat = "completions"
	PassYards     Stat = "pass_yards"
	PassTD        Stat = "pass_td"
	Interceptions Stat = "interceptions"
	RushAttempts  Stat = "rush_attempts"
	RushYards     Stat = "rush_yards"
	RushTD        Stat = "rush_td"
	Targets       Stat = "targets"
	Receptions    Stat = "receptions"
	RecYards      Stat = "rec_yards"
	RecTD         Stat = "rec_td"
	FumblesLost   Stat = "fumbles_lost"
)

// Derived efficiency stats
const (
	CompPct       Stat = "comp_pct"
	YardsPerAtt   Stat = "yards_per_att"
	PassTDRate    Stat = "pass_td_rate"
	IntRate       Stat = "int_rate"
	YardsPerCarry Stat = "yards_per_carry"
	RushTDRate    Stat = "rush_td_rate"
	CatchPct      Stat = "catch_pct"
	YardsPerRec   Stat = "yards_per_rec"
	RecTDRate     Stat = "rec_td_rate"
)

// Usage shares
const (
	PassShare   Stat = "pass_share"
	RushShare   Stat = "rush_share"
	TargetShare Stat = "target_share"
	SnapShare   Stat = "snap_share"
)

// Scores
const (
	FantasyPoints Stat = "fantasy_points"
	FantasyPPG    Stat = "fantasy_ppg"
)

// Kind classifies a stat for validation and cascade purposes.
type Kind int

const (
	KindCount Kind = iota
	KindYards
	KindPct
	KindYardRate
	KindShare
	KindScore
)

func (k Kind) String() string {
	switch k {
	case KindCount:
		return "count"
	case KindYards:
		return "yards"
	case KindPct:
		return "pct"
	case KindYardRate:
		return "yard_rate"
	case KindShare:
		return "share"
	case KindScore:
		return "score"
	default:
		return "unknown"
	}
}

var kinds = map[Stat]Kind{
	Games:         KindCount,
	PassAttempts:  KindCount,
	Completions:   KindCount,
	PassYards:     KindYards,
	PassTD:        KindCount,
	Interceptions: KindCount,
	RushAttempts:  KindCount,
	RushYards:     KindYards,
	RushTD:        KindCount,
	Targets:       KindCount,
	Receptions:    KindCount,
	RecYards:      KindYards,
	RecTD:         KindCount,
	FumblesLost:   KindCount,

	CompPct:       KindPct,
	YardsPerAtt:   KindYardRate,
	PassTDRate:    KindPct,
	IntRate:       KindPct,
	YardsPerCarry: KindYardRate,
	RushTDRate:    KindPct,
	CatchPct:      KindPct,
	YardsPerRec:   KindYardRate,
	RecTDRate:     KindPct,

	PassShare:   KindShare,
	RushShare:   KindShare,
	TargetShare: KindShare,
	SnapShare:   KindShare,

	FantasyPoints: KindScore,
	FantasyPPG:    KindScore,
}

// countingStats lists the raw tallies in a stable order.
var countingStats = []Stat{
	Games,
	PassAttempts, Completions, PassYards, PassTD, Interceptions,
	RushAttempts, RushYards, RushTD,
	Targets, Receptions, RecYards, RecTD,
	FumblesLost,
}

// VolumeStats are the player stats that have a team-level total.
var VolumeStats = []Stat{PassAttempts, RushAttempts, Targets}

// Parse validates a stat name.
func Parse(name string) (Stat, error) {
	s := Stat(name)
	if _, ok := kinds[s]; !ok {
		return "", &UnknownStatError{Name: name}
	}
	return s, nil
}

// KindOf returns the kind of a known stat.
func KindOf(s Stat) (Kind, bool) {
	k, ok := kinds[s]
	return k, ok
}

// IsCounting reports whether s is a raw tally (including yardage totals).
func (s Stat) IsCounting() bool {
	k := kinds[s]
	return k == KindCount || k == KindYards
}

// Overridable reports whether s may be pinned by a manual edit.
func (s Stat) Overridable() bool {
	k, ok := kinds[s]
	return ok && k != KindScore
}

// IsVolume reports whether s carries a team-level total.
func (s Stat) IsVolume() bool {
	for _, v := range VolumeStats {
		if v == s {
			return true
		}
	}
	return false
}

// CountingStats returns the counting stats in a stable order.
func CountingStats() []Stat {
	out := make([]Stat, len(countingStats))
	copy(out, countingStats)
	return out
}

// All returns every known stat sorted by name.
func All() []Stat {
	out := make([]Stat, 0, len(kinds))
	for s := range kinds {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
