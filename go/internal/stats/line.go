package stats

// Line is a full season stat profile with one field per stat.
type Line struct {
	Games         float64 `json:"games"`
	PassAttempts  float64 `json:"pass_attempts"`
	Completions   float64 `json:"completions"`
	PassYards     float64 `json:"pass_yards"`
	PassTD        float64 `json:"pass_td"`
	Interceptions float64 `json:"interceptions"`
	RushAttempts  float64 `json:"rush_attempts"`
	RushYards     float64 `json:"rush_yards"`
	RushTD        float64 `json:"rush_td"`
	Targets       float64 `json:"targets"`
	Receptions    float64 `json:"receptions"`
	RecYards      float64 `json:"rec_yards"`
	RecTD         float64 `json:"rec_td"`
	FumblesLost   float64 `json:"fumbles_lost"`

	CompPct       float64 `json:"comp_pct"`
	YardsPerAtt   float64 `json:"yards_per_att"`
	PassTDRate    float64 `json:"pass_td_rate"`
	IntRate       float64 `json:"int_rate"`
	YardsPerCarry float64 `json:"yards_per_carry"`
	RushTDRate    float64 `json:"rush_td_rate"`
	CatchPct      float64 `json:"catch_pct"`
	YardsPerRec   float64 `json:"yards_per_rec"`
	RecTDRate     float64 `json:"rec_td_rate"`

	PassShare   float64 `json:"pass_share"`
	RushShare   float64 `json:"rush_share"`
	TargetShare float64 `json:"target_share"`
	SnapShare   float64 `json:"snap_share"`

	FantasyPoints float64 `json:"fantasy_points"`
	FantasyPPG    float64 `json:"fantasy_ppg"`
}

func (l *Line) field(s Stat) *float64 {
	switch s {
	case Games:
		return &l.Games
	case PassAttempts:
		return &l.PassAttempts
	case Completions:
		return &l.Completions
	case PassYards:
		return &l.PassYards
	case PassTD:
		return &l.PassTD
	case Interceptions:
		return &l.Interceptions
	case RushAttempts:
		return &l.RushAttempts
	case RushYards:
		return &l.RushYards
	case RushTD:
		return &l.RushTD
	case Targets:
		return &l.Targets
	case Receptions:
		return &l.Receptions
	case RecYards:
		return &l.RecYards
	case RecTD:
		return &l.RecTD
	case FumblesLost:
		return &l.FumblesLost
	case CompPct:
		return &l.CompPct
	case YardsPerAtt:
		return &l.YardsPerAtt
	case PassTDRate:
		return &l.PassTDRate
	case IntRate:
		return &l.IntRate
	case YardsPerCarry:
		return &l.YardsPerCarry
	case RushTDRate:
		return &l.RushTDRate
	case CatchPct:
		return &l.CatchPct
	case YardsPerRec:
		return &l.YardsPerRec
	case RecTDRate:
		return &l.RecTDRate
	case PassShare:
		return &l.PassShare
	case RushShare:
		return &l.RushShare
	case TargetShare:
		return &l.TargetShare
	case SnapShare:
		return &l.SnapShare
	case FantasyPoints:
		return &l.FantasyPoints
	case FantasyPPG:
		return &l.FantasyPPG
	}
	return nil
}

// Get returns the value of s, or 0 for an unknown stat.
func (l Line) Get(s Stat) float64 {
	if f := l.field(s); f != nil {
		return *f
	}
	return 0
}

// Set writes v to s. Unknown stats are ignored.
func (l *Line) Set(s Stat, v float64) {
	if f := l.field(s); f != nil {
		*f = v
	}
}

// Values returns the line as a name-keyed map, used for comparisons and wire output.
func (l Line) Values() map[Stat]float64 {
	out := make(map[Stat]float64, len(kinds))
	for s := range kinds {
		out[s] = l.Get(s)
	}
	return out
}

// Scale multiplies every counting stat except games by f.
func (l Line) Scale(f float64) Line {
	for _, s := range countingStats {
		if s == Games {
			continue
		}
		l.Set(s, l.Get(s)*f)
	}
	return l
}

// Totals holds team-level volume totals keyed by the player volume stat.
type Totals map[Stat]float64

// Clone returns an independent copy.
func (t Totals) Clone() Totals {
	if t == nil {
		return nil
	}
	out := make(Totals, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
