package stats

import "math"

// MaxGames is the length of the regular season.
const MaxGames = 17

// Bounds returns the valid range for s.
func Bounds(s Stat) (lo, hi float64) {
	switch kinds[s] {
	case KindCount:
		if s == Games {
			return 0, MaxGames
		}
		return 0, math.Inf(1)
	case KindPct, KindShare:
		return 0, 1
	default:
		return math.Inf(-1), math.Inf(1)
	}
}

// Validate checks that v is a physically possible value for s.
func Validate(s Stat, v float64) error {
	if _, ok := kinds[s]; !ok {
		return &UnknownStatError{Name: string(s)}
	}
	lo, hi := Bounds(s)
	if math.IsNaN(v) || math.IsInf(v, 0) || v < lo || v > hi {
		return &OutOfRangeError{Stat: s, Value: v, Min: lo, Max: hi}
	}
	return nil
}

// ValidateLine checks every stat on the line and returns the first violation by name order.
func ValidateLine(l Line) error {
	for _, s := range All() {
		if err := Validate(s, l.Get(s)); err != nil {
			return err
		}
	}
	return nil
}

// Clamp forces v into the valid range of s.
func Clamp(s Stat, v float64) float64 {
	lo, hi := Bounds(s)
	return math.Max(lo, math.Min(hi, v))
}
