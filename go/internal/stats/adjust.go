package stats

import (
	"strconv"
	"strings"
)

// AdjustmentMode says how an adjustment combines with the current value.
type AdjustmentMode int

const (
	Absolute AdjustmentMode = iota
	Delta
	Relative
)

// Adjustment is a parsed edit spec: "220" sets, "+25" adds, "+10%" scales.
type Adjustment struct {
	Mode  AdjustmentMode `json:"mode"`
	Value float64        `json:"value"`
}

// ParseAdjustment parses an adjustment spec.
func ParseAdjustment(spec string) (Adjustment, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return Adjustment{}, &InvalidAdjustmentError{Spec: spec}
	}

	mode := Absolute
	switch {
	case strings.HasSuffix(s, "%"):
		mode = Relative
		s = strings.TrimSuffix(s, "%")
	case strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-"):
		mode = Delta
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Adjustment{}, &InvalidAdjustmentError{Spec: spec}
	}
	return Adjustment{Mode: mode, Value: v}, nil
}

// Apply returns the adjusted value.
func (a Adjustment) Apply(current float64) float64 {
	switch a.Mode {
	case Delta:
		return current + a.Value
	case Relative:
		return current * (1 + a.Value/100)
	default:
		return a.Value
	}
}

func (a Adjustment) String() string {
	v := strconv.FormatFloat(a.Value, 'f', -1, 64)
	switch a.Mode {
	case Delta:
		if a.Value >= 0 {
			return "+" + v
		}
		return v
	case Relative:
		if a.Value >= 0 {
			return "+" + v + "%"
		}
		return v + "%"
	}
	return v
}
