package stats

import (
	"errors"
	"fmt"
)

// ErrNotOverridable is returned when a manual edit targets a computed score.
var ErrNotOverridable = errors.New("stat is computed and cannot be overridden")

// UnknownStatError is returned for unrecognized stat names.
type UnknownStatError struct {
	Name string
}

func (e *UnknownStatError) Error() string {
	return fmt.Sprintf("unknown stat %q", e.Name)
}

// OutOfRangeError is returned for physically impossible values.
type OutOfRangeError struct {
	Stat  Stat
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s = %g is outside [%g, %g]", e.Stat, e.Value, e.Min, e.Max)
}

// ConflictError is returned under the reject policy when two pins cannot both hold.
type ConflictError struct {
	Kept     Stat
	Released Stat
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("override on %s conflicts with override on %s", e.Kept, e.Released)
}

// InvalidAdjustmentError is returned for unparseable adjustment specs.
type InvalidAdjustmentError struct {
	Spec string
}

func (e *InvalidAdjustmentError) Error() string {
	return fmt.Sprintf("invalid adjustment %q", e.Spec)
}
