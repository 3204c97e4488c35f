package override

import "errors"

// ErrOverrideNotFound is returned when reverting a stat that is not overridden.
var ErrOverrideNotFound = errors.New("override not found")

// ErrDuplicatePlayer marks a batch entry naming a player already listed earlier in the batch.
var ErrDuplicatePlayer = errors.New("player listed more than once")
