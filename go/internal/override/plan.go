package override

import (
	"fmt"

	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

// plan is a computed but not yet stored override of one projection.
type plan struct {
	before  models.Projection
	after   models.Projection
	stat    stats.Stat
	value   float64
	outcome stats.Outcome
	noop    bool
}

// check rejects edits that can never be applied, before anything is read.
func check(stat stats.Stat, value float64) error {
	if _, ok := stats.KindOf(stat); !ok {
		return &stats.UnknownStatError{Name: string(stat)}
	}
	if !stat.Overridable() {
		return stats.ErrNotOverridable
	}
	return stats.Validate(stat, value)
}

// compute pins stat at value and cascades. Re-pinning the current pinned value is a no-op.
func compute(p models.Projection, stat stats.Stat, value float64, opts stats.Options) (*plan, error) {
	if err := check(stat, value); err != nil {
		return nil, err
	}
	pl := &plan{before: p, after: p.Clone(), stat: stat, value: value}
	if p.Pinned.Has(stat) && stats.Same(p.Stats.Get(stat), value) {
		pl.noop = true
		return pl, nil
	}

	if err := pl.cascade(p.Pinned.Touch(stat), opts); err != nil {
		return nil, err
	}
	return pl, nil
}

// release unpins stat, restores value and cascades from it.
func release(p models.Projection, stat stats.Stat, value float64, opts stats.Options) (*plan, error) {
	pl := &plan{before: p, after: p.Clone(), stat: stat, value: value}
	if err := pl.cascade(p.Pinned.Without(stat), opts); err != nil {
		return nil, err
	}
	return pl, nil
}

// cascade writes the planned value under pins and propagates it. A line the
// cascade pushes outside physical bounds, such as more receptions than targets,
// is rejected.
func (pl *plan) cascade(pins stats.Pins, opts stats.Options) error {
	line := pl.before.Stats
	line.Set(pl.stat, pl.value)
	out, err := stats.Cascade(line, pl.stat, pins, opts)
	if err != nil {
		return err
	}
	if err := stats.ValidateLine(out.Line); err != nil {
		return fmt.Errorf("%s = %v: %w", pl.stat, pl.value, err)
	}
	pl.outcome = out
	pl.after.Stats = out.Line
	pl.after.Pinned = out.Pins
	return nil
}
