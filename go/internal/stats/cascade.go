package stats

import (
	"fmt"
	"math"
)

// ConflictPolicy decides what happens when two pinned stats cannot both hold.
type ConflictPolicy int

const (
	// MostRecentWins releases the older pin and recomputes it from the newer one.
	MostRecentWins ConflictPolicy = iota
	// RejectConflicts fails the cascade with a ConflictError.
	RejectConflicts
)

// ParseConflictPolicy reads a policy from config.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch s {
	case "", "most_recent_wins":
		return MostRecentWins, nil
	case "reject":
		return RejectConflicts, nil
	}
	return 0, fmt.Errorf("unknown conflict policy %q", s)
}

func (p ConflictPolicy) String() string {
	if p == RejectConflicts {
		return "reject"
	}
	return "most_recent_wins"
}

// Pins is the ordered set of pinned stats, oldest first.
type Pins []Stat

// Has reports whether s is pinned.
func (p Pins) Has(s Stat) bool { return p.rank(s) >= 0 }

func (p Pins) rank(s Stat) int {
	for i, v := range p {
		if v == s {
			return i
		}
	}
	return -1
}

// Touch returns a copy with s moved to the most recent position.
func (p Pins) Touch(s Stat) Pins {
	out := p.Without(s)
	return append(out, s)
}

// Without returns a copy with the given stats removed.
func (p Pins) Without(drop ...Stat) Pins {
	out := make(Pins, 0, len(p))
	for _, v := range p {
		keep := true
		for _, d := range drop {
			if v == d {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, v)
		}
	}
	return out
}

// Options tune a cascade.
type Options struct {
	Policy ConflictPolicy
	// Totals are the team volume totals used for share relations; missing totals skip those relations.
	Totals Totals
}

// Outcome is the result of a cascade.
type Outcome struct {
	Line     Line
	Pins     Pins
	Changed  []Stat
	Released []Stat
}

const tolerance = 1e-9

// Same reports whether two stat values are equal within the cascade tolerance.
func Same(a, b float64) bool {
	return math.Abs(a-b) <= tolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

type cascade struct {
	line     Line
	pins     Pins
	opts     Options
	solved   []bool
	queue    []Stat
	changed  []Stat
	seen     map[Stat]bool
	released []Stat
}

// Cascade propagates a change of trigger (already written to l) through every dependent stat.
// Each relation is solved at most once. Pinned stats are fixed points; when two pins collide
// the policy decides which one gives way. Scores are recomputed last.
func Cascade(l Line, trigger Stat, pins Pins, opts Options) (Outcome, error) {
	if _, ok := kinds[trigger]; !ok {
		return Outcome{}, &UnknownStatError{Name: string(trigger)}
	}

	c := &cascade{
		line:   l,
		pins:   append(Pins(nil), pins...),
		opts:   opts,
		solved: make([]bool, len(relations)),
		queue:  []Stat{trigger},
		seen:   map[Stat]bool{trigger: true},
	}
	c.changed = append(c.changed, trigger)

	for len(c.queue) > 0 {
		s := c.queue[0]
		c.queue = c.queue[1:]
		for i, r := range relations {
			if c.solved[i] || !touches(r, s) {
				continue
			}
			c.solved[i] = true
			if err := c.solve(r, s); err != nil {
				return Outcome{}, err
			}
		}
	}

	points, ppg := c.line.FantasyPoints, c.line.FantasyPPG
	c.line.score()
	if !Same(points, c.line.FantasyPoints) {
		c.mark(FantasyPoints)
	}
	if !Same(ppg, c.line.FantasyPPG) {
		c.mark(FantasyPPG)
	}

	return Outcome{
		Line:     c.line,
		Pins:     c.pins,
		Changed:  c.changed,
		Released: c.released,
	}, nil
}

func touches(r Relation, s Stat) bool {
	if r.TeamBase {
		return s == r.Rate || s == r.Out
	}
	return s == r.Base || s == r.Rate || s == r.Out
}

func (c *cascade) solve(r Relation, driver Stat) error {
	if r.TeamBase {
		total := c.opts.Totals[r.Out]
		if total <= 0 {
			return nil
		}
		return c.solvePair(r, driver, total)
	}
	if driver == r.Base {
		return c.solveBase(r)
	}
	return c.solvePair(r, driver, c.line.Get(r.Base))
}

// expected is the value target must take for the relation to hold given the other two members.
func (c *cascade) expected(r Relation, target Stat, base float64) float64 {
	if target == r.Out {
		return base * c.line.Get(r.Rate)
	}
	return ratio(c.line.Get(r.Out), base)
}

func (c *cascade) solveBase(r Relation) error {
	base := c.line.Get(r.Base)
	ratePinned, outPinned := c.pins.Has(r.Rate), c.pins.Has(r.Out)

	switch {
	case ratePinned && outPinned:
		if Same(c.line.Get(r.Out), base*c.line.Get(r.Rate)) {
			return nil
		}
		winner, loser := r.Out, r.Rate
		if c.pins.rank(r.Out) < c.pins.rank(r.Rate) {
			winner, loser = r.Rate, r.Out
		}
		if err := c.release(winner, loser); err != nil {
			return err
		}
		c.set(loser, c.expected(r, loser, base))
	case outPinned:
		c.set(r.Rate, c.expected(r, r.Rate, base))
	case ratePinned:
		c.set(r.Out, c.expected(r, r.Out, base))
	case r.Hold == RateHeld:
		c.set(r.Out, c.expected(r, r.Out, base))
	default:
		c.set(r.Rate, c.expected(r, r.Rate, base))
	}
	return nil
}

func (c *cascade) solvePair(r Relation, driver Stat, base float64) error {
	other := r.Out
	if driver == r.Out {
		other = r.Rate
	}

	want := c.expected(r, other, base)
	if Same(c.line.Get(other), want) {
		return nil
	}
	if !c.pins.Has(other) {
		c.set(other, want)
		return nil
	}

	// An unpinned driver yields to a pinned partner.
	if !c.pins.Has(driver) {
		c.set(driver, c.expected(r, driver, base))
		return nil
	}

	if c.pins.rank(driver) > c.pins.rank(other) {
		if err := c.release(driver, other); err != nil {
			return err
		}
		c.set(other, want)
		return nil
	}
	if err := c.release(other, driver); err != nil {
		return err
	}
	c.set(driver, c.expected(r, driver, base))
	return nil
}

func (c *cascade) release(kept, released Stat) error {
	if c.opts.Policy == RejectConflicts {
		return &ConflictError{Kept: kept, Released: released}
	}
	c.pins = c.pins.Without(released)
	c.released = append(c.released, released)
	return nil
}

func (c *cascade) set(s Stat, v float64) {
	if Same(c.line.Get(s), v) {
		return
	}
	c.line.Set(s, v)
	c.mark(s)
	c.queue = append(c.queue, s)
}

func (c *cascade) mark(s Stat) {
	if c.seen[s] {
		return
	}
	c.seen[s] = true
	c.changed = append(c.changed, s)
}
