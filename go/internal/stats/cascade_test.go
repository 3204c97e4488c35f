package stats

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sampleTotals() Totals {
	return Totals{PassAttempts: 600, RushAttempts: 420, Targets: 560}
}

func sampleLine() Line {
	l := Line{
		Games:         17,
		PassAttempts:  550,
		Completions:   360,
		PassYards:     4000,
		PassTD:        28,
		Interceptions: 10,
		RushAttempts:  200,
		RushYards:     900,
		RushTD:        8,
		Targets:       80,
		Receptions:    60,
		RecYards:      480,
		RecTD:         2,
		FumblesLost:   2,
		SnapShare:     0.95,
	}
	return Derive(l, sampleTotals())
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Abs(b))
}

func TestCascadePinnedRateHoldsOnVolumeOverride(t *testing.T) {
	l := sampleLine()
	l.YardsPerCarry = 4.5
	l.RushYards = 900
	l.RushAttempts = 200
	pins := Pins{YardsPerCarry}
	rushTD := l.RushTD

	l.RushAttempts = 220
	out, err := Cascade(l, RushAttempts, pins.Touch(RushAttempts), Options{Totals: sampleTotals()})
	if err != nil {
		t.Fatalf("Cascade: %v", err)
	}
	if !approx(out.Line.RushYards, 990) {
		t.Fatalf("rush_yards = %v, want 990", out.Line.RushYards)
	}
	if out.Line.RushTD != rushTD {
		t.Fatalf("rush_td = %v, want unchanged %v", out.Line.RushTD, rushTD)
	}
	if !approx(out.Line.RushTDRate, rushTD/220) {
		t.Fatalf("rush_td_rate = %v, want %v", out.Line.RushTDRate, rushTD/220)
	}
	if !approx(out.Line.RushShare, 220.0/420) {
		t.Fatalf("rush_share = %v, want %v", out.Line.RushShare, 220.0/420)
	}
	if len(out.Released) != 0 {
		t.Fatalf("released = %v, want none", out.Released)
	}
}

func TestCascadeVolumeOverrideRecomputesDownstream(t *testing.T) {
	l := sampleLine()
	compPct := l.CompPct
	l.PassAttempts = 600

	out, err := Cascade(l, PassAttempts, Pins{PassAttempts}, Options{})
	if err != nil {
		t.Fatalf("Cascade: %v", err)
	}
	if !approx(out.Line.Completions, 600*compPct) {
		t.Fatalf("completions = %v, want %v", out.Line.Completions, 600*compPct)
	}
	if !approx(out.Line.CompPct, compPct) {
		t.Fatalf("comp_pct = %v, want %v", out.Line.CompPct, compPct)
	}
	if out.Line.PassTD != 28 {
		t.Fatalf("pass_td = %v, want 28", out.Line.PassTD)
	}
	if out.Line.FantasyPoints != Score(out.Line) {
		t.Fatalf("fantasy_points = %v, want %v", out.Line.FantasyPoints, Score(out.Line))
	}
}

func TestCascadeSkipsPinnedOut(t *testing.T) {
	l := sampleLine()
	pins := Pins{Completions}
	l.PassAttempts = 500

	out, err := Cascade(l, PassAttempts, pins.Touch(PassAttempts), Options{})
	if err != nil {
		t.Fatalf("Cascade: %v", err)
	}
	if out.Line.Completions != 360 {
		t.Fatalf("completions = %v, want pinned 360", out.Line.Completions)
	}
	if !approx(out.Line.CompPct, 360.0/500) {
		t.Fatalf("comp_pct = %v, want %v", out.Line.CompPct, 360.0/500)
	}
}

func TestCascadeConflictMostRecentWins(t *testing.T) {
	l := sampleLine()
	// rush_yards pinned first, yards_per_carry pinned later.
	pins := Pins{RushYards, YardsPerCarry}
	l.RushAttempts = 250

	out, err := Cascade(l, RushAttempts, pins.Touch(RushAttempts), Options{})
	if err != nil {
		t.Fatalf("Cascade: %v", err)
	}
	if len(out.Released) != 1 || out.Released[0] != RushYards {
		t.Fatalf("released = %v, want [rush_yards]", out.Released)
	}
	if out.Pins.Has(RushYards) {
		t.Fatalf("rush_yards still pinned: %v", out.Pins)
	}
	if !approx(out.Line.RushYards, 250*4.5) {
		t.Fatalf("rush_yards = %v, want %v", out.Line.RushYards, 250*4.5)
	}
}

func TestCascadeConflictReject(t *testing.T) {
	l := sampleLine()
	pins := Pins{RushYards, YardsPerCarry}
	l.RushAttempts = 250

	_, err := Cascade(l, RushAttempts, pins.Touch(RushAttempts), Options{Policy: RejectConflicts})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if conflict.Kept != YardsPerCarry || conflict.Released != RushYards {
		t.Fatalf("conflict = %+v, want kept yards_per_carry released rush_yards", conflict)
	}
}

func TestCascadeNewerOutBeatsOlderRate(t *testing.T) {
	l := sampleLine()
	pins := Pins{YardsPerCarry}
	l.RushYards = 1100

	out, err := Cascade(l, RushYards, pins.Touch(RushYards), Options{})
	if err != nil {
		t.Fatalf("Cascade: %v", err)
	}
	if !approx(out.Line.YardsPerCarry, 1100.0/200) {
		t.Fatalf("yards_per_carry = %v, want %v", out.Line.YardsPerCarry, 1100.0/200)
	}
	if len(out.Released) != 1 || out.Released[0] != YardsPerCarry {
		t.Fatalf("released = %v, want [yards_per_carry]", out.Released)
	}
}

func TestCascadeUnpinnedDriverYieldsToPin(t *testing.T) {
	l := sampleLine()
	// rush_yards is pinned; yards_per_carry is being reverted to a stale value.
	pins := Pins{RushYards}
	l.YardsPerCarry = 3.0

	out, err := Cascade(l, YardsPerCarry, pins, Options{})
	if err != nil {
		t.Fatalf("Cascade: %v", err)
	}
	if out.Line.RushYards != 900 {
		t.Fatalf("rush_yards = %v, want pinned 900", out.Line.RushYards)
	}
	if !approx(out.Line.YardsPerCarry, 4.5) {
		t.Fatalf("yards_per_carry = %v, want 4.5", out.Line.YardsPerCarry)
	}
}

func TestCascadeOnlyTouchesDownstream(t *testing.T) {
	for _, x := range All() {
		if !x.Overridable() {
			continue
		}
		x := x
		t.Run(string(x), func(t *testing.T) {
			before := sampleLine()
			l := before
			switch kinds[x] {
			case KindPct, KindShare:
				l.Set(x, l.Get(x)*0.9)
			default:
				if x == Games {
					l.Set(x, 16)
				} else {
					l.Set(x, l.Get(x)*1.1)
				}
			}

			out, err := Cascade(l, x, Pins{x}, Options{Totals: sampleTotals()})
			if err != nil {
				t.Fatalf("Cascade: %v", err)
			}
			for _, s := range All() {
				if s == x || Downstream(x, s) {
					continue
				}
				if out.Line.Get(s) != before.Get(s) {
					t.Fatalf("%s changed from %v to %v without depending on %s", s, before.Get(s), out.Line.Get(s), x)
				}
			}
			for _, r := range Relations() {
				if r.TeamBase || out.Line.Get(r.Base) == 0 {
					continue
				}
				if !approx(out.Line.Get(r.Out), out.Line.Get(r.Base)*out.Line.Get(r.Rate)) {
					t.Fatalf("%s = %v, want %s*%s = %v", r.Out, out.Line.Get(r.Out), r.Base, r.Rate,
						out.Line.Get(r.Base)*out.Line.Get(r.Rate))
				}
			}
			if out.Line.FantasyPoints != Score(out.Line) {
				t.Fatalf("fantasy_points = %v, want %v", out.Line.FantasyPoints, Score(out.Line))
			}
		})
	}
}

func TestCascadeVolumeRoundTrip(t *testing.T) {
	want := sampleLine()
	opts := Options{Totals: sampleTotals()}

	l := want
	l.RushAttempts = 260
	up, err := Cascade(l, RushAttempts, Pins{RushAttempts}, opts)
	if err != nil {
		t.Fatalf("Cascade up: %v", err)
	}
	back := up.Line
	back.RushAttempts = want.RushAttempts
	down, err := Cascade(back, RushAttempts, Pins{RushAttempts}, opts)
	if err != nil {
		t.Fatalf("Cascade down: %v", err)
	}
	if diff := cmp.Diff(want, down.Line, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("line after round trip (-want +got):\n%s", diff)
	}
}

func TestCascadeUnknownStat(t *testing.T) {
	_, err := Cascade(sampleLine(), Stat("punts"), nil, Options{})
	var unknown *UnknownStatError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownStatError", err)
	}
}

func TestPinsTouch(t *testing.T) {
	p := Pins{PassAttempts, RushYards, Targets}
	got := p.Touch(PassAttempts)
	want := Pins{RushYards, Targets, PassAttempts}
	if len(got) != len(want) {
		t.Fatalf("Touch = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Touch = %v, want %v", got, want)
		}
	}
	if len(p) != 3 || p[0] != PassAttempts {
		t.Fatalf("Touch mutated receiver: %v", p)
	}
}
