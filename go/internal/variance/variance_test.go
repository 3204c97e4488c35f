package variance

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/historical"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/roster"
	"github.com/mcdev12/dynasty-projections/go/internal/scenario"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/mcdev12/dynasty-projections/go/internal/store/memory"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Abs(b))
}

func receiver(playerID uuid.UUID) models.Projection {
	line := stats.Line{Games: 17, Targets: 119, Receptions: 80, RecYards: 1000, RecTD: 6, SnapShare: 0.9}
	return models.Projection{ID: uuid.New(), PlayerID: playerID, Season: 2025, Position: models.PositionWR,
		Source: models.SourceHistory, Stats: stats.Derive(line, nil)}
}

// pool holds ten receivers at seven targets a game split evenly between two catch profiles,
// plus seasons that must not count as comparable.
func pool(self uuid.UUID) []models.SeasonLine {
	var out []models.SeasonLine
	for i := 0; i < 10; i++ {
		rec, td, fum := 4.5, 0.1, 0.0
		if i%2 == 1 {
			rec, td, fum = 5.5, 0.3, 0.2
		}
		out = append(out, models.SeasonLine{
			PlayerID: uuid.New(), Season: 2022 + i%3, Position: models.PositionWR,
			Stats: stats.Line{Games: 16, Targets: 7 * 16, Receptions: rec * 16, RecYards: 60 * 16, RecTD: td * 16, FumblesLost: fum * 16},
		})
	}
	return append(out,
		models.SeasonLine{PlayerID: uuid.New(), Season: 2024, Position: models.PositionWR, Stats: stats.Line{Games: 16, Targets: 144, Receptions: 100}},
		models.SeasonLine{PlayerID: uuid.New(), Season: 2024, Position: models.PositionWR, Stats: stats.Line{Games: 3, Targets: 21, Receptions: 15}},
		models.SeasonLine{PlayerID: uuid.New(), Season: 2024, Position: models.PositionTE, Stats: stats.Line{Games: 16, Targets: 112, Receptions: 80}},
		models.SeasonLine{PlayerID: self, Season: 2024, Position: models.PositionWR, Stats: stats.Line{Games: 16, Targets: 112, Receptions: 40}},
	)
}

func TestEstimateBounds(t *testing.T) {
	self := uuid.New()
	p := receiver(self)

	population := pool(self)

	r, err := Estimate(p, population, 0.8, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if r.Sample != 10 {
		t.Fatalf("sample = %d, want 10", r.Sample)
	}

	z := Z(0.8)
	if !approx(z, 1.2815515655446004) {
		t.Errorf("z(0.8) = %v", z)
	}
	sd := 8.5 * math.Sqrt(10.0/9)
	if !approx(r.Floor.Receptions, 85-z*sd) || !approx(r.Ceiling.Receptions, 85+z*sd) {
		t.Errorf("receptions = %v..%v, want %v..%v", r.Floor.Receptions, r.Ceiling.Receptions, 85-z*sd, 85+z*sd)
	}
	if r.Floor.Targets != 119 || r.Ceiling.Targets != 119 {
		t.Errorf("targets = %v..%v, want 119 with no spread", r.Floor.Targets, r.Ceiling.Targets)
	}
	if r.Floor.FumblesLost != 0 {
		t.Errorf("fumbles floor = %v, want clipped at 0", r.Floor.FumblesLost)
	}
	if !approx(r.Floor.CatchPct, r.Floor.Receptions/119) {
		t.Errorf("catch_pct not re-derived: %v", r.Floor.CatchPct)
	}
	if r.Floor.FantasyPoints != stats.Score(r.Floor) || r.Floor.FantasyPoints >= r.Ceiling.FantasyPoints {
		t.Errorf("points floor %v ceiling %v", r.Floor.FantasyPoints, r.Ceiling.FantasyPoints)
	}
	if r.Floor.SnapShare != 0.9 {
		t.Errorf("snap_share = %v, want carried 0.9", r.Floor.SnapShare)
	}

	again, err := Estimate(p, population, 0.8, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if diff := cmp.Diff(r, again); diff != "" {
		t.Errorf("estimate not deterministic (-first +second):\n%s", diff)
	}
}

func TestEstimateIgnoresPoolOrder(t *testing.T) {
	self := uuid.New()
	p := receiver(self)

	want, err := Estimate(p, pool(self), 0.8, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}

	// same seasons under fresh player ids, fed in a different order
	shuffled := pool(self)
	rng := rand.New(rand.NewPCG(7, 11))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	got, err := Estimate(p, shuffled, 0.8, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("estimate depends on pool order (-want +got):\n%s", diff)
	}
}

func TestEstimateRejects(t *testing.T) {
	self := uuid.New()
	p := receiver(self)

	cfg := DefaultConfig()
	cfg.MinSample = 11
	_, err := Estimate(p, pool(self), 0.8, nil, cfg)
	var sample *InsufficientSampleError
	if !errors.As(err, &sample) || sample.Size != 10 || sample.Min != 11 {
		t.Errorf("err = %v, want InsufficientSampleError 10 < 11", err)
	}

	for _, c := range []float64{0, 1, -0.5, math.NaN()} {
		if _, err := Estimate(p, pool(self), c, nil, DefaultConfig()); !errors.Is(err, ErrInvalidConfidence) {
			t.Errorf("confidence %v: err = %v", c, err)
		}
	}
}

func TestClipNestedCounts(t *testing.T) {
	got := clip(stats.Line{PassAttempts: 5, Completions: 9, Targets: 10, Receptions: 12})
	if got.Completions != 5 || got.Receptions != 10 {
		t.Errorf("clip = %+v", got)
	}
}

type fixture struct {
	ctx       context.Context
	store     *memory.Store
	scenarios *scenario.App
	app       *App
	baseline  *models.Scenario
	team      uuid.UUID
	wr        models.Projection
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	st := memory.New(memory.WithClock(clock))
	f := &fixture{ctx: ctx, store: st, scenarios: scenario.NewApp(st, clock), team: uuid.New()}

	base, err := f.scenarios.CreateBaseline(ctx, scenario.CreateRequest{Name: "2025 baseline", Season: 2025})
	if err != nil {
		t.Fatalf("CreateBaseline: %v", err)
	}
	f.baseline = base

	totals := stats.Totals{stats.Targets: 150}
	f.wr = receiver(uuid.New())
	f.wr.TeamID, f.wr.ScenarioID = f.team, base.ID
	f.wr.Stats = stats.Derive(f.wr.Stats, totals)
	f.wr.Pinned = stats.Pins{stats.RecYards}
	fill := roster.NewFill(f.team, 2025, base.ID, clock.Now())
	fill.Stats = stats.Derive(stats.Line{Games: 17, Targets: 31, Receptions: 20}, totals)
	for _, p := range []models.Projection{f.wr, fill} {
		if err := st.InsertProjection(ctx, p); err != nil {
			t.Fatalf("InsertProjection: %v", err)
		}
	}
	if err := st.UpsertOverride(ctx, models.StatOverride{ID: uuid.New(), ProjectionID: f.wr.ID, Stat: stats.RecYards,
		CalculatedValue: 950, ManualValue: 1000}); err != nil {
		t.Fatalf("UpsertOverride: %v", err)
	}
	if err := st.UpsertTeamStat(ctx, models.TeamStat{TeamID: f.team, Season: 2025, ScenarioID: base.ID, Totals: totals}); err != nil {
		t.Fatalf("UpsertTeamStat: %v", err)
	}

	history := historical.NewStatic(historical.Dataset{Seasons: pool(f.wr.PlayerID)})
	f.app = NewApp(st, history, f.scenarios, DefaultConfig())
	return f
}

func TestMaterializeForksFloorAndCeiling(t *testing.T) {
	f := newFixture(t)

	res, err := f.app.Materialize(f.ctx, MaterializeRequest{ScenarioID: f.baseline.ID, Season: 2025, PlayerIDs: []uuid.UUID{f.wr.PlayerID}, Confidence: 0.8})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if res.Floor.Name != "2025 baseline floor" || res.Floor.Kind != models.ScenarioFloor {
		t.Errorf("floor = %+v", res.Floor)
	}
	if res.Ceiling.Name != "2025 baseline ceiling" || *res.Ceiling.BaseScenarioID != f.baseline.ID {
		t.Errorf("ceiling = %+v", res.Ceiling)
	}

	floor, err := f.store.GetProjection(f.ctx, f.wr.PlayerID, 2025, res.Floor.ID)
	if err != nil {
		t.Fatalf("GetProjection floor: %v", err)
	}
	ceiling, err := f.store.GetProjection(f.ctx, f.wr.PlayerID, 2025, res.Ceiling.ID)
	if err != nil {
		t.Fatalf("GetProjection ceiling: %v", err)
	}
	if !approx(floor.Stats.Receptions, res.Ranges[0].Floor.Receptions) || !approx(ceiling.Stats.Receptions, res.Ranges[0].Ceiling.Receptions) {
		t.Errorf("receptions = %v..%v", floor.Stats.Receptions, ceiling.Stats.Receptions)
	}
	if floor.HasOverrides() || floor.Source != models.SourceRange {
		t.Errorf("floor pins/source = %v/%s", floor.Pinned, floor.Source)
	}
	if _, err := f.store.GetOverride(f.ctx, floor.ID, stats.RecYards); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("override copied into floor: %v", err)
	}

	ts, err := f.store.GetTeamStat(f.ctx, f.team, 2025, res.Floor.ID)
	if err != nil {
		t.Fatalf("GetTeamStat: %v", err)
	}
	if ts.Totals[stats.Targets] != 150 {
		t.Errorf("floor team targets = %v, want 150", ts.Totals[stats.Targets])
	}

	base, err := f.store.GetProjection(f.ctx, f.wr.PlayerID, 2025, f.baseline.ID)
	if err != nil {
		t.Fatalf("GetProjection base: %v", err)
	}
	if diff := cmp.Diff(f.wr.Stats, base.Stats); diff != "" {
		t.Errorf("base changed (-want +got):\n%s", diff)
	}

	events, err := f.store.FetchUnsentOutbox(f.ctx, 10)
	if err != nil {
		t.Fatalf("FetchUnsentOutbox: %v", err)
	}
	if len(events) != 3 || events[2].EventType != "RangeMaterialized" {
		t.Errorf("events = %+v", events)
	}
}

func TestMaterializeWritesNothingOnInsufficientSample(t *testing.T) {
	f := newFixture(t)
	f.app.cfg.MinSample = 50

	_, err := f.app.Materialize(f.ctx, MaterializeRequest{ScenarioID: f.baseline.ID, Season: 2025, PlayerIDs: []uuid.UUID{f.wr.PlayerID}, Confidence: 0.8})
	var sample *InsufficientSampleError
	if !errors.As(err, &sample) {
		t.Fatalf("err = %v, want InsufficientSampleError", err)
	}
	list, err := f.scenarios.List(f.ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("scenarios = %d, want only the baseline", len(list))
	}
}

// ceilingFails forks normally until asked for a ceiling scenario.
type ceilingFails struct {
	*scenario.App
}

var errForkFailed = errors.New("fork failed")

func (c ceilingFails) Fork(ctx context.Context, req scenario.ForkRequest) (*scenario.ForkResult, error) {
	if req.Kind == models.ScenarioCeiling {
		return nil, errForkFailed
	}
	return c.App.Fork(ctx, req)
}

func TestMaterializeDiscardsFloorWhenCeilingFails(t *testing.T) {
	f := newFixture(t)
	f.app.forker = ceilingFails{f.scenarios}

	_, err := f.app.Materialize(f.ctx, MaterializeRequest{ScenarioID: f.baseline.ID, Season: 2025, PlayerIDs: []uuid.UUID{f.wr.PlayerID}, Confidence: 0.8})
	if !errors.Is(err, errForkFailed) {
		t.Fatalf("err = %v, want errForkFailed", err)
	}
	list, err := f.scenarios.List(f.ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ID != f.baseline.ID {
		t.Errorf("scenarios = %+v, want only the baseline", list)
	}
}
