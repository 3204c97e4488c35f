package override

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/rpcutil"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/mcdev12/dynasty-projections/go/internal/store/memory"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Abs(b))
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	clock    *clockwork.FakeClock
	team     uuid.UUID
	scenario uuid.UUID
	lead     models.Projection
	change   models.Projection
}

// newFixture seeds two running backs splitting 420 team rush attempts.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	st := memory.New(memory.WithClock(clock))
	f := &fixture{ctx: ctx, store: st, clock: clock, team: uuid.New(), scenario: uuid.New()}

	totals := stats.Totals{stats.RushAttempts: 420}
	rb := func(attempts, yards, td float64) models.Projection {
		line := stats.Line{Games: 17, RushAttempts: attempts, RushYards: yards, RushTD: td,
			Targets: 40, Receptions: 30, RecYards: 240, RecTD: 1, FumblesLost: 1, SnapShare: 0.6}
		return models.Projection{ID: uuid.New(), PlayerID: uuid.New(), TeamID: f.team, Season: 2025, ScenarioID: f.scenario,
			Position: models.PositionRB, Source: models.SourceHistory, Stats: stats.Derive(line, totals)}
	}
	f.lead, f.change = rb(200, 900, 8), rb(220, 880, 5)

	for _, p := range []models.Projection{f.lead, f.change} {
		if err := st.InsertProjection(ctx, p); err != nil {
			t.Fatalf("InsertProjection: %v", err)
		}
	}
	if err := st.UpsertTeamStat(ctx, models.TeamStat{TeamID: f.team, Season: 2025, ScenarioID: f.scenario, Totals: totals}); err != nil {
		t.Fatalf("UpsertTeamStat: %v", err)
	}
	return f
}

func (f *fixture) app(policy stats.ConflictPolicy) *App {
	return NewApp(f.store, Config{Policy: policy, Parallelism: 2}, f.clock)
}

func (f *fixture) get(t *testing.T, p models.Projection) models.Projection {
	t.Helper()
	got, err := f.store.GetProjection(f.ctx, p.PlayerID, p.Season, p.ScenarioID)
	if err != nil {
		t.Fatalf("GetProjection: %v", err)
	}
	return *got
}

// pin writes pins straight to the store, oldest first, without cascading.
func (f *fixture) pin(t *testing.T, p models.Projection, pins ...stats.Stat) {
	t.Helper()
	p = f.get(t, p)
	for _, s := range pins {
		p.Pinned = p.Pinned.Touch(s)
		if err := f.store.UpsertOverride(f.ctx, models.StatOverride{ID: uuid.New(), ProjectionID: p.ID, Stat: s,
			CalculatedValue: p.Stats.Get(s), ManualValue: p.Stats.Get(s)}); err != nil {
			t.Fatalf("UpsertOverride: %v", err)
		}
	}
	if err := f.store.UpdateProjection(f.ctx, p); err != nil {
		t.Fatalf("UpdateProjection: %v", err)
	}
}

func (f *fixture) request(p models.Projection, s stats.Stat, v float64) Request {
	return Request{PlayerID: p.PlayerID, Season: 2025, ScenarioID: f.scenario, Stat: s, Value: v}
}

func TestApplyVolumeKeepsPinnedRate(t *testing.T) {
	f := newFixture(t)
	app := f.app(stats.MostRecentWins)
	if _, err := app.Apply(f.ctx, f.request(f.lead, stats.YardsPerCarry, 4.5)); err != nil {
		t.Fatalf("Apply yards_per_carry: %v", err)
	}

	res, err := app.Apply(f.ctx, f.request(f.lead, stats.RushAttempts, 220))
	if err != nil {
		t.Fatalf("Apply rush_attempts: %v", err)
	}

	got := f.get(t, f.lead)
	if !approx(got.Stats.RushYards, 990) {
		t.Errorf("rush_yards = %v, want 990", got.Stats.RushYards)
	}
	if got.Stats.RushTD != 8 {
		t.Errorf("rush_td = %v, want unchanged 8", got.Stats.RushTD)
	}
	if !approx(got.Stats.RushShare, 220.0/420) {
		t.Errorf("rush_share = %v, want %v", got.Stats.RushShare, 220.0/420)
	}
	if diff := cmp.Diff(stats.Pins{stats.YardsPerCarry, stats.RushAttempts}, got.Pinned); diff != "" {
		t.Errorf("pins mismatch (-want +got):\n%s", diff)
	}
	if res.Override.CalculatedValue != 200 || res.Override.ManualValue != 220 {
		t.Errorf("override = %+v", res.Override)
	}

	// the edit is not pushed back into the team; the drift is reported instead
	if len(res.Warnings) != 1 || res.Warnings[0].Stat != stats.RushAttempts || res.Warnings[0].Actual != 440 {
		t.Errorf("warnings = %+v", res.Warnings)
	}
	other := f.get(t, f.change)
	if diff := cmp.Diff(f.change.Stats, other.Stats); diff != "" {
		t.Errorf("teammate changed (-want +got):\n%s", diff)
	}
}

func TestApplyLeavesIndependentStatsAlone(t *testing.T) {
	f := newFixture(t)
	app := f.app(stats.MostRecentWins)

	if _, err := app.Apply(f.ctx, f.request(f.lead, stats.Targets, 60)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got := f.get(t, f.lead)
	reach := map[stats.Stat]bool{stats.Targets: true}
	for _, s := range stats.DownstreamOf(stats.Targets) {
		reach[s] = true
	}
	for _, s := range stats.All() {
		if reach[s] {
			continue
		}
		if got.Stats.Get(s) != f.lead.Stats.Get(s) {
			t.Errorf("%s = %v, want untouched %v", s, got.Stats.Get(s), f.lead.Stats.Get(s))
		}
	}
	if !approx(got.Stats.Receptions, 60*0.75) {
		t.Errorf("receptions = %v, want %v", got.Stats.Receptions, 60*0.75)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	app := f.app(stats.MostRecentWins)

	if _, err := app.Apply(f.ctx, f.request(f.lead, stats.RushAttempts, 230)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	first := f.get(t, f.lead)

	f.clock.Advance(time.Hour)
	res, err := app.Apply(f.ctx, f.request(f.lead, stats.RushAttempts, 230))
	if err != nil {
		t.Fatalf("Apply again: %v", err)
	}
	if !res.NoOp {
		t.Errorf("second apply not reported as no-op")
	}
	if diff := cmp.Diff(first, f.get(t, f.lead)); diff != "" {
		t.Errorf("projection changed on re-apply (-first +second):\n%s", diff)
	}

	events, err := f.store.FetchUnsentOutbox(f.ctx, 10)
	if err != nil {
		t.Fatalf("FetchUnsentOutbox: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "OverrideApplied" {
		t.Errorf("events = %+v", events)
	}
}

func TestReoverrideKeepsCalculatedValueAndRevertRestores(t *testing.T) {
	f := newFixture(t)
	app := f.app(stats.MostRecentWins)

	if _, err := app.Apply(f.ctx, f.request(f.lead, stats.RushAttempts, 230)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	res, err := app.Apply(f.ctx, f.request(f.lead, stats.RushAttempts, 250))
	if err != nil {
		t.Fatalf("Apply again: %v", err)
	}
	if res.Override.CalculatedValue != 200 || res.Override.ManualValue != 250 {
		t.Errorf("override = %+v, want calculated 200 manual 250", res.Override)
	}

	rev, err := app.Revert(f.ctx, RevertRequest{PlayerID: f.lead.PlayerID, Season: 2025, ScenarioID: f.scenario, Stat: stats.RushAttempts})
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	got := f.get(t, f.lead)
	if got.Stats.RushAttempts != 200 || !approx(got.Stats.RushYards, 900) {
		t.Errorf("after revert rush = %v/%v, want 200/900", got.Stats.RushAttempts, got.Stats.RushYards)
	}
	if got.HasOverrides() {
		t.Errorf("pins remain after revert: %v", got.Pinned)
	}
	if len(rev.Warnings) != 0 {
		t.Errorf("warnings after revert = %+v", rev.Warnings)
	}
	if _, err := f.store.GetOverride(f.ctx, f.lead.ID, stats.RushAttempts); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("override still stored: %v", err)
	}

	_, err = app.Revert(f.ctx, RevertRequest{PlayerID: f.lead.PlayerID, Season: 2025, ScenarioID: f.scenario, Stat: stats.RushAttempts})
	if !errors.Is(err, ErrOverrideNotFound) {
		t.Errorf("second revert err = %v, want ErrOverrideNotFound", err)
	}
}

func TestApplyRejectsInvalidEdits(t *testing.T) {
	tests := []struct {
		name  string
		stat  stats.Stat
		value float64
		check func(error) bool
	}{
		{"computed score", stats.FantasyPoints, 250, func(err error) bool { return errors.Is(err, stats.ErrNotOverridable) }},
		{"negative volume", stats.RushAttempts, -5, func(err error) bool {
			var e *stats.OutOfRangeError
			return errors.As(err, &e)
		}},
		{"share above one", stats.RushShare, 1.2, func(err error) bool {
			var e *stats.OutOfRangeError
			return errors.As(err, &e)
		}},
		{"too many games", stats.Games, 18, func(err error) bool {
			var e *stats.OutOfRangeError
			return errors.As(err, &e)
		}},
		{"unknown stat", stats.Stat("sacks"), 3, func(err error) bool {
			var e *stats.UnknownStatError
			return errors.As(err, &e)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.app(stats.MostRecentWins).Apply(f.ctx, f.request(f.lead, tt.stat, tt.value))
			if !tt.check(err) {
				t.Fatalf("err = %v", err)
			}
			if diff := cmp.Diff(f.lead, f.get(t, f.lead)); diff != "" {
				t.Errorf("projection mutated (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyRejectsImpossibleCascade(t *testing.T) {
	tests := []struct {
		name  string
		stat  stats.Stat
		value float64
		want  stats.Stat
	}{
		{"receptions above targets", stats.Receptions, 60, stats.CatchPct},
		{"fewer carries than touchdowns", stats.RushAttempts, 2, stats.RushTDRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.app(stats.MostRecentWins).Apply(f.ctx, f.request(f.lead, tt.stat, tt.value))
			var e *stats.OutOfRangeError
			if !errors.As(err, &e) {
				t.Fatalf("err = %v, want OutOfRangeError", err)
			}
			if e.Stat != tt.want {
				t.Errorf("out of range stat = %s, want %s", e.Stat, tt.want)
			}
			if diff := cmp.Diff(f.lead, f.get(t, f.lead)); diff != "" {
				t.Errorf("projection mutated (-want +got):\n%s", diff)
			}
			if _, err := f.store.GetOverride(f.ctx, f.lead.ID, tt.stat); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("override stored: %v", err)
			}
		})
	}
}

func TestRevertRejectsImpossibleCascade(t *testing.T) {
	f := newFixture(t)
	app := f.app(stats.MostRecentWins)
	if _, err := app.Apply(f.ctx, f.request(f.lead, stats.Receptions, 10)); err != nil {
		t.Fatalf("Apply receptions: %v", err)
	}
	if _, err := app.Apply(f.ctx, f.request(f.lead, stats.Targets, 12)); err != nil {
		t.Fatalf("Apply targets: %v", err)
	}
	before := f.get(t, f.lead)

	// the calculated 30 receptions no longer fit under 12 pinned targets
	_, err := app.Revert(f.ctx, RevertRequest{PlayerID: f.lead.PlayerID, Season: 2025, ScenarioID: f.scenario, Stat: stats.Receptions})
	var e *stats.OutOfRangeError
	if !errors.As(err, &e) || e.Stat != stats.CatchPct {
		t.Fatalf("err = %v, want catch_pct OutOfRangeError", err)
	}
	if diff := cmp.Diff(before, f.get(t, f.lead)); diff != "" {
		t.Errorf("projection mutated (-want +got):\n%s", diff)
	}
}

// racingStore runs onLock inside the transaction the first time a team lock is
// taken, standing in for a writer that committed while the lock was awaited.
type racingStore struct {
	*memory.Store
	onLock func(ctx context.Context, q store.Queries) error
	locks  []uuid.UUID
}

func (s *racingStore) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	return s.Store.InTx(ctx, func(q store.Queries) error {
		return fn(&racingQueries{Queries: q, s: s})
	})
}

type racingQueries struct {
	store.Queries
	s *racingStore
}

func (q *racingQueries) LockTeam(ctx context.Context, teamID uuid.UUID, season int, scenarioID uuid.UUID) error {
	q.s.locks = append(q.s.locks, teamID)
	if onLock := q.s.onLock; onLock != nil {
		q.s.onLock = nil
		if err := onLock(ctx, q.Queries); err != nil {
			return err
		}
	}
	return q.Queries.LockTeam(ctx, teamID, season, scenarioID)
}

func TestApplyRereadsProjectionUnderTeamLock(t *testing.T) {
	f := newFixture(t)
	rs := &racingStore{Store: f.store, onLock: func(ctx context.Context, q store.Queries) error {
		p, err := q.GetProjection(ctx, f.lead.PlayerID, 2025, f.scenario)
		if err != nil {
			return err
		}
		p.Stats.Set(stats.RushAttempts, 300)
		out, err := stats.Cascade(p.Stats, stats.RushAttempts, p.Pinned, stats.Options{Totals: stats.Totals{stats.RushAttempts: 420}})
		if err != nil {
			return err
		}
		p.Stats = out.Line
		return q.UpdateProjection(ctx, *p)
	}}
	app := NewApp(rs, Config{Policy: stats.MostRecentWins, Parallelism: 2}, f.clock)

	if _, err := app.Apply(f.ctx, f.request(f.lead, stats.Targets, 60)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if diff := cmp.Diff([]uuid.UUID{f.team}, rs.locks); diff != "" {
		t.Errorf("locks mismatch (-want +got):\n%s", diff)
	}
	got := f.get(t, f.lead)
	if got.Stats.RushAttempts != 300 {
		t.Errorf("rush_attempts = %v, want 300 from the concurrent redistribution", got.Stats.RushAttempts)
	}
	if got.Stats.Targets != 60 {
		t.Errorf("targets = %v, want 60", got.Stats.Targets)
	}
}

func TestRevertTakesTeamLock(t *testing.T) {
	f := newFixture(t)
	if _, err := f.app(stats.MostRecentWins).Apply(f.ctx, f.request(f.lead, stats.RushAttempts, 230)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	rs := &racingStore{Store: f.store}
	app := NewApp(rs, Config{Policy: stats.MostRecentWins, Parallelism: 2}, f.clock)
	if _, err := app.Revert(f.ctx, RevertRequest{PlayerID: f.lead.PlayerID, Season: 2025, ScenarioID: f.scenario, Stat: stats.RushAttempts}); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if diff := cmp.Diff([]uuid.UUID{f.team}, rs.locks); diff != "" {
		t.Errorf("locks mismatch (-want +got):\n%s", diff)
	}
}

func TestApplySupersedesOlderPin(t *testing.T) {
	f := newFixture(t)
	f.pin(t, f.lead, stats.RushYards, stats.YardsPerCarry)

	res, err := f.app(stats.MostRecentWins).Apply(f.ctx, f.request(f.lead, stats.RushAttempts, 250))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if diff := cmp.Diff([]stats.Stat{stats.RushYards}, res.Released); diff != "" {
		t.Errorf("released mismatch (-want +got):\n%s", diff)
	}
	got := f.get(t, f.lead)
	if !approx(got.Stats.RushYards, 250*4.5) {
		t.Errorf("rush_yards = %v, want %v", got.Stats.RushYards, 250*4.5)
	}
	if _, err := f.store.GetOverride(f.ctx, f.lead.ID, stats.RushYards); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("superseded override still stored: %v", err)
	}
}

func TestApplyRejectPolicy(t *testing.T) {
	f := newFixture(t)
	f.pin(t, f.lead, stats.RushYards, stats.YardsPerCarry)
	before := f.get(t, f.lead)

	_, err := f.app(stats.RejectConflicts).Apply(f.ctx, f.request(f.lead, stats.RushAttempts, 250))
	var conflict *stats.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if diff := cmp.Diff(before, f.get(t, f.lead)); diff != "" {
		t.Errorf("projection mutated (-want +got):\n%s", diff)
	}
}

func TestApplyBatchReportsPartialFailure(t *testing.T) {
	f := newFixture(t)
	app := f.app(stats.MostRecentWins)
	missing := uuid.New()

	res, err := app.ApplyBatch(f.ctx, BatchRequest{
		PlayerIDs:  []uuid.UUID{f.lead.PlayerID, missing, f.change.PlayerID},
		Season:     2025,
		ScenarioID: f.scenario,
		Stat:       stats.RushAttempts,
		Adjustment: stats.Adjustment{Mode: stats.Relative, Value: 10},
		Reason:     "offensive line upgrade",
	})
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if res.Applied != 2 || res.Failed != 1 {
		t.Fatalf("applied/failed = %d/%d, want 2/1", res.Applied, res.Failed)
	}
	if res.Items[1].PlayerID != missing || !errors.Is(res.Items[1].Err, store.ErrNotFound) {
		t.Errorf("item 1 = %+v", res.Items[1])
	}

	lead, change := f.get(t, f.lead), f.get(t, f.change)
	if !approx(lead.Stats.RushAttempts, 220) || !approx(change.Stats.RushAttempts, 242) {
		t.Errorf("rush attempts = %v/%v, want 220/242", lead.Stats.RushAttempts, change.Stats.RushAttempts)
	}
	if len(res.Warnings) != 1 || !approx(res.Warnings[0].Actual, 462) {
		t.Errorf("warnings = %+v", res.Warnings)
	}

	list, err := app.ListScenarioOverrides(f.ctx, f.scenario)
	if err != nil {
		t.Fatalf("ListScenarioOverrides: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("overrides = %d, want 2", len(list))
	}
	for _, o := range list {
		if o.Reason != "offensive line upgrade" {
			t.Errorf("reason = %q", o.Reason)
		}
	}
}

func TestApplyBatchFailsRepeatedPlayer(t *testing.T) {
	f := newFixture(t)
	rs := &racingStore{Store: f.store}
	app := NewApp(rs, Config{Policy: stats.MostRecentWins, Parallelism: 2}, f.clock)

	res, err := app.ApplyBatch(f.ctx, BatchRequest{
		PlayerIDs:  []uuid.UUID{f.lead.PlayerID, f.change.PlayerID, f.lead.PlayerID},
		Season:     2025,
		ScenarioID: f.scenario,
		Stat:       stats.RushAttempts,
		Adjustment: stats.Adjustment{Mode: stats.Relative, Value: 10},
	})
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if res.Applied != 2 || res.Failed != 1 {
		t.Fatalf("applied/failed = %d/%d, want 2/1", res.Applied, res.Failed)
	}
	if !errors.Is(res.Items[2].Err, ErrDuplicatePlayer) || res.Items[2].Projection != nil {
		t.Errorf("item 2 = %+v", res.Items[2])
	}
	if got := f.get(t, f.lead); !approx(got.Stats.RushAttempts, 220) {
		t.Errorf("rush_attempts = %v, want 220 applied once", got.Stats.RushAttempts)
	}
	if diff := cmp.Diff([]uuid.UUID{f.team}, rs.locks); diff != "" {
		t.Errorf("locks mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyBatchRejectsComputedStat(t *testing.T) {
	f := newFixture(t)
	_, err := f.app(stats.MostRecentWins).ApplyBatch(f.ctx, BatchRequest{
		PlayerIDs:  []uuid.UUID{f.lead.PlayerID},
		Season:     2025,
		ScenarioID: f.scenario,
		Stat:       stats.FantasyPPG,
		Adjustment: stats.Adjustment{Mode: stats.Delta, Value: 1},
	})
	if !errors.Is(err, stats.ErrNotOverridable) {
		t.Fatalf("err = %v, want ErrNotOverridable", err)
	}
}

func TestServiceMapsErrors(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(func() http.Handler {
		mux := http.NewServeMux()
		mux.Handle(NewService(f.app(stats.MostRecentWins)).Handler())
		return mux
	}())
	defer srv.Close()

	apply := rpcutil.NewClient[ApplyOverrideRequest, ApplyOverrideResponse](srv.Client(), srv.URL, ServiceName, "ApplyOverride")
	res, err := apply.CallUnary(f.ctx, connect.NewRequest(&ApplyOverrideRequest{
		PlayerID: f.lead.PlayerID.String(), Season: 2025, ScenarioID: f.scenario.String(), Stat: "rush_attempts", Value: 220,
	}))
	if err != nil {
		t.Fatalf("ApplyOverride: %v", err)
	}
	if !approx(res.Msg.Result.Projection.Stats.RushAttempts, 220) {
		t.Errorf("rush_attempts = %v", res.Msg.Result.Projection.Stats.RushAttempts)
	}

	_, err = apply.CallUnary(f.ctx, connect.NewRequest(&ApplyOverrideRequest{
		PlayerID: f.lead.PlayerID.String(), Season: 2025, ScenarioID: f.scenario.String(), Stat: "fantasy_points", Value: 300,
	}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("computed stat code = %v, want InvalidArgument", connect.CodeOf(err))
	}

	_, err = apply.CallUnary(f.ctx, connect.NewRequest(&ApplyOverrideRequest{
		PlayerID: f.change.PlayerID.String(), Season: 2025, ScenarioID: f.scenario.String(), Stat: "receptions", Value: 60,
	}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("impossible cascade code = %v, want InvalidArgument", connect.CodeOf(err))
	}

	revert := rpcutil.NewClient[RevertOverrideRequest, RevertOverrideResponse](srv.Client(), srv.URL, ServiceName, "RevertOverride")
	_, err = revert.CallUnary(f.ctx, connect.NewRequest(&RevertOverrideRequest{
		PlayerID: f.change.PlayerID.String(), Season: 2025, ScenarioID: f.scenario.String(), Stat: "rush_attempts",
	}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("revert code = %v, want NotFound", connect.CodeOf(err))
	}
}
