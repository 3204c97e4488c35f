package projection

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/historical"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/rookie"
	"github.com/mcdev12/dynasty-projections/go/internal/roster"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store/memory"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Abs(b))
}

func TestBuildScalesToSeasonLength(t *testing.T) {
	player, team := uuid.New(), uuid.New()
	b := NewBuilder(DefaultConfig())

	line, err := b.Build(Input{
		PlayerID: player,
		Season:   2025,
		History: []models.SeasonLine{{
			PlayerID: player, TeamID: team, Season: 2024, Position: models.PositionQB,
			Stats: stats.Line{Games: 16, PassAttempts: 350, Completions: 227.5, PassYards: 2450},
		}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if want := 350 * 17.0 / 16; !approx(line.PassAttempts, want) {
		t.Errorf("pass_attempts = %v, want %v", line.PassAttempts, want)
	}
	if !approx(line.Completions, line.PassAttempts*0.65) {
		t.Errorf("completions = %v, want %v", line.Completions, line.PassAttempts*0.65)
	}
	if !approx(line.CompPct, 0.65) {
		t.Errorf("comp_pct = %v, want 0.65", line.CompPct)
	}
	if line.Games != 17 {
		t.Errorf("games = %v, want 17", line.Games)
	}
	if got := stats.Score(line); got != line.FantasyPoints {
		t.Errorf("stored fantasy points %v, recomputed %v", line.FantasyPoints, got)
	}
}

func TestBuildWeightsRecentSeasons(t *testing.T) {
	player, team := uuid.New(), uuid.New()
	season := func(year int, games, targets float64) models.SeasonLine {
		return models.SeasonLine{PlayerID: player, TeamID: team, Season: year, Position: models.PositionWR,
			Stats: stats.Line{Games: games, Targets: targets}}
	}

	line, err := NewBuilder(DefaultConfig()).Build(Input{
		PlayerID: player,
		Season:   2025,
		History: []models.SeasonLine{
			season(2023, 17, 6*17),
			season(2022, 2, 30),   // too few games
			season(2025, 17, 300), // not before the target season
			season(2024, 16, 10*16),
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// 0.5 and 0.3 renormalize to 0.625 and 0.375 over the two qualifying seasons
	want := (0.625*10 + 0.375*6) * 17
	if !approx(line.Targets, want) {
		t.Fatalf("targets = %v, want %v", line.Targets, want)
	}
}

func TestBuildAppliesTeamPace(t *testing.T) {
	player, team := uuid.New(), uuid.New()
	line, err := NewBuilder(DefaultConfig()).Build(Input{
		PlayerID: player,
		Season:   2025,
		History: []models.SeasonLine{{PlayerID: player, TeamID: team, Season: 2024, Position: models.PositionQB,
			Stats: stats.Line{Games: 17, PassAttempts: 300, Completions: 200, RushAttempts: 34}}},
		TeamHistory: []models.TeamSeason{{TeamID: team, Season: 2024,
			Totals: stats.Totals{stats.PassAttempts: 500, stats.RushAttempts: 400}}},
		Forecast: stats.Totals{stats.PassAttempts: 600},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !approx(line.PassAttempts, 360) || !approx(line.Completions, 240) {
		t.Errorf("passing = %v/%v, want 360/240", line.PassAttempts, line.Completions)
	}
	// no rushing forecast, so no pace
	if !approx(line.RushAttempts, 34) {
		t.Errorf("rush_attempts = %v, want 34", line.RushAttempts)
	}
	if !approx(line.PassShare, 0.6) {
		t.Errorf("pass_share = %v, want 0.6", line.PassShare)
	}
}

func TestBuildWithoutHistory(t *testing.T) {
	_, err := NewBuilder(DefaultConfig()).Build(Input{PlayerID: uuid.New(), Season: 2025})
	var insufficient *InsufficientHistoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientHistoryError", err)
	}
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	app      *App
	team     uuid.UUID
	scenario uuid.UUID
	starter  uuid.UUID
	backup   uuid.UUID
	rookie   uuid.UUID
}

func newFixture(t *testing.T, withRookies bool) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	st := memory.New(memory.WithClock(clock))
	f := &fixture{ctx: ctx, store: st, team: uuid.New(), scenario: uuid.New(),
		starter: uuid.New(), backup: uuid.New(), rookie: uuid.New()}

	if err := st.CreateScenario(ctx, models.Scenario{ID: f.scenario, Name: "baseline", Season: 2025,
		IsBaseline: true, Kind: models.ScenarioBaseline}); err != nil {
		t.Fatalf("CreateScenario: %v", err)
	}
	pick := 40
	for _, p := range []models.Player{
		{ID: f.starter, FullName: "Starter", Position: models.PositionQB, TeamID: &f.team},
		{ID: f.backup, FullName: "Backup", Position: models.PositionQB, TeamID: &f.team},
		{ID: f.rookie, FullName: "Rookie", Position: models.PositionWR, TeamID: &f.team, DraftPick: &pick},
	} {
		if err := st.CreatePlayer(ctx, p); err != nil {
			t.Fatalf("CreatePlayer: %v", err)
		}
	}

	history := historical.NewStatic(historical.Dataset{
		Seasons: []models.SeasonLine{
			{PlayerID: f.starter, TeamID: f.team, Season: 2024, Position: models.PositionQB,
				Stats: stats.Line{Games: 17, PassAttempts: 510, Completions: 340}},
			{PlayerID: f.backup, TeamID: f.team, Season: 2024, Position: models.PositionQB,
				Stats: stats.Line{Games: 17, PassAttempts: 34, Completions: 20}},
		},
		TeamSeasons: []models.TeamSeason{
			{TeamID: f.team, Season: 2024, Totals: stats.Totals{stats.PassAttempts: 560}},
		},
	})

	var rookies RookieGenerator
	if withRookies {
		rookies = rookie.NewGenerator(nil, nil, rookie.DefaultConfig())
	}
	f.app = NewApp(st, history, rookies, DefaultConfig(), clock)
	return f
}

func TestAppBuildTeamKeepsTeamSum(t *testing.T) {
	f := newFixture(t, true)

	build, err := f.app.BuildTeam(f.ctx, BuildTeamRequest{
		TeamID:     f.team,
		Season:     2025,
		ScenarioID: f.scenario,
		Forecast:   stats.Totals{stats.PassAttempts: 600},
	})
	if err != nil {
		t.Fatalf("BuildTeam: %v", err)
	}
	if len(build.Projections) != 4 {
		t.Fatalf("projections = %d, want 3 players and the fill", len(build.Projections))
	}

	// pace 600/560 on 510 and 34 attempts leaves 600 - 544*600/560 for the fill
	ps, err := f.app.ListTeam(f.ctx, f.team, 2025, f.scenario)
	if err != nil {
		t.Fatalf("ListTeam: %v", err)
	}
	if got := roster.Sum(ps, stats.PassAttempts); !approx(got, 600) {
		t.Fatalf("team pass attempts = %v, want 600", got)
	}
	fill := ps[roster.FindFill(ps)]
	if want := 600 - 544*600.0/560; !approx(fill.Stats.PassAttempts, want) {
		t.Errorf("fill pass attempts = %v, want %v", fill.Stats.PassAttempts, want)
	}

	ts, err := f.store.GetTeamStat(f.ctx, f.team, 2025, f.scenario)
	if err != nil {
		t.Fatalf("GetTeamStat: %v", err)
	}
	if warnings := roster.CheckConsistency(ts, ps); len(warnings) != 0 {
		t.Fatalf("warnings = %+v", warnings)
	}

	rk, err := f.app.Get(f.ctx, f.rookie, 2025, f.scenario)
	if err != nil {
		t.Fatalf("Get rookie: %v", err)
	}
	if rk.Source != models.SourceRookie || rk.Stats.Targets <= 0 {
		t.Errorf("rookie projection = %+v", rk)
	}

	events, err := f.store.FetchUnsentOutbox(f.ctx, 10)
	if err != nil {
		t.Fatalf("FetchUnsentOutbox: %v", err)
	}
	if len(events) != 1 || events[0].ScenarioID != f.scenario {
		t.Fatalf("events = %+v, want one ProjectionBuilt", events)
	}
}

func TestFitScalesNamedVolumeDown(t *testing.T) {
	ps := []models.Projection{
		{Stats: stats.Line{PassAttempts: 300, Completions: 200, PassTD: 20}},
		{Stats: stats.Line{PassAttempts: 100, Completions: 60, RushAttempts: 12}},
	}

	totals := fit(ps, stats.Totals{stats.PassAttempts: 200})

	if totals[stats.PassAttempts] != 200 || totals[stats.RushAttempts] != 12 || totals[stats.Targets] != 0 {
		t.Fatalf("totals = %v", totals)
	}
	if !approx(ps[0].Stats.PassAttempts, 150) || !approx(ps[0].Stats.Completions, 100) || !approx(ps[0].Stats.PassTD, 10) {
		t.Errorf("first = %+v", ps[0].Stats)
	}
	if !approx(ps[1].Stats.PassAttempts, 50) || !approx(ps[1].Stats.RushAttempts, 12) {
		t.Errorf("second = %+v", ps[1].Stats)
	}
}

func TestAppBuildFallsBackToRookieGenerator(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.app.Build(f.ctx, BuildRequest{PlayerID: f.rookie, Season: 2025, ScenarioID: f.scenario})
	var insufficient *InsufficientHistoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientHistoryError without a rookie generator", err)
	}

	f = newFixture(t, true)
	p, err := f.app.Build(f.ctx, BuildRequest{PlayerID: f.rookie, Season: 2025, ScenarioID: f.scenario})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Source != models.SourceRookie || p.HasOverrides() {
		t.Fatalf("projection = %+v", p)
	}
}

func TestAppRebuildDropsOverrides(t *testing.T) {
	f := newFixture(t, true)
	req := BuildRequest{PlayerID: f.starter, Season: 2025, ScenarioID: f.scenario}

	first, err := f.app.Build(f.ctx, req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	pinned := first.Clone()
	pinned.Pinned = stats.Pins{stats.PassAttempts}
	pinned.Stats.PassAttempts = 1
	if err := f.store.UpdateProjection(f.ctx, pinned); err != nil {
		t.Fatalf("UpdateProjection: %v", err)
	}
	if err := f.store.UpsertOverride(f.ctx, models.StatOverride{ID: uuid.New(), ProjectionID: first.ID,
		Stat: stats.PassAttempts, CalculatedValue: first.Stats.PassAttempts, ManualValue: 1}); err != nil {
		t.Fatalf("UpsertOverride: %v", err)
	}

	second, err := f.app.Build(f.ctx, req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("rebuild changed identity %s -> %s", first.ID, second.ID)
	}
	if second.HasOverrides() || !approx(second.Stats.PassAttempts, first.Stats.PassAttempts) {
		t.Errorf("rebuild kept the override: %+v", second)
	}
	overrides, err := f.store.ListOverridesByProjection(f.ctx, first.ID)
	if err != nil {
		t.Fatalf("ListOverridesByProjection: %v", err)
	}
	if len(overrides) != 0 {
		t.Errorf("overrides = %+v, want none", overrides)
	}
}

func TestAppBuildRequiresTeam(t *testing.T) {
	f := newFixture(t, true)
	freeAgent := models.Player{ID: uuid.New(), FullName: "Free Agent", Position: models.PositionRB}
	if err := f.store.CreatePlayer(f.ctx, freeAgent); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	_, err := f.app.Build(f.ctx, BuildRequest{PlayerID: freeAgent.ID, Season: 2025, ScenarioID: f.scenario})
	if !errors.Is(err, ErrNoTeam) {
		t.Fatalf("err = %v, want ErrNoTeam", err)
	}
}
