package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
)

// openTestStore migrates TEST_DATABASE_URL and empties every table.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE teams, players, scenarios, projections, stat_overrides, team_stats, outbox, player_seasons, team_seasons`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return New(db)
}

func at(t time.Time) time.Time { return t.UTC().Truncate(time.Microsecond) }

// sameInstant ignores the zone the driver attaches to timestamptz values.
var sameInstant = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

func newScenario(t *testing.T, st *Store, base *uuid.UUID, baseline bool) models.Scenario {
	t.Helper()
	kind := models.ScenarioFork
	if baseline {
		kind = models.ScenarioBaseline
	}
	sc := models.Scenario{ID: uuid.New(), Name: "s", Season: 2025, BaseScenarioID: base, IsBaseline: baseline,
		Kind: kind, CreatedAt: at(time.Now())}
	if err := st.CreateScenario(context.Background(), sc); err != nil {
		t.Fatalf("CreateScenario: %v", err)
	}
	return sc
}

func TestProjectionRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sc := newScenario(t, st, nil, true)

	now := at(time.Now())
	p := models.Projection{ID: uuid.New(), PlayerID: uuid.New(), TeamID: uuid.New(), Season: 2025, ScenarioID: sc.ID,
		Position: models.PositionRB, Source: models.SourceHistory,
		Stats:  stats.Line{Games: 17, RushAttempts: 220, RushYards: 990, RushTD: 8, YardsPerCarry: 4.5},
		Pinned: stats.Pins{stats.YardsPerCarry, stats.RushAttempts}, CreatedAt: now, UpdatedAt: now}
	if err := st.InsertProjection(ctx, p); err != nil {
		t.Fatalf("InsertProjection: %v", err)
	}
	if err := st.InsertProjection(ctx, p); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate insert err = %v, want already exists", err)
	}

	got, err := st.GetProjection(ctx, p.PlayerID, 2025, sc.ID)
	if err != nil {
		t.Fatalf("GetProjection: %v", err)
	}
	if diff := cmp.Diff(p, *got, sameInstant); diff != "" {
		t.Errorf("projection mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteScenarioCascades(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := newScenario(t, st, nil, true)
	child := newScenario(t, st, &base.ID, false)

	p := models.Projection{ID: uuid.New(), PlayerID: uuid.New(), TeamID: uuid.New(), Season: 2025, ScenarioID: base.ID,
		Position: models.PositionWR, Source: models.SourceHistory, Stats: stats.Line{Targets: 100}, Pinned: stats.Pins{stats.Targets}}
	if err := st.InsertProjection(ctx, p); err != nil {
		t.Fatalf("InsertProjection: %v", err)
	}
	if err := st.UpsertOverride(ctx, models.StatOverride{ID: uuid.New(), ProjectionID: p.ID, Stat: stats.Targets, CalculatedValue: 90, ManualValue: 100}); err != nil {
		t.Fatalf("UpsertOverride: %v", err)
	}
	if err := st.UpsertTeamStat(ctx, models.TeamStat{TeamID: p.TeamID, Season: 2025, ScenarioID: base.ID, Totals: stats.Totals{stats.Targets: 500}}); err != nil {
		t.Fatalf("UpsertTeamStat: %v", err)
	}

	if err := st.DeleteScenario(ctx, base.ID); err != nil {
		t.Fatalf("DeleteScenario: %v", err)
	}
	if _, err := st.GetProjection(ctx, p.PlayerID, 2025, base.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("projection survived: %v", err)
	}
	if _, err := st.GetOverride(ctx, p.ID, stats.Targets); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("override survived: %v", err)
	}
	if _, err := st.GetTeamStat(ctx, p.TeamID, 2025, base.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("team stat survived: %v", err)
	}
	got, err := st.GetScenario(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetScenario child: %v", err)
	}
	if got.BaseScenarioID != nil {
		t.Errorf("child base = %v, want cleared", got.BaseScenarioID)
	}
	if err := st.DeleteScenario(ctx, base.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v, want not found", err)
	}
}

func TestInTxRollsBack(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sc := newScenario(t, st, nil, true)
	boom := errors.New("boom")

	err := st.InTx(ctx, func(q store.Queries) error {
		if err := q.LockTeam(ctx, uuid.New(), 2025, sc.ID); err != nil {
			return err
		}
		if err := q.UpsertTeamStat(ctx, models.TeamStat{TeamID: uuid.New(), Season: 2025, ScenarioID: sc.ID, Totals: stats.Totals{}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v, want boom", err)
	}
	list, err := st.ListTeamStatsByScenario(ctx, sc.ID)
	if err != nil {
		t.Fatalf("ListTeamStatsByScenario: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("team stats = %d, want rollback", len(list))
	}
}

func TestOutboxDrain(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	scenarioID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ev := models.OutboxEvent{ID: uuid.New(), ScenarioID: scenarioID, EventType: "OverrideApplied", Payload: []byte(`{"n":1}`),
			CreatedAt: at(time.Now().Add(time.Duration(i) * time.Second))}
		if err := st.InsertOutboxEvent(ctx, ev); err != nil {
			t.Fatalf("InsertOutboxEvent: %v", err)
		}
		ids = append(ids, ev.ID)
	}

	unsent, err := st.FetchUnsentOutbox(ctx, 2)
	if err != nil {
		t.Fatalf("FetchUnsentOutbox: %v", err)
	}
	if len(unsent) != 2 || unsent[0].ID != ids[0] || unsent[1].ID != ids[1] {
		t.Fatalf("unsent = %+v, want first two in order", unsent)
	}
	if err := st.MarkOutboxSent(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("MarkOutboxSent: %v", err)
	}
	if _, err := st.FetchOutboxByID(ctx, ids[0]); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("sent event still fetchable: %v", err)
	}
	rest, err := st.FetchUnsentOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("FetchUnsentOutbox: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != ids[2] {
		t.Errorf("rest = %+v", rest)
	}
}

func TestPlayerUniqueExternalIDAndDelete(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	sc := newScenario(t, st, nil, true)
	team := uuid.New()

	p := models.Player{ID: uuid.New(), ExternalID: "rb-1", FullName: "Back", Position: models.PositionRB, TeamID: &team, CreatedAt: at(time.Now())}
	if err := st.CreatePlayer(ctx, p); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	dup := p
	dup.ID = uuid.New()
	if err := st.CreatePlayer(ctx, dup); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate external id err = %v", err)
	}
	if err := st.InsertProjection(ctx, models.Projection{ID: uuid.New(), PlayerID: p.ID, TeamID: team, Season: 2025, ScenarioID: sc.ID,
		Position: models.PositionRB, Source: models.SourceHistory}); err != nil {
		t.Fatalf("InsertProjection: %v", err)
	}

	if err := st.DeletePlayer(ctx, p.ID); err != nil {
		t.Fatalf("DeletePlayer: %v", err)
	}
	if _, err := st.GetProjection(ctx, p.ID, 2025, sc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("projection survived player delete: %v", err)
	}
	if err := st.DeletePlayer(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestTeamUniqueCode(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	kc := models.Team{ID: uuid.New(), Code: "KC", Name: "Chiefs", City: "Kansas City", Conference: "AFC", Division: "West", CreatedAt: at(time.Now())}
	if err := st.CreateTeam(ctx, kc); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	dup := kc
	dup.ID = uuid.New()
	if err := st.CreateTeam(ctx, dup); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate code err = %v", err)
	}

	got, err := st.GetTeamByCode(ctx, "KC")
	if err != nil {
		t.Fatalf("GetTeamByCode: %v", err)
	}
	if diff := cmp.Diff(kc, *got, sameInstant); diff != "" {
		t.Errorf("team mismatch (-want +got):\n%s", diff)
	}

	if err := st.DeleteTeam(ctx, kc.ID); err != nil {
		t.Fatalf("DeleteTeam: %v", err)
	}
	if err := st.UpdateTeam(ctx, kc); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("update after delete err = %v", err)
	}
}
