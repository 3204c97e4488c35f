package player

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
	"github.com/mcdev12/dynasty-projections/go/internal/store"
	"github.com/mcdev12/dynasty-projections/go/internal/store/memory"
)

func intPtr(v int) *int { return &v }

func newApp(t *testing.T) (*App, *memory.Store) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	st := memory.New(memory.WithClock(clock))
	return NewApp(st, clock), st
}

func registerTeam(t *testing.T, st *memory.Store, code string) uuid.UUID {
	t.Helper()
	team := models.Team{ID: uuid.New(), Code: code, Name: code, City: code}
	if err := st.CreateTeam(context.Background(), team); err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	return team.ID
}

func TestCreatePlayerValidation(t *testing.T) {
	unregistered := uuid.New()
	tests := []struct {
		name string
		req  CreatePlayerRequest
		want error
	}{
		{"missing external id", CreatePlayerRequest{FullName: "A", Position: "QB"}, ErrExternalIDRequired},
		{"missing name", CreatePlayerRequest{ExternalID: "x1", Position: "QB"}, ErrFullNameRequired},
		{"kicker", CreatePlayerRequest{ExternalID: "x1", FullName: "A", Position: "K"}, models.ErrUnknownPosition},
		{"zero pick", CreatePlayerRequest{ExternalID: "x1", FullName: "A", Position: "WR", DraftPick: intPtr(0)}, ErrInvalidDraftPick},
		{"undrafted with pick", CreatePlayerRequest{ExternalID: "x1", FullName: "A", Position: "WR", DraftPick: intPtr(12), Undrafted: true}, ErrInvalidDraftPick},
		{"unregistered team", CreatePlayerRequest{ExternalID: "x1", FullName: "A", Position: "WR", TeamID: &unregistered}, ErrUnknownTeam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newApp(t)
			if _, err := app.CreatePlayer(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestImportPlayersUpsertsByExternalID(t *testing.T) {
	ctx := context.Background()
	app, st := newApp(t)
	bills, jets := registerTeam(t, st, "BUF"), registerTeam(t, st, "NYJ")

	first, err := app.ImportPlayers(ctx, []CreatePlayerRequest{
		{ExternalID: "qb-1", FullName: "Starter", Position: "QB", TeamID: &bills, DraftYear: intPtr(2018), DraftPick: intPtr(7)},
		{ExternalID: "wr-1", FullName: "Rookie", Position: "WR", TeamID: &bills, DraftYear: intPtr(2025), DraftPick: intPtr(40)},
		{ExternalID: "bad", FullName: "Kicker", Position: "K"},
	})
	if err != nil {
		t.Fatalf("ImportPlayers: %v", err)
	}
	if first.Created != 2 || len(first.Errors) != 1 {
		t.Fatalf("first import = %+v", first)
	}

	second, err := app.ImportPlayers(ctx, []CreatePlayerRequest{
		{ExternalID: "qb-1", FullName: "Starter", Position: "QB", TeamID: &bills},
		{ExternalID: "wr-1", FullName: "Rookie", Position: "WR", TeamID: &jets},
	})
	if err != nil {
		t.Fatalf("ImportPlayers: %v", err)
	}
	if second.Unchanged != 1 || second.Updated != 1 || second.Created != 0 {
		t.Fatalf("second import = %+v", second)
	}

	roster, err := app.ListPlayersByTeam(ctx, jets)
	if err != nil {
		t.Fatalf("ListPlayersByTeam: %v", err)
	}
	if len(roster) != 1 || roster[0].ExternalID != "wr-1" || *roster[0].DraftPick != 40 {
		t.Errorf("jets roster = %+v", roster)
	}
}

func TestDeletePlayerDropsProjections(t *testing.T) {
	ctx := context.Background()
	app, st := newApp(t)
	team := registerTeam(t, st, "DET")

	p, err := app.CreatePlayer(ctx, CreatePlayerRequest{ExternalID: "rb-1", FullName: "Back", Position: "RB", TeamID: &team})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	scenarioID := uuid.New()
	proj := models.Projection{ID: uuid.New(), PlayerID: p.ID, TeamID: team, Season: 2025, ScenarioID: scenarioID,
		Position: models.PositionRB, Stats: stats.Line{Games: 17, RushAttempts: 200}}
	if err := st.InsertProjection(ctx, proj); err != nil {
		t.Fatalf("InsertProjection: %v", err)
	}

	if err := app.DeletePlayer(ctx, p.ID); err != nil {
		t.Fatalf("DeletePlayer: %v", err)
	}
	if _, err := st.GetProjection(ctx, p.ID, 2025, scenarioID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("projection survived delete: %v", err)
	}
	if err := app.DeletePlayer(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v, want not found", err)
	}
}

func TestUpdatePlayerTeamRelease(t *testing.T) {
	ctx := context.Background()
	app, st := newApp(t)
	team := registerTeam(t, st, "KC")

	p, err := app.CreatePlayer(ctx, CreatePlayerRequest{ExternalID: "te-1", FullName: "End", Position: "TE", TeamID: &team})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	missing := uuid.New()
	if _, err := app.UpdatePlayerTeam(ctx, p.ID, &missing); !errors.Is(err, ErrUnknownTeam) {
		t.Errorf("move to unregistered team err = %v", err)
	}
	got, err := app.UpdatePlayerTeam(ctx, p.ID, nil)
	if err != nil {
		t.Fatalf("UpdatePlayerTeam: %v", err)
	}
	if got.TeamID != nil {
		t.Errorf("team = %v, want released", got.TeamID)
	}
}
