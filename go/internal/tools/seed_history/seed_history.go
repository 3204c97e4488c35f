// Command seed_history loads a historical dataset, the same JSON the in-memory
// store reads from HISTORY_FILE, into player_seasons and team_seasons. The
// optional -teams and -players files register the teams and players it names.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/dynasty-projections/go/internal/dbconfig"
	"github.com/mcdev12/dynasty-projections/go/internal/historical"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
)

func main() {
	path := flag.String("file", "go/internal/assets/history.json", "dataset to load")
	teams := flag.String("teams", "", "optional teams.json to upsert by code")
	players := flag.String("players", "", "optional players.json to upsert by external_id")
	flag.Parse()

	ctx := context.Background()

	// 1) Load dataset
	ds, err := historical.LoadDataset(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load dataset: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect to DB
	cfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "db config: %v\n", err)
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Seed player seasons
	batch := &pgx.Batch{}
	for _, sl := range ds.Seasons {
		line, err := json.Marshal(sl.Stats)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode season %s/%d: %v\n", sl.PlayerID, sl.Season, err)
			os.Exit(1)
		}
		batch.Queue(`
            INSERT INTO player_seasons (player_id, season, team_id, position, stats)
            VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (player_id, season, team_id) DO UPDATE SET stats = EXCLUDED.stats, position = EXCLUDED.position
        `, sl.PlayerID, sl.Season, sl.TeamID, string(sl.Position), line)
	}
	report("Player seasons", runBatch(ctx, pool, batch, len(ds.Seasons)))

	// 4) Seed team seasons
	batch = &pgx.Batch{}
	for _, ts := range ds.TeamSeasons {
		totals, err := json.Marshal(ts.Totals)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode team season %s/%d: %v\n", ts.TeamID, ts.Season, err)
			os.Exit(1)
		}
		batch.Queue(`
            INSERT INTO team_seasons (team_id, season, totals)
            VALUES ($1,$2,$3)
            ON CONFLICT (team_id, season) DO UPDATE SET totals = EXCLUDED.totals
        `, ts.TeamID, ts.Season, totals)
	}
	report("Team seasons", runBatch(ctx, pool, batch, len(ds.TeamSeasons)))

	// 5) Optionally seed teams, before the players that reference them
	if *teams != "" {
		var list []models.Team
		readJSON(*teams, &list)
		batch = &pgx.Batch{}
		for _, t := range list {
			batch.Queue(`
            INSERT INTO teams (id, code, name, city, conference, division)
            VALUES ($1,$2,$3,$4,$5,$6)
            ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, city = EXCLUDED.city,
                conference = EXCLUDED.conference, division = EXCLUDED.division
        `, t.ID, t.Code, t.Name, t.City, t.Conference, t.Division)
		}
		report("Teams", runBatch(ctx, pool, batch, len(list)))
	}

	// 6) Optionally seed players
	if *players == "" {
		return
	}
	var list []models.Player
	readJSON(*players, &list)
	batch = &pgx.Batch{}
	for _, p := range list {
		batch.Queue(`
            INSERT INTO players (id, external_id, full_name, position, team_id, draft_year, draft_pick, undrafted)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
            ON CONFLICT (external_id) DO NOTHING
        `, p.ID, p.ExternalID, p.FullName, string(p.Position), p.TeamID, p.DraftYear, p.DraftPick, p.Undrafted)
	}
	report("Players", runBatch(ctx, pool, batch, len(list)))
}

func readJSON(path string, v any) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := json.Unmarshal(data, v); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal %s: %v\n", path, err)
		os.Exit(1)
	}
}

type counts struct {
	total, written, skipped, errs int
}

func runBatch(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch, total int) counts {
	c := counts{total: total}
	if total == 0 {
		return c
	}
	results := pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < total; i++ {
		tag, err := results.Exec()
		switch {
		case err != nil:
			fmt.Fprintf(os.Stderr, "row %d: %v\n", i, err)
			c.errs++
		case tag.RowsAffected() == 1:
			c.written++
		default:
			c.skipped++
		}
	}
	return c
}

func report(what string, c counts) {
	fmt.Printf("%s seed: total=%d written=%d skipped=%d errors=%d\n", what, c.total, c.written, c.skipped, c.errs)
}
