package rookie

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

func intPtr(n int) *int { return &n }

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Abs(b))
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		pick      *int
		undrafted bool
		want      Bucket
	}{
		{intPtr(1), false, BucketR1Early},
		{intPtr(16), false, BucketR1Early},
		{intPtr(17), false, BucketR1Late},
		{intPtr(32), false, BucketR1Late},
		{intPtr(33), false, BucketR2},
		{intPtr(64), false, BucketR2},
		{intPtr(65), false, BucketR3},
		{intPtr(105), false, BucketR3},
		{intPtr(106), false, BucketDay3},
		{intPtr(262), false, BucketDay3},
		{nil, true, BucketUDFA},
		{nil, false, BucketReplacement},
		{intPtr(0), false, BucketReplacement},
	}
	for _, tt := range tests {
		if got := BucketFor(tt.pick, tt.undrafted); got != tt.want {
			t.Fatalf("BucketFor(%v, %v) = %s, want %s", tt.pick, tt.undrafted, got, tt.want)
		}
	}
}

func TestDefaultTemplatesKeepRates(t *testing.T) {
	tpl := DefaultTemplates()
	early := tpl[BucketR1Early][models.PositionQB]
	day3 := tpl[BucketDay3][models.PositionQB]
	if !approx(early.Completions/early.PassAttempts, day3.Completions/day3.PassAttempts) {
		t.Fatal("bucket scaling changed completion rate")
	}
	if day3.PassAttempts >= early.PassAttempts {
		t.Fatalf("day 3 volume %v should be below round 1 %v", day3.PassAttempts, early.PassAttempts)
	}
}

func TestParseTemplates(t *testing.T) {
	data := []byte(`
R2:
  WR:
    targets: 5.5
    rec_td: 0.3
`)
	tpl, err := ParseTemplates(data)
	if err != nil {
		t.Fatalf("ParseTemplates: %v", err)
	}
	wr := tpl[BucketR2][models.PositionWR]
	if wr.Targets != 5.5 || wr.RecTD != 0.3 {
		t.Fatalf("override not applied: %+v", wr)
	}
	if wr.Receptions != DefaultTemplates()[BucketR2][models.PositionWR].Receptions {
		t.Fatal("unlisted stat lost its default")
	}

	bad := map[string]string{
		"bucket":   "R9:\n  WR:\n    targets: 1\n",
		"position": "R2:\n  K:\n    targets: 1\n",
		"stat":     "R2:\n  WR:\n    punts: 1\n",
		"derived":  "R2:\n  WR:\n    catch_pct: 0.6\n",
		"negative": "R2:\n  WR:\n    targets: -1\n",
	}
	for name, doc := range bad {
		if _, err := ParseTemplates([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

type fakeSource struct {
	seasons []models.SeasonLine
	calls   int
}

func (f *fakeSource) PositionSeasons(_ context.Context, pos models.Position, before int) ([]models.SeasonLine, error) {
	f.calls++
	var out []models.SeasonLine
	for _, sl := range f.seasons {
		if sl.Position == pos && sl.Season < before {
			out = append(out, sl)
		}
	}
	return out, nil
}

func TestGenerateTemplateOnly(t *testing.T) {
	g := NewGenerator(nil, nil, DefaultConfig())
	res, err := g.Generate(context.Background(), models.Player{ID: uuid.New(), Position: models.PositionWR, DraftPick: intPtr(5)}, 2025)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Bucket != BucketR1Early {
		t.Fatalf("bucket = %s", res.Bucket)
	}
	if !approx(res.Line.Targets, 7*17*0.75) {
		t.Fatalf("targets = %v, want %v", res.Line.Targets, 7*17*0.75)
	}
	if res.Line.Games != 17 {
		t.Fatalf("games = %v, want 17", res.Line.Games)
	}
	if !approx(res.Line.CatchPct, 4.4/7) {
		t.Fatalf("catch_pct = %v, want %v", res.Line.CatchPct, 4.4/7)
	}
	if res.Line.FantasyPoints != stats.Score(res.Line) {
		t.Fatal("fantasy points not derived")
	}
}

func TestGenerateBlendsNearestComparables(t *testing.T) {
	self := uuid.New()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	src := &fakeSource{seasons: []models.SeasonLine{
		{PlayerID: a, Season: 2024, Position: models.PositionWR, Stats: stats.Line{Games: 17, Targets: 136, Receptions: 85}},
		{PlayerID: b, Season: 2023, Position: models.PositionWR, Stats: stats.Line{Games: 17, Targets: 102, Receptions: 68}},
		{PlayerID: c, Season: 2024, Position: models.PositionWR, Stats: stats.Line{Games: 10, Targets: 30, Receptions: 20}},
		{PlayerID: self, Season: 2024, Position: models.PositionWR, Stats: stats.Line{Games: 17, Targets: 119, Receptions: 80}},
		{PlayerID: uuid.New(), Season: 2024, Position: models.PositionWR, Stats: stats.Line{Games: 2, Targets: 14}},
		{PlayerID: uuid.New(), Season: 2025, Position: models.PositionWR, Stats: stats.Line{Games: 17, Targets: 119}},
	}}
	cfg := DefaultConfig()
	cfg.Comparables = 2
	g := NewGenerator(nil, src, cfg)

	res, err := g.Generate(context.Background(), models.Player{ID: self, Position: models.PositionWR, DraftPick: intPtr(10)}, 2025)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Comparables) != 2 || res.Comparables[0].PlayerID != a || res.Comparables[1].PlayerID != b {
		t.Fatalf("comparables = %+v, want a then b", res.Comparables)
	}
	playing := 17 * 0.75
	if !approx(res.Line.Targets, 7*playing) {
		t.Fatalf("targets = %v, want %v", res.Line.Targets, 7*playing)
	}
	wantRec := (0.3*4.5 + 0.7*4.4) * playing
	if !approx(res.Line.Receptions, wantRec) {
		t.Fatalf("receptions = %v, want %v", res.Line.Receptions, wantRec)
	}

	again, _ := g.Generate(context.Background(), models.Player{ID: self, Position: models.PositionWR, DraftPick: intPtr(10)}, 2025)
	if again.Line != res.Line {
		t.Fatal("Generate is not deterministic")
	}
}

func TestGenerateRejectsUnknownPosition(t *testing.T) {
	g := NewGenerator(nil, nil, DefaultConfig())
	_, err := g.Generate(context.Background(), models.Player{Position: "K"}, 2025)
	if !errors.Is(err, models.ErrUnknownPosition) {
		t.Fatalf("err = %v, want ErrUnknownPosition", err)
	}
}
