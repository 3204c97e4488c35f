package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

func TestProjectionJSONReportsOverrides(t *testing.T) {
	tests := []struct {
		name   string
		pinned stats.Pins
		want   bool
	}{
		{"no pins", nil, false},
		{"pinned volume", stats.Pins{stats.Targets}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Projection{ID: uuid.New(), PlayerID: uuid.New(), Season: 2025, Position: PositionWR,
				Source: SourceHistory, Stats: stats.Line{Games: 17, Targets: 120}, Pinned: tt.pinned}
			data, err := json.Marshal(p)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}

			var wire map[string]any
			if err := json.Unmarshal(data, &wire); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got, ok := wire["has_overrides"].(bool); !ok || got != tt.want {
				t.Errorf("has_overrides = %v, want %v", wire["has_overrides"], tt.want)
			}
			if wire["player_id"] != p.PlayerID.String() || wire["source"] != "history" {
				t.Errorf("projection fields lost: %s", data)
			}

			var back Projection
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal projection: %v", err)
			}
			if back.HasOverrides() != tt.want || back.Stats.Targets != 120 {
				t.Errorf("decoded = %+v", back)
			}
		})
	}
}
