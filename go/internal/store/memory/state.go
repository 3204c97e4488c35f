package memory

import (
	"github.com/google/uuid"
	"github.com/mcdev12/dynasty-projections/go/internal/models"
	"github.com/mcdev12/dynasty-projections/go/internal/stats"
)

type projectionKey struct {
	playerID   uuid.UUID
	season     int
	scenarioID uuid.UUID
}

type teamKey struct {
	teamID     uuid.UUID
	season     int
	scenarioID uuid.UUID
}

type overrideKey struct {
	projectionID uuid.UUID
	stat         stats.Stat
}

type state struct {
	teams       map[uuid.UUID]models.Team
	players     map[uuid.UUID]models.Player
	scenarios   map[uuid.UUID]models.Scenario
	projections map[uuid.UUID]models.Projection
	byKey       map[projectionKey]uuid.UUID
	teamStats   map[teamKey]models.TeamStat
	overrides   map[overrideKey]models.StatOverride
	outbox      []models.OutboxEvent
}

func newState() state {
	return state{
		teams:       make(map[uuid.UUID]models.Team),
		players:     make(map[uuid.UUID]models.Player),
		scenarios:   make(map[uuid.UUID]models.Scenario),
		projections: make(map[uuid.UUID]models.Projection),
		byKey:       make(map[projectionKey]uuid.UUID),
		teamStats:   make(map[teamKey]models.TeamStat),
		overrides:   make(map[overrideKey]models.StatOverride),
	}
}

func (s state) clone() state {
	out := newState()
	for k, v := range s.teams {
		out.teams[k] = v
	}
	for k, v := range s.players {
		out.players[k] = clonePlayer(v)
	}
	for k, v := range s.scenarios {
		out.scenarios[k] = cloneScenario(v)
	}
	for k, v := range s.projections {
		out.projections[k] = v.Clone()
	}
	for k, v := range s.byKey {
		out.byKey[k] = v
	}
	for k, v := range s.teamStats {
		out.teamStats[k] = v.Clone()
	}
	for k, v := range s.overrides {
		out.overrides[k] = v
	}
	out.outbox = make([]models.OutboxEvent, len(s.outbox))
	for i, ev := range s.outbox {
		out.outbox[i] = cloneEvent(ev)
	}
	return out
}

func clonePlayer(p models.Player) models.Player {
	if p.TeamID != nil {
		id := *p.TeamID
		p.TeamID = &id
	}
	if p.DraftYear != nil {
		y := *p.DraftYear
		p.DraftYear = &y
	}
	if p.DraftPick != nil {
		n := *p.DraftPick
		p.DraftPick = &n
	}
	return p
}

func cloneScenario(s models.Scenario) models.Scenario {
	if s.BaseScenarioID != nil {
		id := *s.BaseScenarioID
		s.BaseScenarioID = &id
	}
	s.Settings = append([]byte(nil), s.Settings...)
	return s
}

func cloneEvent(ev models.OutboxEvent) models.OutboxEvent {
	ev.Payload = append([]byte(nil), ev.Payload...)
	if ev.SentAt != nil {
		t := *ev.SentAt
		ev.SentAt = &t
	}
	return ev
}
