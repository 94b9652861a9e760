package room

import (
	"time"

	"github.com/droplets-realm/api/internal/events"
	"github.com/droplets-realm/api/internal/models"
	"github.com/droplets-realm/api/internal/world"
)

// Phases in cycle order.
const (
	PhaseDawn  = "dawn"
	PhaseDay   = "day"
	PhaseDusk  = "dusk"
	PhaseNight = "night"
)

var phaseCycle = []string{PhaseDawn, PhaseDay, PhaseDusk, PhaseNight}

// NextPhase returns the phase after current. Unknown phases restart at dawn.
func NextPhase(current string) string {
	for i, p := range phaseCycle {
		if p == current {
			return phaseCycle[(i+1)%len(phaseCycle)]
		}
	}
	return PhaseDawn
}

// State is the room's in-memory view of the world.
type State struct {
	TotalCharacters int64     `json:"total_characters"`
	TotalWaters     int64     `json:"total_waters"`
	Season          string    `json:"season"`
	LastMilestone   int64     `json:"last_milestone"`
	MilestoneName   string    `json:"milestone_name,omitempty"`
	Phase           string    `json:"phase"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DefaultState is the state of a room that has never been persisted.
func DefaultState() State {
	return State{Season: "spring", Phase: PhaseDawn}
}

// Apply folds evt into the state and reports whether anything changed.
func (s *State) Apply(evt events.Event) bool {
	switch p := evt.Payload.(type) {
	case events.Spawn:
		s.TotalCharacters++
	case events.Water, events.LevelUp:
		s.TotalWaters++
	case events.Milestone:
		if p.Threshold <= s.LastMilestone {
			return false
		}
		s.LastMilestone = p.Threshold
		s.MilestoneName = p.Name
		if p.TotalCharacters > s.TotalCharacters {
			s.TotalCharacters = p.TotalCharacters
		}
	case events.Season:
		if p.Season == s.Season {
			return false
		}
		s.Season = p.Season
	case events.Phase:
		if p.Phase == s.Phase {
			return false
		}
		s.Phase = p.Phase
	default:
		return false
	}
	s.UpdatedAt = evt.Timestamp
	return true
}

// Reconcile takes counters, season and milestone from the durable row. The
// phase is owned by the room and kept.
func (s *State) Reconcile(ws *models.WorldState) {
	s.TotalCharacters = ws.TotalCharacters
	s.TotalWaters = ws.TotalWaters
	if ws.Season != "" {
		s.Season = ws.Season
	}
	if ws.LastMilestone >= s.LastMilestone {
		s.LastMilestone = ws.LastMilestone
		s.MilestoneName = world.MilestoneName(ws.LastMilestone)
	}
	if !ws.UpdatedAt.IsZero() && ws.UpdatedAt.After(s.UpdatedAt) {
		s.UpdatedAt = ws.UpdatedAt
	}
}
