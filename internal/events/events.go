// Package events defines the world events fanned out to live clients.
//
// Every event kind has its own payload struct. Payload is a closed interface:
// only the types in this file implement it, and decoding rejects unknown
// kinds.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Type is the wire name of an event kind.
type Type string

const (
	TypeSpawn     Type = "spawn"
	TypeWater     Type = "water"
	TypeLevelUp   Type = "levelUp"
	TypeMilestone Type = "milestone"
	TypeSeason    Type = "season"
	TypePhase     Type = "phase"
)

// ErrUnknownType is returned when decoding an event of an unknown kind.
var ErrUnknownType = errors.New("unknown event type")

// Payload is implemented by the per-kind payload structs.
type Payload interface {
	EventType() Type
	sealed()
}

// Spawn is published when a droplet is minted.
type Spawn struct {
	CharacterID int64   `json:"character_id"`
	OwnerID     int64   `json:"owner_id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Level       int     `json:"level"`
	IsLegendary bool    `json:"is_legendary"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// Water is published when a droplet is watered without changing level.
type Water struct {
	CharacterID int64  `json:"character_id"`
	WateredBy   string `json:"watered_by"`
	WaterCount  int    `json:"water_count"`
	Level       int    `json:"level"`
}

// LevelUp is published instead of Water when the watering raised the level.
type LevelUp struct {
	CharacterID   int64  `json:"character_id"`
	WateredBy     string `json:"watered_by"`
	WaterCount    int    `json:"water_count"`
	PreviousLevel int    `json:"previous_level"`
	Level         int    `json:"level"`
}

// Milestone is published once when the world crosses a character-count threshold.
type Milestone struct {
	Threshold       int64  `json:"threshold"`
	Name            string `json:"name"`
	TotalCharacters int64  `json:"total_characters"`
}

// Season is published when the world season changes.
type Season struct {
	Season string `json:"season"`
}

// Phase is published by the room's day cycle alarm.
type Phase struct {
	Phase string `json:"phase"`
}

func (Spawn) EventType() Type     { return TypeSpawn }
func (Water) EventType() Type     { return TypeWater }
func (LevelUp) EventType() Type   { return TypeLevelUp }
func (Milestone) EventType() Type { return TypeMilestone }
func (Season) EventType() Type    { return TypeSeason }
func (Phase) EventType() Type     { return TypePhase }

func (Spawn) sealed()     {}
func (Water) sealed()     {}
func (LevelUp) sealed()   {}
func (Milestone) sealed() {}
func (Season) sealed()    {}
func (Phase) sealed()     {}

// Event is a single world state transition.
type Event struct {
	ID        int64
	Type      Type
	Payload   Payload
	Timestamp time.Time
}

// New stamps payload with a fresh identifier.
func New(payload Payload, now time.Time) Event {
	return Event{
		ID:        NewID(now),
		Type:      payload.EventType(),
		Payload:   payload,
		Timestamp: now,
	}
}

var lastID atomic.Int64

// NewID derives an identifier from now in milliseconds followed by a three
// digit rolling counter. Identifiers issued by one process strictly increase
// even when the clock stalls or steps back.
func NewID(now time.Time) int64 {
	candidate := now.UnixMilli() * 1000
	for {
		last := lastID.Load()
		next := candidate
		if next <= last {
			next = last + 1
		}
		if lastID.CompareAndSwap(last, next) {
			return next
		}
	}
}

type wireEvent struct {
	ID        int64           `json:"id"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// MarshalJSON encodes the event with its type as discriminator and the
// timestamp in unix milliseconds.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event %d has no payload", e.ID)
	}
	if e.Type != "" && e.Type != e.Payload.EventType() {
		return nil, fmt.Errorf("event type %q does not match payload %q", e.Type, e.Payload.EventType())
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Payload.EventType(), err)
	}
	return json.Marshal(wireEvent{
		ID:        e.ID,
		Type:      e.Payload.EventType(),
		Payload:   payload,
		Timestamp: e.Timestamp.UnixMilli(),
	})
}

// UnmarshalJSON decodes an event, picking the payload struct by type.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := DecodePayload(w.Type, w.Payload)
	if err != nil {
		return err
	}
	*e = Event{
		ID:        w.ID,
		Type:      w.Type,
		Payload:   payload,
		Timestamp: time.UnixMilli(w.Timestamp).UTC(),
	}
	return nil
}

// DecodePayload decodes raw into the payload struct for t.
func DecodePayload(t Type, raw json.RawMessage) (Payload, error) {
	var (
		payload Payload
		err     error
	)
	switch t {
	case TypeSpawn:
		var p Spawn
		err = json.Unmarshal(raw, &p)
		payload = p
	case TypeWater:
		var p Water
		err = json.Unmarshal(raw, &p)
		payload = p
	case TypeLevelUp:
		var p LevelUp
		err = json.Unmarshal(raw, &p)
		payload = p
	case TypeMilestone:
		var p Milestone
		err = json.Unmarshal(raw, &p)
		payload = p
	case TypeSeason:
		var p Season
		err = json.Unmarshal(raw, &p)
		payload = p
	case TypePhase:
		var p Phase
		err = json.Unmarshal(raw, &p)
		payload = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return payload, nil
}
