// Package evolution maps a droplet's cumulative water count to its level.
package evolution

const (
	// MinLevel is the level every droplet starts at.
	MinLevel = 1
	// MaxLevel is the highest reachable level.
	MaxLevel = 5
)

// Threshold is the water count at which a droplet reaches Level.
type Threshold struct {
	Level  int
	Waters int
}

// Thresholds lists the level requirements in ascending order.
var Thresholds = []Threshold{
	{Level: 2, Waters: 3},
	{Level: 3, Waters: 10},
	{Level: 4, Waters: 25},
	{Level: 5, Waters: 50},
}

// LevelFor returns the level a droplet with the given water count qualifies for.
func LevelFor(waters int) int {
	for i := len(Thresholds) - 1; i >= 0; i-- {
		if waters >= Thresholds[i].Waters {
			return Thresholds[i].Level
		}
	}
	return MinLevel
}

// Level returns the level for waters, never lower than current.
// A single update that crosses several thresholds jumps straight to the
// highest qualifying level.
func Level(current, waters int) int {
	if current < MinLevel {
		current = MinLevel
	}
	if current > MaxLevel {
		current = MaxLevel
	}
	next := LevelFor(waters)
	if next < current {
		return current
	}
	return next
}

// NextThreshold returns the water count required for the level after level.
// ok is false once level is at MaxLevel.
func NextThreshold(level int) (waters int, ok bool) {
	for _, t := range Thresholds {
		if t.Level > level {
			return t.Waters, true
		}
	}
	return 0, false
}
