package evolution

import "testing"

func TestLevelForThresholds(t *testing.T) {
	cases := []struct {
		waters int
		want   int
	}{
		{0, 1},
		{2, 1},
		{3, 2},
		{9, 2},
		{10, 3},
		{24, 3},
		{25, 4},
		{49, 4},
		{50, 5},
		{500, 5},
	}
	for _, tc := range cases {
		if got := LevelFor(tc.waters); got != tc.want {
			t.Fatalf("LevelFor(%d) = %d, want %d", tc.waters, got, tc.want)
		}
	}
}

func TestLevelThirdWaterLevelsUp(t *testing.T) {
	level, waters := 1, 0
	var leveledUp []bool
	for i := 0; i < 3; i++ {
		waters++
		next := Level(level, waters)
		leveledUp = append(leveledUp, next > level)
		level = next
	}
	if level != 2 || waters != 3 {
		t.Fatalf("expected level 2 at 3 waters, got level %d at %d", level, waters)
	}
	if leveledUp[0] || leveledUp[1] || !leveledUp[2] {
		t.Fatalf("expected only third water to level up, got %v", leveledUp)
	}
}

func TestLevelJumpsToHighestQualifying(t *testing.T) {
	if got := Level(1, 12); got != 3 {
		t.Fatalf("expected level 3 for 12 waters, got %d", got)
	}
	if got := Level(1, 60); got != MaxLevel {
		t.Fatalf("expected max level for 60 waters, got %d", got)
	}
}

func TestLevelNeverRegresses(t *testing.T) {
	if got := Level(4, 3); got != 4 {
		t.Fatalf("expected level to stay at 4, got %d", got)
	}

	level := 1
	for waters := 0; waters <= 80; waters++ {
		next := Level(level, waters)
		if next < level {
			t.Fatalf("level regressed from %d to %d at %d waters", level, next, waters)
		}
		if next != LevelFor(waters) {
			t.Fatalf("level %d diverged from LevelFor(%d)=%d", next, waters, LevelFor(waters))
		}
		level = next
	}
}

func TestNextThreshold(t *testing.T) {
	if w, ok := NextThreshold(1); !ok || w != 3 {
		t.Fatalf("expected next threshold 3, got %d %v", w, ok)
	}
	if w, ok := NextThreshold(4); !ok || w != 50 {
		t.Fatalf("expected next threshold 50, got %d %v", w, ok)
	}
	if _, ok := NextThreshold(MaxLevel); ok {
		t.Fatalf("expected no threshold past max level")
	}
}
