package world

// Milestone is a world character-count threshold.
type Milestone struct {
	Threshold int64
	Name      string
}

// Milestones lists the thresholds in ascending order.
var Milestones = []Milestone{
	{Threshold: 100, Name: "streams"},
	{Threshold: 500, Name: "rivers"},
	{Threshold: 1000, Name: "lakes"},
	{Threshold: 5000, Name: "seas"},
	{Threshold: 10000, Name: "ocean"},
}

// MilestoneFor returns the highest milestone total has reached.
func MilestoneFor(total int64) (Milestone, bool) {
	for i := len(Milestones) - 1; i >= 0; i-- {
		if total >= Milestones[i].Threshold {
			return Milestones[i], true
		}
	}
	return Milestone{}, false
}

// MilestoneName returns the name recorded for threshold, or "".
func MilestoneName(threshold int64) string {
	for _, m := range Milestones {
		if m.Threshold == threshold {
			return m.Name
		}
	}
	return ""
}

// Seasons lists the valid world seasons.
var Seasons = []string{"spring", "summer", "autumn", "winter"}

// ValidSeason reports whether s is one of Seasons.
func ValidSeason(s string) bool {
	for _, season := range Seasons {
		if season == s {
			return true
		}
	}
	return false
}
