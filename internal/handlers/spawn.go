package handlers

import (
	"math"

	"github.com/droplets-realm/api/internal/models"
)

// World canvas the droplets are placed on
const (
	CanvasWidth      = 2000.0
	CanvasHeight     = 1200.0
	SpawnMinDistance = 60.0
	SpawnAttempts    = 30
	spawnMargin      = 40.0
)

// samplePosition picks a point at least SpawnMinDistance from every existing
// character. After SpawnAttempts misses it returns the candidate that was
// furthest from its nearest neighbour.
func samplePosition(random func() float64, existing []models.Character) (float64, float64) {
	var bestX, bestY, bestDist float64
	bestDist = -1
	for i := 0; i < SpawnAttempts; i++ {
		x := spawnMargin + random()*(CanvasWidth-2*spawnMargin)
		y := spawnMargin + random()*(CanvasHeight-2*spawnMargin)
		d := nearestDistance(x, y, existing)
		if d >= SpawnMinDistance {
			return x, y
		}
		if d > bestDist {
			bestX, bestY, bestDist = x, y, d
		}
	}
	return bestX, bestY
}

func nearestDistance(x, y float64, existing []models.Character) float64 {
	nearest := math.Inf(1)
	for _, c := range existing {
		if d := math.Hypot(c.X-x, c.Y-y); d < nearest {
			nearest = d
		}
	}
	return nearest
}
