// Package world maintains the durable world aggregate: the shared character
// and water counters, the milestone ladder and the season.
package world

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/droplets-realm/api/internal/background"
	"github.com/droplets-realm/api/internal/database"
	"github.com/droplets-realm/api/internal/events"
	"github.com/droplets-realm/api/internal/models"
)

// Store is the durable side of the world aggregate.
type Store interface {
	GetWorldState(ctx context.Context) (*models.WorldState, error)
	IncrementWorldCounter(ctx context.Context, counter database.WorldCounter) (*models.WorldState, error)
	AdvanceMilestone(ctx context.Context, threshold int64) (bool, error)
	SetSeason(ctx context.Context, season string) (*models.WorldState, error)
}

// Cache holds the short-lived world snapshot served to readers.
type Cache interface {
	GetCachedWorld(ctx context.Context, dst any) (bool, error)
	SetCachedWorld(ctx context.Context, v any) error
	InvalidateWorld(ctx context.Context) error
}

// Publisher fans out world events.
type Publisher interface {
	Publish(payload events.Payload) events.Event
}

const (
	defaultAttempts = 3
	defaultDelay    = 200 * time.Millisecond
)

// ErrInvalidSeason is returned for a season outside Seasons.
var ErrInvalidSeason = errors.New("invalid season")

// Updater applies increments to the world row and fires milestones.
type Updater struct {
	store     Store
	cache     Cache
	publisher Publisher
	runner    *background.Runner

	attempts int
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewUpdater wires an Updater. cache and publisher may be nil.
func NewUpdater(store Store, cache Cache, publisher Publisher, runner *background.Runner) *Updater {
	return &Updater{
		store:     store,
		cache:     cache,
		publisher: publisher,
		runner:    runner,
		attempts:  defaultAttempts,
		delay:     defaultDelay,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Increment adds one to counter, retrying transient failures, then
// invalidates the cached snapshot. Character increments also run the
// milestone check against the post-increment total.
func (u *Updater) Increment(ctx context.Context, counter database.WorldCounter) (*models.WorldState, error) {
	var (
		state *models.WorldState
		err   error
	)
	for attempt := 1; attempt <= u.attempts; attempt++ {
		state, err = u.store.IncrementWorldCounter(ctx, counter)
		if err == nil {
			break
		}
		log.Printf("[World] Increment %s attempt %d/%d failed: %v", counter, attempt, u.attempts, err)
		if attempt < u.attempts {
			if serr := u.sleep(ctx, u.delay); serr != nil {
				return nil, fmt.Errorf("increment %s: %w", counter, serr)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("increment %s after %d attempts: %w", counter, u.attempts, err)
	}

	u.invalidate(ctx)

	if counter == database.CounterCharacters {
		u.checkMilestone(ctx, state)
	}
	return state, nil
}

// IncrementBestEffort schedules Increment in the background. A failure is
// logged and counted; the aggregate is allowed to drift.
func (u *Updater) IncrementBestEffort(counter database.WorldCounter) {
	u.runner.Go("world increment "+counter.String(), func(ctx context.Context) error {
		_, err := u.Increment(ctx, counter)
		return err
	})
}

func (u *Updater) checkMilestone(ctx context.Context, state *models.WorldState) {
	m, ok := MilestoneFor(state.TotalCharacters)
	if !ok || m.Threshold <= state.LastMilestone {
		return
	}

	// The conditional update lets exactly one concurrent writer win a threshold.
	advanced, err := u.store.AdvanceMilestone(ctx, m.Threshold)
	if err != nil {
		log.Printf("[World] Failed to record milestone %d: %v", m.Threshold, err)
		return
	}
	if !advanced {
		return
	}
	state.LastMilestone = m.Threshold
	u.invalidate(ctx)

	log.Printf("[World] Milestone reached: %s (%d characters)", m.Name, state.TotalCharacters)
	if u.publisher != nil {
		u.publisher.Publish(events.Milestone{
			Threshold:       m.Threshold,
			Name:            m.Name,
			TotalCharacters: state.TotalCharacters,
		})
	}
}

// SetSeason changes the world season and announces it.
func (u *Updater) SetSeason(ctx context.Context, season string) (*models.WorldState, error) {
	if !ValidSeason(season) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeason, season)
	}
	state, err := u.store.SetSeason(ctx, season)
	if err != nil {
		return nil, err
	}
	u.invalidate(ctx)
	if u.publisher != nil {
		u.publisher.Publish(events.Season{Season: season})
	}
	return state, nil
}

// Snapshot returns the world state, served from the cache when fresh.
func (u *Updater) Snapshot(ctx context.Context) (*models.WorldState, error) {
	if u.cache != nil {
		var cached models.WorldState
		ok, err := u.cache.GetCachedWorld(ctx, &cached)
		if err != nil {
			log.Printf("[World] Cache read failed, falling back to database: %v", err)
		} else if ok {
			return &cached, nil
		}
	}

	state, err := u.store.GetWorldState(ctx)
	if err != nil {
		return nil, err
	}
	if u.cache != nil {
		if err := u.cache.SetCachedWorld(ctx, state); err != nil {
			log.Printf("[World] Cache write failed: %v", err)
		}
	}
	return state, nil
}

func (u *Updater) invalidate(ctx context.Context) {
	if u.cache == nil {
		return
	}
	if err := u.cache.InvalidateWorld(ctx); err != nil {
		log.Printf("[World] Cache invalidation failed: %v", err)
	}
}
