package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/droplets-realm/api/internal/models"
)

// WorldCounter names one of the relative counters on the world_state row
type WorldCounter int

const (
	CounterCharacters WorldCounter = iota
	CounterWaters
)

func (c WorldCounter) String() string {
	switch c {
	case CounterCharacters:
		return "total_characters"
	case CounterWaters:
		return "total_waters"
	default:
		return fmt.Sprintf("WorldCounter(%d)", int(c))
	}
}

// incrementWorldQueries keeps the column name out of any string formatting
var incrementWorldQueries = map[WorldCounter]string{
	CounterCharacters: `
		UPDATE world_state SET total_characters = total_characters + 1
		WHERE id = 1
		RETURNING total_characters, total_waters, season, last_milestone, phase, updated_at`,
	CounterWaters: `
		UPDATE world_state SET total_waters = total_waters + 1
		WHERE id = 1
		RETURNING total_characters, total_waters, season, last_milestone, phase, updated_at`,
}

func scanWorld(row rowScanner) (*models.WorldState, error) {
	var w models.WorldState
	err := row.Scan(&w.TotalCharacters, &w.TotalWaters, &w.Season, &w.LastMilestone, &w.Phase, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWorldState reads the singleton world row
func (db *DB) GetWorldState(ctx context.Context) (*models.WorldState, error) {
	query := `SELECT total_characters, total_waters, season, last_milestone, phase, updated_at FROM world_state WHERE id = 1`
	w, err := scanWorld(db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read world state: %w", err)
	}
	return w, nil
}

// IncrementWorldCounter applies a single relative increment to the world row
func (db *DB) IncrementWorldCounter(ctx context.Context, counter WorldCounter) (*models.WorldState, error) {
	query, ok := incrementWorldQueries[counter]
	if !ok {
		return nil, fmt.Errorf("unknown world counter %s", counter)
	}
	w, err := scanWorld(db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment %s: %w", counter, err)
	}
	return w, nil
}

// AdvanceMilestone moves last_milestone forward to threshold. It reports
// false when another writer already recorded this or a higher milestone.
func (db *DB) AdvanceMilestone(ctx context.Context, threshold int64) (bool, error) {
	query := `UPDATE world_state SET last_milestone = $1 WHERE id = 1 AND last_milestone < $1`
	res, err := db.ExecContext(ctx, query, threshold)
	if err != nil {
		return false, fmt.Errorf("failed to advance milestone: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// SetSeason overwrites the world season
func (db *DB) SetSeason(ctx context.Context, season string) (*models.WorldState, error) {
	query := `
		UPDATE world_state SET season = $1
		WHERE id = 1
		RETURNING total_characters, total_waters, season, last_milestone, phase, updated_at`
	w, err := scanWorld(db.QueryRowContext(ctx, query, season))
	if err != nil {
		return nil, fmt.Errorf("failed to set season: %w", err)
	}
	return w, nil
}

// SetPhase mirrors the room's day phase onto the durable row
func (db *DB) SetPhase(ctx context.Context, phase string) error {
	if _, err := db.ExecContext(ctx, `UPDATE world_state SET phase = $1 WHERE id = 1`, phase); err != nil {
		return fmt.Errorf("failed to set phase: %w", err)
	}
	return nil
}
