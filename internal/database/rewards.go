package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCapExceeded is returned when a capped insert would push the user over the cap
var ErrCapExceeded = errors.New("reward cap exceeded")

// SumRewardsSince totals a user's awards created after since
func (db *DB) SumRewardsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var total int
	query := `SELECT COALESCE(SUM(amount), 0) FROM rewards WHERE user_id = $1 AND created_at > $2`
	if err := db.QueryRowContext(ctx, query, userID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum rewards: %w", err)
	}
	return total, nil
}

// InsertRewardCapped records an award only if the user's total since the
// window start stays within limit. Awards for one user are serialized by a
// transaction-scoped advisory lock, so the sum is read after any competing
// insert has committed.
func (db *DB) InsertRewardCapped(ctx context.Context, userID int64, amount int, source, description string, since time.Time, limit int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reward transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1::bigint)`, userID); err != nil {
		return fmt.Errorf("failed to lock rewards for user %d: %w", userID, err)
	}

	var earned int
	query := `SELECT COALESCE(SUM(amount), 0) FROM rewards WHERE user_id = $1 AND created_at > $2`
	if err := tx.QueryRowContext(ctx, query, userID, since).Scan(&earned); err != nil {
		return fmt.Errorf("failed to sum rewards: %w", err)
	}
	if earned+amount > limit {
		return ErrCapExceeded
	}

	insert := `INSERT INTO rewards (user_id, amount, source, description) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, insert, userID, amount, source, description); err != nil {
		return fmt.Errorf("failed to insert reward: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reward: %w", err)
	}
	return nil
}

// RewardBalance totals all awards ever granted to a user
func (db *DB) RewardBalance(ctx context.Context, userID int64) (int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM rewards WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return total, nil
}
