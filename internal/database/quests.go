package database

import (
	"context"
	"fmt"
)

// InsertQuestClaim marks a quest as claimed; the primary key rejects a second claim
func (db *DB) InsertQuestClaim(ctx context.Context, userID int64, questID string) error {
	_, err := db.ExecContext(ctx, `INSERT INTO quest_claims (user_id, quest_id) VALUES ($1, $2)`, userID, questID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("failed to insert quest claim: %w", err)
	}
	return nil
}

// DeleteQuestClaim undoes a claim whose reward could not be granted
func (db *DB) DeleteQuestClaim(ctx context.Context, userID int64, questID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM quest_claims WHERE user_id = $1 AND quest_id = $2`, userID, questID)
	if err != nil {
		return fmt.Errorf("failed to delete quest claim: %w", err)
	}
	return nil
}

// ClaimedQuests lists the quest ids a user has claimed
func (db *DB) ClaimedQuests(ctx context.Context, userID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT quest_id FROM quest_claims WHERE user_id = $1 ORDER BY claimed_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quest claims: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan quest claim: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
