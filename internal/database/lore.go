package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/droplets-realm/api/internal/models"
)

// InsertLore stores a lore entry
func (db *DB) InsertLore(ctx context.Context, l *models.Lore) error {
	query := `
		INSERT INTO lore (character_id, author_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, vote_count, created_at
	`
	err := db.QueryRowContext(ctx, query, l.CharacterID, l.AuthorID, l.Body).Scan(&l.ID, &l.VoteCount, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert lore: %w", err)
	}
	return nil
}

// GetLore fetches a lore entry by id
func (db *DB) GetLore(ctx context.Context, id int64) (*models.Lore, error) {
	var l models.Lore
	query := `SELECT id, character_id, author_id, body, vote_count, created_at FROM lore WHERE id = $1`
	err := db.QueryRowContext(ctx, query, id).Scan(&l.ID, &l.CharacterID, &l.AuthorID, &l.Body, &l.VoteCount, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lore %d: %w", id, err)
	}
	return &l, nil
}

// ListLoreByCharacter returns a droplet's lore, most voted first
func (db *DB) ListLoreByCharacter(ctx context.Context, characterID int64) ([]models.Lore, error) {
	query := `
		SELECT id, character_id, author_id, body, vote_count, created_at
		FROM lore
		WHERE character_id = $1
		ORDER BY vote_count DESC, id ASC
	`
	rows, err := db.QueryContext(ctx, query, characterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lore: %w", err)
	}
	defer rows.Close()

	var out []models.Lore
	for rows.Next() {
		var l models.Lore
		if err := rows.Scan(&l.ID, &l.CharacterID, &l.AuthorID, &l.Body, &l.VoteCount, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lore: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// InsertLoreVote records a vote; the primary key rejects a second vote
func (db *DB) InsertLoreVote(ctx context.Context, loreID, userID int64) error {
	_, err := db.ExecContext(ctx, `INSERT INTO lore_votes (lore_id, user_id) VALUES ($1, $2)`, loreID, userID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrAlreadyVoted
		}
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

// IncrementLoreVotes bumps the vote counter in place
func (db *DB) IncrementLoreVotes(ctx context.Context, loreID int64) (int, error) {
	var votes int
	query := `UPDATE lore SET vote_count = vote_count + 1 WHERE id = $1 RETURNING vote_count`
	err := db.QueryRowContext(ctx, query, loreID).Scan(&votes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment votes: %w", err)
	}
	return votes, nil
}

// CountLoreByAuthor returns how many lore entries a user wrote
func (db *DB) CountLoreByAuthor(ctx context.Context, userID int64) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lore WHERE author_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count lore: %w", err)
	}
	return count, nil
}

// CountVotesByUser returns how many votes a user cast
func (db *DB) CountVotesByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lore_votes WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return count, nil
}
