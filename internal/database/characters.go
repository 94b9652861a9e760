package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/droplets-realm/api/internal/models"
)

const characterColumns = `id, user_id, variant, x, y, level, water_count, is_legendary, traits, image_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(row rowScanner) (*models.Character, error) {
	var c models.Character
	var traits []byte
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Variant,
		&c.X,
		&c.Y,
		&c.Level,
		&c.WaterCount,
		&c.IsLegendary,
		&traits,
		&c.ImageURL,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Traits = traits
	return &c, nil
}

// EnsureUser records the identity supplied by the auth collaborator
func (db *DB) EnsureUser(ctx context.Context, userID int64, wallet string) error {
	query := `
		INSERT INTO users (id, wallet_address)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := db.ExecContext(ctx, query, userID, wallet); err != nil {
		return fmt.Errorf("failed to ensure user %d: %w", userID, err)
	}
	return nil
}

// CountDroplets returns how many droplets (not creations) a user owns
func (db *DB) CountDroplets(ctx context.Context, userID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM characters WHERE user_id = $1 AND variant = $2`
	if err := db.QueryRowContext(ctx, query, userID, models.VariantDroplet).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count droplets: %w", err)
	}
	return count, nil
}

// InsertCharacter stores a freshly minted character and fills in its generated columns
func (db *DB) InsertCharacter(ctx context.Context, c *models.Character) error {
	traits := []byte(c.Traits)
	if len(traits) == 0 {
		traits = []byte("{}")
	}

	query := `
		INSERT INTO characters (user_id, variant, x, y, level, water_count, is_legendary, traits, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := db.QueryRowContext(ctx, query,
		c.UserID, c.Variant, c.X, c.Y, c.Level, c.WaterCount, c.IsLegendary, traits, c.ImageURL,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "idx_characters_one_droplet") {
			return ErrAlreadyMinted
		}
		return fmt.Errorf("failed to insert character: %w", err)
	}
	return nil
}

// GetCharacter fetches a character by id
func (db *DB) GetCharacter(ctx context.Context, id int64) (*models.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE id = $1`
	c, err := scanCharacter(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch character %d: %w", id, err)
	}
	return c, nil
}

// GetDropletByUser fetches the droplet owned by a user
func (db *DB) GetDropletByUser(ctx context.Context, userID int64) (*models.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters WHERE user_id = $1 AND variant = $2`
	c, err := scanCharacter(db.QueryRowContext(ctx, query, userID, models.VariantDroplet))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch droplet for user %d: %w", userID, err)
	}
	return c, nil
}

// ListCharacters returns characters for the world canvas, oldest first
func (db *DB) ListCharacters(ctx context.Context, limit int) ([]models.Character, error) {
	query := `SELECT ` + characterColumns + ` FROM characters ORDER BY id ASC LIMIT $1`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	defer rows.Close()

	var out []models.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// IncrementWaterCount adds one water to a character in place and returns
// the post-increment count together with the stored level
func (db *DB) IncrementWaterCount(ctx context.Context, id int64) (waterCount, level int, err error) {
	query := `
		UPDATE characters
		SET water_count = water_count + 1
		WHERE id = $1
		RETURNING water_count, level
	`
	err = db.QueryRowContext(ctx, query, id).Scan(&waterCount, &level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment water count: %w", err)
	}
	return waterCount, level, nil
}

// RaiseLevel sets the level only if it would increase, so concurrent writers
// converge on the highest derived level
func (db *DB) RaiseLevel(ctx context.Context, id int64, level int) (bool, error) {
	query := `UPDATE characters SET level = $2 WHERE id = $1 AND level < $2`
	res, err := db.ExecContext(ctx, query, id, level)
	if err != nil {
		return false, fmt.Errorf("failed to raise level: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// InsertWater records who watered which character
func (db *DB) InsertWater(ctx context.Context, characterID, userID int64) error {
	query := `INSERT INTO waters (character_id, user_id) VALUES ($1, $2)`
	if _, err := db.ExecContext(ctx, query, characterID, userID); err != nil {
		return fmt.Errorf("failed to insert water: %w", err)
	}
	return nil
}

// CountWatersByUser returns how many waterings a user has given
func (db *DB) CountWatersByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM waters WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count waters: %w", err)
	}
	return count, nil
}
