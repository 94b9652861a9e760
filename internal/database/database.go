package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyMinted is returned when a user already owns a droplet
	ErrAlreadyMinted = errors.New("user already owns a droplet")
	// ErrAlreadyVoted is returned on a second vote for the same lore entry
	ErrAlreadyVoted = errors.New("already voted")
	// ErrAlreadyClaimed is returned on a second claim of the same quest
	ErrAlreadyClaimed = errors.New("quest already claimed")
)

// Config holds database configuration
type Config struct {
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"droplets"`
	Password        string        `env:"DB_PASSWORD" envDefault:"droplets_password"`
	DBName          string        `env:"DB_NAME" envDefault:"droplets_db"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`
}

// LoadConfigFromEnv loads database configuration from environment variables
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	return cfg, nil
}

// NewConnection creates a new database connection with the provided configuration
func NewConnection(config *Config) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("[Database] Connected to %s:%s/%s", config.Host, config.Port, config.DBName)
	log.Printf("[Database] Pool config: MaxOpen=%d, MaxIdle=%d", config.MaxOpenConns, config.MaxIdleConns)

	return &DB{db}, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation,
// optionally on the named constraint
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// InitSchema creates database tables if they don't exist
func (db *DB) InitSchema() error {
	schema := `
	-- Users table (rows mirror identities issued by the auth service)
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		wallet_address VARCHAR(64) UNIQUE NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	-- Characters table (one droplet per user, any number of creations)
	CREATE TABLE IF NOT EXISTS characters (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		variant VARCHAR(16) NOT NULL DEFAULT 'droplet',
		x REAL NOT NULL DEFAULT 0,
		y REAL NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1 CHECK (level BETWEEN 1 AND 5),
		water_count INTEGER NOT NULL DEFAULT 0 CHECK (water_count >= 0),
		is_legendary BOOLEAN NOT NULL DEFAULT FALSE,
		traits JSONB NOT NULL DEFAULT '{}'::jsonb,
		image_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	-- Waters table (one row per applied watering)
	CREATE TABLE IF NOT EXISTS waters (
		id BIGSERIAL PRIMARY KEY,
		character_id BIGINT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	-- World state singleton
	CREATE TABLE IF NOT EXISTS world_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total_characters BIGINT NOT NULL DEFAULT 0,
		total_waters BIGINT NOT NULL DEFAULT 0,
		season VARCHAR(16) NOT NULL DEFAULT 'spring',
		last_milestone BIGINT NOT NULL DEFAULT 0,
		phase VARCHAR(16) NOT NULL DEFAULT 'dawn',
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);
	INSERT INTO world_state (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

	-- Lore table
	CREATE TABLE IF NOT EXISTS lore (
		id BIGSERIAL PRIMARY KEY,
		character_id BIGINT NOT NULL REFERENCES characters(id) ON DELETE CASCADE,
		author_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		body TEXT NOT NULL,
		vote_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	-- Lore votes table
	CREATE TABLE IF NOT EXISTS lore_votes (
		lore_id BIGINT NOT NULL REFERENCES lore(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (lore_id, user_id)
	);

	-- Rewards ledger
	CREATE TABLE IF NOT EXISTS rewards (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount INTEGER NOT NULL CHECK (amount > 0),
		source VARCHAR(32) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	-- Quest claims
	CREATE TABLE IF NOT EXISTS quest_claims (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		quest_id VARCHAR(64) NOT NULL,
		claimed_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, quest_id)
	);

	-- Create indexes for performance
	CREATE UNIQUE INDEX IF NOT EXISTS idx_characters_one_droplet ON characters(user_id) WHERE variant = 'droplet';
	CREATE INDEX IF NOT EXISTS idx_characters_user_id ON characters(user_id);
	CREATE INDEX IF NOT EXISTS idx_characters_water_count ON characters(water_count DESC);
	CREATE INDEX IF NOT EXISTS idx_waters_user_id ON waters(user_id);
	CREATE INDEX IF NOT EXISTS idx_waters_character_id ON waters(character_id);
	CREATE INDEX IF NOT EXISTS idx_lore_character_id ON lore(character_id);
	CREATE INDEX IF NOT EXISTS idx_lore_votes_user_id ON lore_votes(user_id);
	CREATE INDEX IF NOT EXISTS idx_rewards_user_created ON rewards(user_id, created_at DESC);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Initialize triggers and functions
	if err := db.initTriggers(); err != nil {
		return fmt.Errorf("failed to initialize triggers: %w", err)
	}

	log.Println("[Database] Schema initialized with indexes and triggers")
	return nil
}

// initTriggers creates database triggers for automation
func (db *DB) initTriggers() error {
	triggers := `
	-- Function to update row timestamps
	CREATE OR REPLACE FUNCTION touch_updated_at()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = CURRENT_TIMESTAMP;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;

	-- Trigger to auto-update character timestamp
	DROP TRIGGER IF EXISTS trg_touch_characters ON characters;
	CREATE TRIGGER trg_touch_characters
		BEFORE UPDATE ON characters
		FOR EACH ROW
		EXECUTE FUNCTION touch_updated_at();

	-- Trigger to auto-update world state timestamp
	DROP TRIGGER IF EXISTS trg_touch_world_state ON world_state;
	CREATE TRIGGER trg_touch_world_state
		BEFORE UPDATE ON world_state
		FOR EACH ROW
		EXECUTE FUNCTION touch_updated_at();
	`

	_, err := db.Exec(triggers)
	return err
}
