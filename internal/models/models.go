package models

import (
	"encoding/json"
	"time"
)

// Character variants
const (
	// VariantDroplet is the single mintable droplet a user owns
	VariantDroplet = "droplet"
	// VariantCreation marks community creations that do not count against the mint limit
	VariantCreation = "creation"
)

// User represents an account known to the auth collaborator
type User struct {
	ID            int64     `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"`
}

// Character represents a minted droplet
type Character struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Variant     string          `json:"variant"`
	X           float64         `json:"x"`
	Y           float64         `json:"y"`
	Level       int             `json:"level"`
	WaterCount  int             `json:"water_count"`
	IsLegendary bool            `json:"is_legendary"`
	Traits      json.RawMessage `json:"traits,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WorldState is the singleton aggregate row
type WorldState struct {
	TotalCharacters int64     `json:"total_characters"`
	TotalWaters     int64     `json:"total_waters"`
	Season          string    `json:"season"`
	LastMilestone   int64     `json:"last_milestone"`
	Phase           string    `json:"phase"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Lore is a community-written story attached to a droplet
type Lore struct {
	ID          int64     `json:"id"`
	CharacterID int64     `json:"character_id"`
	AuthorID    int64     `json:"author_id"`
	Body        string    `json:"body"`
	VoteCount   int       `json:"vote_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Reward is one token award in the ledger
type Reward struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Amount      int       `json:"amount"`
	Source      string    `json:"source"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
