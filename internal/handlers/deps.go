package handlers

import (
	"context"
	"time"

	"github.com/droplets-realm/api/internal/database"
	"github.com/droplets-realm/api/internal/events"
	"github.com/droplets-realm/api/internal/models"
	"github.com/droplets-realm/api/internal/ratelimit"
	"github.com/droplets-realm/api/internal/redis"
	"github.com/droplets-realm/api/internal/rewards"
)

// CharacterStore is the durable character table.
type CharacterStore interface {
	EnsureUser(ctx context.Context, userID int64, wallet string) error
	CountDroplets(ctx context.Context, userID int64) (int, error)
	InsertCharacter(ctx context.Context, c *models.Character) error
	GetCharacter(ctx context.Context, id int64) (*models.Character, error)
	GetDropletByUser(ctx context.Context, userID int64) (*models.Character, error)
	ListCharacters(ctx context.Context, limit int) ([]models.Character, error)
	IncrementWaterCount(ctx context.Context, id int64) (waterCount, level int, err error)
	RaiseLevel(ctx context.Context, id int64, level int) (bool, error)
	InsertWater(ctx context.Context, characterID, userID int64) error
}

// LoreStore is the durable lore table.
type LoreStore interface {
	InsertLore(ctx context.Context, l *models.Lore) error
	GetLore(ctx context.Context, id int64) (*models.Lore, error)
	ListLoreByCharacter(ctx context.Context, characterID int64) ([]models.Lore, error)
	InsertLoreVote(ctx context.Context, loreID, userID int64) error
	IncrementLoreVotes(ctx context.Context, loreID int64) (int, error)
}

// Leaderboards are the Redis sorted sets.
type Leaderboards interface {
	RecordWater(ctx context.Context, characterID int64, wallet string) error
	SetCharacterWaters(ctx context.Context, characterID int64, waters int) error
	TopCharacters(ctx context.Context, limit int64) ([]redis.LeaderboardEntry, error)
	TopWaterers(ctx context.Context, limit int64) ([]redis.LeaderboardEntry, error)
}

// World is the aggregate updater.
type World interface {
	IncrementBestEffort(counter database.WorldCounter)
	Snapshot(ctx context.Context) (*models.WorldState, error)
	SetSeason(ctx context.Context, season string) (*models.WorldState, error)
}

// Publisher fans out domain events.
type Publisher interface {
	Publish(payload events.Payload) events.Event
}

// RewardLedger grants capped rewards.
type RewardLedger interface {
	Award(ctx context.Context, a rewards.Award) (int, error)
	Balance(ctx context.Context, userID int64) (int, error)
	EarnedToday(ctx context.Context, userID int64) (earned, remaining int, err error)
	DailyCap() int
}

// Uploader stores generated images.
type Uploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// RateLimiter is the counter-store backed limiter.
type RateLimiter interface {
	Check(ctx context.Context, req ratelimit.Request) error
	Record(ctx context.Context, req ratelimit.Request) error
	Reserve(ctx context.Context, req ratelimit.Request) error
	Release(ctx context.Context, req ratelimit.Request)
	Remaining(ctx context.Context, actor string, action ratelimit.Action, now time.Time) (int64, error)
}

// QuestService lists and claims catalog quests.
type QuestService interface {
	List(ctx context.Context, userID int64) ([]rewards.QuestStatus, error)
	Claim(ctx context.Context, userID int64, questID string) (rewards.Quest, int, error)
}
