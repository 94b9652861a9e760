package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// LeaderboardEntry represents a position on one of the leaderboards
type LeaderboardEntry struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
	Rank   int64   `json:"rank"`
}

const (
	// Leaderboard keys
	leaderboardWatersKey   = "leaderboard:waters"
	leaderboardWaterersKey = "leaderboard:waterers"
)

// RecordWater bumps the droplet's water score and the waterer's giving score
func (c *Client) RecordWater(ctx context.Context, characterID int64, wallet string) error {
	pipe := c.Pipeline()
	pipe.ZIncrBy(ctx, leaderboardWatersKey, 1, strconv.FormatInt(characterID, 10))
	pipe.ZIncrBy(ctx, leaderboardWaterersKey, 1, wallet)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record water on leaderboards: %w", err)
	}
	return nil
}

// SetCharacterWaters sets a droplet's score (used for cache initialization from DB)
func (c *Client) SetCharacterWaters(ctx context.Context, characterID int64, waters int) error {
	err := c.ZAdd(ctx, leaderboardWatersKey, redis.Z{
		Score:  float64(waters),
		Member: strconv.FormatInt(characterID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to set character waters: %w", err)
	}
	return nil
}

// TopCharacters returns the top N droplets by water count
func (c *Client) TopCharacters(ctx context.Context, limit int64) ([]LeaderboardEntry, error) {
	return c.top(ctx, leaderboardWatersKey, limit)
}

// TopWaterers returns the top N wallets by waters given
func (c *Client) TopWaterers(ctx context.Context, limit int64) ([]LeaderboardEntry, error) {
	return c.top(ctx, leaderboardWaterersKey, limit)
}

func (c *Client) top(ctx context.Context, key string, limit int64) ([]LeaderboardEntry, error) {
	// Highest scores first
	players, err := c.ZRevRangeWithScores(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	entries := make([]LeaderboardEntry, 0, len(players))
	for i, z := range players {
		member, _ := z.Member.(string)
		entries = append(entries, LeaderboardEntry{
			Member: member,
			Score:  z.Score,
			Rank:   int64(i) + 1,
		})
	}
	return entries, nil
}

// CharacterRank returns the 1-based rank of a droplet on the waters leaderboard
func (c *Client) CharacterRank(ctx context.Context, characterID int64) (int64, error) {
	// ZRevRank returns 0-based rank, so add 1 for 1-based ranking
	rank, err := c.ZRevRank(ctx, leaderboardWatersKey, strconv.FormatInt(characterID, 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get character rank: %w", err)
	}
	return rank + 1, nil
}
