package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	worldStateCacheKey = "cache:world_state"

	// WorldStateCacheTTL bounds how stale a cached world snapshot can be.
	WorldStateCacheTTL = 30 * time.Second
)

// GetCachedWorld decodes the cached world snapshot into dst.
// ok is false on a cache miss.
func (c *Client) GetCachedWorld(ctx context.Context, dst any) (bool, error) {
	data, err := c.Get(ctx, worldStateCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read world cache: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode world cache: %w", err)
	}
	return true, nil
}

// SetCachedWorld stores the world snapshot for WorldStateCacheTTL.
func (c *Client) SetCachedWorld(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode world cache: %w", err)
	}
	if err := c.Set(ctx, worldStateCacheKey, data, WorldStateCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to write world cache: %w", err)
	}
	return nil
}

// InvalidateWorld drops the cached world snapshot.
func (c *Client) InvalidateWorld(ctx context.Context) error {
	if err := c.Del(ctx, worldStateCacheKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate world cache: %w", err)
	}
	return nil
}
