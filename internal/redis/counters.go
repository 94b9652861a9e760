package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GetCounter returns the integer stored at key. A missing key reads as zero.
func (c *Client) GetCounter(ctx context.Context, key string) (int64, error) {
	value, err := c.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get counter %s: %w", key, err)
	}
	return value, nil
}

// IncrCounter increments key and (re)sets its expiry in one round trip.
func (c *Client) IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

// DecrCounter decrements key without touching its expiry.
func (c *Client) DecrCounter(ctx context.Context, key string) (int64, error) {
	value, err := c.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to decrement counter %s: %w", key, err)
	}
	return value, nil
}
