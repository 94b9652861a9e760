package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/droplets-realm/api/internal/events"
)

const (
	eventBufferKey = "events:world"

	// EventBufferSize is the number of most recent events retained.
	EventBufferSize = 200
	// EventBufferTTL bounds how long the buffer and any entry in it live.
	EventBufferTTL = 10 * time.Minute
)

// AppendEvent pushes evt onto the rolling buffer, trims it to the last
// EventBufferSize entries and refreshes the buffer expiry.
func (c *Client) AppendEvent(ctx context.Context, evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := c.TxPipeline()
	pipe.RPush(ctx, eventBufferKey, data)
	pipe.LTrim(ctx, eventBufferKey, -EventBufferSize, -1)
	pipe.Expire(ctx, eventBufferKey, EventBufferTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// EventsSince returns buffered events with an ID greater than afterID,
// oldest first. Entries older than EventBufferTTL are skipped even while the
// buffer itself is kept alive by newer writes.
func (c *Client) EventsSince(ctx context.Context, afterID int64, now time.Time) ([]events.Event, error) {
	raw, err := c.LRange(ctx, eventBufferKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read event buffer: %w", err)
	}

	cutoff := now.Add(-EventBufferTTL)
	var out []events.Event
	for _, item := range raw {
		var evt events.Event
		if err := json.Unmarshal([]byte(item), &evt); err != nil {
			log.Printf("[Redis] Skipping undecodable buffered event: %v", err)
			continue
		}
		if evt.ID <= afterID || evt.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

// EventBufferLen returns the number of buffered events.
func (c *Client) EventBufferLen(ctx context.Context) (int64, error) {
	n, err := c.LLen(ctx, eventBufferKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read event buffer length: %w", err)
	}
	return n, nil
}
