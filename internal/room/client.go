package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/droplets-realm/api/internal/events"
)

// Client forwards events to a room hosted by another process.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the room at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Broadcast posts evt to the remote room's internal broadcast endpoint.
func (c *Client) Broadcast(ctx context.Context, evt events.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/broadcast", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("broadcast %s: %w", evt.Type, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("broadcast %s: room returned %d: %s", evt.Type, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
