// Package stream serves the world event buffer to Server-Sent Events
// clients by polling it on a fixed interval.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/droplets-realm/api/internal/events"
)

const (
	DefaultPollInterval      = time.Second
	DefaultHeartbeatInterval = 30 * time.Second
)

// Source is the rolling event buffer.
type Source interface {
	EventsSince(ctx context.Context, afterID int64, now time.Time) ([]events.Event, error)
}

// Ticker abstracts time.Ticker so tests control the clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

// Handler streams world events.
type Handler struct {
	source    Source
	poll      time.Duration
	heartbeat time.Duration
	newTicker func(d time.Duration) Ticker
	now       func() time.Time
}

// NewHandler creates a Handler with the default intervals.
func NewHandler(source Source) *Handler {
	return &Handler{
		source:    source,
		poll:      DefaultPollInterval,
		heartbeat: DefaultHeartbeatInterval,
		newTicker: func(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} },
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ServeHTTP handles GET /stream/world
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID := startingID(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeFrame(w, "", "connected", map[string]int64{"last_event_id": lastID}); err != nil {
		return
	}
	flusher.Flush()

	poll := h.newTicker(h.poll)
	defer poll.Stop()
	heartbeat := h.newTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C():
			pending, err := h.source.EventsSince(ctx, lastID, h.now())
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[Stream] Poll failed: %v", err)
				}
				continue
			}
			for _, evt := range pending {
				if evt.ID <= lastID {
					continue
				}
				if err := writeFrame(w, strconv.FormatInt(evt.ID, 10), string(evt.Type), evt); err != nil {
					return
				}
				lastID = evt.ID
			}
			if len(pending) > 0 {
				flusher.Flush()
			}
		case <-heartbeat.C():
			if err := writeFrame(w, "", "heartbeat", map[string]int64{"timestamp": h.now().UnixMilli()}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// startingID reads the resume point from Last-Event-ID or ?since=.
func startingID(r *http.Request) int64 {
	for _, raw := range []string{r.Header.Get("Last-Event-ID"), r.URL.Query().Get("since")} {
		if raw == "" {
			continue
		}
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id >= 0 {
			return id
		}
	}
	return 0
}

func writeFrame(w http.ResponseWriter, id, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
