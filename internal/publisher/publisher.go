// Package publisher hands world events to the SSE rolling buffer and to the
// live room. Delivery is best effort on both channels.
//
// Events are stamped and queued under one lock and delivered by a single
// drain task at a time, so both channels see them in ID order.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/droplets-realm/api/internal/background"
	"github.com/droplets-realm/api/internal/events"
)

// Buffer is the rolling event buffer polled by SSE streams.
type Buffer interface {
	AppendEvent(ctx context.Context, evt events.Event) error
}

// Broadcaster delivers an event to the live room.
type Broadcaster interface {
	Broadcast(ctx context.Context, evt events.Event) error
}

type queued struct {
	evt    events.Event
	toRoom bool
}

// Publisher fans events out without ever failing the caller.
type Publisher struct {
	buffer Buffer
	runner *background.Runner
	now    func() time.Time

	mu       sync.Mutex
	room     Broadcaster
	queue    []queued
	draining bool
}

// New creates a Publisher. Either channel may be nil.
func New(buffer Buffer, room Broadcaster, runner *background.Runner) *Publisher {
	return &Publisher{
		buffer: buffer,
		room:   room,
		runner: runner,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetBroadcaster attaches the room once it exists. The room itself buffers
// its own events through the Publisher, so it is created second.
func (p *Publisher) SetBroadcaster(room Broadcaster) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.room = room
}

// Publish stamps payload as a new event and queues it for the buffer and the
// room.
func (p *Publisher) Publish(payload events.Payload) events.Event {
	return p.enqueue(payload, true)
}

// Buffer stamps payload and queues it for the rolling buffer only. The room
// uses it for events it has already applied itself.
func (p *Publisher) Buffer(payload events.Payload) events.Event {
	return p.enqueue(payload, false)
}

func (p *Publisher) enqueue(payload events.Payload, toRoom bool) events.Event {
	p.mu.Lock()
	evt := events.New(payload, p.now())
	if p.buffer == nil && (!toRoom || p.room == nil) {
		p.mu.Unlock()
		return evt
	}
	p.queue = append(p.queue, queued{evt: evt, toRoom: toRoom})
	start := !p.draining
	p.draining = true
	p.mu.Unlock()

	if start {
		p.schedule()
	}
	return evt
}

func (p *Publisher) schedule() {
	if p.runner.Go("deliver events", p.drain) {
		return
	}
	p.mu.Lock()
	dropped := len(p.queue)
	p.queue = nil
	p.draining = false
	p.mu.Unlock()
	log.Printf("[Publisher] Dropped %d queued events: runner closed", dropped)
}

// drain delivers one batch in order, then hands the rest to a fresh task so
// each batch gets the full task timeout.
func (p *Publisher) drain(ctx context.Context) error {
	p.mu.Lock()
	batch := p.queue
	p.queue = nil
	room := p.room
	p.mu.Unlock()

	var errs []error
	for _, q := range batch {
		if p.buffer != nil {
			if err := p.buffer.AppendEvent(ctx, q.evt); err != nil {
				errs = append(errs, fmt.Errorf("buffer %s event %d: %w", q.evt.Type, q.evt.ID, err))
			}
		}
		if q.toRoom && room != nil {
			if err := room.Broadcast(ctx, q.evt); err != nil {
				errs = append(errs, fmt.Errorf("broadcast %s event %d: %w", q.evt.Type, q.evt.ID, err))
			}
		}
	}

	p.mu.Lock()
	more := len(p.queue) > 0
	if !more {
		p.draining = false
	}
	p.mu.Unlock()
	if more {
		p.schedule()
	}
	return errors.Join(errs...)
}
