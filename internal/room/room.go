// Package room is the live world room: a single actor that owns the
// in-memory world snapshot and every connected WebSocket session.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"github.com/droplets-realm/api/internal/background"
	"github.com/droplets-realm/api/internal/events"
	"github.com/droplets-realm/api/internal/models"
)

// ErrClosed is returned when the room is no longer running.
var ErrClosed = errors.New("room closed")

// Config holds room configuration
type Config struct {
	ID             string        `env:"ROOM_ID" envDefault:"world"`
	PhaseInterval  time.Duration `env:"ROOM_PHASE_INTERVAL" envDefault:"15m"`
	ResyncInterval time.Duration `env:"ROOM_RESYNC_INTERVAL" envDefault:"5m"`
	SendBuffer     int           `env:"ROOM_SEND_BUFFER" envDefault:"32"`
	InboundRate    float64       `env:"ROOM_INBOUND_RATE" envDefault:"10"`
	InboundBurst   int           `env:"ROOM_INBOUND_BURST" envDefault:"20"`
	ReadLimit      int64         `env:"ROOM_READ_LIMIT" envDefault:"4096"`
	SnapshotPath   string        `env:"ROOM_SNAPSHOT_PATH" envDefault:"data/room.db"`
	// URL of a remote room. When set this process forwards events over HTTP
	// instead of hosting the room.
	URL           string `env:"ROOM_URL"`
	InternalToken string `env:"INTERNAL_TOKEN"`
}

// LoadConfigFromEnv loads room configuration from environment variables
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse room config: %w", err)
	}
	return cfg, nil
}

// SnapshotStore persists the room state between restarts.
type SnapshotStore interface {
	Load(ctx context.Context, roomID string) (State, bool, error)
	Save(ctx context.Context, roomID string, state State) error
}

// WorldSource is the durable replica the room reconciles against.
type WorldSource interface {
	GetWorldState(ctx context.Context) (*models.WorldState, error)
}

// PhaseStore mirrors phase changes onto the durable row.
type PhaseStore interface {
	SetPhase(ctx context.Context, phase string) error
}

// EventSink stamps events that originate inside the room and queues them
// for the rolling buffer in ID order.
type EventSink interface {
	Buffer(payload events.Payload) events.Event
}

// Deps are the room's collaborators. Every field except Runner is optional.
type Deps struct {
	Snapshots SnapshotStore
	World     WorldSource
	Phases    PhaseStore
	Sink      EventSink
	Runner    *background.Runner
}

// Session is one live connection. Outbound frames are read from Send.
type Session struct {
	ID   string
	send chan []byte
}

// Send returns the session's outbound queue. It is closed when the room
// drops the session.
func (s *Session) Send() <-chan []byte {
	return s.send
}

type member struct {
	session *Session
	userID  string
}

// Envelope is the frame pushed to sessions.
type Envelope struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type clientFrame struct {
	Type   string          `json:"type"`
	UserID json.RawMessage `json:"userId,omitempty"`
}

type (
	joinMsg struct {
		session *Session
	}
	leaveMsg struct {
		session *Session
	}
	clientMsg struct {
		session *Session
		data    []byte
	}
	broadcastMsg struct {
		event events.Event
	}
	resyncMsg struct {
		world *models.WorldState
	}
	queryMsg struct {
		reply chan Info
	}
	phaseMsg struct{}
)

// Info is a point-in-time view of the room.
type Info struct {
	State    State `json:"state"`
	Sessions int   `json:"sessions"`
}

// Room is the world room actor. All state mutation happens on the goroutine
// running Run.
type Room struct {
	cfg  Config
	deps Deps

	inbox chan any
	done  chan struct{}
	now   func() time.Time

	// owned by the actor goroutine
	state    State
	sessions map[string]*member
}

// New creates a room. Call Run to start it.
func New(cfg Config, deps Deps) *Room {
	if cfg.ID == "" {
		cfg.ID = "world"
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if deps.Runner == nil {
		deps.Runner = background.NewRunner(background.DefaultTimeout)
	}
	return &Room{
		cfg:      cfg,
		deps:     deps,
		inbox:    make(chan any, 256),
		done:     make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
		state:    DefaultState(),
		sessions: make(map[string]*member),
	}
}

// Run processes room messages until ctx is cancelled. Every live session is
// closed on return.
func (r *Room) Run(ctx context.Context) error {
	defer close(r.done)
	r.restore(ctx)

	var phaseC, resyncC <-chan time.Time
	if r.cfg.PhaseInterval > 0 {
		t := time.NewTicker(r.cfg.PhaseInterval)
		defer t.Stop()
		phaseC = t.C
	}
	if r.cfg.ResyncInterval > 0 && r.deps.World != nil {
		t := time.NewTicker(r.cfg.ResyncInterval)
		defer t.Stop()
		resyncC = t.C
	}

	log.Printf("[Room] %s running (phase=%s, characters=%d, waters=%d)",
		r.cfg.ID, r.state.Phase, r.state.TotalCharacters, r.state.TotalWaters)

	for {
		select {
		case <-ctx.Done():
			for id := range r.sessions {
				r.drop(id)
			}
			log.Printf("[Room] %s stopped", r.cfg.ID)
			return ctx.Err()
		case msg := <-r.inbox:
			r.handle(ctx, msg)
		case <-phaseC:
			r.advancePhase(ctx)
		case <-resyncC:
			go r.fetchWorld(ctx)
		}
	}
}

// restore rehydrates from the snapshot store, then reconciles counters with
// the durable world row.
func (r *Room) restore(ctx context.Context) {
	if r.deps.Snapshots != nil {
		state, ok, err := r.deps.Snapshots.Load(ctx, r.cfg.ID)
		switch {
		case err != nil:
			log.Printf("[Room] Failed to load snapshot for %s: %v", r.cfg.ID, err)
		case ok:
			r.state = state
			if r.state.Phase == "" {
				r.state.Phase = PhaseDawn
			}
		}
	}
	if r.deps.World != nil {
		ws, err := r.deps.World.GetWorldState(ctx)
		if err != nil {
			log.Printf("[Room] Initial reconcile failed: %v", err)
			return
		}
		r.state.Reconcile(ws)
		r.persist(ctx)
	}
}

func (r *Room) fetchWorld(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ws, err := r.deps.World.GetWorldState(fetchCtx)
	if err != nil {
		log.Printf("[Room] Resync fetch failed: %v", err)
		return
	}
	_ = r.post(ctx, resyncMsg{world: ws})
}

func (r *Room) handle(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case joinMsg:
		r.sessions[m.session.ID] = &member{session: m.session}
		r.sendTo(m.session.ID, Envelope{Type: "world_state", Payload: r.state, Timestamp: r.now().UnixMilli()})
	case leaveMsg:
		if _, ok := r.sessions[m.session.ID]; ok {
			r.drop(m.session.ID)
		}
	case clientMsg:
		r.handleClient(m)
	case broadcastMsg:
		r.broadcast(ctx, m.event)
	case resyncMsg:
		before := r.state
		r.state.Reconcile(m.world)
		if before != r.state {
			log.Printf("[Room] Resynced from durable store (characters %d->%d, waters %d->%d)",
				before.TotalCharacters, r.state.TotalCharacters, before.TotalWaters, r.state.TotalWaters)
			r.persist(ctx)
		}
	case queryMsg:
		m.reply <- Info{State: r.state, Sessions: len(r.sessions)}
	case phaseMsg:
		r.advancePhase(ctx)
	}
}

func (r *Room) handleClient(m clientMsg) {
	mem, ok := r.sessions[m.session.ID]
	if !ok {
		return
	}
	var frame clientFrame
	if err := json.Unmarshal(m.data, &frame); err != nil {
		return
	}
	switch frame.Type {
	case "ping":
		r.sendTo(mem.session.ID, Envelope{Type: "pong"})
	case "auth":
		userID := parseUserID(frame.UserID)
		if userID == "" {
			return
		}
		mem.userID = userID
		r.sendTo(mem.session.ID, Envelope{Type: "auth_ok", Payload: map[string]string{"user_id": userID}})
	}
}

func parseUserID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (r *Room) broadcast(ctx context.Context, evt events.Event) {
	if r.state.Apply(evt) {
		r.persist(ctx)
	}
	frame, err := json.Marshal(Envelope{Type: string(evt.Type), Payload: evt.Payload, Timestamp: evt.Timestamp.UnixMilli()})
	if err != nil {
		log.Printf("[Room] Failed to encode %s event: %v", evt.Type, err)
		return
	}
	for id := range r.sessions {
		r.deliver(id, frame)
	}
}

func (r *Room) advancePhase(ctx context.Context) {
	next := NextPhase(r.state.Phase)
	var evt events.Event
	if r.deps.Sink != nil {
		evt = r.deps.Sink.Buffer(events.Phase{Phase: next})
	} else {
		evt = events.New(events.Phase{Phase: next}, r.now())
	}
	log.Printf("[Room] Phase %s -> %s", r.state.Phase, next)
	r.broadcast(ctx, evt)

	if r.deps.Phases != nil {
		r.deps.Runner.Go("mirror phase", func(ctx context.Context) error {
			return r.deps.Phases.SetPhase(ctx, next)
		})
	}
}

func (r *Room) sendTo(id string, env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Room] Failed to encode %s frame: %v", env.Type, err)
		return
	}
	r.deliver(id, frame)
}

// deliver queues frame for one session, dropping the session when its
// queue is full.
func (r *Room) deliver(id string, frame []byte) {
	mem, ok := r.sessions[id]
	if !ok {
		return
	}
	select {
	case mem.session.send <- frame:
	default:
		log.Printf("[Room] Session %s not draining, dropping", id)
		r.drop(id)
	}
}

func (r *Room) drop(id string) {
	mem, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	close(mem.session.send)
}

func (r *Room) persist(ctx context.Context) {
	if r.deps.Snapshots == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.deps.Snapshots.Save(saveCtx, r.cfg.ID, r.state); err != nil {
		log.Printf("[Room] Failed to persist snapshot: %v", err)
	}
}

func (r *Room) post(ctx context.Context, msg any) error {
	select {
	case r.inbox <- msg:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join registers a new session. Its first frame is the world_state snapshot.
func (r *Room) Join(ctx context.Context) (*Session, error) {
	s := &Session{ID: uuid.NewString(), send: make(chan []byte, r.cfg.SendBuffer)}
	if err := r.post(ctx, joinMsg{session: s}); err != nil {
		return nil, err
	}
	return s, nil
}

// Leave removes a session and closes its queue.
func (r *Room) Leave(ctx context.Context, s *Session) {
	_ = r.post(ctx, leaveMsg{session: s})
}

// Receive hands an inbound client frame to the room.
func (r *Room) Receive(ctx context.Context, s *Session, data []byte) error {
	return r.post(ctx, clientMsg{session: s, data: data})
}

// Broadcast applies evt to the room state and fans it out.
func (r *Room) Broadcast(ctx context.Context, evt events.Event) error {
	return r.post(ctx, broadcastMsg{event: evt})
}

// AdvancePhase fires the phase alarm immediately.
func (r *Room) AdvancePhase(ctx context.Context) error {
	return r.post(ctx, phaseMsg{})
}

// Resync reconciles the room with a durable world row.
func (r *Room) Resync(ctx context.Context, ws *models.WorldState) error {
	return r.post(ctx, resyncMsg{world: ws})
}

// Info returns the current state and session count.
func (r *Room) Info(ctx context.Context) (Info, error) {
	reply := make(chan Info, 1)
	if err := r.post(ctx, queryMsg{reply: reply}); err != nil {
		return Info{}, err
	}
	select {
	case info := <-reply:
		return info, nil
	case <-r.done:
		return Info{}, ErrClosed
	case <-ctx.Done():
		return Info{}, ctx.Err()
	}
}
