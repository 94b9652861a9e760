// Package ratelimit gates community actions with hour-bucketed counters.
//
// Check and Record are two separate counter-store operations. Concurrent
// requests from one actor inside one bucket can both pass Check before either
// Record lands, so the hourly cap is a soft cap. Reserve offers the stricter
// increment-then-compare variant for call sites that can afford to charge
// the quota before their own mutation runs.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Action names a rate-limited action.
type Action string

const (
	ActionWater Action = "water"
	ActionVote  Action = "vote"
)

const (
	// BucketWidth is the width of a rate-limit window.
	BucketWidth = time.Hour
	// CounterGrace is added to the counter TTL so a key outlives its bucket
	// even if clocks drift near the boundary.
	CounterGrace = 5 * time.Minute
)

var (
	// ErrLimitReached means the actor used up its hourly quota.
	ErrLimitReached = errors.New("hourly limit reached")
	// ErrPerTargetLimitReached means the actor already acted on this target
	// in the current bucket.
	ErrPerTargetLimitReached = errors.New("per-target limit reached")
	// ErrUnknownAction is returned for actions without a policy.
	ErrUnknownAction = errors.New("unknown rate-limited action")
)

// CounterStore is the key-value store backing the counters. A missing key
// reads as zero.
type CounterStore interface {
	GetCounter(ctx context.Context, key string) (int64, error)
	IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error)
	DecrCounter(ctx context.Context, key string) (int64, error)
}

// Policy caps an action per actor per bucket.
type Policy struct {
	PerHour   int64
	PerTarget int64
}

// DefaultPolicies holds the production caps.
var DefaultPolicies = map[Action]Policy{
	ActionWater: {PerHour: 3, PerTarget: 1},
	ActionVote:  {PerHour: 3, PerTarget: 1},
}

// Request identifies one attempt of an action.
type Request struct {
	Actor  string
	Action Action
	Target string
	Now    time.Time
}

// Limiter enforces Policies on top of a CounterStore.
type Limiter struct {
	store    CounterStore
	policies map[Action]Policy
}

// New creates a Limiter. A nil policies map uses DefaultPolicies.
func New(store CounterStore, policies map[Action]Policy) *Limiter {
	if policies == nil {
		policies = DefaultPolicies
	}
	return &Limiter{store: store, policies: policies}
}

// Bucket returns the hour bucket index for now.
func Bucket(now time.Time) int64 {
	return now.Unix() / int64(BucketWidth/time.Second)
}

// TotalKey is the per-actor counter key for a bucket.
func TotalKey(action Action, actor string, bucket int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", action, actor, bucket)
}

// TargetKey is the per-actor-per-target counter key for a bucket.
func TargetKey(action Action, actor, target string, bucket int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s:%d", action, actor, target, bucket)
}

func (l *Limiter) policy(action Action) (Policy, error) {
	p, ok := l.policies[action]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return p, nil
}

// Check reports whether req is within quota. It never mutates counters.
// The total check runs first; both checks must pass.
func (l *Limiter) Check(ctx context.Context, req Request) error {
	p, err := l.policy(req.Action)
	if err != nil {
		return err
	}
	bucket := Bucket(req.Now)

	total, err := l.store.GetCounter(ctx, TotalKey(req.Action, req.Actor, bucket))
	if err != nil {
		return fmt.Errorf("read %s counter: %w", req.Action, err)
	}
	if total >= p.PerHour {
		return ErrLimitReached
	}

	if req.Target == "" {
		return nil
	}
	perTarget, err := l.store.GetCounter(ctx, TargetKey(req.Action, req.Actor, req.Target, bucket))
	if err != nil {
		return fmt.Errorf("read %s target counter: %w", req.Action, err)
	}
	if perTarget >= p.PerTarget {
		return ErrPerTargetLimitReached
	}
	return nil
}

// Record charges req against the quota. Call it only after the protected
// action's own mutation succeeded.
func (l *Limiter) Record(ctx context.Context, req Request) error {
	if _, err := l.policy(req.Action); err != nil {
		return err
	}
	bucket := Bucket(req.Now)
	ttl := BucketWidth + CounterGrace

	if _, err := l.store.IncrCounter(ctx, TotalKey(req.Action, req.Actor, bucket), ttl); err != nil {
		return fmt.Errorf("increment %s counter: %w", req.Action, err)
	}
	if req.Target == "" {
		return nil
	}
	if _, err := l.store.IncrCounter(ctx, TargetKey(req.Action, req.Actor, req.Target, bucket), ttl); err != nil {
		return fmt.Errorf("increment %s target counter: %w", req.Action, err)
	}
	return nil
}

// Reserve atomically increments the counters and compares the results with
// the caps, undoing its own increments when over. Callers whose action then
// fails should hand the request to Release.
func (l *Limiter) Reserve(ctx context.Context, req Request) error {
	p, err := l.policy(req.Action)
	if err != nil {
		return err
	}
	bucket := Bucket(req.Now)
	ttl := BucketWidth + CounterGrace
	totalKey := TotalKey(req.Action, req.Actor, bucket)

	total, err := l.store.IncrCounter(ctx, totalKey, ttl)
	if err != nil {
		return fmt.Errorf("reserve %s counter: %w", req.Action, err)
	}
	if total > p.PerHour {
		l.undo(ctx, totalKey)
		return ErrLimitReached
	}

	if req.Target == "" {
		return nil
	}
	targetKey := TargetKey(req.Action, req.Actor, req.Target, bucket)
	perTarget, err := l.store.IncrCounter(ctx, targetKey, ttl)
	if err != nil {
		l.undo(ctx, totalKey)
		return fmt.Errorf("reserve %s target counter: %w", req.Action, err)
	}
	if perTarget > p.PerTarget {
		l.undo(ctx, targetKey)
		l.undo(ctx, totalKey)
		return ErrPerTargetLimitReached
	}
	return nil
}

// Release gives back a reservation made by Reserve.
func (l *Limiter) Release(ctx context.Context, req Request) {
	bucket := Bucket(req.Now)
	l.undo(ctx, TotalKey(req.Action, req.Actor, bucket))
	if req.Target != "" {
		l.undo(ctx, TargetKey(req.Action, req.Actor, req.Target, bucket))
	}
}

func (l *Limiter) undo(ctx context.Context, key string) {
	// A failed compensation leaves the actor over-charged until the key expires.
	_, _ = l.store.DecrCounter(ctx, key)
}

// Remaining returns how many more times actor may perform action in now's bucket.
func (l *Limiter) Remaining(ctx context.Context, actor string, action Action, now time.Time) (int64, error) {
	p, err := l.policy(action)
	if err != nil {
		return 0, err
	}
	used, err := l.store.GetCounter(ctx, TotalKey(action, actor, Bucket(now)))
	if err != nil {
		return 0, fmt.Errorf("read %s counter: %w", action, err)
	}
	if used >= p.PerHour {
		return 0, nil
	}
	return p.PerHour - used, nil
}
