// Package rewards grants capped token rewards for world activity.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/droplets-realm/api/internal/database"
)

// Reward sources
const (
	SourceMint  = "mint"
	SourceWater = "water"
	SourceVote  = "vote"
	SourceQuest = "quest"
)

// Amounts granted per action
const (
	MintAmount          = 1000
	LegendaryMintAmount = 2500
	WaterAmount         = 50
	VoteAmount          = 25
)

const (
	DefaultPerCallCeiling = 2500
	DefaultDailyCap       = 7500
	DailyWindow           = 24 * time.Hour

	// a concurrent award can win the cap between our read and insert
	capRetries = 3
)

var (
	ErrInvalidAmount   = errors.New("reward amount must be positive")
	ErrAmountTooLarge  = errors.New("reward amount exceeds per-call ceiling")
	ErrDailyCapReached = errors.New("daily reward cap reached")
)

// Store is the durable reward ledger.
type Store interface {
	SumRewardsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	InsertRewardCapped(ctx context.Context, userID int64, amount int, source, description string, since time.Time, limit int) error
	RewardBalance(ctx context.Context, userID int64) (int, error)
}

// Award describes one grant request.
type Award struct {
	UserID      int64
	Amount      int
	Source      string
	Description string
	// Whole refuses the award with ErrDailyCapReached instead of clamping it.
	Whole bool
}

// Ledger enforces the per-call ceiling and the rolling daily cap across all
// sources.
type Ledger struct {
	store          Store
	perCallCeiling int
	dailyCap       int
	now            func() time.Time
}

// NewLedger creates a Ledger with the default limits.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		store:          store,
		perCallCeiling: DefaultPerCallCeiling,
		dailyCap:       DefaultDailyCap,
		now:            time.Now,
	}
}

// Award grants min(amount, remaining daily allowance) and returns what was
// actually granted.
func (l *Ledger) Award(ctx context.Context, a Award) (int, error) {
	if a.Amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if a.Amount > l.perCallCeiling {
		return 0, fmt.Errorf("%w: %d > %d", ErrAmountTooLarge, a.Amount, l.perCallCeiling)
	}

	since := l.now().Add(-DailyWindow)
	for attempt := 0; attempt < capRetries; attempt++ {
		earned, err := l.store.SumRewardsSince(ctx, a.UserID, since)
		if err != nil {
			return 0, err
		}
		remaining := l.dailyCap - earned
		if remaining <= 0 {
			return 0, ErrDailyCapReached
		}
		if a.Whole && remaining < a.Amount {
			return 0, ErrDailyCapReached
		}
		grant := min(a.Amount, remaining)

		err = l.store.InsertRewardCapped(ctx, a.UserID, grant, a.Source, a.Description, since, l.dailyCap)
		if errors.Is(err, database.ErrCapExceeded) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if grant < a.Amount {
			log.Printf("[Rewards] User %d clamped to %d of %d (%s)", a.UserID, grant, a.Amount, a.Source)
		}
		return grant, nil
	}
	return 0, ErrDailyCapReached
}

// Balance returns a user's lifetime reward total.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int, error) {
	return l.store.RewardBalance(ctx, userID)
}

// EarnedToday returns what a user earned in the current rolling window and
// what remains.
func (l *Ledger) EarnedToday(ctx context.Context, userID int64) (earned, remaining int, err error) {
	earned, err = l.store.SumRewardsSince(ctx, userID, l.now().Add(-DailyWindow))
	if err != nil {
		return 0, 0, err
	}
	return earned, max(l.dailyCap-earned, 0), nil
}

// DailyCap returns the rolling cap.
func (l *Ledger) DailyCap() int {
	return l.dailyCap
}
