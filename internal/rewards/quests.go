package rewards

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Requirement kinds
const (
	RequireWatersGiven = "waters_given"
	RequireLoreWritten = "lore_written"
	RequireVotesCast   = "votes_cast"
	RequireDroplet     = "droplet_minted"
)

var (
	ErrUnknownQuest    = errors.New("unknown quest")
	ErrQuestIncomplete = errors.New("quest requirements not met")
)

// Quest is a one-time achievement with a token reward.
type Quest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Requirement string `json:"requirement"`
	Target      int    `json:"target"`
	Reward      int    `json:"reward"`
}

// Catalog is the fixed quest list.
var Catalog = []Quest{
	{ID: "first-drop", Title: "First Drop", Description: "Mint your droplet", Requirement: RequireDroplet, Target: 1, Reward: 250},
	{ID: "gardener", Title: "Gardener", Description: "Water droplets 10 times", Requirement: RequireWatersGiven, Target: 10, Reward: 500},
	{ID: "rainmaker", Title: "Rainmaker", Description: "Water droplets 100 times", Requirement: RequireWatersGiven, Target: 100, Reward: 2000},
	{ID: "storyteller", Title: "Storyteller", Description: "Write your first lore entry", Requirement: RequireLoreWritten, Target: 1, Reward: 300},
	{ID: "chronicler", Title: "Chronicler", Description: "Write 5 lore entries", Requirement: RequireLoreWritten, Target: 5, Reward: 1000},
	{ID: "critic", Title: "Critic", Description: "Vote on 10 lore entries", Requirement: RequireVotesCast, Target: 10, Reward: 400},
}

// FindQuest looks a quest up by id.
func FindQuest(id string) (Quest, bool) {
	for _, q := range Catalog {
		if q.ID == id {
			return q, true
		}
	}
	return Quest{}, false
}

// ActivityStore counts the activity quests are measured against.
type ActivityStore interface {
	CountDroplets(ctx context.Context, userID int64) (int, error)
	CountWatersByUser(ctx context.Context, userID int64) (int, error)
	CountLoreByAuthor(ctx context.Context, userID int64) (int, error)
	CountVotesByUser(ctx context.Context, userID int64) (int, error)
}

// ClaimStore records claims.
type ClaimStore interface {
	InsertQuestClaim(ctx context.Context, userID int64, questID string) error
	DeleteQuestClaim(ctx context.Context, userID int64, questID string) error
	ClaimedQuests(ctx context.Context, userID int64) ([]string, error)
}

// QuestStatus is a quest with a user's progress against it.
type QuestStatus struct {
	Quest
	Progress  int  `json:"progress"`
	Completed bool `json:"completed"`
	Claimed   bool `json:"claimed"`
}

// Quests evaluates and pays out the catalog.
type Quests struct {
	activity ActivityStore
	claims   ClaimStore
	ledger   *Ledger
}

// NewQuests creates a Quests service.
func NewQuests(activity ActivityStore, claims ClaimStore, ledger *Ledger) *Quests {
	return &Quests{activity: activity, claims: claims, ledger: ledger}
}

func (q *Quests) progress(ctx context.Context, userID int64, requirement string) (int, error) {
	switch requirement {
	case RequireDroplet:
		return q.activity.CountDroplets(ctx, userID)
	case RequireWatersGiven:
		return q.activity.CountWatersByUser(ctx, userID)
	case RequireLoreWritten:
		return q.activity.CountLoreByAuthor(ctx, userID)
	case RequireVotesCast:
		return q.activity.CountVotesByUser(ctx, userID)
	}
	return 0, fmt.Errorf("unknown requirement %q", requirement)
}

// List returns every quest with the user's progress.
func (q *Quests) List(ctx context.Context, userID int64) ([]QuestStatus, error) {
	claimed, err := q.claims.ClaimedQuests(ctx, userID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(claimed))
	for _, id := range claimed {
		done[id] = true
	}

	counts := make(map[string]int)
	out := make([]QuestStatus, 0, len(Catalog))
	for _, quest := range Catalog {
		n, ok := counts[quest.Requirement]
		if !ok {
			n, err = q.progress(ctx, userID, quest.Requirement)
			if err != nil {
				return nil, err
			}
			counts[quest.Requirement] = n
		}
		out = append(out, QuestStatus{
			Quest:     quest,
			Progress:  min(n, quest.Target),
			Completed: n >= quest.Target,
			Claimed:   done[quest.ID],
		})
	}
	return out, nil
}

// Claim pays out a completed quest once, in full. The claim row is removed
// again if the reward cannot be granted, including when less than the full
// reward is left under the daily cap.
func (q *Quests) Claim(ctx context.Context, userID int64, questID string) (Quest, int, error) {
	quest, ok := FindQuest(questID)
	if !ok {
		return Quest{}, 0, ErrUnknownQuest
	}
	n, err := q.progress(ctx, userID, quest.Requirement)
	if err != nil {
		return quest, 0, err
	}
	if n < quest.Target {
		return quest, 0, ErrQuestIncomplete
	}

	if err := q.claims.InsertQuestClaim(ctx, userID, quest.ID); err != nil {
		return quest, 0, err
	}

	granted, err := q.ledger.Award(ctx, Award{
		UserID:      userID,
		Amount:      quest.Reward,
		Source:      SourceQuest,
		Description: "Quest: " + quest.Title,
		Whole:       true,
	})
	if err != nil {
		if derr := q.claims.DeleteQuestClaim(ctx, userID, quest.ID); derr != nil {
			log.Printf("[Rewards] Failed to release claim %s for user %d: %v", quest.ID, userID, derr)
		}
		return quest, 0, err
	}
	return quest, granted, nil
}
