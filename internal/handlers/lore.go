package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/droplets-realm/api/internal/database"
	"github.com/droplets-realm/api/internal/models"
	"github.com/droplets-realm/api/internal/ratelimit"
	"github.com/droplets-realm/api/internal/rewards"
)

const maxLoreLength = 1000

type LoreHandler struct {
	characters CharacterStore
	lore       LoreStore
	limiter    RateLimiter
	ledger     RewardLedger
	now        func() time.Time
}

func NewLoreHandler(characters CharacterStore, lore LoreStore, limiter RateLimiter, ledger RewardLedger) *LoreHandler {
	return &LoreHandler{characters: characters, lore: lore, limiter: limiter, ledger: ledger, now: time.Now}
}

// CreateLoreRequest represents the request body for lore creation
type CreateLoreRequest struct {
	CharacterID int64  `json:"character_id"`
	Body        string `json:"body"`
}

// validateLoreBody trims body and returns a client message when it is unusable
func validateLoreBody(body string) (string, string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", "Lore body is required"
	}
	if utf8.RuneCountInString(body) > maxLoreLength {
		return "", fmt.Sprintf("Lore body must be at most %d characters", maxLoreLength)
	}
	return body, ""
}

// Create handles POST /lore
func (h *LoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req CreateLoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", CodeInvalidRequest)
		return
	}
	body, problem := validateLoreBody(req.Body)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem, CodeInvalidRequest)
		return
	}

	ctx := r.Context()
	character, err := h.characters.GetCharacter(ctx, req.CharacterID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Character not found", CodeNotFound)
		return
	}
	if err != nil {
		log.Printf("[Lore] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch character", CodeInternal)
		return
	}
	if character.UserID != claims.UserID {
		writeError(w, http.StatusForbidden, "You can only write lore for your own droplet", CodeForbidden)
		return
	}

	entry := &models.Lore{CharacterID: character.ID, AuthorID: claims.UserID, Body: body}
	if err := h.lore.InsertLore(ctx, entry); err != nil {
		log.Printf("[Lore] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save lore", CodeInternal)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListByCharacter handles GET /characters/{id}/lore
func (h *LoreHandler) ListByCharacter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	entries, err := h.lore.ListLoreByCharacter(r.Context(), id)
	if err != nil {
		log.Printf("[Lore] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch lore", CodeInternal)
		return
	}
	if entries == nil {
		entries = []models.Lore{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lore": entries})
}

// Vote handles POST /lore/{id}/vote
func (h *LoreHandler) Vote(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	if _, err := h.lore.GetLore(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Lore not found", CodeNotFound)
			return
		}
		log.Printf("[Lore] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch lore", CodeInternal)
		return
	}

	limitReq := ratelimit.Request{
		Actor:  actorKey(claims.Wallet),
		Action: ratelimit.ActionVote,
		Target: strconv.FormatInt(id, 10),
		Now:    h.now(),
	}
	if err := h.limiter.Reserve(ctx, limitReq); err != nil {
		writeLimitError(w, err, CodePerLoreLimit, "You already voted on this lore this hour")
		return
	}

	if err := h.characters.EnsureUser(ctx, claims.UserID, claims.Wallet); err != nil {
		h.limiter.Release(ctx, limitReq)
		log.Printf("[Lore] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to record user", CodeInternal)
		return
	}
	if err := h.lore.InsertLoreVote(ctx, id, claims.UserID); err != nil {
		h.limiter.Release(ctx, limitReq)
		if errors.Is(err, database.ErrAlreadyVoted) {
			writeError(w, http.StatusConflict, "You already voted on this lore", CodeAlreadyVoted)
			return
		}
		log.Printf("[Lore] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to record vote", CodeInternal)
		return
	}

	votes, err := h.lore.IncrementLoreVotes(ctx, id)
	if err != nil {
		log.Printf("[Lore] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to count vote", CodeInternal)
		return
	}

	granted := grantBestEffort(ctx, h.ledger, rewards.Award{
		UserID:      claims.UserID,
		Amount:      rewards.VoteAmount,
		Source:      rewards.SourceVote,
		Description: fmt.Sprintf("Voted on lore #%d", id),
	})
	writeJSON(w, http.StatusOK, map[string]int{"vote_count": votes, "reward": granted})
}

// grantBestEffort awards a reward and logs instead of failing
func grantBestEffort(ctx context.Context, ledger RewardLedger, a rewards.Award) int {
	granted, err := ledger.Award(ctx, a)
	switch {
	case errors.Is(err, rewards.ErrDailyCapReached):
		log.Printf("[Rewards] User %d at daily cap, %s reward skipped", a.UserID, a.Source)
	case err != nil:
		log.Printf("[Rewards] Failed to grant %s reward to user %d: %v", a.Source, a.UserID, err)
	}
	return granted
}
