package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/droplets-realm/api/internal/database"
	"github.com/droplets-realm/api/internal/rewards"
)

type QuestHandler struct {
	quests QuestService
}

func NewQuestHandler(quests QuestService) *QuestHandler {
	return &QuestHandler{quests: quests}
}

// ClaimResponse represents the response of a successful quest claim
type ClaimResponse struct {
	Quest  rewards.Quest `json:"quest"`
	Reward int           `json:"reward"`
}

// List handles GET /quests
func (h *QuestHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	statuses, err := h.quests.List(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("[Quests] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch quests", CodeInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quests": statuses})
}

// Claim handles POST /quests/{id}/claim
func (h *QuestHandler) Claim(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	quest, granted, err := h.quests.Claim(r.Context(), claims.UserID, r.PathValue("id"))
	switch {
	case err == nil:
		log.Printf("[Quests] User %d claimed %s for %d", claims.UserID, quest.ID, granted)
		writeJSON(w, http.StatusOK, ClaimResponse{Quest: quest, Reward: granted})
	case errors.Is(err, rewards.ErrUnknownQuest):
		writeError(w, http.StatusNotFound, "Quest not found", CodeNotFound)
	case errors.Is(err, rewards.ErrQuestIncomplete):
		writeError(w, http.StatusBadRequest, "Quest requirements not met yet", CodeQuestIncomplete)
	case errors.Is(err, database.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "Quest already claimed", CodeAlreadyClaimed)
	case errors.Is(err, rewards.ErrDailyCapReached):
		writeError(w, http.StatusTooManyRequests, "Daily reward cap reached, claim again tomorrow", CodeDailyCapReached)
	default:
		log.Printf("[Quests] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to claim quest", CodeInternal)
	}
}
