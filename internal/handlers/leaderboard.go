package handlers

import (
	"log"
	"net/http"

	"github.com/droplets-realm/api/internal/redis"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type LeaderboardHandler struct {
	boards Leaderboards
}

func NewLeaderboardHandler(boards Leaderboards) *LeaderboardHandler {
	return &LeaderboardHandler{boards: boards}
}

// LeaderboardResponse represents both leaderboards
type LeaderboardResponse struct {
	TopCharacters []redis.LeaderboardEntry `json:"top_characters"`
	TopWaterers   []redis.LeaderboardEntry `json:"top_waterers"`
}

// GetLeaderboard handles GET /leaderboard
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := int64(queryLimit(r, defaultLeaderboardLimit, maxLeaderboardLimit))
	ctx := r.Context()

	characters, err := h.boards.TopCharacters(ctx, limit)
	if err != nil {
		log.Printf("[Leaderboard] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch leaderboard", CodeInternal)
		return
	}
	waterers, err := h.boards.TopWaterers(ctx, limit)
	if err != nil {
		log.Printf("[Leaderboard] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch leaderboard", CodeInternal)
		return
	}
	if characters == nil {
		characters = []redis.LeaderboardEntry{}
	}
	if waterers == nil {
		waterers = []redis.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{TopCharacters: characters, TopWaterers: waterers})
}
