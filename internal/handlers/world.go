package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/droplets-realm/api/internal/room"
	"github.com/droplets-realm/api/internal/world"
)

type WorldHandler struct {
	world         World
	internalToken string
}

func NewWorldHandler(w World, internalToken string) *WorldHandler {
	return &WorldHandler{world: w, internalToken: internalToken}
}

// State handles GET /world/state
func (h *WorldHandler) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.world.Snapshot(r.Context())
	if err != nil {
		log.Printf("[World] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch world state", CodeInternal)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// SetSeasonRequest represents the body of a season change
type SetSeasonRequest struct {
	Season string `json:"season"`
}

// SetSeason handles POST /internal/season
func (h *WorldHandler) SetSeason(w http.ResponseWriter, r *http.Request) {
	if !room.Authorized(r, h.internalToken) {
		writeError(w, http.StatusUnauthorized, "Unauthorized", CodeUnauthorized)
		return
	}
	var req SetSeasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", CodeInvalidRequest)
		return
	}

	state, err := h.world.SetSeason(r.Context(), req.Season)
	if errors.Is(err, world.ErrInvalidSeason) {
		writeError(w, http.StatusBadRequest, "Season must be one of spring, summer, autumn, winter", CodeInvalidSeason)
		return
	}
	if err != nil {
		log.Printf("[World] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to set season", CodeInternal)
		return
	}
	log.Printf("[World] Season changed to %s", state.Season)
	writeJSON(w, http.StatusOK, state)
}
