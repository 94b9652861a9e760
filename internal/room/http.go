package room

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/droplets-realm/api/internal/events"
)

// Handler exposes the room's internal HTTP surface.
type Handler struct {
	room  *Room
	token string
}

// NewHandler creates a Handler. An empty token disables the internal
// broadcast endpoint.
func NewHandler(room *Room, token string) *Handler {
	return &Handler{room: room, token: token}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

// Authorized reports whether r carries the internal bearer token.
func Authorized(r *http.Request, token string) bool {
	if token == "" {
		return false
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// Broadcast handles POST /internal/broadcast
func (h *Handler) Broadcast(w http.ResponseWriter, r *http.Request) {
	if !Authorized(r, h.token) {
		writeError(w, http.StatusUnauthorized, "Invalid internal token", "UNAUTHORIZED")
		return
	}

	var evt events.Event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event body", "INVALID_EVENT")
		return
	}
	if err := h.room.Broadcast(r.Context(), evt); err != nil {
		log.Printf("[Room] Internal broadcast of %s failed: %v", evt.Type, err)
		writeError(w, http.StatusServiceUnavailable, "Room unavailable", "ROOM_UNAVAILABLE")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "id": evt.ID})
}

// State handles GET /room/state
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	info, err := h.room.Info(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Room unavailable", "ROOM_UNAVAILABLE")
		return
	}
	writeJSON(w, http.StatusOK, info)
}
