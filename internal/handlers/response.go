package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/droplets-realm/api/internal/auth"
	"github.com/droplets-realm/api/internal/middleware"
)

// Error codes clients branch on
const (
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInvalidID             = "INVALID_ID"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeNotFound              = "NOT_FOUND"
	CodeHourlyLimit           = "HOURLY_LIMIT_REACHED"
	CodePerDropletLimit       = "PER_DROPLET_LIMIT_REACHED"
	CodePerLoreLimit          = "PER_LORE_LIMIT_REACHED"
	CodeAlreadyMinted         = "ALREADY_MINTED"
	CodeAlreadyVoted          = "ALREADY_VOTED"
	CodeAlreadyClaimed        = "ALREADY_CLAIMED"
	CodeQuestIncomplete       = "QUEST_INCOMPLETE"
	CodeDailyCapReached       = "DAILY_CAP_REACHED"
	CodeImageGenerationFailed = "IMAGE_GENERATION_FAILED"
	CodeInvalidSeason         = "INVALID_SEASON"
	CodeForbidden             = "FORBIDDEN"
	CodeInternal              = "INTERNAL_ERROR"
	CodeUnavailable           = "SERVICE_UNAVAILABLE"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// requireClaims returns the caller's identity or writes a 401
func requireClaims(w http.ResponseWriter, r *http.Request) (*auth.CustomClaims, bool) {
	claims, ok := middleware.GetUserClaims(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized", CodeUnauthorized)
		return nil, false
	}
	return claims, true
}

// pathID parses a positive int64 path parameter or writes a 400
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+name, CodeInvalidID)
		return 0, false
	}
	return id, true
}

// queryLimit reads ?limit= clamped to [1, max]
func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
