package handlers

import (
	"log"
	"net/http"
)

type RewardsHandler struct {
	ledger RewardLedger
}

func NewRewardsHandler(ledger RewardLedger) *RewardsHandler {
	return &RewardsHandler{ledger: ledger}
}

// BalanceResponse represents a user's token position
type BalanceResponse struct {
	Balance        int `json:"balance"`
	EarnedToday    int `json:"earned_today"`
	RemainingToday int `json:"remaining_today"`
	DailyCap       int `json:"daily_cap"`
}

// Balance handles GET /rewards/balance
func (h *RewardsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	balance, err := h.ledger.Balance(ctx, claims.UserID)
	if err != nil {
		log.Printf("[Rewards] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch balance", CodeInternal)
		return
	}
	earned, remaining, err := h.ledger.EarnedToday(ctx, claims.UserID)
	if err != nil {
		log.Printf("[Rewards] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch daily earnings", CodeInternal)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{
		Balance:        balance,
		EarnedToday:    earned,
		RemainingToday: remaining,
		DailyCap:       h.ledger.DailyCap(),
	})
}
