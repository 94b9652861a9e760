package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/droplets-realm/api/internal/background"
	"github.com/droplets-realm/api/internal/database"
	"github.com/droplets-realm/api/internal/events"
	"github.com/droplets-realm/api/internal/evolution"
	"github.com/droplets-realm/api/internal/imagegen"
	"github.com/droplets-realm/api/internal/models"
	"github.com/droplets-realm/api/internal/ratelimit"
	"github.com/droplets-realm/api/internal/rewards"
)

const (
	// LegendaryOdds is the 1-in-N chance a mint is legendary
	LegendaryOdds = 50

	maxCanvasCharacters = 5000
)

// CharacterDeps are the collaborators of CharacterHandler. Images, Uploader
// and Leaderboards may be nil.
type CharacterDeps struct {
	Characters    CharacterStore
	Limiter       RateLimiter
	World         World
	Leaderboards  Leaderboards
	Ledger        RewardLedger
	Publisher     Publisher
	Runner        *background.Runner
	Images        imagegen.Generator
	Uploader      Uploader
	ImageAttempts int
	ImageBackoff  time.Duration
}

type CharacterHandler struct {
	CharacterDeps
	random func() float64
	now    func() time.Time
}

func NewCharacterHandler(deps CharacterDeps) *CharacterHandler {
	if deps.ImageAttempts <= 0 {
		deps.ImageAttempts = 3
	}
	if deps.ImageBackoff <= 0 {
		deps.ImageBackoff = 500 * time.Millisecond
	}
	return &CharacterHandler{
		CharacterDeps: deps,
		random:        rand.Float64,
		now:           time.Now,
	}
}

// MintResponse represents the response of a successful mint
type MintResponse struct {
	Character *models.Character `json:"character"`
	Reward    int               `json:"reward"`
}

// WaterResponse represents the response of a successful water
type WaterResponse struct {
	WaterCount int  `json:"water_count"`
	Level      int  `json:"level"`
	LeveledUp  bool `json:"leveled_up"`
	Reward     int  `json:"reward"`
}

// Mint handles POST /characters
func (h *CharacterHandler) Mint(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if err := h.Characters.EnsureUser(ctx, claims.UserID, claims.Wallet); err != nil {
		log.Printf("[Mint] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to record user", CodeInternal)
		return
	}

	// Pre-check; the partial unique index is the backstop under races.
	owned, err := h.Characters.CountDroplets(ctx, claims.UserID)
	if err != nil {
		log.Printf("[Mint] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to check existing droplet", CodeInternal)
		return
	}
	if owned > 0 {
		writeError(w, http.StatusConflict, "You already own a droplet", CodeAlreadyMinted)
		return
	}

	existing, err := h.Characters.ListCharacters(ctx, maxCanvasCharacters)
	if err != nil {
		log.Printf("[Mint] Spawn lookup failed, placing without spacing: %v", err)
		existing = nil
	}
	x, y := samplePosition(h.random, existing)
	legendary := h.random() < 1.0/LegendaryOdds

	character := &models.Character{
		UserID:      claims.UserID,
		Variant:     models.VariantDroplet,
		X:           x,
		Y:           y,
		Level:       evolution.MinLevel,
		IsLegendary: legendary,
	}

	if h.Images != nil {
		seed := imagegen.Seed(claims.UserID, claims.Wallet)
		img, err := imagegen.GenerateWithRetry(ctx, h.Images, imagegen.Request{
			Seed:      seed,
			Level:     evolution.MinLevel,
			Legendary: legendary,
		}, h.ImageAttempts, h.ImageBackoff)
		if err != nil {
			log.Printf("[Mint] User %d: %v", claims.UserID, err)
			writeError(w, http.StatusBadGateway, "Image generation failed, please try again", CodeImageGenerationFailed)
			return
		}
		character.Traits = img.Traits
		character.ImageURL = h.storeImage(ctx, seed, img)
	}

	if err := h.Characters.InsertCharacter(ctx, character); err != nil {
		if errors.Is(err, database.ErrAlreadyMinted) {
			writeError(w, http.StatusConflict, "You already own a droplet", CodeAlreadyMinted)
			return
		}
		log.Printf("[Mint] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to mint droplet", CodeInternal)
		return
	}
	log.Printf("[Mint] User %d minted droplet %d (legendary=%v)", claims.UserID, character.ID, legendary)

	amount := rewards.MintAmount
	if legendary {
		amount = rewards.LegendaryMintAmount
	}
	granted := grantBestEffort(ctx, h.Ledger, rewards.Award{
		UserID:      claims.UserID,
		Amount:      amount,
		Source:      rewards.SourceMint,
		Description: fmt.Sprintf("Minted droplet #%d", character.ID),
	})

	h.World.IncrementBestEffort(database.CounterCharacters)
	if h.Leaderboards != nil {
		id := character.ID
		h.Runner.Go("seed leaderboard", func(ctx context.Context) error {
			return h.Leaderboards.SetCharacterWaters(ctx, id, 0)
		})
	}
	h.Publisher.Publish(events.Spawn{
		CharacterID: character.ID,
		OwnerID:     character.UserID,
		X:           character.X,
		Y:           character.Y,
		Level:       character.Level,
		IsLegendary: character.IsLegendary,
		ImageURL:    character.ImageURL,
	})

	writeJSON(w, http.StatusCreated, MintResponse{Character: character, Reward: granted})
}

// storeImage uploads generated bytes when object storage is configured and
// returns the URL to keep on the character.
func (h *CharacterHandler) storeImage(ctx context.Context, seed string, img *imagegen.Image) string {
	if h.Uploader == nil || len(img.Data) == 0 {
		return img.URL
	}
	key := seed + extensionFor(img.ContentType)
	url, err := h.Uploader.Put(ctx, key, img.Data, img.ContentType)
	if err != nil {
		log.Printf("[Mint] Image upload failed: %v", err)
		return img.URL
	}
	return url
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".png"
}

// List handles GET /characters
func (h *CharacterHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 500, maxCanvasCharacters)
	characters, err := h.Characters.ListCharacters(r.Context(), limit)
	if err != nil {
		log.Printf("[API] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch characters", CodeInternal)
		return
	}
	if characters == nil {
		characters = []models.Character{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"characters": characters, "count": len(characters)})
}

// Me handles GET /characters/me
func (h *CharacterHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	character, err := h.Characters.GetDropletByUser(r.Context(), claims.UserID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No droplet found for this user", CodeNotFound)
		return
	}
	if err != nil {
		log.Printf("[API] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch droplet", CodeInternal)
		return
	}

	resp := map[string]any{"character": character}
	if next, ok := evolution.NextThreshold(character.Level); ok {
		resp["next_level_at"] = next
	}
	if remaining, err := h.Limiter.Remaining(r.Context(), actorKey(claims.Wallet), ratelimit.ActionWater, h.now()); err == nil {
		resp["waters_remaining"] = remaining
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /characters/{id}
func (h *CharacterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	character, err := h.Characters.GetCharacter(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Character not found", CodeNotFound)
		return
	}
	if err != nil {
		log.Printf("[API] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch character", CodeInternal)
		return
	}
	writeJSON(w, http.StatusOK, character)
}

// Water handles POST /characters/{id}/water
func (h *CharacterHandler) Water(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()

	limitReq := ratelimit.Request{
		Actor:  actorKey(claims.Wallet),
		Action: ratelimit.ActionWater,
		Target: strconv.FormatInt(id, 10),
		Now:    h.now(),
	}
	if err := h.Limiter.Check(ctx, limitReq); err != nil {
		writeLimitError(w, err, CodePerDropletLimit, "You already watered this droplet this hour")
		return
	}

	waterCount, storedLevel, err := h.Characters.IncrementWaterCount(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Character not found", CodeNotFound)
		return
	}
	if err != nil {
		log.Printf("[Water] %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to water character", CodeInternal)
		return
	}

	level := evolution.Level(storedLevel, waterCount)
	leveledUp := false
	if level > storedLevel {
		leveledUp, err = h.Characters.RaiseLevel(ctx, id, level)
		if err != nil {
			log.Printf("[Water] %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to update level", CodeInternal)
			return
		}
	}

	userID, wallet := claims.UserID, claims.Wallet
	if err := h.recordWater(ctx, id, userID, wallet); err != nil {
		log.Printf("[Water] Failed to store water row for droplet %d: %v", id, err)
	}

	// The water is committed; a failed charge only loosens the limit.
	if err := h.Limiter.Record(ctx, limitReq); err != nil {
		log.Printf("[Water] Failed to record rate limit for %s: %v", limitReq.Actor, err)
	}

	h.World.IncrementBestEffort(database.CounterWaters)
	if h.Leaderboards != nil {
		h.Runner.Go("leaderboard water", func(ctx context.Context) error {
			return h.Leaderboards.RecordWater(ctx, id, wallet)
		})
	}

	granted := grantBestEffort(ctx, h.Ledger, rewards.Award{
		UserID:      userID,
		Amount:      rewards.WaterAmount,
		Source:      rewards.SourceWater,
		Description: fmt.Sprintf("Watered droplet #%d", id),
	})

	if leveledUp {
		log.Printf("[Water] Droplet %d reached level %d", id, level)
		h.Publisher.Publish(events.LevelUp{
			CharacterID:   id,
			WateredBy:     wallet,
			WaterCount:    waterCount,
			PreviousLevel: storedLevel,
			Level:         level,
		})
	} else {
		h.Publisher.Publish(events.Water{
			CharacterID: id,
			WateredBy:   wallet,
			WaterCount:  waterCount,
			Level:       level,
		})
	}

	writeJSON(w, http.StatusOK, WaterResponse{
		WaterCount: waterCount,
		Level:      level,
		LeveledUp:  leveledUp,
		Reward:     granted,
	})
}

func (h *CharacterHandler) recordWater(ctx context.Context, characterID, userID int64, wallet string) error {
	if err := h.Characters.EnsureUser(ctx, userID, wallet); err != nil {
		return err
	}
	return h.Characters.InsertWater(ctx, characterID, userID)
}

// writeLimitError maps limiter errors onto 429 codes. A counter store
// failure fails the request.
func writeLimitError(w http.ResponseWriter, err error, perTargetCode, perTargetMsg string) {
	switch {
	case errors.Is(err, ratelimit.ErrLimitReached):
		writeError(w, http.StatusTooManyRequests, "Hourly limit reached, try again next hour", CodeHourlyLimit)
	case errors.Is(err, ratelimit.ErrPerTargetLimitReached):
		writeError(w, http.StatusTooManyRequests, perTargetMsg, perTargetCode)
	default:
		log.Printf("[RateLimit] %v", err)
		writeError(w, http.StatusServiceUnavailable, "Rate limiter unavailable", CodeUnavailable)
	}
}

// actorKey normalizes a wallet for counter keys
func actorKey(wallet string) string {
	return strings.ToLower(wallet)
}
