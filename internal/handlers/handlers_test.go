package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/droplets-realm/api/internal/auth"
	"github.com/droplets-realm/api/internal/background"
	"github.com/droplets-realm/api/internal/database"
	"github.com/droplets-realm/api/internal/events"
	"github.com/droplets-realm/api/internal/imagegen"
	"github.com/droplets-realm/api/internal/middleware"
	"github.com/droplets-realm/api/internal/models"
	"github.com/droplets-realm/api/internal/ratelimit"
	"github.com/droplets-realm/api/internal/redis"
	"github.com/droplets-realm/api/internal/rewards"
	"github.com/droplets-realm/api/internal/world"
)

var testNow = time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC)

type fakeCharacters struct {
	mu         sync.Mutex
	nextID     int64
	characters map[int64]*models.Character
	waters     int
}

func newFakeCharacters() *fakeCharacters {
	return &fakeCharacters{characters: make(map[int64]*models.Character)}
}

func (s *fakeCharacters) add(userID int64) *models.Character {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := &models.Character{ID: s.nextID, UserID: userID, Variant: models.VariantDroplet, Level: 1}
	s.characters[c.ID] = c
	return c
}

func (s *fakeCharacters) EnsureUser(context.Context, int64, string) error { return nil }

func (s *fakeCharacters) CountDroplets(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.characters {
		if c.UserID == userID && c.Variant == models.VariantDroplet {
			n++
		}
	}
	return n, nil
}

func (s *fakeCharacters) InsertCharacter(_ context.Context, c *models.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.characters {
		if existing.UserID == c.UserID {
			return database.ErrAlreadyMinted
		}
	}
	s.nextID++
	c.ID = s.nextID
	stored := *c
	s.characters[c.ID] = &stored
	return nil
}

func (s *fakeCharacters) GetCharacter(_ context.Context, id int64) (*models.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *fakeCharacters) GetDropletByUser(_ context.Context, userID int64) (*models.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.characters {
		if c.UserID == userID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeCharacters) ListCharacters(_ context.Context, limit int) ([]models.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Character
	for _, c := range s.characters {
		if len(out) == limit {
			break
		}
		out = append(out, *c)
	}
	return out, nil
}

func (s *fakeCharacters) IncrementWaterCount(_ context.Context, id int64) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[id]
	if !ok {
		return 0, 0, database.ErrNotFound
	}
	c.WaterCount++
	return c.WaterCount, c.Level, nil
}

func (s *fakeCharacters) RaiseLevel(_ context.Context, id int64, level int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.characters[id]
	if !ok || c.Level >= level {
		return false, nil
	}
	c.Level = level
	return true, nil
}

func (s *fakeCharacters) InsertWater(context.Context, int64, int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waters++
	return nil
}

type fakeLore struct {
	mu     sync.Mutex
	nextID int64
	lore   map[int64]*models.Lore
	votes  map[[2]int64]bool
}

func newFakeLore() *fakeLore {
	return &fakeLore{lore: make(map[int64]*models.Lore), votes: make(map[[2]int64]bool)}
}

func (s *fakeLore) InsertLore(_ context.Context, l *models.Lore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	l.ID = s.nextID
	stored := *l
	s.lore[l.ID] = &stored
	return nil
}

func (s *fakeLore) GetLore(_ context.Context, id int64) (*models.Lore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lore[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *l
	return &copied, nil
}

func (s *fakeLore) ListLoreByCharacter(_ context.Context, characterID int64) ([]models.Lore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lore
	for _, l := range s.lore {
		if l.CharacterID == characterID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (s *fakeLore) InsertLoreVote(_ context.Context, loreID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{loreID, userID}
	if s.votes[key] {
		return database.ErrAlreadyVoted
	}
	s.votes[key] = true
	return nil
}

func (s *fakeLore) IncrementLoreVotes(_ context.Context, loreID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lore[loreID]
	l.VoteCount++
	return l.VoteCount, nil
}

type fakeWorld struct {
	mu       sync.Mutex
	counters []database.WorldCounter
	state    models.WorldState
}

func (w *fakeWorld) IncrementBestEffort(counter database.WorldCounter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counters = append(w.counters, counter)
}

func (w *fakeWorld) Snapshot(context.Context) (*models.WorldState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state := w.state
	return &state, nil
}

func (w *fakeWorld) SetSeason(_ context.Context, season string) (*models.WorldState, error) {
	if !world.ValidSeason(season) {
		return nil, fmt.Errorf("%w: %q", world.ErrInvalidSeason, season)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Season = season
	state := w.state
	return &state, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads []events.Payload
}

func (p *fakePublisher) Publish(payload events.Payload) events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return events.New(payload, testNow)
}

func (p *fakePublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.payloads))
	for i, payload := range p.payloads {
		out[i] = payload.EventType()
	}
	return out
}

type fakeLedger struct {
	mu     sync.Mutex
	awards []rewards.Award
	err    error
}

func (l *fakeLedger) Award(_ context.Context, a rewards.Award) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	l.awards = append(l.awards, a)
	return a.Amount, nil
}

func (l *fakeLedger) Balance(_ context.Context, userID int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, a := range l.awards {
		if a.UserID == userID {
			total += a.Amount
		}
	}
	return total, nil
}

func (l *fakeLedger) EarnedToday(ctx context.Context, userID int64) (int, int, error) {
	earned, _ := l.Balance(ctx, userID)
	return earned, rewards.DefaultDailyCap - earned, nil
}

func (l *fakeLedger) DailyCap() int { return rewards.DefaultDailyCap }

type failingGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *failingGenerator) Generate(context.Context, imagegen.Request) (*imagegen.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return nil, errors.New("upstream returned 503")
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.Wrap(rdb)
}

type testEnv struct {
	characters *fakeCharacters
	lore       *fakeLore
	world      *fakeWorld
	publisher  *fakePublisher
	ledger     *fakeLedger
	limiter    *ratelimit.Limiter
	runner     *background.Runner
	handler    *CharacterHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		characters: newFakeCharacters(),
		lore:       newFakeLore(),
		world:      &fakeWorld{state: models.WorldState{Season: "spring", Phase: "dawn"}},
		publisher:  &fakePublisher{},
		ledger:     &fakeLedger{},
		limiter:    ratelimit.New(newTestRedis(t), ratelimit.DefaultPolicies),
		runner:     background.NewRunner(time.Second),
	}
	env.handler = NewCharacterHandler(CharacterDeps{
		Characters:   env.characters,
		Limiter:      env.limiter,
		World:        env.world,
		Ledger:       env.ledger,
		Publisher:    env.publisher,
		Runner:       env.runner,
		ImageBackoff: time.Millisecond,
	})
	env.handler.now = func() time.Time { return testNow }
	env.handler.random = func() float64 { return 0.5 }
	return env
}

func authed(req *http.Request, userID int64, wallet string) *http.Request {
	claims := &auth.CustomClaims{UserID: userID, Wallet: wallet}
	return req.WithContext(middleware.WithClaims(req.Context(), claims))
}

func waterRequest(id string, userID int64, wallet string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/characters/"+id+"/water", nil)
	req.SetPathValue("id", id)
	return authed(req, userID, wallet)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if got := decodeError(t, rec).Code; got != code {
		t.Fatalf("expected code %s, got %s", code, got)
	}
}

func TestWaterRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/characters/1/water", nil)
	req.SetPathValue("id", "1")
	rec := httptest.NewRecorder()
	env.handler.Water(rec, req)
	expectError(t, rec, http.StatusUnauthorized, CodeUnauthorized)
}

func TestWaterInvalidID(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.handler.Water(rec, waterRequest("abc", 1, "0xA"))
	expectError(t, rec, http.StatusBadRequest, CodeInvalidID)
}

func TestWaterUnknownCharacterDoesNotCharge(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	env.handler.Water(rec, waterRequest("99", 1, "0xA"))
	expectError(t, rec, http.StatusNotFound, CodeNotFound)

	remaining, err := env.limiter.Remaining(context.Background(), "0xa", ratelimit.ActionWater, testNow)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("expected 3 waters left, got %d", remaining)
	}
}

func TestWaterThirdWaterLevelsUp(t *testing.T) {
	env := newTestEnv(t)
	droplet := env.characters.add(100)
	id := fmt.Sprint(droplet.ID)

	var last WaterResponse
	for i, wallet := range []string{"0xA", "0xB", "0xC"} {
		rec := httptest.NewRecorder()
		env.handler.Water(rec, waterRequest(id, int64(i+1), wallet))
		if rec.Code != http.StatusOK {
			t.Fatalf("water %d: status %d: %s", i+1, rec.Code, rec.Body.String())
		}
		if err := json.NewDecoder(rec.Body).Decode(&last); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if i < 2 && last.LeveledUp {
			t.Fatalf("water %d should not level up", i+1)
		}
	}
	env.runner.Wait()

	if !last.LeveledUp || last.Level != 2 || last.WaterCount != 3 {
		t.Fatalf("unexpected third water response %+v", last)
	}
	if last.Reward != rewards.WaterAmount {
		t.Fatalf("expected reward %d, got %d", rewards.WaterAmount, last.Reward)
	}
	want := []events.Type{events.TypeWater, events.TypeWater, events.TypeLevelUp}
	if got := env.publisher.types(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	if len(env.world.counters) != 3 {
		t.Fatalf("expected 3 world increments, got %d", len(env.world.counters))
	}
	if env.characters.waters != 3 {
		t.Fatalf("expected 3 water rows, got %d", env.characters.waters)
	}
}

func TestWaterLimits(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, fmt.Sprint(env.characters.add(int64(100+i)).ID))
	}

	rec := httptest.NewRecorder()
	env.handler.Water(rec, waterRequest(ids[0], 1, "0xA"))
	if rec.Code != http.StatusOK {
		t.Fatalf("first water: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.handler.Water(rec, waterRequest(ids[0], 1, "0xa"))
	expectError(t, rec, http.StatusTooManyRequests, CodePerDropletLimit)

	for _, id := range ids[1:3] {
		rec = httptest.NewRecorder()
		env.handler.Water(rec, waterRequest(id, 1, "0xA"))
		if rec.Code != http.StatusOK {
			t.Fatalf("water %s: %d", id, rec.Code)
		}
	}

	rec = httptest.NewRecorder()
	env.handler.Water(rec, waterRequest(ids[3], 1, "0xA"))
	expectError(t, rec, http.StatusTooManyRequests, CodeHourlyLimit)

	// next hour
	env.handler.now = func() time.Time { return testNow.Add(time.Hour) }
	rec = httptest.NewRecorder()
	env.handler.Water(rec, waterRequest(ids[3], 1, "0xA"))
	if rec.Code != http.StatusOK {
		t.Fatalf("water after window reset: %d", rec.Code)
	}
	env.runner.Wait()
}

func TestMintOncePerUser(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handler.Mint(rec, authed(httptest.NewRequest(http.MethodPost, "/characters", nil), 7, "0xMINT"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp MintResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reward != rewards.MintAmount || resp.Character.IsLegendary {
		t.Fatalf("unexpected mint response %+v", resp)
	}
	c := resp.Character
	if c.X < 40 || c.X > CanvasWidth-40 || c.Y < 40 || c.Y > CanvasHeight-40 {
		t.Fatalf("spawn outside canvas margins: (%v, %v)", c.X, c.Y)
	}

	rec = httptest.NewRecorder()
	env.handler.Mint(rec, authed(httptest.NewRequest(http.MethodPost, "/characters", nil), 7, "0xMINT"))
	expectError(t, rec, http.StatusConflict, CodeAlreadyMinted)
	env.runner.Wait()

	if got := env.publisher.types(); len(got) != 1 || got[0] != events.TypeSpawn {
		t.Fatalf("expected one spawn event, got %v", got)
	}
	if len(env.world.counters) != 1 || env.world.counters[0] != database.CounterCharacters {
		t.Fatalf("expected one character increment, got %v", env.world.counters)
	}
}

func TestMintLegendary(t *testing.T) {
	env := newTestEnv(t)
	env.handler.random = func() float64 { return 0 }

	rec := httptest.NewRecorder()
	env.handler.Mint(rec, authed(httptest.NewRequest(http.MethodPost, "/characters", nil), 8, "0xLEG"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp MintResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Character.IsLegendary || resp.Reward != rewards.LegendaryMintAmount {
		t.Fatalf("expected legendary mint with %d reward, got %+v", rewards.LegendaryMintAmount, resp)
	}
}

func TestMintImageFailureMintsNothing(t *testing.T) {
	env := newTestEnv(t)
	gen := &failingGenerator{}
	env.handler.Images = gen
	env.handler.ImageAttempts = 2

	rec := httptest.NewRecorder()
	env.handler.Mint(rec, authed(httptest.NewRequest(http.MethodPost, "/characters", nil), 9, "0xIMG"))
	expectError(t, rec, http.StatusBadGateway, CodeImageGenerationFailed)

	if gen.calls != 2 {
		t.Fatalf("expected 2 generation attempts, got %d", gen.calls)
	}
	if n, _ := env.characters.CountDroplets(context.Background(), 9); n != 0 {
		t.Fatalf("expected no droplet after failed generation, got %d", n)
	}
	if len(env.ledger.awards) != 0 {
		t.Fatal("no reward expected after failed generation")
	}
}

func TestMintRewardFailureStillMints(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.err = rewards.ErrDailyCapReached

	rec := httptest.NewRecorder()
	env.handler.Mint(rec, authed(httptest.NewRequest(http.MethodPost, "/characters", nil), 10, "0xCAP"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp MintResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reward != 0 {
		t.Fatalf("expected zero reward at cap, got %d", resp.Reward)
	}
	env.runner.Wait()
}

func TestMeReportsNextLevel(t *testing.T) {
	env := newTestEnv(t)
	env.characters.add(11)

	rec := httptest.NewRecorder()
	env.handler.Me(rec, authed(httptest.NewRequest(http.MethodGet, "/characters/me", nil), 11, "0xME"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		NextLevelAt     int   `json:"next_level_at"`
		WatersRemaining int64 `json:"waters_remaining"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.NextLevelAt != 3 || resp.WatersRemaining != 3 {
		t.Fatalf("unexpected me response %+v", resp)
	}

	rec = httptest.NewRecorder()
	env.handler.Me(rec, authed(httptest.NewRequest(http.MethodGet, "/characters/me", nil), 12, "0xNONE"))
	expectError(t, rec, http.StatusNotFound, CodeNotFound)
}

func newLoreHandler(env *testEnv) *LoreHandler {
	h := NewLoreHandler(env.characters, env.lore, env.limiter, env.ledger)
	h.now = func() time.Time { return testNow }
	return h
}

func loreRequest(t *testing.T, characterID int64, body string) *http.Request {
	t.Helper()
	payload, err := json.Marshal(CreateLoreRequest{CharacterID: characterID, Body: body})
	if err != nil {
		t.Fatal(err)
	}
	return httptest.NewRequest(http.MethodPost, "/lore", bytes.NewReader(payload))
}

func TestCreateLore(t *testing.T) {
	env := newTestEnv(t)
	h := newLoreHandler(env)
	droplet := env.characters.add(20)

	rec := httptest.NewRecorder()
	h.Create(rec, authed(loreRequest(t, droplet.ID, "  It fell from the first storm.  "), 20, "0xL"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var entry models.Lore
	if err := json.NewDecoder(rec.Body).Decode(&entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Body != "It fell from the first storm." || entry.AuthorID != 20 {
		t.Fatalf("unexpected lore %+v", entry)
	}

	rec = httptest.NewRecorder()
	h.Create(rec, authed(loreRequest(t, droplet.ID, "not mine"), 21, "0xOTHER"))
	expectError(t, rec, http.StatusForbidden, CodeForbidden)

	rec = httptest.NewRecorder()
	h.Create(rec, authed(loreRequest(t, droplet.ID, strings.Repeat("a", maxLoreLength+1)), 20, "0xL"))
	expectError(t, rec, http.StatusBadRequest, CodeInvalidRequest)

	rec = httptest.NewRecorder()
	h.Create(rec, authed(loreRequest(t, droplet.ID, "   "), 20, "0xL"))
	expectError(t, rec, http.StatusBadRequest, CodeInvalidRequest)

	rec = httptest.NewRecorder()
	h.Create(rec, authed(loreRequest(t, 404, "ghost"), 20, "0xL"))
	expectError(t, rec, http.StatusNotFound, CodeNotFound)

	list := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/characters/%d/lore", droplet.ID), nil)
	list.SetPathValue("id", fmt.Sprint(droplet.ID))
	rec = httptest.NewRecorder()
	h.ListByCharacter(rec, list)
	var listed struct {
		Lore []models.Lore `json:"lore"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed.Lore) != 1 {
		t.Fatalf("expected 1 lore entry, got %d", len(listed.Lore))
	}
}

func voteRequest(id int64, userID int64, wallet string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/lore/%d/vote", id), nil)
	req.SetPathValue("id", fmt.Sprint(id))
	return authed(req, userID, wallet)
}

func TestVoteOncePerLore(t *testing.T) {
	env := newTestEnv(t)
	h := newLoreHandler(env)
	droplet := env.characters.add(30)
	entry := &models.Lore{CharacterID: droplet.ID, AuthorID: 30, Body: "tale"}
	if err := env.lore.InsertLore(context.Background(), entry); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.Vote(rec, voteRequest(entry.ID, 31, "0xV"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["vote_count"] != 1 || resp["reward"] != rewards.VoteAmount {
		t.Fatalf("unexpected vote response %v", resp)
	}

	rec = httptest.NewRecorder()
	h.Vote(rec, voteRequest(entry.ID, 31, "0xV"))
	expectError(t, rec, http.StatusTooManyRequests, CodePerLoreLimit)

	// A fresh hour clears the limiter but not the vote row.
	later := testNow.Add(time.Hour)
	h.now = func() time.Time { return later }
	rec = httptest.NewRecorder()
	h.Vote(rec, voteRequest(entry.ID, 31, "0xV"))
	expectError(t, rec, http.StatusConflict, CodeAlreadyVoted)

	remaining, err := env.limiter.Remaining(context.Background(), "0xv", ratelimit.ActionVote, later)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("rejected vote should be released, %d votes left", remaining)
	}
}

func TestVoteUnknownLore(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()
	newLoreHandler(env).Vote(rec, voteRequest(77, 1, "0xV"))
	expectError(t, rec, http.StatusNotFound, CodeNotFound)
}

type fakeQuests struct {
	err error
}

func (q *fakeQuests) List(context.Context, int64) ([]rewards.QuestStatus, error) {
	return []rewards.QuestStatus{{Quest: rewards.Catalog[0], Progress: 1, Completed: true}}, nil
}

func (q *fakeQuests) Claim(_ context.Context, _ int64, questID string) (rewards.Quest, int, error) {
	if q.err != nil {
		return rewards.Quest{}, 0, q.err
	}
	quest, _ := rewards.FindQuest(questID)
	return quest, quest.Reward, nil
}

func TestClaimQuestErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown", rewards.ErrUnknownQuest, http.StatusNotFound, CodeNotFound},
		{"incomplete", rewards.ErrQuestIncomplete, http.StatusBadRequest, CodeQuestIncomplete},
		{"claimed", database.ErrAlreadyClaimed, http.StatusConflict, CodeAlreadyClaimed},
		{"capped", rewards.ErrDailyCapReached, http.StatusTooManyRequests, CodeDailyCapReached},
		{"store", errors.New("connection reset"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewQuestHandler(&fakeQuests{err: tt.err})
			req := httptest.NewRequest(http.MethodPost, "/quests/first-drop/claim", nil)
			req.SetPathValue("id", "first-drop")
			rec := httptest.NewRecorder()
			h.Claim(rec, authed(req, 1, "0xQ"))
			expectError(t, rec, tt.status, tt.code)
		})
	}
}

func TestClaimQuest(t *testing.T) {
	h := NewQuestHandler(&fakeQuests{})
	req := httptest.NewRequest(http.MethodPost, "/quests/first-drop/claim", nil)
	req.SetPathValue("id", "first-drop")
	rec := httptest.NewRecorder()
	h.Claim(rec, authed(req, 1, "0xQ"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ClaimResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Quest.ID != "first-drop" || resp.Reward != resp.Quest.Reward {
		t.Fatalf("unexpected claim response %+v", resp)
	}
}

func TestRewardsBalance(t *testing.T) {
	ledger := &fakeLedger{}
	ledger.Award(context.Background(), rewards.Award{UserID: 5, Amount: 1000, Source: rewards.SourceMint})
	ledger.Award(context.Background(), rewards.Award{UserID: 5, Amount: 50, Source: rewards.SourceWater})

	rec := httptest.NewRecorder()
	NewRewardsHandler(ledger).Balance(rec, authed(httptest.NewRequest(http.MethodGet, "/rewards/balance", nil), 5, "0xR"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp BalanceResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := BalanceResponse{Balance: 1050, EarnedToday: 1050, RemainingToday: 6450, DailyCap: 7500}
	if resp != want {
		t.Fatalf("expected %+v, got %+v", want, resp)
	}
}

func TestSetSeason(t *testing.T) {
	w := &fakeWorld{state: models.WorldState{Season: "spring"}}
	h := NewWorldHandler(w, "secret")

	post := func(token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/internal/season", strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.SetSeason(rec, req)
		return rec
	}

	expectError(t, post("", `{"season":"winter"}`), http.StatusUnauthorized, CodeUnauthorized)
	expectError(t, post("wrong", `{"season":"winter"}`), http.StatusUnauthorized, CodeUnauthorized)
	expectError(t, post("secret", `{"season":"monsoon"}`), http.StatusBadRequest, CodeInvalidSeason)
	expectError(t, post("secret", `not json`), http.StatusBadRequest, CodeInvalidRequest)

	rec := post("secret", `{"season":"winter"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.State(rec, httptest.NewRequest(http.MethodGet, "/world/state", nil))
	var state models.WorldState
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Season != "winter" {
		t.Fatalf("expected winter, got %s", state.Season)
	}
}

func TestLeaderboard(t *testing.T) {
	boards := newTestRedis(t)
	ctx := context.Background()
	for _, water := range []struct {
		id     int64
		wallet string
	}{{1, "0xA"}, {2, "0xA"}, {2, "0xB"}, {2, "0xC"}} {
		if err := boards.RecordWater(ctx, water.id, water.wallet); err != nil {
			t.Fatalf("RecordWater: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	NewLeaderboardHandler(boards).GetLeaderboard(rec, httptest.NewRequest(http.MethodGet, "/leaderboard?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp LeaderboardResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.TopCharacters) != 1 || resp.TopCharacters[0].Member != "2" || resp.TopCharacters[0].Score != 3 {
		t.Fatalf("unexpected top characters %+v", resp.TopCharacters)
	}
	if len(resp.TopWaterers) != 1 || resp.TopWaterers[0].Member != "0xA" {
		t.Fatalf("unexpected top waterers %+v", resp.TopWaterers)
	}
}
