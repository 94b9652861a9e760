package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/droplets-realm/api/internal/auth"
	"github.com/droplets-realm/api/internal/background"
	"github.com/droplets-realm/api/internal/database"
	"github.com/droplets-realm/api/internal/handlers"
	"github.com/droplets-realm/api/internal/imagegen"
	"github.com/droplets-realm/api/internal/middleware"
	"github.com/droplets-realm/api/internal/objectstore"
	"github.com/droplets-realm/api/internal/publisher"
	"github.com/droplets-realm/api/internal/ratelimit"
	"github.com/droplets-realm/api/internal/redis"
	"github.com/droplets-realm/api/internal/rewards"
	"github.com/droplets-realm/api/internal/room"
	"github.com/droplets-realm/api/internal/snapshot"
	"github.com/droplets-realm/api/internal/stream"
	"github.com/droplets-realm/api/internal/world"
)

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverConfig, err := loadServerConfig()
	if err != nil {
		return err
	}
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	redisConfig, err := redis.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	authConfig, err := auth.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	roomConfig, err := room.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	imageConfig, err := imagegen.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	storeConfig, err := objectstore.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	// Initialize database connection
	log.Println("[API] Initializing database connection...")
	db, err := database.NewConnection(dbConfig)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Println("[API] Initializing Redis connection...")
	redisClient, err := redis.NewClient(redisConfig)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	runner := background.NewRunner(serverConfig.BackgroundTimeout)

	// Host the room here unless a remote one is configured
	pub := publisher.New(redisClient, nil, runner)
	var worldRoom *room.Room
	if roomConfig.URL != "" {
		log.Printf("[API] Forwarding events to remote room at %s", roomConfig.URL)
		pub.SetBroadcaster(room.NewClient(roomConfig.URL, roomConfig.InternalToken))
	} else {
		deps := room.Deps{World: db, Phases: db, Sink: pub, Runner: runner}
		snapshots, err := snapshot.Open(roomConfig.SnapshotPath)
		if err != nil {
			log.Printf("[API] Room snapshots disabled: %v", err)
		} else {
			defer snapshots.Close()
			deps.Snapshots = snapshots
		}
		worldRoom = room.New(*roomConfig, deps)
		pub.SetBroadcaster(worldRoom)
	}

	updater := world.NewUpdater(db, redisClient, pub, runner)
	limiter := ratelimit.New(redisClient, ratelimit.DefaultPolicies)
	ledger := rewards.NewLedger(db)
	quests := rewards.NewQuests(db, db, ledger)
	tokens := auth.NewManager(authConfig)

	characterDeps := handlers.CharacterDeps{
		Characters:    db,
		Limiter:       limiter,
		World:         updater,
		Leaderboards:  redisClient,
		Ledger:        ledger,
		Publisher:     pub,
		Runner:        runner,
		ImageAttempts: imageConfig.Attempts,
		ImageBackoff:  imageConfig.BaseBackoff,
	}
	if imageConfig.URL != "" {
		characterDeps.Images = imagegen.NewHTTPGenerator(imageConfig)
	}
	if storeConfig.Enabled() {
		store, err := objectstore.New(ctx, storeConfig)
		if err != nil {
			return err
		}
		characterDeps.Uploader = store
	}

	// Initialize handlers
	characterHandler := handlers.NewCharacterHandler(characterDeps)
	loreHandler := handlers.NewLoreHandler(db, db, limiter, ledger)
	questHandler := handlers.NewQuestHandler(quests)
	rewardsHandler := handlers.NewRewardsHandler(ledger)
	worldHandler := handlers.NewWorldHandler(updater, roomConfig.InternalToken)
	leaderboardHandler := handlers.NewLeaderboardHandler(redisClient)
	requireAuth := middleware.RequireAuth(tokens)

	// Setup HTTP routes
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":              "healthy",
			"time":                time.Now().Format(time.RFC3339),
			"background_failures": runner.Failures(),
		})
	})

	// Character routes
	mux.HandleFunc("GET /characters", characterHandler.List)
	mux.HandleFunc("POST /characters", requireAuth(characterHandler.Mint))
	mux.HandleFunc("GET /characters/me", requireAuth(characterHandler.Me))
	mux.HandleFunc("GET /characters/{id}", characterHandler.Get)
	mux.HandleFunc("POST /characters/{id}/water", requireAuth(characterHandler.Water))

	// Lore routes
	mux.HandleFunc("POST /lore", requireAuth(loreHandler.Create))
	mux.HandleFunc("GET /characters/{id}/lore", loreHandler.ListByCharacter)
	mux.HandleFunc("POST /lore/{id}/vote", requireAuth(loreHandler.Vote))

	// Quest and reward routes
	mux.HandleFunc("GET /quests", requireAuth(questHandler.List))
	mux.HandleFunc("POST /quests/{id}/claim", requireAuth(questHandler.Claim))
	mux.HandleFunc("GET /rewards/balance", requireAuth(rewardsHandler.Balance))

	// World routes
	mux.HandleFunc("GET /world/state", worldHandler.State)
	mux.HandleFunc("POST /internal/season", worldHandler.SetSeason)
	mux.HandleFunc("GET /leaderboard", leaderboardHandler.GetLeaderboard)
	mux.Handle("GET /stream/world", stream.NewHandler(redisClient))

	// Room routes
	if worldRoom != nil {
		roomHandler := room.NewHandler(worldRoom, roomConfig.InternalToken)
		mux.HandleFunc("GET /ws", worldRoom.ServeWS)
		mux.HandleFunc("POST /internal/broadcast", roomHandler.Broadcast)
		mux.HandleFunc("GET /room/state", roomHandler.State)
	}

	server := &http.Server{
		Addr:         ":" + serverConfig.Port,
		Handler:      middleware.CORS(middleware.Logging(mux)),
		ReadTimeout:  serverConfig.ReadTimeout,
		WriteTimeout: serverConfig.WriteTimeout,
		IdleTimeout:  serverConfig.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	if worldRoom != nil {
		g.Go(func() error {
			return worldRoom.Run(gctx)
		})
	}
	g.Go(func() error {
		log.Printf("[API] Starting server on port %s...", serverConfig.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[API] Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[API] Server shutdown: %v", err)
		}
		if err := runner.Close(shutdownCtx); err != nil {
			log.Printf("[API] Background tasks did not finish: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
