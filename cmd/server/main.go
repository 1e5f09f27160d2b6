package main // Entry point package

import (
	"context" // Context for startup deadlines
	"log"     // Logging library
	"time"    // Timeouts for startup operations

	"github.com/joho/godotenv"    // Loads .env files into the environment
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/tickin/dock-slot-service/internal/config"     // Internal config loader
	"github.com/tickin/dock-slot-service/internal/database"   // Database connection and schema
	"github.com/tickin/dock-slot-service/internal/handler"    // HTTP handlers
	"github.com/tickin/dock-slot-service/internal/middleware" // Rate limiting and response cache
	"github.com/tickin/dock-slot-service/internal/queue"      // Timeline event consumer
	"github.com/tickin/dock-slot-service/internal/repository" // Data access layer
	"github.com/tickin/dock-slot-service/internal/router"     // Internal router setup
	"github.com/tickin/dock-slot-service/internal/service"    // Capacity ledger
)

func main() {
	_ = godotenv.Load() // Load .env when present; real env vars win

	cfg := config.Load() // Load environment config

	// Open the database and apply the schema before serving traffic.
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(ctx, db); err != nil {
		cancel()
		log.Fatalf("migrate: %v", err)
	}
	cancel()

	// Wire the repositories and the ledger on top of them.
	capacityRepo := repository.NewCapacityRepo(db)
	bookingRepo := repository.NewBookingRepo(db)
	waitingRepo := repository.NewWaitingQueueRepo(db)
	rulesRepo := repository.NewRulesRepo(db)
	distributorRepo := repository.NewDistributorRepo(db)

	locator := service.NewLocator(distributorRepo)
	ledger := service.NewLedger(db, capacityRepo, bookingRepo, waitingRepo, rulesRepo,
		locator, service.AMQPPublisher{}, service.Settings{
			Times:            cfg.SlotTimes,
			Positions:        cfg.SlotPositions,
			ReserveTime:      cfg.ReserveSlotTime,
			ReserveOpenAfter: cfg.ReserveOpenAfter,
			DefaultThreshold: cfg.DefaultThreshold,
			MergeRadiusKm:    cfg.MergeRadiusKm,
			TZ:               cfg.Timezone(),
		})

	// Consume slot events into the timeline log in the background.
	go func() {
		if err := queue.StartTimelineConsumer(); err != nil {
			log.Printf("timeline consumer stopped: %v", err)
		}
	}()

	e := echo.New() // Create Echo instance

	// Redis-backed rate limiting and response caching degrade to no-ops
	// when no Redis server is reachable.
	rdb := config.NewRedisClient()
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	e.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	router.RegisterRoutes(e)                                               // Health check
	router.RegisterSlots(e, handler.NewSlotHandler(ledger), cfg.JWTSecret) // Sales surface
	router.RegisterManager(e, handler.NewManagerHandler(ledger), cfg.JWTSecret)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
