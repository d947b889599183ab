package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"

	"whoosh-backend/config"
	"whoosh-backend/handlers"
	"whoosh-backend/queue"
	"whoosh-backend/services"
	"whoosh-backend/storage"
	"whoosh-backend/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenDatabase(storage.DatabaseOptions{Driver: cfg.DatabaseDriver, DSN: cfg.DatabaseURL})
	if err != nil {
		log.Fatal(err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal(err)
	}

	health := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	clock := clockwork.NewRealClock()

	var store queue.Store
	if cfg.RedisAddr != "" {
		rdb := queue.NewRedisClient(queue.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TLS:      cfg.RedisTLS,
		})
		defer rdb.Close()
		redisStore := queue.NewRedisStore(rdb, clock)
		if err := redisStore.Ping(ctx); err != nil {
			log.Fatal("failed to connect to redis: ", err)
		}
		health["redis"] = redisStore.Ping
		store = redisStore
		log.Printf("✅ Queue store: redis at %s", cfg.RedisAddr)
	} else {
		store = queue.NewMemoryStore(clock)
		log.Println("⚠️  REDIS_ADDR not set, using in-memory queue store (single instance only)")
	}

	var archiver services.Archiver
	if cfg.Archive.Enabled() {
		archive, err := storage.NewMatchArchive(ctx, cfg.Archive)
		if err != nil {
			log.Fatal("failed to initialize match archive: ", err)
		}
		archiver = archive
	}

	tokens := services.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, clock)
	matchmaking := services.NewMatchmakingService(store, clock, services.MatchmakingOptions{
		GroupSize:       cfg.GroupSize,
		GameTTL:         cfg.GameTTL,
		DuplicatePolicy: cfg.DuplicatePolicy,
	})
	accounts := services.NewAccountService(db, tokens, clock)
	guests := services.NewGuestService(db, tokens, clock, cfg.GuestSessionTTL)
	results := services.NewResultService(db, matchmaking, archiver, clock)

	drainWorker := workers.NewDrainWorker(matchmaking)
	matchmaking.SetDrainTrigger(drainWorker)
	drainWorker.Start(ctx)

	scheduler, err := services.NewScheduler(matchmaking, guests, services.SchedulerOptions{
		DrainInterval: cfg.DrainInterval,
		ReapInterval:  cfg.GuestReapInterval,
	})
	if err != nil {
		log.Fatal(err)
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PATCH,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupHealthRoutes(app, health)
	handlers.SetupAuthRoutes(app, accounts, guests)
	handlers.SetupMatchmakingRoutes(app, matchmaking, tokens, cfg.GameServiceToken)
	handlers.SetupGameRoutes(app, results, tokens, cfg.GameServiceToken)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Matchmaking: groups of %d, games live %s, duplicate joins: %s", cfg.GroupSize, cfg.GameTTL, cfg.DuplicatePolicy)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Printf("⚠️ Scheduler shutdown: %v", err)
	}
	<-drainWorker.Done()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
