package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend/internal/api/handlers"
	"backend/internal/config"
	"backend/internal/jobs"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/websocket"
	"backend/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := initPostgres(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	log.Info().Msg("connected to PostgreSQL")

	redisClient, err := initRedis(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	log.Info().Msg("connected to Redis")

	postgresRepo := repository.NewPostgresRepository(db)
	redisRepo := repository.NewRedisRepository(redisClient)

	if err := postgresRepo.AutoMigrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("database migrations completed")

	// Engine wiring, leaf-first: badges feed on scoring and submissions, the
	// scoring engine fans out to the leaderboard and badges.
	notifier := service.LogNotifier{}
	badgeEngine := service.NewBadgeEngine(postgresRepo, notifier)
	leaderboardService := service.NewLeaderboardService(redisRepo, postgresRepo)
	predictionService := service.NewPredictionService(postgresRepo, badgeEngine)
	scoringEngine := service.NewScoringEngine(postgresRepo, leaderboardService, badgeEngine, notifier, cfg.Scoring)
	reconciler := service.NewReconciler(postgresRepo, redisRepo, badgeEngine)

	// Scoring pool: facts are routed by game id, serializing per game.
	workerCount := 8
	queueSize := 256
	scoringPool := worker.NewScoringPool(workerCount, queueSize, scoringEngine)
	scoringPool.Start()

	hub := websocket.NewHub(redisRepo)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	reconcileJob := jobs.NewReconcileJob(reconciler, cfg.Reconciler.Interval)
	jobCtx, jobCancel := context.WithCancel(context.Background())
	defer jobCancel()
	if err := reconcileJob.Start(jobCtx); err != nil {
		log.Error().Err(err).Msg("failed to start reconcile job")
	}

	predictionHandler := handlers.NewPredictionHandler(predictionService)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService, postgresRepo, redisRepo)
	badgeHandler := handlers.NewBadgeHandler(badgeEngine)
	ingestHandler := handlers.NewIngestHandler(predictionService, scoringPool)

	app := fiber.New(fiber.Config{
		AppName:      "Prediction Scoring Engine",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, X-User-ID",
	}))

	api := app.Group("/api/v1")

	api.Post("/predictions", predictionHandler.Submit)
	api.Get("/predictions/:userID", predictionHandler.History)
	api.Get("/leaderboard", leaderboardHandler.GetLeaderboard)
	api.Get("/leaderboard/:period/users/:userID", leaderboardHandler.GetUserRank)
	api.Get("/users/:userID/badges", badgeHandler.UserBadges)
	api.Post("/votes", badgeHandler.CastVote)
	api.Get("/health", leaderboardHandler.HealthCheck)

	// Facts from the stats ingestion collaborator.
	ingest := api.Group("/ingest")
	ingest.Post("/game-started", ingestHandler.GameStarted)
	ingest.Post("/game-finalized", ingestHandler.GameFinalized)

	// WebSocket route with upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", fiberws.New(func(c *fiberws.Conn) {
		websocket.ServeWS(hub, c)
	}))

	// Graceful shutdown: stop the background loops, drain HTTP, flush the
	// scoring pool, then close connections.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Info().Msg("shutting down server")

		reconcileJob.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(ctx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}

		if err := scoringPool.Shutdown(30 * time.Second); err != nil {
			log.Error().Err(err).Msg("scoring pool shutdown error")
		}

		if err := postgresRepo.Close(); err != nil {
			log.Error().Err(err).Msg("error closing PostgreSQL")
		}
		if err := redisRepo.Close(); err != nil {
			log.Error().Err(err).Msg("error closing Redis")
		}

		log.Info().Msg("server shutdown complete")
	}()

	port := cfg.Server.Port
	log.Info().Int("port", port).Msg("server starting")
	if err := app.Listen(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

// initPostgres initializes PostgreSQL connection with connection pooling
func initPostgres(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connections must cover the scoring pool plus the API path.
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

// initRedis initializes Redis connection with connection pooling
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   "Request failed",
		"message": err.Error(),
	})
}
