package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"backend/internal/config"
	"backend/internal/models"
	"backend/internal/repository"
	"backend/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	TotalFans   = 200
	TotalGames  = 12
	TotalTeams  = 6
	VotesPerFan = 8
	FanPrefix   = "fan_"
)

// The seeder drives demo data through the real engines instead of writing
// rows directly, so leaderboards, badges and the redis cache all end up
// consistent with each other.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("starting seeder")

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

	notifier := service.LogNotifier{}
	badgeEngine := service.NewBadgeEngine(postgresRepo, notifier)
	leaderboardService := service.NewLeaderboardService(redisRepo, postgresRepo)
	predictionService := service.NewPredictionService(postgresRepo, badgeEngine)
	scoringEngine := service.NewScoringEngine(postgresRepo, leaderboardService, badgeEngine, notifier, cfg.Scoring)

	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	fans := make([]string, TotalFans)
	for i := range fans {
		fans[i] = fmt.Sprintf("%s%d", FanPrefix, i+1)
	}

	log.Info().Int("fans", TotalFans).Int("games", TotalGames).Msg("seeding prediction rounds")
	if err := seedRounds(ctx, rng, fans, predictionService, scoringEngine); err != nil {
		log.Fatal().Err(err).Msg("failed to seed prediction rounds")
	}

	log.Info().Msg("seeding community votes")
	if err := seedVotes(ctx, rng, fans, badgeEngine); err != nil {
		log.Fatal().Err(err).Msg("failed to seed votes")
	}

	period := service.SeasonKey(time.Now())
	total, err := redisRepo.TotalUsers(ctx, period)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to verify Redis")
	}
	log.Info().Str("period", period).Int64("ranked_users", total).Msg("seeding completed")

	top, err := redisRepo.TopUsers(ctx, period, 0, 10)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read top users")
	}
	for i, user := range top {
		log.Info().Int("rank", i+1).Str("user_id", user.UserID).Int("points", user.Points).Msg("top user")
	}

	postgresRepo.Close()
	redisRepo.Close()

	log.Info().Msg("seeder finished")
}

// seedRounds runs each demo game through its full lifecycle: announce,
// collect predictions, lock at faceoff, finalize, and occasionally deliver a
// stats correction.
func seedRounds(
	ctx context.Context,
	rng *rand.Rand,
	fans []string,
	predictions *service.PredictionService,
	scoring *service.ScoringEngine,
) error {
	now := time.Now()

	for g := 1; g <= TotalGames; g++ {
		gameID := uint(g)
		home := uint(rng.Intn(TotalTeams) + 1)
		away := home%TotalTeams + 1

		// Announce with a start time still in the future so submissions
		// are accepted.
		started := models.GameStartedFact{
			GameID:       gameID,
			SeasonID:     1,
			HomeTeam:     home,
			VisitingTeam: away,
			StartTime:    now.Add(time.Hour),
		}
		if err := predictions.HandleGameStarted(ctx, started); err != nil {
			return fmt.Errorf("announce game %d: %w", gameID, err)
		}

		for _, fan := range fans {
			if rng.Intn(100) < 30 {
				continue
			}
			req := models.PredictionRequest{
				GameID:             gameID,
				PredictedHomeScore: rng.Intn(6),
				PredictedAwayScore: rng.Intn(6),
				PredictedSavePct:   88 + rng.Float64()*10,
			}
			if rng.Intn(100) < 60 {
				req.PredictedTopScorer = uint(rng.Intn(40) + 1)
			}
			if _, err := predictions.Submit(ctx, fan, req); err != nil {
				return fmt.Errorf("submit for %s on game %d: %w", fan, gameID, err)
			}
		}

		// Faceoff: redeliver with the start time reached, which locks the
		// open predictions.
		started.StartTime = now
		if err := predictions.HandleGameStarted(ctx, started); err != nil {
			return fmt.Errorf("lock game %d: %w", gameID, err)
		}

		topScorer := uint(rng.Intn(40) + 1)
		savePct := 88 + rng.Float64()*10
		final := models.GameFinalizedFact{
			GameID:             gameID,
			CorrectionSequence: 1,
			FinalHomeScore:     rng.Intn(6),
			FinalAwayScore:     rng.Intn(6),
			TopScorerID:        &topScorer,
			SavePct:            &savePct,
			FinalizedAt:        now.Add(3 * time.Hour),
		}
		if err := scoring.HandleGameFinalized(ctx, final); err != nil {
			return fmt.Errorf("finalize game %d: %w", gameID, err)
		}

		// Roughly a quarter of games get a stats correction next morning.
		if rng.Intn(4) == 0 {
			corrected := final
			corrected.CorrectionSequence = 2
			correctedPct := savePct + (rng.Float64()*2 - 1)
			corrected.SavePct = &correctedPct
			corrected.FinalizedAt = now.Add(15 * time.Hour)
			if err := scoring.HandleGameFinalized(ctx, corrected); err != nil {
				return fmt.Errorf("correct game %d: %w", gameID, err)
			}
		}
	}

	return nil
}

// seedVotes casts community votes so the superfan badge has progress to show.
func seedVotes(ctx context.Context, rng *rand.Rand, fans []string, badges *service.BadgeEngine) error {
	categories := []string{
		models.VoteGoldenSkate,
		models.VoteGoldenStick,
		models.VoteGoldenPuck,
		models.VoteMessageLike,
	}

	for _, fan := range fans {
		votes := rng.Intn(VotesPerFan + 1)
		for v := 0; v < votes; v++ {
			req := models.VoteRequest{
				Category: categories[rng.Intn(len(categories))],
				TargetID: uint(rng.Intn(500) + 1),
			}
			if _, err := badges.CastVote(ctx, fan, req); err != nil {
				return fmt.Errorf("vote for %s: %w", fan, err)
			}
		}
	}

	return nil
}

// initPostgres initializes PostgreSQL connection
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

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

// initRedis initializes Redis connection
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
