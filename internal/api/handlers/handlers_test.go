package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"backend/internal/models"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var handlerDBSeq atomic.Int64

type testApp struct {
	app  *fiber.App
	repo *repository.PostgresRepository
}

// noopScorer satisfies the pool without touching storage; ingest tests only
// assert queueing behavior.
type noopScorer struct{}

func (noopScorer) HandleGameFinalized(context.Context, models.GameFinalizedFact) error {
	return nil
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:handlers_test_%d?mode=memory&cache=shared", handlerDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo := repository.NewPostgresRepository(db)
	require.NoError(t, repo.AutoMigrate())
	t.Cleanup(func() { _ = repo.Close() })

	notifier := service.LogNotifier{}
	badges := service.NewBadgeEngine(repo, notifier)
	predictions := service.NewPredictionService(repo, badges)

	pool := worker.NewScoringPool(1, 1, noopScorer{})

	predictionHandler := NewPredictionHandler(predictions)
	badgeHandler := NewBadgeHandler(badges)
	ingestHandler := NewIngestHandler(predictions, pool)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Post("/predictions", predictionHandler.Submit)
	api.Get("/predictions/:userID", predictionHandler.History)
	api.Get("/users/:userID/badges", badgeHandler.UserBadges)
	api.Post("/votes", badgeHandler.CastVote)
	api.Post("/ingest/game-started", ingestHandler.GameStarted)
	api.Post("/ingest/game-finalized", ingestHandler.GameFinalized)

	return &testApp{app: app, repo: repo}
}

func (ta *testApp) seedGame(t *testing.T, gameID uint, startTime time.Time) {
	t.Helper()
	require.NoError(t, ta.repo.UpsertGame(context.Background(), &models.Game{
		ID:           gameID,
		SeasonID:     1,
		Date:         startTime,
		HomeTeam:     1,
		VisitingTeam: 2,
		StartTime:    startTime,
	}))
}

func (ta *testApp) request(t *testing.T, method, path, userID string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func TestSubmitPrediction(t *testing.T) {
	ta := newTestApp(t)
	ta.seedGame(t, 42, time.Now().Add(2*time.Hour))

	resp := ta.request(t, fiber.MethodPost, "/api/v1/predictions", "ulyssa", models.PredictionRequest{
		GameID:             42,
		PredictedHomeScore: 3,
		PredictedAwayScore: 2,
		PredictedSavePct:   92.0,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var pred models.Prediction
	decodeJSON(t, resp, &pred)
	assert.Equal(t, "ulyssa", pred.UserID)
	assert.Equal(t, models.PredictionOpen, pred.State)
}

func TestSubmitPredictionRequiresIdentity(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.request(t, fiber.MethodPost, "/api/v1/predictions", "", models.PredictionRequest{GameID: 42})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestSubmitPredictionStatusMapping(t *testing.T) {
	ta := newTestApp(t)
	ta.seedGame(t, 42, time.Now().Add(2*time.Hour))
	ta.seedGame(t, 43, time.Now().Add(-2*time.Hour))

	tests := []struct {
		name string
		body models.PredictionRequest
		want int
	}{
		{"unknown game", models.PredictionRequest{GameID: 999, PredictedSavePct: 90}, fiber.StatusNotFound},
		{"game already started", models.PredictionRequest{GameID: 43, PredictedSavePct: 90}, fiber.StatusConflict},
		{"invalid save pct", models.PredictionRequest{GameID: 42, PredictedSavePct: 150}, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ta.request(t, fiber.MethodPost, "/api/v1/predictions", "ulyssa", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestPredictionHistory(t *testing.T) {
	ta := newTestApp(t)
	ta.seedGame(t, 42, time.Now().Add(2*time.Hour))

	resp := ta.request(t, fiber.MethodPost, "/api/v1/predictions", "ulyssa", models.PredictionRequest{
		GameID: 42, PredictedHomeScore: 1, PredictedAwayScore: 0, PredictedSavePct: 90,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = ta.request(t, fiber.MethodGet, "/api/v1/predictions/ulyssa", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var history []models.Prediction
	decodeJSON(t, resp, &history)
	require.Len(t, history, 1)
	assert.Equal(t, uint(42), history[0].GameID)
}

func TestUserBadgesReturnsFullCatalog(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.request(t, fiber.MethodGet, "/api/v1/users/ulyssa/badges", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var statuses []models.BadgeStatus
	decodeJSON(t, resp, &statuses)
	assert.Len(t, statuses, len(service.Catalog()))
}

func TestCastVote(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.request(t, fiber.MethodPost, "/api/v1/votes", "ulyssa", models.VoteRequest{
		Category: models.VoteGoldenStick,
		TargetID: 17,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var vote models.Vote
	decodeJSON(t, resp, &vote)
	assert.NotZero(t, vote.ID)
	assert.Equal(t, models.VoteGoldenStick, vote.Category)
}

func TestCastVoteRejectsUnknownCategory(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.request(t, fiber.MethodPost, "/api/v1/votes", "ulyssa", models.VoteRequest{
		Category: "golden_zamboni",
		TargetID: 17,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestIngestGameStarted(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.request(t, fiber.MethodPost, "/api/v1/ingest/game-started", "", models.GameStartedFact{
		GameID:       42,
		SeasonID:     1,
		HomeTeam:     1,
		VisitingTeam: 2,
		StartTime:    time.Now().Add(2 * time.Hour),
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	game, err := ta.repo.GetGame(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, game)
}

func TestIngestGameStartedValidation(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.request(t, fiber.MethodPost, "/api/v1/ingest/game-started", "", fiber.Map{
		"season_id": 1,
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestIngestGameFinalizedQueued(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.request(t, fiber.MethodPost, "/api/v1/ingest/game-finalized", "", models.GameFinalizedFact{
		GameID:             42,
		CorrectionSequence: 1,
		FinalHomeScore:     3,
		FinalAwayScore:     2,
		FinalizedAt:        time.Now(),
	})
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
}

func TestIngestGameFinalizedValidation(t *testing.T) {
	ta := newTestApp(t)

	// Correction sequences start at 1.
	resp := ta.request(t, fiber.MethodPost, "/api/v1/ingest/game-finalized", "", models.GameFinalizedFact{
		GameID:             42,
		CorrectionSequence: 0,
		FinalizedAt:        time.Now(),
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestIngestGameFinalizedBackpressure(t *testing.T) {
	ta := newTestApp(t)

	fact := models.GameFinalizedFact{
		GameID:             42,
		CorrectionSequence: 1,
		FinalHomeScore:     3,
		FinalAwayScore:     2,
		FinalizedAt:        time.Now(),
	}

	// The pool is never started, so its single-slot queue fills up and the
	// handler signals the feed to redeliver.
	resp := ta.request(t, fiber.MethodPost, "/api/v1/ingest/game-finalized", "", fact)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	resp = ta.request(t, fiber.MethodPost, "/api/v1/ingest/game-finalized", "", fact)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
