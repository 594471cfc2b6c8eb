package service

import (
	"context"
	"testing"
	"time"

	"backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPredictionService(t *testing.T, now time.Time) (*PredictionService, *captureNotifier) {
	t.Helper()
	repo := newTestRepo(t)
	notifier := &captureNotifier{}
	svc := NewPredictionService(repo, NewBadgeEngine(repo, notifier))
	svc.now = func() time.Time { return now }
	return svc, notifier
}

func TestSubmitStoresOpenPrediction(t *testing.T) {
	now := gameDate.Add(-2 * time.Hour)
	svc, _ := newPredictionService(t, now)
	seedGame(t, svc.repo, 42, gameDate)

	pred, err := svc.Submit(context.Background(), "ulyssa", models.PredictionRequest{
		GameID:             42,
		PredictedHomeScore: 3,
		PredictedAwayScore: 2,
		PredictedTopScorer: 17,
		PredictedSavePct:   92.0,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PredictionOpen, pred.State)
	assert.Equal(t, 3, pred.PredictedHomeScore)
	assert.Equal(t, 2, pred.PredictedAwayScore)
	assert.Equal(t, uint(17), pred.PredictedTopScorerID)
	assert.Nil(t, pred.PointsAwarded)
	assert.Zero(t, pred.AppliedSequence)
}

func TestSubmitOverwritesBeforeLock(t *testing.T) {
	now := gameDate.Add(-2 * time.Hour)
	svc, _ := newPredictionService(t, now)
	seedGame(t, svc.repo, 42, gameDate)
	ctx := context.Background()

	first, err := svc.Submit(ctx, "ulyssa", models.PredictionRequest{
		GameID: 42, PredictedHomeScore: 3, PredictedAwayScore: 2, PredictedSavePct: 92.0,
	})
	require.NoError(t, err)

	second, err := svc.Submit(ctx, "ulyssa", models.PredictionRequest{
		GameID: 42, PredictedHomeScore: 1, PredictedAwayScore: 4, PredictedSavePct: 88.5,
	})
	require.NoError(t, err)

	// Last writer wins on the same row, not a second prediction.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, second.PredictedHomeScore)
	assert.Equal(t, 4, second.PredictedAwayScore)

	history, err := svc.History(ctx, "ulyssa")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSubmitOverwriteCountsOneSubmissionBadgeAction(t *testing.T) {
	now := gameDate.Add(-2 * time.Hour)
	svc, _ := newPredictionService(t, now)
	seedGame(t, svc.repo, 42, gameDate)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(ctx, "ulyssa", models.PredictionRequest{
			GameID: 42, PredictedHomeScore: i, PredictedAwayScore: 2, PredictedSavePct: 90,
		})
		require.NoError(t, err)
	}

	progress, err := svc.repo.GetBadgeProgress(ctx, "ulyssa", "regular")
	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.Equal(t, 1, progress.CurrentValue)
}

func TestSubmitRejectedAtStartTime(t *testing.T) {
	svc, _ := newPredictionService(t, gameDate)
	seedGame(t, svc.repo, 42, gameDate)

	_, err := svc.Submit(context.Background(), "ulyssa", models.PredictionRequest{
		GameID: 42, PredictedHomeScore: 3, PredictedAwayScore: 2, PredictedSavePct: 92.0,
	})
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}

func TestSubmitRejectedWhenGameLocked(t *testing.T) {
	now := gameDate.Add(-2 * time.Hour)
	svc, _ := newPredictionService(t, now)
	seedGame(t, svc.repo, 42, gameDate)
	ctx := context.Background()

	require.NoError(t, svc.Lock(ctx, 42, now))

	_, err := svc.Submit(ctx, "ulyssa", models.PredictionRequest{
		GameID: 42, PredictedHomeScore: 3, PredictedAwayScore: 2, PredictedSavePct: 92.0,
	})
	assert.ErrorIs(t, err, ErrAlreadyLocked)
}

func TestSubmitUnknownGame(t *testing.T) {
	svc, _ := newPredictionService(t, gameDate)

	_, err := svc.Submit(context.Background(), "ulyssa", models.PredictionRequest{
		GameID: 999, PredictedHomeScore: 3, PredictedAwayScore: 2, PredictedSavePct: 92.0,
	})
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestSubmitValidation(t *testing.T) {
	now := gameDate.Add(-2 * time.Hour)
	svc, _ := newPredictionService(t, now)
	seedGame(t, svc.repo, 42, gameDate)
	ctx := context.Background()

	tests := []struct {
		name string
		user string
		req  models.PredictionRequest
	}{
		{"missing user", "", models.PredictionRequest{GameID: 42, PredictedSavePct: 90}},
		{"missing game id", "u", models.PredictionRequest{PredictedSavePct: 90}},
		{"negative score", "u", models.PredictionRequest{GameID: 42, PredictedHomeScore: -1, PredictedSavePct: 90}},
		{"absurd score", "u", models.PredictionRequest{GameID: 42, PredictedHomeScore: 31, PredictedSavePct: 90}},
		{"save pct above 100", "u", models.PredictionRequest{GameID: 42, PredictedSavePct: 101}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.user, tt.req)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestHandleGameStartedLocksPredictions(t *testing.T) {
	now := gameDate.Add(-2 * time.Hour)
	svc, _ := newPredictionService(t, now)
	ctx := context.Background()

	fact := models.GameStartedFact{GameID: 42, SeasonID: 1, HomeTeam: 1, VisitingTeam: 2, StartTime: gameDate}
	require.NoError(t, svc.HandleGameStarted(ctx, fact))

	_, err := svc.Submit(ctx, "ulyssa", models.PredictionRequest{
		GameID: 42, PredictedHomeScore: 3, PredictedAwayScore: 2, PredictedSavePct: 92.0,
	})
	require.NoError(t, err)

	// Redelivery at faceoff time locks the game and its open predictions.
	svc.now = func() time.Time { return gameDate }
	require.NoError(t, svc.HandleGameStarted(ctx, fact))

	pred, err := svc.repo.GetPrediction(ctx, "ulyssa", 42)
	require.NoError(t, err)
	assert.Equal(t, models.PredictionLocked, pred.State)
	require.NotNil(t, pred.LockedAt)

	// Locking again is a no-op.
	require.NoError(t, svc.HandleGameStarted(ctx, fact))
}

func TestHandleGameStartedRescheduleReopens(t *testing.T) {
	now := gameDate.Add(-2 * time.Hour)
	svc, _ := newPredictionService(t, now)
	ctx := context.Background()

	fact := models.GameStartedFact{GameID: 42, SeasonID: 1, HomeTeam: 1, VisitingTeam: 2, StartTime: gameDate}
	require.NoError(t, svc.HandleGameStarted(ctx, fact))

	_, err := svc.Submit(ctx, "ulyssa", models.PredictionRequest{
		GameID: 42, PredictedHomeScore: 3, PredictedAwayScore: 2, PredictedSavePct: 92.0,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Lock(ctx, 42, now))

	// A reschedule to a later start supersedes the lock.
	rescheduled := fact
	rescheduled.StartTime = gameDate.Add(48 * time.Hour)
	require.NoError(t, svc.HandleGameStarted(ctx, rescheduled))

	pred, err := svc.repo.GetPrediction(ctx, "ulyssa", 42)
	require.NoError(t, err)
	assert.Equal(t, models.PredictionOpen, pred.State)

	game, err := svc.repo.GetGame(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, game.LockedAt)
	assert.True(t, game.StartTime.Equal(rescheduled.StartTime))

	// Submissions are accepted again until the new start time.
	_, err = svc.Submit(ctx, "ulyssa", models.PredictionRequest{
		GameID: 42, PredictedHomeScore: 2, PredictedAwayScore: 2, PredictedSavePct: 90.0,
	})
	assert.NoError(t, err)
}
