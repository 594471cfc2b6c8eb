package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/models"
	"backend/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// PredictionService owns the prediction lifecycle from submission through
// locking. A user holds at most one prediction per game; resubmitting before
// the game locks overwrites it (last writer wins).
type PredictionService struct {
	repo      *repository.PostgresRepository
	badges    *BadgeEngine
	validator *validator.Validate

	// now is swappable for tests.
	now func() time.Time
}

// NewPredictionService creates a new prediction service
func NewPredictionService(repo *repository.PostgresRepository, badges *BadgeEngine) *PredictionService {
	return &PredictionService{
		repo:      repo,
		badges:    badges,
		validator: validator.New(),
		now:       time.Now,
	}
}

// Submit validates and stores a prediction for an upcoming game. It fails
// with ErrAlreadyLocked once the game's start time has passed or a lock has
// been recorded, and with ErrInvalidPayload for out-of-range values.
func (s *PredictionService) Submit(ctx context.Context, userID string, req models.PredictionRequest) (*models.Prediction, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidPayload)
	}
	if err := s.validator.Struct(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	game, err := s.repo.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load game: %w", err)
	}
	if game == nil {
		return nil, fmt.Errorf("%w: game %d", ErrGameNotFound, req.GameID)
	}

	now := s.now()
	if game.LockedAt != nil || !now.Before(game.StartTime) {
		return nil, fmt.Errorf("%w: game %d", ErrAlreadyLocked, req.GameID)
	}

	existing, err := s.repo.GetPrediction(ctx, userID, req.GameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction: %w", err)
	}

	prediction := &models.Prediction{
		UserID:               userID,
		GameID:               req.GameID,
		PredictedHomeScore:   req.PredictedHomeScore,
		PredictedAwayScore:   req.PredictedAwayScore,
		PredictedTopScorerID: req.PredictedTopScorer,
		PredictedSavePct:     req.PredictedSavePct,
		SubmittedAt:          now,
		State:                models.PredictionOpen,
	}

	affected, err := s.repo.UpsertOpenPrediction(ctx, prediction)
	if err != nil {
		return nil, fmt.Errorf("failed to store prediction: %w", err)
	}
	if affected == 0 {
		// Lost the race against the lock transition.
		return nil, fmt.Errorf("%w: game %d", ErrAlreadyLocked, req.GameID)
	}

	stored, err := s.repo.GetPrediction(ctx, userID, req.GameID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload prediction: %w", err)
	}

	// Only a brand-new submission advances badge progress; overwriting an
	// open prediction is not a second qualifying action.
	if existing == nil && stored != nil {
		if err := s.badges.Apply(ctx, models.QualifyingAction{
			UserID:   userID,
			Kind:     models.CriterionSubmissions,
			ActionID: fmt.Sprintf("prediction:%d", stored.ID),
		}); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("failed to apply submission badge action")
		}
	}

	return stored, nil
}

// HandleGameStarted processes a GameStarted fact from the ingestion feed. A
// repeat delivery with the same start time is an idempotent lock; a new start
// time supersedes the previous one (reschedule), reopening predictions when
// the game moves back into the future.
func (s *PredictionService) HandleGameStarted(ctx context.Context, fact models.GameStartedFact) error {
	game := &models.Game{
		ID:           fact.GameID,
		SeasonID:     fact.SeasonID,
		Date:         fact.StartTime,
		HomeTeam:     fact.HomeTeam,
		VisitingTeam: fact.VisitingTeam,
		StartTime:    fact.StartTime,
	}
	if err := s.repo.UpsertGame(ctx, game); err != nil {
		return fmt.Errorf("failed to upsert game: %w", err)
	}

	if fact.StartTime.After(s.now()) {
		// Reschedule into the future: the old lock no longer applies.
		if err := s.repo.ClearGameLock(ctx, fact.GameID); err != nil {
			return fmt.Errorf("failed to clear game lock: %w", err)
		}
		reopened, err := s.repo.ReopenLockedPredictions(ctx, fact.GameID)
		if err != nil {
			return fmt.Errorf("failed to reopen predictions: %w", err)
		}
		if reopened > 0 {
			log.Info().Uint("game_id", fact.GameID).Int64("reopened", reopened).
				Time("start_time", fact.StartTime).Msg("game rescheduled, predictions reopened")
		}
		return nil
	}

	return s.Lock(ctx, fact.GameID, fact.StartTime)
}

// Lock transitions all open predictions for a game to locked. Locking an
// already-locked game is a no-op.
func (s *PredictionService) Lock(ctx context.Context, gameID uint, lockTime time.Time) error {
	if err := s.repo.SetGameLock(ctx, gameID, lockTime); err != nil {
		return fmt.Errorf("failed to set game lock: %w", err)
	}

	locked, err := s.repo.LockOpenPredictions(ctx, gameID, lockTime)
	if err != nil {
		return fmt.Errorf("failed to lock predictions: %w", err)
	}
	if locked > 0 {
		log.Info().Uint("game_id", gameID).Int64("locked", locked).Msg("predictions locked")
	}
	return nil
}

// History returns a user's predictions, newest first.
func (s *PredictionService) History(ctx context.Context, userID string) ([]models.Prediction, error) {
	return s.repo.PredictionsByUser(ctx, userID)
}
