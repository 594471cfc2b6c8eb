package service

import (
	"context"
	"fmt"

	"backend/internal/config"
	"backend/internal/models"
	"backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// ScoringEngine converts finalized game results into point awards. It is
// driven by GameFinalized facts, which may be redelivered (no-op) or carry a
// higher correction sequence (full recompute replacing the prior award).
//
// Callers must serialize invocations per game; the worker pool does this by
// routing every fact for a game to the same queue. Different games score in
// parallel.
type ScoringEngine struct {
	repo        *repository.PostgresRepository
	leaderboard *LeaderboardService
	badges      *BadgeEngine
	notifier    Notifier
	cfg         config.ScoringConfig
}

// NewScoringEngine creates a new scoring engine
func NewScoringEngine(
	repo *repository.PostgresRepository,
	leaderboard *LeaderboardService,
	badges *BadgeEngine,
	notifier Notifier,
	cfg config.ScoringConfig,
) *ScoringEngine {
	return &ScoringEngine{
		repo:        repo,
		leaderboard: leaderboard,
		badges:      badges,
		notifier:    notifier,
		cfg:         cfg,
	}
}

// HandleGameFinalized appends the result revision to the log and re-scores
// every prediction tied to the game. Exactly one scoring application happens
// per (prediction, correction_sequence): a stale or equal sequence is dropped
// per prediction, a higher one recomputes the full breakdown and pushes the
// point delta downstream.
func (e *ScoringEngine) HandleGameFinalized(ctx context.Context, fact models.GameFinalizedFact) error {
	game, err := e.repo.GetGame(ctx, fact.GameID)
	if err != nil {
		return fmt.Errorf("failed to load game: %w", err)
	}
	if game == nil {
		return fmt.Errorf("%w: game %d", ErrGameNotFound, fact.GameID)
	}

	result := &models.GameResult{
		GameID:             fact.GameID,
		CorrectionSequence: fact.CorrectionSequence,
		FinalHomeScore:     fact.FinalHomeScore,
		FinalAwayScore:     fact.FinalAwayScore,
		TopScorerID:        fact.TopScorerID,
		SavePct:            fact.SavePct,
		FinalizedAt:        fact.FinalizedAt,
	}
	if err := e.repo.InsertResult(ctx, result); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}

	// A finalized game has necessarily started; catch any predictions whose
	// GameStarted fact never arrived. Locking is idempotent.
	if _, err := e.repo.LockOpenPredictions(ctx, fact.GameID, fact.FinalizedAt); err != nil {
		return fmt.Errorf("failed to lock stragglers: %w", err)
	}

	predictions, err := e.repo.PredictionsByGame(ctx, fact.GameID)
	if err != nil {
		return fmt.Errorf("failed to load predictions: %w", err)
	}

	scored, skipped := 0, 0
	for _, pred := range predictions {
		applied, err := e.scorePrediction(ctx, game, pred, *result)
		if err != nil {
			return fmt.Errorf("failed to score prediction %d: %w", pred.ID, err)
		}
		if applied {
			scored++
		} else {
			skipped++
		}
	}

	log.Info().
		Uint("game_id", fact.GameID).
		Int("correction_sequence", fact.CorrectionSequence).
		Int("scored", scored).
		Int("skipped", skipped).
		Msg("game finalized")
	return nil
}

// scorePrediction applies one result revision to one prediction. Returns
// false when the revision was already applied (duplicate delivery).
func (e *ScoringEngine) scorePrediction(ctx context.Context, game *models.Game, pred models.Prediction, result models.GameResult) (bool, error) {
	if result.CorrectionSequence <= pred.AppliedSequence {
		log.Debug().
			Uint("prediction_id", pred.ID).
			Int("applied_sequence", pred.AppliedSequence).
			Int("incoming_sequence", result.CorrectionSequence).
			Msg("duplicate result delivery ignored")
		return false, nil
	}

	breakdown := ComputeBreakdown(pred, result, e.cfg)
	if breakdown.Partial {
		log.Info().
			Uint("prediction_id", pred.ID).
			Uint("game_id", game.ID).
			Msg("scored partial breakdown, awaiting corrected result")
	}

	applied, err := e.repo.ApplyPredictionScore(ctx, pred.ID, breakdown.Total, breakdown, result.CorrectionSequence)
	if err != nil {
		return false, err
	}
	if !applied {
		// The database guard lost to a concurrent higher sequence.
		return false, nil
	}

	previous := 0
	if pred.PointsAwarded != nil {
		previous = *pred.PointsAwarded
	}
	delta := breakdown.Total - previous

	if err := e.leaderboard.ApplyScore(ctx, pred.UserID, game.Date, pred.SubmittedAt, delta, int64(result.CorrectionSequence)); err != nil {
		return false, err
	}

	firstScoring := pred.AppliedSequence == 0
	if firstScoring {
		if breakdown.ExactScore+breakdown.Winner > 0 {
			if err := e.badges.Apply(ctx, models.QualifyingAction{
				UserID:   pred.UserID,
				Kind:     models.CriterionCorrectPredictions,
				ActionID: fmt.Sprintf("prediction:%d", pred.ID),
			}); err != nil {
				log.Error().Err(err).Uint("prediction_id", pred.ID).Msg("failed to apply badge action")
			}
		}
		e.notifier.PredictionScored(ctx, pred.UserID, game.ID, breakdown.Total)
	}

	return true, nil
}
