package repository

import (
	"context"
	"errors"
	"time"

	"backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresRepository handles all PostgreSQL operations. Predictions and game
// results form the authoritative log; leaderboard entries and badge progress
// are derived state kept in the same database.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository creates a new Postgres repository
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// AutoMigrate runs database migrations
func (r *PostgresRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.Game{},
		&models.Prediction{},
		&models.GameResult{},
		&models.LeaderboardEntry{},
		&models.UserBadgeProgress{},
		&models.BadgeActionRecord{},
		&models.Vote{},
	)
}

// UpsertGame creates or refreshes a game's schedule row. A rescheduled game
// overwrites the previous start time.
func (r *PostgresRepository) UpsertGame(ctx context.Context, game *models.Game) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"season_id", "date", "home_team", "visiting_team", "start_time", "updated_at"}),
	}).Create(game).Error
}

// GetGame retrieves a game by ID. Returns nil when the game is unknown.
func (r *PostgresRepository) GetGame(ctx context.Context, gameID uint) (*models.Game, error) {
	var game models.Game
	err := r.db.WithContext(ctx).Where("id = ?", gameID).First(&game).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &game, nil
}

// SetGameLock records the lock time on a game.
func (r *PostgresRepository) SetGameLock(ctx context.Context, gameID uint, lockTime time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Game{}).
		Where("id = ?", gameID).
		Update("locked_at", lockTime).Error
}

// ClearGameLock removes a game's lock, used when a reschedule moves the start
// time back into the future.
func (r *PostgresRepository) ClearGameLock(ctx context.Context, gameID uint) error {
	return r.db.WithContext(ctx).Model(&models.Game{}).
		Where("id = ?", gameID).
		Update("locked_at", nil).Error
}

// UpsertOpenPrediction inserts a prediction or overwrites the user's existing
// open prediction for the same game (last writer wins before lock). The state
// guard makes the write a no-op against locked or scored rows; callers treat
// zero affected rows as a lock violation.
func (r *PostgresRepository) UpsertOpenPrediction(ctx context.Context, p *models.Prediction) (int64, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "game_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"predicted_home_score", "predicted_away_score",
			"predicted_top_scorer_id", "predicted_save_pct",
			"submitted_at", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "predictions", Name: "state"}, Value: models.PredictionOpen},
		}},
	}).Create(p)
	return tx.RowsAffected, tx.Error
}

// GetPrediction returns a user's prediction for a game, or nil when absent.
func (r *PostgresRepository) GetPrediction(ctx context.Context, userID string, gameID uint) (*models.Prediction, error) {
	var p models.Prediction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND game_id = ?", userID, gameID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// PredictionsByGame returns all predictions for a game regardless of state.
func (r *PostgresRepository) PredictionsByGame(ctx context.Context, gameID uint) ([]models.Prediction, error) {
	var predictions []models.Prediction
	err := r.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("id ASC").
		Find(&predictions).Error
	return predictions, err
}

// PredictionsByUser returns a user's prediction history, newest first.
func (r *PostgresRepository) PredictionsByUser(ctx context.Context, userID string) ([]models.Prediction, error) {
	var predictions []models.Prediction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("submitted_at DESC").
		Find(&predictions).Error
	return predictions, err
}

// LockOpenPredictions transitions every open prediction of a game to locked.
// Calling it again is a no-op, which makes game locking idempotent.
func (r *PostgresRepository) LockOpenPredictions(ctx context.Context, gameID uint, lockTime time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Prediction{}).
		Where("game_id = ? AND state = ?", gameID, models.PredictionOpen).
		Updates(map[string]interface{}{
			"state":     models.PredictionLocked,
			"locked_at": lockTime,
		})
	return tx.RowsAffected, tx.Error
}

// ReopenLockedPredictions reverts locked (never scored) predictions to open
// after a reschedule moved the game start back into the future.
func (r *PostgresRepository) ReopenLockedPredictions(ctx context.Context, gameID uint) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Prediction{}).
		Where("game_id = ? AND state = ?", gameID, models.PredictionLocked).
		Updates(map[string]interface{}{
			"state":     models.PredictionOpen,
			"locked_at": nil,
		})
	return tx.RowsAffected, tx.Error
}

// ApplyPredictionScore writes a freshly computed breakdown onto a prediction.
// The applied_sequence guard enforces exactly one application per
// (prediction, correction_sequence): stale or duplicate sequences affect zero
// rows and the caller skips downstream emission.
func (r *PostgresRepository) ApplyPredictionScore(ctx context.Context, predictionID uint, points int, breakdown models.ScoringBreakdown, sequence int) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Prediction{}).
		Where("id = ? AND applied_sequence < ?", predictionID, sequence).
		Updates(map[string]interface{}{
			"points_awarded":   points,
			"breakdown":        datatypes.NewJSONType(breakdown),
			"applied_sequence": sequence,
			"state":            models.PredictionScored,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// InsertResult appends one result revision to the game result log. Redelivery
// of an already recorded (game, sequence) pair is silently ignored.
func (r *PostgresRepository) InsertResult(ctx context.Context, result *models.GameResult) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_id"}, {Name: "correction_sequence"}},
		DoNothing: true,
	}).Create(result).Error
}

// Ping checks if database is reachable
func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
