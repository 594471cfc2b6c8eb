package repository

import (
	"context"
	"errors"
	"time"

	"backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserPointsTotal is one user's recomputed total over a period, with the
// earliest contributing submission for deterministic tie-breaking.
type UserPointsTotal struct {
	UserID          string
	TotalPoints     int
	EarliestSubmit  time.Time
	PredictionCount int
}

// ApplyLeaderboardDelta atomically adds a point delta to a (user, period)
// entry, creating it when absent. The increment happens inside the database
// so concurrent scoring passes never lose updates.
func (r *PostgresRepository) ApplyLeaderboardDelta(ctx context.Context, userID, periodKey string, delta int, sequence int64) error {
	entry := models.LeaderboardEntry{
		UserID:              userID,
		PeriodKey:           periodKey,
		TotalPoints:         delta,
		LastUpdatedSequence: sequence,
		UpdatedAt:           time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "period_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_points":          gorm.Expr("leaderboard_entries.total_points + excluded.total_points"),
			"last_updated_sequence": gorm.Expr("excluded.last_updated_sequence"),
			"updated_at":            gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&entry).Error
}

// SetLeaderboardTotal overwrites a (user, period) entry with a recomputed
// total. Used by reconciliation rebuilds only.
func (r *PostgresRepository) SetLeaderboardTotal(ctx context.Context, userID, periodKey string, total int, sequence int64) error {
	entry := models.LeaderboardEntry{
		UserID:              userID,
		PeriodKey:           periodKey,
		TotalPoints:         total,
		LastUpdatedSequence: sequence,
		UpdatedAt:           time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "period_key"}},
		UpdateAll: true,
	}).Create(&entry).Error
}

// GetLeaderboardEntry returns the cached entry for a (user, period), or nil.
func (r *PostgresRepository) GetLeaderboardEntry(ctx context.Context, userID, periodKey string) (*models.LeaderboardEntry, error) {
	var entry models.LeaderboardEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND period_key = ?", userID, periodKey).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// LeaderboardEntriesByPeriod returns all cached entries for a period.
func (r *PostgresRepository) LeaderboardEntriesByPeriod(ctx context.Context, periodKey string) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	err := r.db.WithContext(ctx).
		Where("period_key = ?", periodKey).
		Find(&entries).Error
	return entries, err
}

// scoredRow is the projection folded into per-user totals.
type scoredRow struct {
	UserID        string
	PointsAwarded int
	SubmittedAt   time.Time
}

// ScoredTotals recomputes per-user point totals from the scored-prediction
// log for games dated within [start, end). This is the authoritative answer
// the leaderboard cache must agree with.
func (r *PostgresRepository) ScoredTotals(ctx context.Context, start, end time.Time) ([]UserPointsTotal, error) {
	rows, err := r.scoredRows(ctx, "", start, end)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]*UserPointsTotal)
	order := make([]string, 0)
	for _, row := range rows {
		total, ok := byUser[row.UserID]
		if !ok {
			total = &UserPointsTotal{UserID: row.UserID, EarliestSubmit: row.SubmittedAt}
			byUser[row.UserID] = total
			order = append(order, row.UserID)
		}
		total.TotalPoints += row.PointsAwarded
		total.PredictionCount++
		if row.SubmittedAt.Before(total.EarliestSubmit) {
			total.EarliestSubmit = row.SubmittedAt
		}
	}

	totals := make([]UserPointsTotal, 0, len(order))
	for _, userID := range order {
		totals = append(totals, *byUser[userID])
	}
	return totals, nil
}

// ScoredTotalForUser recomputes a single user's total over [start, end).
func (r *PostgresRepository) ScoredTotalForUser(ctx context.Context, userID string, start, end time.Time) (*UserPointsTotal, error) {
	rows, err := r.scoredRows(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &UserPointsTotal{UserID: userID}, nil
	}

	total := UserPointsTotal{UserID: userID, EarliestSubmit: rows[0].SubmittedAt}
	for _, row := range rows {
		total.TotalPoints += row.PointsAwarded
		total.PredictionCount++
		if row.SubmittedAt.Before(total.EarliestSubmit) {
			total.EarliestSubmit = row.SubmittedAt
		}
	}
	return &total, nil
}

func (r *PostgresRepository) scoredRows(ctx context.Context, userID string, start, end time.Time) ([]scoredRow, error) {
	query := r.db.WithContext(ctx).Model(&models.Prediction{}).
		Select("predictions.user_id, predictions.points_awarded, predictions.submitted_at").
		Joins("JOIN games ON games.id = predictions.game_id").
		Where("predictions.state = ? AND games.date >= ? AND games.date < ?",
			models.PredictionScored, start, end)
	if userID != "" {
		query = query.Where("predictions.user_id = ?", userID)
	}

	var rows []scoredRow
	err := query.Scan(&rows).Error
	return rows, err
}

// ScoredPredictionsByUser returns a user's scored predictions, used by badge
// reconciliation to recount qualifying actions from the log.
func (r *PostgresRepository) ScoredPredictionsByUser(ctx context.Context, userID string) ([]models.Prediction, error) {
	var predictions []models.Prediction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND state = ?", userID, models.PredictionScored).
		Find(&predictions).Error
	return predictions, err
}

// CountPredictionsByUser counts all submissions a user ever made.
func (r *PostgresRepository) CountPredictionsByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Prediction{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// RecordBadgeAction inserts the dedupe row for one qualifying action. Returns
// false when the action was already recorded for this (user, badge) pair,
// which marks the delivery as a duplicate.
func (r *PostgresRepository) RecordBadgeAction(ctx context.Context, userID, badgeID, actionID string) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}, {Name: "action_id"}},
		DoNothing: true,
	}).Create(&models.BadgeActionRecord{
		UserID:   userID,
		BadgeID:  badgeID,
		ActionID: actionID,
	})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ActionUserIDs returns every user present in the prediction or vote logs,
// the population the periodic badge recount walks.
func (r *PostgresRepository) ActionUserIDs(ctx context.Context) ([]string, error) {
	var users []string
	err := r.db.WithContext(ctx).Model(&models.Prediction{}).
		Distinct().Pluck("user_id", &users).Error
	if err != nil {
		return nil, err
	}

	var voters []string
	err = r.db.WithContext(ctx).Model(&models.Vote{}).
		Distinct().Pluck("user_id", &voters).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(users))
	for _, id := range users {
		seen[id] = struct{}{}
	}
	for _, id := range voters {
		if _, ok := seen[id]; !ok {
			users = append(users, id)
		}
	}
	return users, nil
}

// GetBadgeProgress returns a user's progress row for one badge, or nil.
func (r *PostgresRepository) GetBadgeProgress(ctx context.Context, userID, badgeID string) (*models.UserBadgeProgress, error) {
	var progress models.UserBadgeProgress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &progress, nil
}

// SaveBadgeProgress upserts a progress row by its (user, badge) key.
func (r *PostgresRepository) SaveBadgeProgress(ctx context.Context, progress *models.UserBadgeProgress) error {
	progress.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
		UpdateAll: true,
	}).Create(progress).Error
}

// BadgeProgressByUser returns all of a user's badge progress rows.
func (r *PostgresRepository) BadgeProgressByUser(ctx context.Context, userID string) ([]models.UserBadgeProgress, error) {
	var rows []models.UserBadgeProgress
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&rows).Error
	return rows, err
}

// InsertVote appends one community vote to the vote log.
func (r *PostgresRepository) InsertVote(ctx context.Context, vote *models.Vote) error {
	return r.db.WithContext(ctx).Create(vote).Error
}

// CountVotesByUser counts all votes a user ever cast.
func (r *PostgresRepository) CountVotesByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}
