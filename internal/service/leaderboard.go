package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/models"
	"backend/internal/repository"
)

// RankCache is the ordered view over per-period point totals. The redis
// repository is the production implementation; it is a cache in the strict
// sense: reconciliation can overwrite any entry from the prediction log.
type RankCache interface {
	AddPoints(ctx context.Context, period, userID string, delta int, tieBreak int64) error
	SetTotal(ctx context.Context, period, userID string, total int, tieBreak int64) error
	TopUsers(ctx context.Context, period string, offset, limit int) ([]models.RankedUser, error)
	UserPoints(ctx context.Context, period, userID string) (int, error)
	UserTieBreak(ctx context.Context, period, userID string) (int64, error)
	UserRank(ctx context.Context, period, userID string) (int, error)
	TotalUsers(ctx context.Context, period string) (int64, error)
}

// LeaderboardService maintains ranked per-period totals. All writes are
// expressed as deltas and applied as atomic increments in both stores, so
// concurrently scoring games never lose updates on a shared user.
type LeaderboardService struct {
	cache RankCache
	repo  *repository.PostgresRepository
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(cache RankCache, repo *repository.PostgresRepository) *LeaderboardService {
	return &LeaderboardService{
		cache: cache,
		repo:  repo,
	}
}

// ApplyScore applies a point delta for one scored prediction to every period
// its game date contributes to. The first scoring of a prediction arrives
// here as a delta equal to its full award; corrections arrive as the
// difference between the new and old awards.
func (s *LeaderboardService) ApplyScore(ctx context.Context, userID string, gameDate, submittedAt time.Time, delta int, sequence int64) error {
	if delta == 0 {
		return nil
	}

	for _, period := range PeriodKeysFor(gameDate) {
		if err := s.repo.ApplyLeaderboardDelta(ctx, userID, period, delta, sequence); err != nil {
			return fmt.Errorf("failed to update leaderboard entry %s/%s: %w", userID, period, err)
		}
		if err := s.cache.AddPoints(ctx, period, userID, delta, submittedAt.Unix()); err != nil {
			return fmt.Errorf("failed to update ranking cache %s/%s: %w", userID, period, err)
		}
	}
	return nil
}

// GetRanked retrieves one page of a period's leaderboard with tie-aware
// ranking (1224): users on the same total share a rank, and the next rank is
// offset by the size of the tie group.
func (s *LeaderboardService) GetRanked(ctx context.Context, period string, offset, limit int) (*models.LeaderboardResponse, error) {
	if _, _, err := PeriodRange(period); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	users, err := s.cache.TopUsers(ctx, period, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}

	total, err := s.cache.TotalUsers(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to get total users: %w", err)
	}

	return &models.LeaderboardResponse{
		Period: period,
		Data:   applyTieAwareRanking(users, offset),
		Offset: offset,
		Limit:  limit,
		Total:  total,
	}, nil
}

// Rank looks up a single user's rank and total within a period.
func (s *LeaderboardService) Rank(ctx context.Context, period, userID string) (*models.RankResponse, error) {
	if _, _, err := PeriodRange(period); err != nil {
		return nil, err
	}

	rank, err := s.cache.UserRank(ctx, period, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user rank: %w", err)
	}

	points, err := s.cache.UserPoints(ctx, period, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user points: %w", err)
	}

	return &models.RankResponse{
		Period:     period,
		GlobalRank: rank,
		UserID:     userID,
		Points:     points,
	}, nil
}

// applyTieAwareRanking applies the 1224 ranking system over a page that is
// already ordered by the cache (points, then earliest submission, then user
// id). Users with the same point total get the same rank; the next distinct
// total is offset by the number of tied users above it.
func applyTieAwareRanking(users []models.RankedUser, offset int) []models.RankedEntry {
	entries := make([]models.RankedEntry, 0, len(users))
	if len(users) == 0 {
		return entries
	}

	currentRank := offset + 1
	previousPoints := 0
	sameRankCount := 0

	for i, user := range users {
		if i == 0 {
			previousPoints = user.Points
			sameRankCount = 1
		} else if user.Points == previousPoints {
			sameRankCount++
		} else {
			currentRank += sameRankCount
			previousPoints = user.Points
			sameRankCount = 1
		}

		entries = append(entries, models.RankedEntry{
			Rank:   currentRank,
			UserID: user.UserID,
			Points: user.Points,
		})
	}

	return entries
}
