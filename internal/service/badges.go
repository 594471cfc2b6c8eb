package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backend/internal/models"
	"backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// Catalog returns the static badge configuration. Criteria form a closed set
// of kinds; thresholds are ordered ascending and tier numbers are 1-based
// positions in the ladder.
func Catalog() []models.Badge {
	return []models.Badge{
		{
			ID:        "sharp_shooter",
			Name:      "Sharp Shooter",
			Criterion: models.CriterionCorrectPredictions,
			Tiers:     []int{3, 10, 25, 50},
		},
		{
			ID:        "regular",
			Name:      "Regular",
			Criterion: models.CriterionSubmissions,
			Tiers:     []int{1, 10, 50, 100},
		},
		{
			ID:        "superfan",
			Name:      "Superfan",
			Criterion: models.CriterionVotesCast,
			Tiers:     []int{5, 25, 100},
		},
	}
}

// BadgeEngine advances per-user progress counters on qualifying actions and
// awards tiers when thresholds are crossed. Awards are one-way: a tier is
// emitted exactly once per user, and highest_tier_awarded never decreases.
type BadgeEngine struct {
	repo     *repository.PostgresRepository
	notifier Notifier
	catalog  []models.Badge

	// locks serializes progress updates per (user, badge) pair.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewBadgeEngine creates a new badge engine
func NewBadgeEngine(repo *repository.PostgresRepository, notifier Notifier) *BadgeEngine {
	return &BadgeEngine{
		repo:     repo,
		notifier: notifier,
		catalog:  Catalog(),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Catalog returns the badges this engine tracks.
func (e *BadgeEngine) Catalog() []models.Badge {
	return e.catalog
}

// Apply advances every badge counting the action's kind. Duplicate deliveries
// are dropped by the per-action dedupe log: each action id counts at most once
// per (user, badge) pair, in any arrival order.
func (e *BadgeEngine) Apply(ctx context.Context, action models.QualifyingAction) error {
	for _, badge := range e.catalog {
		if badge.Criterion != action.Kind {
			continue
		}
		if err := e.applyToBadge(ctx, badge, action); err != nil {
			return fmt.Errorf("failed to advance badge %s: %w", badge.ID, err)
		}
	}
	return nil
}

func (e *BadgeEngine) applyToBadge(ctx context.Context, badge models.Badge, action models.QualifyingAction) error {
	lock := e.pairLock(action.UserID, badge.ID)
	lock.Lock()
	defer lock.Unlock()

	fresh, err := e.repo.RecordBadgeAction(ctx, action.UserID, badge.ID, action.ActionID)
	if err != nil {
		return err
	}
	if !fresh {
		log.Debug().
			Str("user_id", action.UserID).
			Str("badge_id", badge.ID).
			Str("action_id", action.ActionID).
			Msg("duplicate badge action ignored")
		return nil
	}

	progress, err := e.repo.GetBadgeProgress(ctx, action.UserID, badge.ID)
	if err != nil {
		return err
	}
	if progress == nil {
		progress = &models.UserBadgeProgress{
			UserID:  action.UserID,
			BadgeID: badge.ID,
		}
	}

	progress.CurrentValue++
	e.awardCrossedTiers(ctx, badge, progress)

	return e.repo.SaveBadgeProgress(ctx, progress)
}

// awardCrossedTiers raises HighestTierAwarded to match CurrentValue, emitting
// one BadgeAwarded event per newly crossed tier. Tiers already awarded are
// never re-emitted and never taken back.
func (e *BadgeEngine) awardCrossedTiers(ctx context.Context, badge models.Badge, progress *models.UserBadgeProgress) {
	reached := tierFor(badge.Tiers, progress.CurrentValue)
	for tier := progress.HighestTierAwarded + 1; tier <= reached; tier++ {
		now := time.Now()
		progress.HighestTierAwarded = tier
		progress.LastAwardedAt = &now
		e.notifier.BadgeAwarded(ctx, progress.UserID, badge.ID, tier)
	}
}

// tierFor returns the highest 1-based tier whose threshold value reaches, or
// zero when below the first threshold.
func tierFor(tiers []int, value int) int {
	reached := 0
	for i, threshold := range tiers {
		if value >= threshold {
			reached = i + 1
		}
	}
	return reached
}

// UserBadges joins the catalog with a user's progress rows.
func (e *BadgeEngine) UserBadges(ctx context.Context, userID string) ([]models.BadgeStatus, error) {
	rows, err := e.repo.BadgeProgressByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load badge progress: %w", err)
	}

	byBadge := make(map[string]models.UserBadgeProgress, len(rows))
	for _, row := range rows {
		byBadge[row.BadgeID] = row
	}

	statuses := make([]models.BadgeStatus, 0, len(e.catalog))
	for _, badge := range e.catalog {
		status := models.BadgeStatus{
			BadgeID:   badge.ID,
			Name:      badge.Name,
			Criterion: string(badge.Criterion),
			Tiers:     badge.Tiers,
		}
		if row, ok := byBadge[badge.ID]; ok {
			status.CurrentValue = row.CurrentValue
			status.HighestTierAwarded = row.HighestTierAwarded
			status.LastAwardedAt = row.LastAwardedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// CastVote appends a community vote to the log and advances vote badges.
// Votes qualify for badge progression only; they never carry leaderboard
// points.
func (e *BadgeEngine) CastVote(ctx context.Context, userID string, req models.VoteRequest) (*models.Vote, error) {
	vote := &models.Vote{
		UserID:   userID,
		Category: req.Category,
		TargetID: req.TargetID,
	}
	if err := e.repo.InsertVote(ctx, vote); err != nil {
		return nil, fmt.Errorf("failed to record vote: %w", err)
	}

	if err := e.Apply(ctx, models.QualifyingAction{
		UserID:   userID,
		Kind:     models.CriterionVotesCast,
		ActionID: fmt.Sprintf("vote:%d", vote.ID),
	}); err != nil {
		return nil, err
	}
	return vote, nil
}

// Rebuild recounts a user's qualifying actions from the prediction and vote
// logs and replaces CurrentValue. HighestTierAwarded is only ever raised:
// reconciliation repairs missed awards but never revokes one. Reports whether
// any counter or tier had drifted.
func (e *BadgeEngine) Rebuild(ctx context.Context, userID string) (bool, error) {
	correct, submissions, votes, err := e.recount(ctx, userID)
	if err != nil {
		return false, err
	}

	counts := map[models.CriterionKind]int{
		models.CriterionCorrectPredictions: correct,
		models.CriterionSubmissions:        submissions,
		models.CriterionVotesCast:          votes,
	}

	drifted := false
	for _, badge := range e.catalog {
		value := counts[badge.Criterion]

		lock := e.pairLock(userID, badge.ID)
		lock.Lock()

		progress, err := e.repo.GetBadgeProgress(ctx, userID, badge.ID)
		if err != nil {
			lock.Unlock()
			return drifted, err
		}
		if progress == nil {
			if value == 0 {
				lock.Unlock()
				continue
			}
			progress = &models.UserBadgeProgress{UserID: userID, BadgeID: badge.ID}
		}

		if progress.CurrentValue != value {
			drifted = true
			log.Warn().
				Str("user_id", userID).
				Str("badge_id", badge.ID).
				Int("cached", progress.CurrentValue).
				Int("recomputed", value).
				Msg("badge progress drift detected, rebuilding")
		}
		tierBefore := progress.HighestTierAwarded
		progress.CurrentValue = value
		e.awardCrossedTiers(ctx, badge, progress)
		if progress.HighestTierAwarded != tierBefore {
			drifted = true
		}

		err = e.repo.SaveBadgeProgress(ctx, progress)
		lock.Unlock()
		if err != nil {
			return drifted, err
		}
	}
	return drifted, nil
}

// recount derives badge counters from the authoritative logs.
func (e *BadgeEngine) recount(ctx context.Context, userID string) (correct, submissions, votes int, err error) {
	scored, err := e.repo.ScoredPredictionsByUser(ctx, userID)
	if err != nil {
		return 0, 0, 0, err
	}
	for _, pred := range scored {
		breakdown := pred.Breakdown.Data()
		if breakdown.ExactScore+breakdown.Winner > 0 {
			correct++
		}
	}

	submissionCount, err := e.repo.CountPredictionsByUser(ctx, userID)
	if err != nil {
		return 0, 0, 0, err
	}
	voteCount, err := e.repo.CountVotesByUser(ctx, userID)
	if err != nil {
		return 0, 0, 0, err
	}
	return correct, int(submissionCount), int(voteCount), nil
}

// pairLock returns the mutex serializing updates for one (user, badge) pair.
func (e *BadgeEngine) pairLock(userID, badgeID string) *sync.Mutex {
	key := userID + "|" + badgeID
	e.mu.Lock()
	defer e.mu.Unlock()
	if lock, ok := e.locks[key]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	e.locks[key] = lock
	return lock
}
