package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/models"
	"backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// DriftReport summarizes one reconciliation pass over a period.
type DriftReport struct {
	Period   string `json:"period"`
	Checked  int    `json:"checked"`
	Drifted  int    `json:"drifted"`
	Repaired int    `json:"repaired"`
}

// Reconciler rebuilds derived state (leaderboard entries, ranking cache,
// badge progress) from the authoritative prediction and result logs. Under
// correct operation a rebuild changes nothing; any divergence is drift, which
// is logged for operators and repaired automatically.
type Reconciler struct {
	repo   *repository.PostgresRepository
	cache  RankCache
	badges *BadgeEngine
}

// NewReconciler creates a new reconciler
func NewReconciler(repo *repository.PostgresRepository, cache RankCache, badges *BadgeEngine) *Reconciler {
	return &Reconciler{
		repo:   repo,
		cache:  cache,
		badges: badges,
	}
}

// RebuildLeaderboard recomputes every user's total for a period from the
// scored-prediction log and repairs both the database entries and the ranking
// cache wherever they diverge.
func (r *Reconciler) RebuildLeaderboard(ctx context.Context, period string) (*DriftReport, error) {
	start, end, err := PeriodRange(period)
	if err != nil {
		return nil, err
	}

	totals, err := r.repo.ScoredTotals(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute totals: %w", err)
	}
	expected := make(map[string]repository.UserPointsTotal, len(totals))
	for _, t := range totals {
		expected[t.UserID] = t
	}

	entries, err := r.repo.LeaderboardEntriesByPeriod(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached entries: %w", err)
	}
	cached := make(map[string]models.LeaderboardEntry, len(entries))
	for _, e := range entries {
		cached[e.UserID] = e
	}

	report := &DriftReport{Period: period}
	for userID := range union(expected, cached) {
		report.Checked++

		want := expected[userID] // zero-value total when the log has nothing
		entry, hasEntry := cached[userID]

		cachePoints, err := r.cache.UserPoints(ctx, period, userID)
		if err != nil {
			cachePoints = 0
		}

		// The cached tie-break must point at the earliest contributing
		// submission, or equal totals order nondeterministically.
		tieOK := want.EarliestSubmit.IsZero()
		if !tieOK {
			cacheTie, tieErr := r.cache.UserTieBreak(ctx, period, userID)
			tieOK = tieErr == nil && cacheTie == want.EarliestSubmit.Unix()
		}

		if hasEntry && entry.TotalPoints == want.TotalPoints && cachePoints == want.TotalPoints && tieOK {
			continue
		}

		report.Drifted++
		log.Warn().
			Str("period", period).
			Str("user_id", userID).
			Int("entry_points", entry.TotalPoints).
			Int("cache_points", cachePoints).
			Int("recomputed", want.TotalPoints).
			Msg("leaderboard drift detected, rebuilding entry")

		if err := r.rebuildEntry(ctx, period, userID, want, entry.LastUpdatedSequence); err != nil {
			return report, err
		}
		report.Repaired++
	}

	if report.Drifted == 0 {
		log.Debug().Str("period", period).Int("checked", report.Checked).Msg("reconciliation pass clean")
	}
	return report, nil
}

// RebuildUser recomputes one user's total for a period and overwrites the
// derived state unconditionally. Returns the recomputed total.
func (r *Reconciler) RebuildUser(ctx context.Context, userID, period string) (int, error) {
	start, end, err := PeriodRange(period)
	if err != nil {
		return 0, err
	}

	total, err := r.repo.ScoredTotalForUser(ctx, userID, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to recompute user total: %w", err)
	}

	entry, err := r.repo.GetLeaderboardEntry(ctx, userID, period)
	if err != nil {
		return 0, err
	}
	var sequence int64
	if entry != nil {
		sequence = entry.LastUpdatedSequence
	}

	if err := r.rebuildEntry(ctx, period, userID, *total, sequence); err != nil {
		return 0, err
	}
	return total.TotalPoints, nil
}

// RebuildBadges recounts one user's badge progress from the logs. Reports
// whether any counter or tier had drifted.
func (r *Reconciler) RebuildBadges(ctx context.Context, userID string) (bool, error) {
	return r.badges.Rebuild(ctx, userID)
}

// RebuildAllBadges recounts badge progress for every user present in the
// prediction and vote logs. The periodic pass runs this alongside the
// leaderboard rebuilds so counter drift never outlives one interval.
func (r *Reconciler) RebuildAllBadges(ctx context.Context) (*DriftReport, error) {
	users, err := r.repo.ActionUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list action users: %w", err)
	}

	report := &DriftReport{Period: "badges"}
	for _, userID := range users {
		report.Checked++
		drifted, err := r.badges.Rebuild(ctx, userID)
		if err != nil {
			return report, fmt.Errorf("failed to rebuild badges for %s: %w", userID, err)
		}
		if drifted {
			report.Drifted++
			report.Repaired++
		}
	}
	return report, nil
}

func (r *Reconciler) rebuildEntry(ctx context.Context, period, userID string, want repository.UserPointsTotal, sequence int64) error {
	if err := r.repo.SetLeaderboardTotal(ctx, userID, period, want.TotalPoints, sequence); err != nil {
		return fmt.Errorf("failed to rebuild entry: %w", err)
	}

	tieBreak := want.EarliestSubmit.Unix()
	if want.EarliestSubmit.IsZero() {
		tieBreak = time.Now().Unix()
	}
	if err := r.cache.SetTotal(ctx, period, userID, want.TotalPoints, tieBreak); err != nil {
		return fmt.Errorf("failed to rebuild ranking cache: %w", err)
	}
	return nil
}

// union collects the user ids present in either map.
func union(a map[string]repository.UserPointsTotal, b map[string]models.LeaderboardEntry) map[string]struct{} {
	users := make(map[string]struct{}, len(a)+len(b))
	for id := range a {
		users[id] = struct{}{}
	}
	for id := range b {
		users[id] = struct{}{}
	}
	return users
}
