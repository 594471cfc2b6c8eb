package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"backend/internal/config"
	"backend/internal/models"
	"backend/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

// newTestRepo opens a per-test in-memory SQLite database. Shared cache keeps
// the database alive across the pool's connections; a single open connection
// avoids SQLite write contention.
func newTestRepo(t *testing.T) *repository.PostgresRepository {
	t.Helper()

	dsn := fmt.Sprintf("file:service_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo := repository.NewPostgresRepository(db)
	require.NoError(t, repo.AutoMigrate())

	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		ExactScorePoints: 12,
		WinnerPoints:     5,
		TopScorerPoints:  3,
		SavePctBands: []config.SavePctBand{
			{Width: 0.5, Points: 4},
			{Width: 1.5, Points: 2},
			{Width: 3.0, Points: 1},
		},
	}
}

type cacheEntry struct {
	points   int
	tieBreak int64
}

// fakeRankCache is an in-memory RankCache with the same ordering semantics as
// the redis repository: points descending, then earliest tie-break, then user
// id. Increments keep the earliest tie-break seen for the user.
type fakeRankCache struct {
	mu      sync.Mutex
	entries map[string]map[string]cacheEntry
}

func newFakeRankCache() *fakeRankCache {
	return &fakeRankCache{entries: make(map[string]map[string]cacheEntry)}
}

func (f *fakeRankCache) period(period string) map[string]cacheEntry {
	if f.entries[period] == nil {
		f.entries[period] = make(map[string]cacheEntry)
	}
	return f.entries[period]
}

func (f *fakeRankCache) AddPoints(_ context.Context, period, userID string, delta int, tieBreak int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.period(period)
	entry, ok := p[userID]
	if !ok || tieBreak < entry.tieBreak {
		entry.tieBreak = tieBreak
	}
	entry.points += delta
	p[userID] = entry
	return nil
}

func (f *fakeRankCache) SetTotal(_ context.Context, period, userID string, total int, tieBreak int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.period(period)[userID] = cacheEntry{points: total, tieBreak: tieBreak}
	return nil
}

func (f *fakeRankCache) TopUsers(_ context.Context, period string, offset, limit int) ([]models.RankedUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := f.entries[period]
	users := make([]models.RankedUser, 0, len(p))
	type row struct {
		id    string
		entry cacheEntry
	}
	rows := make([]row, 0, len(p))
	for id, entry := range p {
		rows = append(rows, row{id: id, entry: entry})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].entry.points != rows[j].entry.points {
			return rows[i].entry.points > rows[j].entry.points
		}
		if rows[i].entry.tieBreak != rows[j].entry.tieBreak {
			return rows[i].entry.tieBreak < rows[j].entry.tieBreak
		}
		return rows[i].id < rows[j].id
	})
	for _, r := range rows {
		users = append(users, models.RankedUser{UserID: r.id, Points: r.entry.points})
	}

	if offset >= len(users) {
		return nil, nil
	}
	end := offset + limit
	if end > len(users) {
		end = len(users)
	}
	return users[offset:end], nil
}

func (f *fakeRankCache) UserPoints(_ context.Context, period, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[period][userID].points, nil
}

func (f *fakeRankCache) UserTieBreak(_ context.Context, period, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[period][userID]
	if !ok {
		return 0, fmt.Errorf("user not ranked in period %s", period)
	}
	return entry.tieBreak, nil
}

func (f *fakeRankCache) UserRank(_ context.Context, period, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.entries[period]
	entry, ok := p[userID]
	if !ok {
		return 0, nil
	}
	rank := 1
	for _, other := range p {
		if other.points > entry.points {
			rank++
		}
	}
	return rank, nil
}

func (f *fakeRankCache) TotalUsers(_ context.Context, period string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.entries[period])), nil
}

type awardEvent struct {
	UserID  string
	BadgeID string
	Tier    int
}

type scoredEvent struct {
	UserID string
	GameID uint
	Points int
}

// captureNotifier records notification events for assertions.
type captureNotifier struct {
	mu     sync.Mutex
	awards []awardEvent
	scored []scoredEvent
}

func (n *captureNotifier) BadgeAwarded(_ context.Context, userID, badgeID string, tier int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.awards = append(n.awards, awardEvent{UserID: userID, BadgeID: badgeID, Tier: tier})
}

func (n *captureNotifier) PredictionScored(_ context.Context, userID string, gameID uint, points int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scored = append(n.scored, scoredEvent{UserID: userID, GameID: gameID, Points: points})
}

func (n *captureNotifier) awardsFor(userID, badgeID string) []awardEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []awardEvent
	for _, a := range n.awards {
		if a.UserID == userID && a.BadgeID == badgeID {
			out = append(out, a)
		}
	}
	return out
}

func (n *captureNotifier) scoredCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.scored)
}

// gameDate is a mid-season fixture date: January 2026 falls in the 2025-26
// season and the month:2026-01 window.
var gameDate = time.Date(2026, time.January, 15, 19, 0, 0, 0, time.UTC)

func seedGame(t *testing.T, repo *repository.PostgresRepository, gameID uint, startTime time.Time) {
	t.Helper()
	require.NoError(t, repo.UpsertGame(context.Background(), &models.Game{
		ID:           gameID,
		SeasonID:     1,
		Date:         startTime,
		HomeTeam:     1,
		VisitingTeam: 2,
		StartTime:    startTime,
	}))
}
