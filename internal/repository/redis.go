package repository

import (
	"context"
	"fmt"
	"strconv"

	"backend/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	// VersionKey tracks a global leaderboard version for efficient change
	// detection by the websocket hub.
	VersionKey = "leaderboard:version"

	// TieBreakDivisor normalizes a unix-second timestamp into the fractional
	// part of a composite score. Any timestamp this century divides to well
	// under 1.0, so the integer point total always dominates the ordering.
	TieBreakDivisor = 10_000_000_000
)

// RedisRepository maintains the per-period ranking caches: one sorted set per
// period key ordered by composite score, plus a hash of display totals.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a new Redis repository
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{
		client: client,
	}
}

// rankingKey is the sorted set holding a period's ordering.
func rankingKey(period string) string {
	return "leaderboard:" + period
}

// pointsKey is the hash holding a period's integer point totals.
func pointsKey(period string) string {
	return "leaderboard:" + period + ":points"
}

// ComputeCompositeScore folds a tie-break timestamp into the fraction of a
// sorted-set score: equal totals rank the earlier submitter higher. Members
// that still tie fall back to redis' lexicographic member ordering, which is
// the user id.
func ComputeCompositeScore(points int, tieBreak int64) float64 {
	return float64(points) + (1.0 - float64(tieBreak)/TieBreakDivisor)
}

// ExtractBasePoints strips the tie-break fraction from a composite score.
func ExtractBasePoints(compositeScore float64) int {
	return int(compositeScore)
}

// ExtractTieBreak recovers the tie-break timestamp from a composite score.
func ExtractTieBreak(compositeScore float64) int64 {
	fraction := compositeScore - float64(int(compositeScore))
	return int64((1.0-fraction)*TieBreakDivisor + 0.5)
}

// addPointsScript applies an integer delta to a member's composite score
// while pinning the fraction at the largest tie-break seen, which corresponds
// to the earliest contributing submission. Runs server-side so concurrently
// scoring games never lose an update or a tie-break.
var addPointsScript = redis.NewScript(`
local cur = redis.call('ZSCORE', KEYS[1], ARGV[1])
local delta = tonumber(ARGV[2])
local frac = tonumber(ARGV[3])
if cur then
	cur = tonumber(cur)
	local base = math.floor(cur)
	local old = cur - base
	if old > frac then
		frac = old
	end
	delta = delta + base
end
redis.call('ZADD', KEYS[1], delta + frac, ARGV[1])
return 1
`)

// AddPoints atomically applies a point delta for a user in one period. The
// composite score's integer part accumulates the deltas; its fraction always
// reflects the earliest submission that has contributed so far, so equal
// totals order deterministically no matter which game scored first.
func (r *RedisRepository) AddPoints(ctx context.Context, period, userID string, delta int, tieBreak int64) error {
	fraction := ComputeCompositeScore(0, tieBreak)
	err := addPointsScript.Run(ctx, r.client,
		[]string{rankingKey(period)}, userID, delta, fraction).Err()
	if err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.HIncrBy(ctx, pointsKey(period), userID, int64(delta))
	pipe.Incr(ctx, VersionKey)

	_, err = pipe.Exec(ctx)
	return err
}

// SetTotal overwrites a user's cached total for a period with a recomputed
// value. Used by reconciliation rebuilds.
func (r *RedisRepository) SetTotal(ctx context.Context, period, userID string, total int, tieBreak int64) error {
	pipe := r.client.Pipeline()

	pipe.ZAdd(ctx, rankingKey(period), redis.Z{
		Score:  ComputeCompositeScore(total, tieBreak),
		Member: userID,
	})
	pipe.HSet(ctx, pointsKey(period), userID, total)
	pipe.Incr(ctx, VersionKey)

	_, err := pipe.Exec(ctx)
	return err
}

// TopUsers retrieves one page of a period's ranking, highest composite score
// first.
func (r *RedisRepository) TopUsers(ctx context.Context, period string, offset, limit int) ([]models.RankedUser, error) {
	start := int64(offset)
	stop := int64(offset + limit - 1)

	results, err := r.client.ZRevRangeWithScores(ctx, rankingKey(period), start, stop).Result()
	if err != nil {
		return nil, err
	}

	users := make([]models.RankedUser, 0, len(results))
	for _, z := range results {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		users = append(users, models.RankedUser{
			UserID: userID,
			Points: ExtractBasePoints(z.Score),
		})
	}
	return users, nil
}

// UserPoints retrieves a user's display total for a period.
func (r *RedisRepository) UserPoints(ctx context.Context, period, userID string) (int, error) {
	pointsStr, err := r.client.HGet(ctx, pointsKey(period), userID).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, fmt.Errorf("user not ranked in period %s", period)
		}
		return 0, err
	}

	points, err := strconv.Atoi(pointsStr)
	if err != nil {
		return 0, fmt.Errorf("invalid points format: %w", err)
	}
	return points, nil
}

// UserTieBreak retrieves the tie-break timestamp currently folded into a
// user's composite score. Reconciliation compares it against the earliest
// contributing submission in the log.
func (r *RedisRepository) UserTieBreak(ctx context.Context, period, userID string) (int64, error) {
	compositeScore, err := r.client.ZScore(ctx, rankingKey(period), userID).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, fmt.Errorf("user not ranked in period %s", period)
		}
		return 0, err
	}
	return ExtractTieBreak(compositeScore), nil
}

// UserRank calculates a user's rank in a period using composite score
// comparison: the count of strictly higher composite scores plus one.
func (r *RedisRepository) UserRank(ctx context.Context, period, userID string) (int, error) {
	compositeScore, err := r.client.ZScore(ctx, rankingKey(period), userID).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, fmt.Errorf("user not ranked in period %s", period)
		}
		return 0, err
	}

	count, err := r.client.ZCount(ctx, rankingKey(period), fmt.Sprintf("(%f", compositeScore), "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(count) + 1, nil
}

// TotalUsers returns the number of ranked users in a period.
func (r *RedisRepository) TotalUsers(ctx context.Context, period string) (int64, error) {
	return r.client.ZCard(ctx, rankingKey(period)).Result()
}

// GetLeaderboardVersion returns the current global version number
func (r *RedisRepository) GetLeaderboardVersion(ctx context.Context) (int64, error) {
	version, err := r.client.Get(ctx, VersionKey).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

// Ping checks if Redis is reachable
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
