package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeCompositeScore(t *testing.T) {
	earlier := time.Date(2026, time.January, 15, 17, 0, 0, 0, time.UTC).Unix()
	later := time.Date(2026, time.January, 15, 18, 30, 0, 0, time.UTC).Unix()

	// The tie-break fraction must stay below 1 so point totals dominate.
	fraction := ComputeCompositeScore(0, earlier)
	assert.Greater(t, fraction, 0.0)
	assert.Less(t, fraction, 1.0)

	// Equal points: the earlier submitter scores higher.
	assert.Greater(t,
		ComputeCompositeScore(10, earlier),
		ComputeCompositeScore(10, later),
	)

	// One more point always beats any tie-break fraction.
	assert.Greater(t,
		ComputeCompositeScore(11, later),
		ComputeCompositeScore(10, earlier),
	)
}

func TestExtractBasePoints(t *testing.T) {
	now := time.Now().Unix()

	for _, points := range []int{0, 1, 19, 1234} {
		composite := ComputeCompositeScore(points, now)
		assert.Equal(t, points, ExtractBasePoints(composite), "points %d", points)
	}
}

func TestExtractBasePointsAfterIncrements(t *testing.T) {
	// AddPoints only ever adds whole points on top of the fraction, so the
	// base stays recoverable across corrections.
	composite := ComputeCompositeScore(0, time.Now().Unix())
	composite += 14 // first scoring
	composite += -1 // correction

	assert.Equal(t, 13, ExtractBasePoints(composite))
}

func TestExtractTieBreakRoundTrips(t *testing.T) {
	ts := time.Date(2026, time.January, 15, 17, 0, 0, 0, time.UTC).Unix()

	for _, points := range []int{0, 7, 19, 1200} {
		composite := ComputeCompositeScore(points, ts)
		assert.Equal(t, ts, ExtractTieBreak(composite), "points %d", points)
	}
}

func TestEarlierSubmissionWinsTieBreak(t *testing.T) {
	earlier := time.Date(2026, time.January, 15, 16, 0, 0, 0, time.UTC).Unix()
	later := time.Date(2026, time.January, 15, 18, 0, 0, 0, time.UTC).Unix()

	// An earlier submission folds to a larger fraction, the one AddPoints
	// keeps when a new contributing prediction scores.
	assert.Greater(t,
		ComputeCompositeScore(0, earlier),
		ComputeCompositeScore(0, later),
	)
}

func TestRankingKeys(t *testing.T) {
	assert.Equal(t, "leaderboard:season:2025-26", rankingKey("season:2025-26"))
	assert.Equal(t, "leaderboard:month:2026-01:points", pointsKey("month:2026-01"))
}
