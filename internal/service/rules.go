package service

import (
	"math"

	"backend/internal/config"
	"backend/internal/models"
)

// ComputeBreakdown recomputes a prediction's full point breakdown against one
// result revision. It is always computed from scratch, never incrementally,
// so re-running it for a correction replaces the award exactly.
//
// Components:
//   - exact final score match earns ExactScorePoints, otherwise a correct
//     winner earns WinnerPoints (mutually exclusive);
//   - a correct top scorer earns TopScorerPoints;
//   - the save percentage earns graduated points by tolerance band.
//
// Missing result fields score zero for their component and mark the breakdown
// partial; a later correction carrying the field completes it.
func ComputeBreakdown(p models.Prediction, r models.GameResult, cfg config.ScoringConfig) models.ScoringBreakdown {
	var b models.ScoringBreakdown

	exact := p.PredictedHomeScore == r.FinalHomeScore && p.PredictedAwayScore == r.FinalAwayScore
	if exact {
		b.ExactScore = cfg.ExactScorePoints
	} else if sameWinner(p.PredictedHomeScore, p.PredictedAwayScore, r.FinalHomeScore, r.FinalAwayScore) {
		b.Winner = cfg.WinnerPoints
	}

	if r.TopScorerID == nil {
		b.Partial = true
	} else if p.PredictedTopScorerID != 0 && p.PredictedTopScorerID == *r.TopScorerID {
		b.TopScorer = cfg.TopScorerPoints
	}

	if r.SavePct == nil {
		b.Partial = true
	} else {
		b.SavePct = savePctPoints(p.PredictedSavePct, *r.SavePct, cfg.SavePctBands)
	}

	b.Total = b.ExactScore + b.Winner + b.TopScorer + b.SavePct
	return b
}

// sameWinner reports whether two scorelines name the same outcome: home win,
// away win, or draw.
func sameWinner(predHome, predAway, finalHome, finalAway int) bool {
	return sign(predHome-predAway) == sign(finalHome-finalAway)
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}

// savePctPoints walks the graduated tolerance bands, tightest first, and
// returns the points of the first band containing the prediction.
func savePctPoints(predicted, actual float64, bands []config.SavePctBand) int {
	diff := math.Abs(predicted - actual)
	for _, band := range bands {
		if diff <= band.Width {
			return band.Points
		}
	}
	return 0
}
