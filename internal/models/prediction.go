package models

import (
	"time"

	"gorm.io/datatypes"
)

// Prediction states. Transitions are one-way: open -> locked -> scored.
const (
	PredictionOpen   = "open"
	PredictionLocked = "locked"
	PredictionScored = "scored"
)

// Prediction is a user's forecast for a single game. A user holds at most one
// prediction per game (enforced by the composite unique index); resubmitting
// before lock overwrites the previous one.
type Prediction struct {
	ID                   uint       `gorm:"primarykey" json:"id"`
	UserID               string     `gorm:"uniqueIndex:idx_user_game;not null;index" json:"user_id"`
	GameID               uint       `gorm:"uniqueIndex:idx_user_game;not null;index" json:"game_id"`
	PredictedHomeScore   int        `gorm:"not null" json:"predicted_home_score"`
	PredictedAwayScore   int        `gorm:"not null" json:"predicted_away_score"`
	PredictedTopScorerID uint       `json:"predicted_top_scorer_id"`
	PredictedSavePct     float64    `json:"predicted_save_pct"`
	SubmittedAt          time.Time  `gorm:"not null" json:"submitted_at"`
	LockedAt             *time.Time `json:"locked_at,omitempty"`
	State                string     `gorm:"not null;default:open;index" json:"state"`
	PointsAwarded        *int       `json:"points_awarded,omitempty"`
	// AppliedSequence is the highest result correction_sequence scored against
	// this prediction. Zero means never scored.
	AppliedSequence int                                  `gorm:"not null;default:0" json:"applied_sequence"`
	Breakdown       datatypes.JSONType[ScoringBreakdown] `json:"breakdown"`
	CreatedAt       time.Time                            `json:"created_at"`
	UpdatedAt       time.Time                            `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Prediction) TableName() string {
	return "predictions"
}

// ScoringBreakdown records how a prediction's total was computed. Stored as a
// JSON column so corrections can replace it wholesale.
type ScoringBreakdown struct {
	ExactScore int  `json:"exact_score"`
	Winner     int  `json:"winner"`
	TopScorer  int  `json:"top_scorer"`
	SavePct    int  `json:"save_pct"`
	Partial    bool `json:"partial"`
	Total      int  `json:"total"`
}

// PredictionRequest is the submission payload. Save percentage is expressed in
// percentage points (0-100).
type PredictionRequest struct {
	GameID             uint    `json:"game_id" validate:"required"`
	PredictedHomeScore int     `json:"predicted_home_score" validate:"min=0,max=30"`
	PredictedAwayScore int     `json:"predicted_away_score" validate:"min=0,max=30"`
	PredictedTopScorer uint    `json:"predicted_top_scorer_id" validate:"omitempty,min=1"`
	PredictedSavePct   float64 `json:"predicted_save_pct" validate:"min=0,max=100"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
