package models

import (
	"time"
)

// Game is a scheduled game as reported by the stats ingestion feed. StartTime
// drives prediction locking; a rescheduled game arrives as a new GameStarted
// fact that supersedes the previous start time.
type Game struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	SeasonID     uint       `gorm:"index" json:"season_id"`
	Date         time.Time  `gorm:"not null" json:"date"`
	HomeTeam     uint       `json:"home_team"`
	VisitingTeam uint       `json:"visiting_team"`
	StartTime    time.Time  `gorm:"not null" json:"start_time"`
	LockedAt     *time.Time `json:"locked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Game) TableName() string {
	return "games"
}

// GameResult is one revision of a game's official result. The log is
// append-only: a late stat correction arrives as a new row with a higher
// correction sequence, never as an update.
type GameResult struct {
	ID                 uint      `gorm:"primarykey" json:"id"`
	GameID             uint      `gorm:"uniqueIndex:idx_game_seq;not null" json:"game_id"`
	CorrectionSequence int       `gorm:"uniqueIndex:idx_game_seq;not null" json:"correction_sequence"`
	FinalHomeScore     int       `gorm:"not null" json:"final_home_score"`
	FinalAwayScore     int       `gorm:"not null" json:"final_away_score"`
	TopScorerID        *uint     `json:"top_scorer_id,omitempty"`
	SavePct            *float64  `json:"save_pct,omitempty"`
	FinalizedAt        time.Time `gorm:"not null" json:"finalized_at"`
	CreatedAt          time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (GameResult) TableName() string {
	return "game_results"
}

// GameStartedFact is delivered by the ingestion feed when a game starts (or is
// rescheduled). It triggers locking of all open predictions for the game.
type GameStartedFact struct {
	GameID       uint      `json:"game_id" validate:"required"`
	SeasonID     uint      `json:"season_id"`
	HomeTeam     uint      `json:"home_team"`
	VisitingTeam uint      `json:"visiting_team"`
	StartTime    time.Time `json:"start_time" validate:"required"`
}

// GameFinalizedFact is delivered by the ingestion feed when a game's result is
// confirmed or corrected. Top scorer and save percentage may be missing on the
// first delivery and completed by a later correction.
type GameFinalizedFact struct {
	GameID             uint      `json:"game_id" validate:"required"`
	CorrectionSequence int       `json:"correction_sequence" validate:"min=1"`
	FinalHomeScore     int       `json:"final_home_score" validate:"min=0"`
	FinalAwayScore     int       `json:"final_away_score" validate:"min=0"`
	TopScorerID        *uint     `json:"top_scorer_id,omitempty"`
	SavePct            *float64  `json:"save_pct,omitempty" validate:"omitempty,min=0,max=100"`
	FinalizedAt        time.Time `json:"finalized_at"`
}
