package models

import (
	"time"
)

// LeaderboardEntry is the cached per-(user, period) point total. It is never
// authoritative: the scored-prediction log can rebuild any row at any time.
type LeaderboardEntry struct {
	UserID              string    `gorm:"primaryKey" json:"user_id"`
	PeriodKey           string    `gorm:"primaryKey" json:"period_key"`
	TotalPoints         int       `gorm:"not null;default:0" json:"total_points"`
	LastUpdatedSequence int64     `gorm:"not null;default:0" json:"last_updated_sequence"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (LeaderboardEntry) TableName() string {
	return "leaderboard_entries"
}

// RankedUser is one member of a ranking cache page, highest points first.
type RankedUser struct {
	UserID string `json:"user_id"`
	Points int    `json:"points"`
}

// RankedEntry is a leaderboard row with its tie-aware rank applied.
type RankedEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Points int    `json:"points"`
}

// LeaderboardResponse represents the paginated leaderboard response
type LeaderboardResponse struct {
	Period string        `json:"period"`
	Data   []RankedEntry `json:"data"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
	Total  int64         `json:"total"`
}

// RankResponse represents a single user's rank lookup
type RankResponse struct {
	Period     string `json:"period"`
	GlobalRank int    `json:"global_rank"`
	UserID     string `json:"user_id"`
	Points     int    `json:"points"`
}
