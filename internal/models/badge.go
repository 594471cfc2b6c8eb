package models

import (
	"time"
)

// CriterionKind is the closed set of qualifying-action kinds a badge can
// count. New kinds are added here, never through runtime configuration.
type CriterionKind string

const (
	CriterionCorrectPredictions CriterionKind = "correct_predictions"
	CriterionSubmissions        CriterionKind = "submissions"
	CriterionVotesCast          CriterionKind = "votes_cast"
)

// Badge is static catalog configuration: an ordered ladder of tier thresholds
// over one criterion kind. Tier numbers are 1-based positions in Tiers.
type Badge struct {
	ID        string
	Name      string
	Criterion CriterionKind
	Tiers     []int
}

// UserBadgeProgress tracks one user's counter against one badge.
// HighestTierAwarded only ever increases.
type UserBadgeProgress struct {
	UserID             string     `gorm:"primaryKey" json:"user_id"`
	BadgeID            string     `gorm:"primaryKey" json:"badge_id"`
	CurrentValue       int        `gorm:"not null;default:0" json:"current_value"`
	HighestTierAwarded int        `gorm:"not null;default:0" json:"highest_tier_awarded"`
	LastAwardedAt      *time.Time `json:"last_awarded_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (UserBadgeProgress) TableName() string {
	return "user_badge_progress"
}

// QualifyingAction is one badge-advancing user action. ActionID identifies
// the triggering action itself ("prediction:42", "vote:7"); a redelivery
// reuses the same id, a distinct action never does. Actions carry no ordering
// requirement: games finalize in any order relative to prediction ids.
type QualifyingAction struct {
	UserID   string
	Kind     CriterionKind
	ActionID string
}

// BadgeActionRecord dedupes qualifying-action deliveries: one row per
// (user, badge, action). A redelivered action collides on the primary key and
// is dropped without touching the counter.
type BadgeActionRecord struct {
	UserID    string    `gorm:"primaryKey" json:"user_id"`
	BadgeID   string    `gorm:"primaryKey" json:"badge_id"`
	ActionID  string    `gorm:"primaryKey" json:"action_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (BadgeActionRecord) TableName() string {
	return "badge_action_log"
}

// Vote categories from the community features: the three "golden" awards plus
// message likes. Votes advance badges only, they never carry leaderboard points.
const (
	VoteGoldenSkate = "golden_skate"
	VoteGoldenStick = "golden_stick"
	VoteGoldenPuck  = "golden_puck"
	VoteMessageLike = "message_like"
)

// Vote is an append-only record of a community vote or like. The
// auto-increment ID feeds the badge action id.
type Vote struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    string    `gorm:"not null;index" json:"user_id"`
	Category  string    `gorm:"not null" json:"category"`
	TargetID  uint      `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Vote) TableName() string {
	return "votes"
}

// VoteRequest is the payload for casting a community vote.
type VoteRequest struct {
	Category string `json:"category" validate:"required,oneof=golden_skate golden_stick golden_puck message_like"`
	TargetID uint   `json:"target_id" validate:"required"`
}

// BadgeStatus is one badge joined with a user's progress for API responses.
type BadgeStatus struct {
	BadgeID            string     `json:"badge_id"`
	Name               string     `json:"name"`
	Criterion          string     `json:"criterion"`
	Tiers              []int      `json:"tiers"`
	CurrentValue       int        `json:"current_value"`
	HighestTierAwarded int        `json:"highest_tier_awarded"`
	LastAwardedAt      *time.Time `json:"last_awarded_at,omitempty"`
}
