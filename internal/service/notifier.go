package service

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Notifier is the boundary to the external notification collaborator. Push
// delivery itself lives outside this engine.
type Notifier interface {
	BadgeAwarded(ctx context.Context, userID, badgeID string, tier int)
	PredictionScored(ctx context.Context, userID string, gameID uint, points int)
}

// LogNotifier records outgoing notifications in the structured log. It is the
// default wiring when no push collaborator is configured.
type LogNotifier struct{}

func (LogNotifier) BadgeAwarded(_ context.Context, userID, badgeID string, tier int) {
	log.Info().
		Str("user_id", userID).
		Str("badge_id", badgeID).
		Int("tier", tier).
		Msg("badge awarded")
}

func (LogNotifier) PredictionScored(_ context.Context, userID string, gameID uint, points int) {
	log.Info().
		Str("user_id", userID).
		Uint("game_id", gameID).
		Int("points", points).
		Msg("prediction scored")
}
