package service

import "errors"

// Sentinel errors for the boundary taxonomy. Handlers map these to HTTP
// statuses with errors.Is; everything else is a 500.
var (
	// ErrInvalidPayload rejects malformed or out-of-range submissions. Never retried.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrAlreadyLocked rejects submissions after the game's start time or lock.
	ErrAlreadyLocked = errors.New("game already locked")

	// ErrGameNotFound is returned for facts or submissions naming an unknown game.
	ErrGameNotFound = errors.New("game not found")

	// ErrUnknownPeriod rejects period keys that parse to no ranking window.
	ErrUnknownPeriod = errors.New("unknown period key")
)
