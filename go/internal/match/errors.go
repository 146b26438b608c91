package match

import "errors"

var (
	ErrMatchNotFound        = errors.New("match not found")
	ErrPlayerAlreadyInMatch = errors.New("player already in a match")
	ErrMatchFull            = errors.New("match is full")
	ErrNotAParticipant      = errors.New("player is not part of this match")
	ErrAlreadyAttached      = errors.New("player already connected to this match")
	ErrSessionClosed        = errors.New("match session closed")
	ErrInvalidPlayer        = errors.New("invalid player")
)
