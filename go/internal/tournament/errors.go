package tournament

import "errors"

var (
	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrTournamentFull      = errors.New("tournament is full")
	ErrAlreadyInTournament = errors.New("player already in a tournament")
	ErrTournamentClosed    = errors.New("tournament already completed")
	ErrNotParticipant      = errors.New("player is not part of this tournament")
	ErrInvalidSize         = errors.New("invalid tournament size")

	// ErrInvalidBracketState means the bracket no longer matches the tree
	// BuildBracket produced. It is a bug, never a user error.
	ErrInvalidBracketState = errors.New("invalid bracket state")
)
