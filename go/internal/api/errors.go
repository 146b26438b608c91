package api

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/mcdev12/pongarena/go/internal/match"
	"github.com/mcdev12/pongarena/go/internal/tournament"
)

var (
	ErrCodeRequired       = errors.New("code is required")
	ErrPlayerInTournament = errors.New("player is registered in a tournament")
	ErrHistoryUnavailable = errors.New("match history is not configured")
)

// toConnectError maps domain errors onto connect codes.
func toConnectError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, match.ErrMatchNotFound),
		errors.Is(err, tournament.ErrTournamentNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, match.ErrPlayerAlreadyInMatch),
		errors.Is(err, tournament.ErrAlreadyInTournament):
		code = connect.CodeAlreadyExists
	case errors.Is(err, match.ErrMatchFull),
		errors.Is(err, tournament.ErrTournamentFull),
		errors.Is(err, tournament.ErrTournamentClosed),
		errors.Is(err, ErrPlayerInTournament):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, match.ErrNotAParticipant),
		errors.Is(err, tournament.ErrNotParticipant):
		code = connect.CodePermissionDenied
	case errors.Is(err, match.ErrInvalidPlayer),
		errors.Is(err, tournament.ErrInvalidSize),
		errors.Is(err, ErrCodeRequired):
		code = connect.CodeInvalidArgument
	case errors.Is(err, ErrHistoryUnavailable):
		code = connect.CodeUnavailable
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}
