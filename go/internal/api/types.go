package api

import (
	"github.com/mcdev12/pongarena/go/internal/history"
	"github.com/mcdev12/pongarena/go/internal/match"
	"github.com/mcdev12/pongarena/go/internal/tournament"
)

const (
	MatchServiceName      = "pong.v1.MatchService"
	TournamentServiceName = "pong.v1.TournamentService"

	CreateMatchProcedure     = "/" + MatchServiceName + "/CreateMatch"
	JoinMatchProcedure       = "/" + MatchServiceName + "/JoinMatch"
	GetMatchProcedure        = "/" + MatchServiceName + "/GetMatch"
	GetMatchHistoryProcedure = "/" + MatchServiceName + "/GetMatchHistory"

	CreateTournamentProcedure = "/" + TournamentServiceName + "/CreateTournament"
	JoinTournamentProcedure   = "/" + TournamentServiceName + "/JoinTournament"
	GetTournamentProcedure    = "/" + TournamentServiceName + "/GetTournament"
	QuitTournamentProcedure   = "/" + TournamentServiceName + "/QuitTournament"
)

// CreateMatchRequest opens a match. Without an opponent the match waits for
// anyone holding the code to join.
type CreateMatchRequest struct {
	Opponent *match.PlayerRef `json:"opponent,omitempty"`
}

type JoinMatchRequest struct {
	Code string `json:"code"`
}

type GetMatchRequest struct {
	Code string `json:"code"`
}

type MatchResponse struct {
	Match match.Match `json:"match"`
}

type GetMatchHistoryRequest struct {
	PlayerID int `json:"player_id"`
	Limit    int `json:"limit,omitempty"`
}

type GetMatchHistoryResponse struct {
	Matches []history.Entry `json:"matches"`
}

type CreateTournamentRequest struct {
	MaxParticipants int `json:"max_participants"`
}

type JoinTournamentRequest struct {
	Code string `json:"code"`
}

type GetTournamentRequest struct {
	Code string `json:"code"`
}

type QuitTournamentRequest struct {
	Code string `json:"code"`
}

type QuitTournamentResponse struct{}

type TournamentResponse struct {
	Tournament tournament.Tournament `json:"tournament"`
}
