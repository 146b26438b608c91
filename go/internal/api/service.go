package api

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/gateway"
	"github.com/mcdev12/pongarena/go/internal/history"
	"github.com/mcdev12/pongarena/go/internal/match"
	"github.com/mcdev12/pongarena/go/internal/tournament"
)

// MatchApp defines what the service layer needs from the match registry
type MatchApp interface {
	RequestMatch(ctx context.Context, p1 match.PlayerRef, p2 *match.PlayerRef, ref *match.TournamentRef) (match.Match, error)
	JoinMatch(ctx context.Context, code string, p match.PlayerRef) (match.Match, error)
	Get(code string) (match.Match, bool)
}

// TournamentApp defines what the service layer needs from the tournament engine
type TournamentApp interface {
	Create(ctx context.Context, creator match.PlayerRef, maxParticipants int) (tournament.Tournament, error)
	Join(ctx context.Context, code string, player match.PlayerRef) (tournament.Tournament, error)
	Get(code string) (tournament.Tournament, bool)
	Quit(ctx context.Context, code string, player match.PlayerRef) error
	TournamentOf(playerID int) (string, bool)
}

// HistoryReader lists stored matches.
type HistoryReader interface {
	ListByPlayer(ctx context.Context, playerID, limit int) ([]history.Entry, error)
}

// Service implements the match and tournament RPCs. The caller's identity
// comes from the proxy headers on every request.
type Service struct {
	matches     MatchApp
	tournaments TournamentApp
	history     HistoryReader
}

// NewService creates the API service. history may be nil when persistence
// is disabled.
func NewService(matches MatchApp, tournaments TournamentApp, history HistoryReader) *Service {
	return &Service{
		matches:     matches,
		tournaments: tournaments,
		history:     history,
	}
}

// RegisterRoutes mounts every procedure on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux.Handle(CreateMatchProcedure, connect.NewUnaryHandler(CreateMatchProcedure, s.CreateMatch, opts...))
	mux.Handle(JoinMatchProcedure, connect.NewUnaryHandler(JoinMatchProcedure, s.JoinMatch, opts...))
	mux.Handle(GetMatchProcedure, connect.NewUnaryHandler(GetMatchProcedure, s.GetMatch, opts...))
	mux.Handle(GetMatchHistoryProcedure, connect.NewUnaryHandler(GetMatchHistoryProcedure, s.GetMatchHistory, opts...))

	mux.Handle(CreateTournamentProcedure, connect.NewUnaryHandler(CreateTournamentProcedure, s.CreateTournament, opts...))
	mux.Handle(JoinTournamentProcedure, connect.NewUnaryHandler(JoinTournamentProcedure, s.JoinTournament, opts...))
	mux.Handle(GetTournamentProcedure, connect.NewUnaryHandler(GetTournamentProcedure, s.GetTournament, opts...))
	mux.Handle(QuitTournamentProcedure, connect.NewUnaryHandler(QuitTournamentProcedure, s.QuitTournament, opts...))
}

// CreateMatch opens a casual match for the caller.
func (s *Service) CreateMatch(ctx context.Context, req *connect.Request[CreateMatchRequest]) (*connect.Response[MatchResponse], error) {
	caller, err := callerOf(req)
	if err != nil {
		return nil, err
	}
	if err := s.checkNotInTournament(caller); err != nil {
		return nil, err
	}
	if req.Msg.Opponent != nil {
		if err := s.checkNotInTournament(*req.Msg.Opponent); err != nil {
			return nil, err
		}
	}

	m, err := s.matches.RequestMatch(ctx, caller, req.Msg.Opponent, nil)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

// JoinMatch takes the free seat of a waiting match.
func (s *Service) JoinMatch(ctx context.Context, req *connect.Request[JoinMatchRequest]) (*connect.Response[MatchResponse], error) {
	caller, err := callerOf(req)
	if err != nil {
		return nil, err
	}
	if req.Msg.Code == "" {
		return nil, toConnectError(ErrCodeRequired)
	}
	if err := s.checkNotInTournament(caller); err != nil {
		return nil, err
	}

	m, err := s.matches.JoinMatch(ctx, req.Msg.Code, caller)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

// GetMatch returns a live match.
func (s *Service) GetMatch(ctx context.Context, req *connect.Request[GetMatchRequest]) (*connect.Response[MatchResponse], error) {
	if _, err := callerOf(req); err != nil {
		return nil, err
	}
	m, ok := s.matches.Get(req.Msg.Code)
	if !ok {
		return nil, toConnectError(match.ErrMatchNotFound)
	}
	return connect.NewResponse(&MatchResponse{Match: m}), nil
}

// GetMatchHistory lists a player's finished matches. PlayerID defaults to
// the caller.
func (s *Service) GetMatchHistory(ctx context.Context, req *connect.Request[GetMatchHistoryRequest]) (*connect.Response[GetMatchHistoryResponse], error) {
	caller, err := callerOf(req)
	if err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, toConnectError(ErrHistoryUnavailable)
	}
	playerID := req.Msg.PlayerID
	if playerID == 0 {
		playerID = caller.ID
	}

	entries, err := s.history.ListByPlayer(ctx, playerID, req.Msg.Limit)
	if err != nil {
		log.Error().Err(err).Int("user_id", playerID).Msg("failed to list match history")
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetMatchHistoryResponse{Matches: entries}), nil
}

// CreateTournament opens a tournament with the caller as first participant.
func (s *Service) CreateTournament(ctx context.Context, req *connect.Request[CreateTournamentRequest]) (*connect.Response[TournamentResponse], error) {
	caller, err := callerOf(req)
	if err != nil {
		return nil, err
	}

	t, err := s.tournaments.Create(ctx, caller, req.Msg.MaxParticipants)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TournamentResponse{Tournament: t}), nil
}

// JoinTournament registers the caller in a pending tournament.
func (s *Service) JoinTournament(ctx context.Context, req *connect.Request[JoinTournamentRequest]) (*connect.Response[TournamentResponse], error) {
	caller, err := callerOf(req)
	if err != nil {
		return nil, err
	}
	if req.Msg.Code == "" {
		return nil, toConnectError(ErrCodeRequired)
	}

	t, err := s.tournaments.Join(ctx, req.Msg.Code, caller)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TournamentResponse{Tournament: t}), nil
}

// GetTournament returns the bracket and participants.
func (s *Service) GetTournament(ctx context.Context, req *connect.Request[GetTournamentRequest]) (*connect.Response[TournamentResponse], error) {
	if _, err := callerOf(req); err != nil {
		return nil, err
	}
	t, ok := s.tournaments.Get(req.Msg.Code)
	if !ok {
		return nil, toConnectError(tournament.ErrTournamentNotFound)
	}
	return connect.NewResponse(&TournamentResponse{Tournament: t}), nil
}

// QuitTournament withdraws the caller.
func (s *Service) QuitTournament(ctx context.Context, req *connect.Request[QuitTournamentRequest]) (*connect.Response[QuitTournamentResponse], error) {
	caller, err := callerOf(req)
	if err != nil {
		return nil, err
	}
	if req.Msg.Code == "" {
		return nil, toConnectError(ErrCodeRequired)
	}

	if err := s.tournaments.Quit(ctx, req.Msg.Code, caller); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&QuitTournamentResponse{}), nil
}

func (s *Service) checkNotInTournament(p match.PlayerRef) error {
	if code, ok := s.tournaments.TournamentOf(p.ID); ok {
		log.Debug().Int("user_id", p.ID).Str("tournament_code", code).Msg("casual match refused")
		return toConnectError(ErrPlayerInTournament)
	}
	return nil
}

func callerOf(req connect.AnyRequest) (match.PlayerRef, error) {
	p, err := gateway.IdentityFromHeader(req.Header())
	if err != nil {
		return match.PlayerRef{}, connect.NewError(connect.CodeUnauthenticated, err)
	}
	return p, nil
}
