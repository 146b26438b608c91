package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pongarena/go/internal/gateway"
	"github.com/mcdev12/pongarena/go/internal/history"
	"github.com/mcdev12/pongarena/go/internal/match"
	"github.com/mcdev12/pongarena/go/internal/tournament"
)

var (
	alice = match.PlayerRef{ID: 1, Login: "alice"}
	bob   = match.PlayerRef{ID: 2, Login: "bob"}
	carol = match.PlayerRef{ID: 3, Login: "carol"}
	dave  = match.PlayerRef{ID: 4, Login: "dave"}
)

type fakeHistory struct {
	entries []history.Entry
	gotID   int
}

func (f *fakeHistory) ListByPlayer(_ context.Context, playerID, _ int) ([]history.Entry, error) {
	f.gotID = playerID
	return f.entries, nil
}

type testAPI struct {
	url      string
	client   *http.Client
	registry *match.Registry
	engine   *tournament.Engine
}

func newTestAPI(t *testing.T, hist HistoryReader) *testAPI {
	t.Helper()
	clock := clockwork.NewFakeClock()
	registry := match.NewRegistry(match.DefaultConfig(), clock, nil, nil, nil)
	engine := tournament.NewEngine(tournament.DefaultConfig(), registry, clock, nil, nil)
	registry.SetTournamentHook(engine)

	mux := http.NewServeMux()
	NewService(registry, engine, hist).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		engine.Close()
		registry.Close()
	})
	return &testAPI{url: srv.URL, client: srv.Client(), registry: registry, engine: engine}
}

func call[Req, Res any](t *testing.T, a *testAPI, procedure string, as *match.PlayerRef, msg *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](a.client, a.url+procedure, connect.WithCodec(jsonCodec{}))
	req := connect.NewRequest(msg)
	if as != nil {
		req.Header().Set(gateway.HeaderUserID, strconv.Itoa(as.ID))
		req.Header().Set(gateway.HeaderUserLogin, as.Login)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func TestCreateAndJoinMatch(t *testing.T) {
	a := newTestAPI(t, nil)

	created, err := call[CreateMatchRequest, MatchResponse](t, a, CreateMatchProcedure, &alice, &CreateMatchRequest{})
	require.NoError(t, err)
	assert.Len(t, created.Match.Code, 6)
	assert.Equal(t, alice, created.Match.P1)
	assert.Nil(t, created.Match.P2)

	joined, err := call[JoinMatchRequest, MatchResponse](t, a, JoinMatchProcedure, &bob, &JoinMatchRequest{Code: created.Match.Code})
	require.NoError(t, err)
	require.NotNil(t, joined.Match.P2)
	assert.Equal(t, bob, *joined.Match.P2)

	got, err := call[GetMatchRequest, MatchResponse](t, a, GetMatchProcedure, &carol, &GetMatchRequest{Code: created.Match.Code})
	require.NoError(t, err)
	assert.Equal(t, created.Match.Code, got.Match.Code)

	_, err = call[JoinMatchRequest, MatchResponse](t, a, JoinMatchProcedure, &carol, &JoinMatchRequest{Code: created.Match.Code})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestMatchErrors(t *testing.T) {
	a := newTestAPI(t, nil)

	_, err := call[CreateMatchRequest, MatchResponse](t, a, CreateMatchProcedure, nil, &CreateMatchRequest{})
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = call[CreateMatchRequest, MatchResponse](t, a, CreateMatchProcedure, &alice, &CreateMatchRequest{Opponent: &bob})
	require.NoError(t, err)

	_, err = call[CreateMatchRequest, MatchResponse](t, a, CreateMatchProcedure, &alice, &CreateMatchRequest{})
	assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	_, err = call[JoinMatchRequest, MatchResponse](t, a, JoinMatchProcedure, &carol, &JoinMatchRequest{})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = call[JoinMatchRequest, MatchResponse](t, a, JoinMatchProcedure, &carol, &JoinMatchRequest{Code: "NOPE22"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = call[GetMatchRequest, MatchResponse](t, a, GetMatchProcedure, &carol, &GetMatchRequest{Code: "NOPE22"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestTournamentLifecycle(t *testing.T) {
	a := newTestAPI(t, nil)

	_, err := call[CreateTournamentRequest, TournamentResponse](t, a, CreateTournamentProcedure, &alice, &CreateTournamentRequest{MaxParticipants: 3})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	created, err := call[CreateTournamentRequest, TournamentResponse](t, a, CreateTournamentProcedure, &alice, &CreateTournamentRequest{MaxParticipants: 4})
	require.NoError(t, err)
	code := created.Tournament.Code
	assert.Equal(t, tournament.StatusPending, created.Tournament.Status)

	_, err = call[CreateMatchRequest, MatchResponse](t, a, CreateMatchProcedure, &alice, &CreateMatchRequest{})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = call[JoinTournamentRequest, TournamentResponse](t, a, JoinTournamentProcedure, &alice, &JoinTournamentRequest{Code: code})
	assert.Equal(t, connect.CodeAlreadyExists, connect.CodeOf(err))

	for _, p := range []match.PlayerRef{bob, carol} {
		_, err := call[JoinTournamentRequest, TournamentResponse](t, a, JoinTournamentProcedure, &p, &JoinTournamentRequest{Code: code})
		require.NoError(t, err)
	}
	full, err := call[JoinTournamentRequest, TournamentResponse](t, a, JoinTournamentProcedure, &dave, &JoinTournamentRequest{Code: code})
	require.NoError(t, err)
	assert.Equal(t, tournament.StatusOngoing, full.Tournament.Status)
	assert.Len(t, full.Tournament.Matches, 3)

	got, err := call[GetTournamentRequest, TournamentResponse](t, a, GetTournamentProcedure, &alice, &GetTournamentRequest{Code: code})
	require.NoError(t, err)
	assert.Len(t, got.Tournament.Participants, 4)

	_, err = call[QuitTournamentRequest, QuitTournamentResponse](t, a, QuitTournamentProcedure, &alice, &QuitTournamentRequest{Code: code})
	require.NoError(t, err)
	_, err = call[QuitTournamentRequest, QuitTournamentResponse](t, a, QuitTournamentProcedure, &alice, &QuitTournamentRequest{Code: code})
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	_, err = call[GetTournamentRequest, TournamentResponse](t, a, GetTournamentProcedure, &alice, &GetTournamentRequest{Code: "NOPE22"})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestGetMatchHistory(t *testing.T) {
	a := newTestAPI(t, nil)
	_, err := call[GetMatchHistoryRequest, GetMatchHistoryResponse](t, a, GetMatchHistoryProcedure, &alice, &GetMatchHistoryRequest{})
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))

	hist := &fakeHistory{entries: []history.Entry{{MatchCode: "GAME22", Player1ID: 1, Player2ID: 2, Score1: 5, Score2: 3}}}
	a = newTestAPI(t, hist)

	resp, err := call[GetMatchHistoryRequest, GetMatchHistoryResponse](t, a, GetMatchHistoryProcedure, &alice, &GetMatchHistoryRequest{})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, hist.gotID)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "GAME22", resp.Matches[0].MatchCode)

	_, err = call[GetMatchHistoryRequest, GetMatchHistoryResponse](t, a, GetMatchHistoryProcedure, &alice, &GetMatchHistoryRequest{PlayerID: 9})
	require.NoError(t, err)
	assert.Equal(t, 9, hist.gotID)
}

func TestToConnectError(t *testing.T) {
	tests := []struct {
		err  error
		want connect.Code
	}{
		{match.ErrMatchNotFound, connect.CodeNotFound},
		{tournament.ErrTournamentNotFound, connect.CodeNotFound},
		{match.ErrPlayerAlreadyInMatch, connect.CodeAlreadyExists},
		{match.ErrMatchFull, connect.CodeFailedPrecondition},
		{tournament.ErrTournamentFull, connect.CodeFailedPrecondition},
		{tournament.ErrTournamentClosed, connect.CodeFailedPrecondition},
		{match.ErrInvalidPlayer, connect.CodeInvalidArgument},
		{tournament.ErrInvalidBracketState, connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, connect.CodeOf(toConnectError(tt.err)))
		})
	}
}
