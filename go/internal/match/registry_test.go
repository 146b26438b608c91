package match

import (
	"context"
	"errors"
	"slices"
	"testing"
	"testing/iotest"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pongarena/go/internal/events"
	"github.com/mcdev12/pongarena/go/internal/protocol"
)

const waitFor = 2 * time.Second

type registryHarness struct {
	reg      *Registry
	clock    *clockwork.FakeClock
	history  *fakeHistory
	notifier *fakeNotifier
	metrics  *fakeMetrics
}

func newRegistryHarness(t *testing.T) *registryHarness {
	t.Helper()
	h := &registryHarness{
		clock:    clockwork.NewFakeClock(),
		history:  &fakeHistory{},
		notifier: &fakeNotifier{},
		metrics:  &fakeMetrics{},
	}
	h.reg = NewRegistry(DefaultConfig(), h.clock, h.history, h.notifier, h.metrics)
	t.Cleanup(h.reg.Close)
	return h
}

func (h *registryHarness) waitEnded(t *testing.T, n int) []events.MatchEndedPayload {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.notifier.ended()) >= n }, waitFor, 5*time.Millisecond)
	return h.notifier.ended()
}

func TestRequestMatchCreatesWaitingMatch(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	m, err := h.reg.RequestMatch(ctx, alice, nil, nil)
	require.NoError(t, err)
	assert.Len(t, m.Code, codeLength)
	assert.Equal(t, StatusWaiting, m.Status)
	assert.Nil(t, m.P2)

	got, ok := h.reg.Get(m.Code)
	require.True(t, ok)
	assert.Equal(t, m.Code, got.Code)

	code, ok := h.reg.MatchOf(alice.ID)
	require.True(t, ok)
	assert.Equal(t, m.Code, code)
	assert.True(t, h.reg.IsBusy(alice.ID))
	assert.Equal(t, 1, h.reg.ActiveCount())
	require.Eventually(t, func() bool {
		return slices.Contains(h.notifier.types(), events.TypeMatchCreated)
	}, waitFor, 5*time.Millisecond)
}

func TestOneMatchPerPlayer(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	m, err := h.reg.RequestMatch(ctx, alice, nil, nil)
	require.NoError(t, err)

	_, err = h.reg.RequestMatch(ctx, alice, nil, nil)
	assert.ErrorIs(t, err, ErrPlayerAlreadyInMatch)

	_, err = h.reg.JoinMatch(ctx, m.Code, alice)
	assert.ErrorIs(t, err, ErrPlayerAlreadyInMatch)

	joined, err := h.reg.JoinMatch(ctx, m.Code, bob)
	require.NoError(t, err)
	require.NotNil(t, joined.P2)
	assert.Equal(t, bob.ID, joined.P2.ID)

	_, err = h.reg.RequestMatch(ctx, bob, nil, nil)
	assert.ErrorIs(t, err, ErrPlayerAlreadyInMatch)

	_, err = h.reg.JoinMatch(ctx, m.Code, carol)
	assert.ErrorIs(t, err, ErrMatchFull)

	_, err = h.reg.JoinMatch(ctx, "NOPE22", carol)
	assert.ErrorIs(t, err, ErrMatchNotFound)

	_, err = h.reg.RequestMatch(ctx, carol, &PlayerRef{ID: bob.ID}, nil)
	assert.ErrorIs(t, err, ErrPlayerAlreadyInMatch)
}

func TestRequestMatchRejectsInvalidPlayers(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	_, err := h.reg.RequestMatch(ctx, PlayerRef{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidPlayer)

	_, err = h.reg.RequestMatch(ctx, alice, &alice, nil)
	assert.ErrorIs(t, err, ErrInvalidPlayer)
}

func TestJoinTimeoutForfeitsToCreator(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	m, err := h.reg.RequestMatch(ctx, alice, nil, nil)
	require.NoError(t, err)

	h.clock.Advance(DefaultJoinTimeout + time.Second)

	ended := h.waitEnded(t, 1)
	assert.Equal(t, m.Code, ended[0].MatchCode)
	assert.Equal(t, alice.ID, ended[0].WinnerID)
	assert.True(t, ended[0].Forfeit)
	assert.Equal(t, string(ReasonJoinTimeout), ended[0].Reason)

	require.Eventually(t, func() bool { return h.reg.ActiveCount() == 0 }, waitFor, 5*time.Millisecond)
	_, ok := h.reg.MatchOf(alice.ID)
	assert.False(t, ok)
	assert.False(t, h.reg.IsBusy(alice.ID))
	assert.Equal(t, 1, h.metrics.endedCount(string(ReasonJoinTimeout)))
	assert.Empty(t, h.history.all(), "unjoined matches are not recorded")

	// the creator is free to start another match
	_, err = h.reg.RequestMatch(ctx, alice, nil, nil)
	assert.NoError(t, err)
}

func TestJoinCancelsJoinTimeout(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	m, err := h.reg.RequestMatch(ctx, alice, nil, nil)
	require.NoError(t, err)
	_, err = h.reg.JoinMatch(ctx, m.Code, bob)
	require.NoError(t, err)

	left, right := &fakeConn{}, &fakeConn{}
	_, err = h.reg.Attach(ctx, m.Code, alice, left)
	require.NoError(t, err)
	_, err = h.reg.Attach(ctx, m.Code, bob, right)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := h.reg.Get(m.Code)
		return ok && got.Status == StatusActive
	}, waitFor, 5*time.Millisecond)
	assert.False(t, h.reg.IsBusy(alice.ID))

	h.clock.Advance(DefaultJoinTimeout + time.Second)

	require.Eventually(t, func() bool { return len(left.packetTypes()) > 5 }, waitFor, 5*time.Millisecond)
	assert.Empty(t, h.notifier.ended())
	_, ok := h.reg.Get(m.Code)
	assert.True(t, ok)
}

func TestAttachValidatesIdentity(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	m, err := h.reg.RequestMatch(ctx, alice, nil, nil)
	require.NoError(t, err)

	_, err = h.reg.Attach(ctx, "NOPE22", alice, &fakeConn{})
	assert.ErrorIs(t, err, ErrMatchNotFound)

	_, err = h.reg.Attach(ctx, m.Code, bob, &fakeConn{})
	assert.ErrorIs(t, err, ErrNotAParticipant)

	seat, err := h.reg.Attach(ctx, m.Code, alice, &fakeConn{})
	require.NoError(t, err)
	assert.Equal(t, m.Code, seat.Code)

	_, err = h.reg.Attach(ctx, m.Code, alice, &fakeConn{})
	assert.ErrorIs(t, err, ErrAlreadyAttached)
}

func TestDisconnectForfeitsAndRecordsHistory(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	m, err := h.reg.RequestMatch(ctx, alice, &bob, nil)
	require.NoError(t, err)

	left, right := &fakeConn{}, &fakeConn{}
	seat, err := h.reg.Attach(ctx, m.Code, alice, left)
	require.NoError(t, err)
	_, err = h.reg.Attach(ctx, m.Code, bob, right)
	require.NoError(t, err)

	require.NoError(t, seat.Input(ctx, protocol.Move{Moving: true, Direction: protocol.Down}))
	require.NoError(t, seat.Leave(ctx))

	ended := h.waitEnded(t, 1)
	assert.Equal(t, bob.ID, ended[0].WinnerID)
	assert.Equal(t, string(ReasonDisconnect), ended[0].Reason)
	assert.Equal(t, 5, ended[0].Score2)

	require.Eventually(t, func() bool { return len(h.history.all()) == 1 }, waitFor, 5*time.Millisecond)
	rec := h.history.all()[0]
	assert.Equal(t, alice.ID, rec.Player1ID)
	assert.Equal(t, bob.ID, rec.Player2ID)
	assert.Equal(t, 0, rec.Score1)
	assert.Equal(t, 5, rec.Score2)
	assert.Equal(t, -1, rec.Round)
	assert.Equal(t, -1, rec.MatchNumber)

	assert.True(t, right.isClosed())
	<-seat.Done()
	assert.ErrorIs(t, seat.Input(ctx, protocol.Move{}), ErrSessionClosed)
}

func TestConnectTimeoutFavoursConnectedPlayer(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	m, err := h.reg.RequestMatch(ctx, alice, &bob, nil)
	require.NoError(t, err)
	_, err = h.reg.Attach(ctx, m.Code, bob, &fakeConn{})
	require.NoError(t, err)

	h.clock.Advance(DefaultConnectTimeout + time.Second)

	ended := h.waitEnded(t, 1)
	assert.Equal(t, bob.ID, ended[0].WinnerID)
	assert.Equal(t, string(ReasonConnectTimeout), ended[0].Reason)
}

func TestForfeitPlayer(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.reg.ForfeitPlayer(ctx, alice.ID), ErrMatchNotFound)

	_, err := h.reg.RequestMatch(ctx, alice, &bob, nil)
	require.NoError(t, err)
	require.NoError(t, h.reg.ForfeitPlayer(ctx, bob.ID))

	ended := h.waitEnded(t, 1)
	assert.Equal(t, alice.ID, ended[0].WinnerID)
	assert.Equal(t, string(ReasonForfeit), ended[0].Reason)
}

func TestTournamentHookReceivesResult(t *testing.T) {
	h := newRegistryHarness(t)
	hook := &fakeHook{}
	h.reg.SetTournamentHook(hook)
	ctx := context.Background()

	ref := &TournamentRef{TournamentCode: "CUP234", Round: 2, MatchNumber: 1}
	_, err := h.reg.RequestMatch(ctx, alice, &bob, ref)
	require.NoError(t, err)
	_, err = h.reg.RequestMatch(ctx, carol, nil, nil)
	require.NoError(t, err)

	require.NoError(t, h.reg.ForfeitPlayer(ctx, alice.ID))
	require.NoError(t, h.reg.ForfeitPlayer(ctx, carol.ID))

	h.waitEnded(t, 2)
	require.Eventually(t, func() bool { return len(hook.all()) == 1 }, waitFor, 5*time.Millisecond)

	res := hook.all()[0]
	assert.Equal(t, bob.ID, res.WinnerID)
	assert.Equal(t, alice.ID, res.LoserID())
	require.NotNil(t, res.Tournament)
	assert.Equal(t, 2, res.Tournament.Round)

	require.Eventually(t, func() bool { return len(h.history.all()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "CUP234", h.history.all()[0].TournamentCode)
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, codeLength)
		for _, c := range code {
			assert.Contains(t, codeChars, string(c))
		}
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 90)
}

func TestGenerateCodeReportsEntropyFailure(t *testing.T) {
	_, err := generateCode(iotest.ErrReader(errors.New("no entropy")))
	assert.ErrorContains(t, err, "no entropy")
}

func TestJoinAfterQueuedForfeitIsRefused(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	for i := range 20 {
		m, err := h.reg.RequestMatch(ctx, alice, nil, nil)
		require.NoError(t, err)
		require.NoError(t, h.reg.ForfeitPlayer(ctx, alice.ID))

		_, err = h.reg.JoinMatch(ctx, m.Code, bob)
		require.ErrorIs(t, err, ErrMatchNotFound)

		ended := h.waitEnded(t, i+1)
		assert.Equal(t, m.Code, ended[i].MatchCode)
		assert.Zero(t, ended[i].Player2ID)

		require.Eventually(t, func() bool {
			_, inMatch := h.reg.MatchOf(alice.ID)
			return !inMatch
		}, waitFor, 5*time.Millisecond)
		_, inMatch := h.reg.MatchOf(bob.ID)
		assert.False(t, inMatch)
		assert.ErrorIs(t, h.reg.ForfeitPlayer(ctx, bob.ID), ErrMatchNotFound)
	}

	m, err := h.reg.RequestMatch(ctx, bob, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, bob, m.P1)
}

func TestJoinTimerLosingRaceWithJoinIsIgnored(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	m, err := h.reg.RequestMatch(ctx, alice, nil, nil)
	require.NoError(t, err)
	_, err = h.reg.JoinMatch(ctx, m.Code, bob)
	require.NoError(t, err)

	h.reg.mu.Lock()
	e := h.reg.matches[m.Code]
	h.reg.mu.Unlock()
	h.reg.expire(m.Code, e, ReasonJoinTimeout)

	_, err = h.reg.Attach(ctx, m.Code, bob, &fakeConn{})
	require.NoError(t, err)
	assert.Empty(t, h.notifier.ended())
	assert.Equal(t, 1, h.reg.ActiveCount())
}

func TestJoinRollsBackWhenSessionIsGone(t *testing.T) {
	h := newRegistryHarness(t)
	ctx := context.Background()

	m, err := h.reg.RequestMatch(ctx, alice, nil, nil)
	require.NoError(t, err)
	// sessions stop without finishing, so the entry outlives them
	h.reg.Close()

	_, err = h.reg.JoinMatch(ctx, m.Code, bob)
	require.ErrorIs(t, err, ErrSessionClosed)

	_, inMatch := h.reg.MatchOf(bob.ID)
	assert.False(t, inMatch)
	assert.False(t, h.reg.IsBusy(bob.ID))
	got, ok := h.reg.Get(m.Code)
	require.True(t, ok)
	assert.Nil(t, got.P2)
}

// stalledNotifier blocks every Notify until released.
type stalledNotifier struct {
	release chan struct{}
}

func (n *stalledNotifier) Notify(ctx context.Context, _ events.Event) error {
	select {
	case <-n.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestStalledNotifierDoesNotBlockMatch(t *testing.T) {
	notifier := &stalledNotifier{release: make(chan struct{})}
	reg := NewRegistry(DefaultConfig(), clockwork.NewFakeClock(), nil, notifier, nil)
	t.Cleanup(reg.Close)
	t.Cleanup(func() { close(notifier.release) })
	ctx := context.Background()

	m, err := reg.RequestMatch(ctx, alice, &bob, nil)
	require.NoError(t, err)

	left, right := &fakeConn{}, &fakeConn{}
	_, err = reg.Attach(ctx, m.Code, alice, left)
	require.NoError(t, err)
	_, err = reg.Attach(ctx, m.Code, bob, right)
	require.NoError(t, err)
	assert.Equal(t, []protocol.EventType{protocol.EventSlot, protocol.EventOpponent}, left.eventTypes())

	require.NoError(t, reg.ForfeitPlayer(ctx, bob.ID))
	require.Eventually(t, func() bool {
		_, ok := left.lastEvent(protocol.EventEOG)
		return ok
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return reg.ActiveCount() == 0 }, waitFor, 5*time.Millisecond)
}
