package match

import (
	"context"
	"math"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/protocol"
	"github.com/mcdev12/pongarena/go/internal/simulation"
)

const inboxSize = 64

var sides = [2]simulation.Side{simulation.Left, simulation.Right}

// Session is the actor that owns one match's engine and sockets. Everything
// reaches it through the inbox; only the run loop touches the engine.
type Session struct {
	code       string
	players    [2]*PlayerRef
	tournament *TournamentRef

	engine *simulation.Engine
	codec  protocol.Codec
	clock  clockwork.Clock

	inbox chan any
	done  chan struct{}

	onReady func()
	onEnd   func(Result)

	conns         [2]Conn
	broken        [2]bool
	running       bool
	finished      bool
	lastCountdown int
	lastPoints    [2]int
}

func newSession(
	code string,
	p1 PlayerRef,
	p2 *PlayerRef,
	ref *TournamentRef,
	engine *simulation.Engine,
	codec protocol.Codec,
	clock clockwork.Clock,
	onReady func(),
	onEnd func(Result),
) *Session {
	s := &Session{
		code:          code,
		tournament:    ref,
		engine:        engine,
		codec:         codec,
		clock:         clock,
		inbox:         make(chan any, inboxSize),
		done:          make(chan struct{}),
		onReady:       onReady,
		onEnd:         onEnd,
		lastCountdown: -1,
	}
	s.players[simulation.Left] = &p1
	if p2 != nil {
		cp := *p2
		s.players[simulation.Right] = &cp
	}
	return s
}

// run is the session's loop. It returns when the match ends or ctx is
// cancelled.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	ticker := s.clock.NewTicker(s.engine.Config().TickDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeConns()
			log.Debug().Str("match_code", s.code).Msg("session stopped")
			return
		case cmd := <-s.inbox:
			if s.handle(cmd) {
				return
			}
		case <-ticker.Chan():
			if s.tick() {
				return
			}
		}
	}
}

// submit hands cmd to the run loop.
func (s *Session) submit(ctx context.Context, cmd any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.inbox <- cmd:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle applies one command and reports whether the match finished.
func (s *Session) handle(cmd any) bool {
	switch c := cmd.(type) {
	case attachCmd:
		c.reply <- s.attach(c.side, c.conn)
	case joinCmd:
		p := c.player
		s.players[simulation.Right] = &p
	case inputCmd:
		s.applyInput(c.side, c.packet)
		return false
	case leaveCmd:
		if s.conns[c.side] != c.conn {
			return false
		}
		s.conns[c.side] = nil
		log.Info().
			Str("match_code", s.code).
			Str("side", c.side.String()).
			Msg("player disconnected")
		s.forfeit(c.side, ReasonDisconnect)
		return true
	case forfeitCmd:
		s.forfeit(c.loser, c.reason)
		return true
	}
	return s.checkBroken()
}

func (s *Session) attach(side simulation.Side, conn Conn) error {
	if s.players[side] == nil {
		return ErrNotAParticipant
	}
	if s.conns[side] != nil {
		return ErrAlreadyAttached
	}
	s.conns[side] = conn
	log.Info().
		Str("match_code", s.code).
		Str("side", side.String()).
		Int("user_id", s.players[side].ID).
		Msg("player connected")

	if s.conns[simulation.Left] != nil && s.conns[simulation.Right] != nil {
		s.begin()
	}
	return nil
}

func (s *Session) applyInput(side simulation.Side, p protocol.ClientPacket) {
	switch pkt := p.(type) {
	case protocol.Move:
		dir := simulation.Up
		if pkt.Direction == protocol.Down {
			dir = simulation.Down
		}
		s.engine.SetPadInput(side, pkt.Moving, dir)
	case protocol.BallReport:
		log.Trace().
			Str("match_code", s.code).
			Str("side", side.String()).
			Float64("timestamp", pkt.Timestamp).
			Msg("ignoring client ball report")
	}
}

// begin sends the opening state to both players and starts the countdown.
func (s *Session) begin() {
	s.running = true
	maxLives := s.engine.Config().MaxLives

	for _, side := range sides {
		opp := s.players[side.Opponent()]
		s.sendEvent(side, protocol.EventSlot, protocol.SlotPayload{
			MatchCode: s.code,
			Slot:      int(side) + 1,
			MaxLives:  maxLives,
		})
		s.sendEvent(side, protocol.EventOpponent, protocol.OpponentPayload{UserID: opp.ID, Login: opp.Login})
	}

	now := s.timestamp()
	s.broadcast(protocol.SegmentUpdate{Time: now, Kind: protocol.SegmentArena, Segments: s.engine.ArenaSegments()})
	s.broadcast(protocol.SegmentUpdate{Time: now, Kind: protocol.SegmentPadLeft, Segments: s.engine.PadSegments(simulation.Left)})
	s.broadcast(protocol.SegmentUpdate{Time: now, Kind: protocol.SegmentPadRight, Segments: s.engine.PadSegments(simulation.Right)})
	s.broadcast(protocol.Score{MaxLives: maxLives})
	s.sendBall()

	s.engine.Start()
	log.Info().Str("match_code", s.code).Msg("match starting")
	if s.onReady != nil {
		s.onReady()
	}
}

// tick steps the engine and pushes whatever changed. It reports whether the
// match finished.
func (s *Session) tick() bool {
	if !s.running {
		return false
	}
	res := s.engine.Step()
	now := s.timestamp()

	if res.Countdown != s.lastCountdown {
		s.lastCountdown = res.Countdown
		s.broadcast(protocol.Countdown{Seconds: uint8(min(res.Countdown, math.MaxUint8))})
		if res.Countdown > 0 {
			s.broadcastEvent(protocol.EventStartingIn, protocol.StartingInPayload{Seconds: res.Countdown})
		} else {
			s.broadcastEvent(protocol.EventStart, nil)
		}
	}

	if res.PadsMoved[simulation.Left] {
		s.broadcast(protocol.SegmentUpdate{Time: now, Kind: protocol.SegmentPadLeft, Segments: s.engine.PadSegments(simulation.Left)})
	}
	if res.PadsMoved[simulation.Right] {
		s.broadcast(protocol.SegmentUpdate{Time: now, Kind: protocol.SegmentPadRight, Segments: s.engine.PadSegments(simulation.Right)})
	}

	ball := s.engine.Ball()
	if res.Scored {
		s.broadcast(protocol.BallPos{Position: ball.Position})
	}
	if res.Scored || res.Bounced {
		s.broadcast(protocol.BallVeloChange{Velocity: ball.Velocity, Factor: ball.SpeedFactor})
	}
	s.sendBall()

	points := [2]int{s.engine.Points(simulation.Left), s.engine.Points(simulation.Right)}
	if points != s.lastPoints {
		s.lastPoints = points
		s.broadcast(protocol.Score{P1: points[0], P2: points[1], MaxLives: s.engine.Config().MaxLives})
	}

	if res.Ended {
		s.finish(s.scoreResult())
		return true
	}
	return s.checkBroken()
}

func (s *Session) sendBall() {
	ball := s.engine.Ball()
	s.broadcast(protocol.BallSync{Velocity: ball.Velocity, Factor: ball.SpeedFactor, Position: ball.Position})
}

// checkBroken forfeits the first side whose socket rejected a send.
func (s *Session) checkBroken() bool {
	for _, side := range sides {
		if s.broken[side] {
			s.conns[side] = nil
			s.forfeit(side, ReasonDisconnect)
			return true
		}
	}
	return false
}

func (s *Session) baseResult(reason EndReason) Result {
	res := Result{
		Code:       s.code,
		P1:         *s.players[simulation.Left],
		Reason:     reason,
		Tournament: s.tournament,
		EndedAt:    s.clock.Now(),
	}
	if p2 := s.players[simulation.Right]; p2 != nil {
		cp := *p2
		res.P2 = &cp
	}
	return res
}

func (s *Session) scoreResult() Result {
	res := s.baseResult(ReasonScore)
	res.Score1 = s.engine.Points(simulation.Left)
	res.Score2 = s.engine.Points(simulation.Right)
	if winner, ok := s.engine.Winner(); ok && s.players[winner] != nil {
		res.WinnerID = s.players[winner].ID
	}
	return res
}

// forfeit ends the match against loser. The winner is credited with a full
// score; the loser keeps what they scored so far.
func (s *Session) forfeit(loser simulation.Side, reason EndReason) {
	res := s.baseResult(reason)
	res.Forfeit = true

	winner := loser.Opponent()
	scores := [2]int{}
	scores[winner] = s.engine.Config().MaxLives
	scores[loser] = min(s.engine.Points(loser), s.engine.Config().MaxLives-1)
	res.Score1, res.Score2 = scores[simulation.Left], scores[simulation.Right]
	if p := s.players[winner]; p != nil {
		res.WinnerID = p.ID
	}

	log.Info().
		Str("match_code", s.code).
		Str("loser_side", loser.String()).
		Str("reason", string(reason)).
		Msg("match forfeited")
	s.finish(res)
}

// finish notifies both sockets, closes them and hands the result to the
// registry. It runs at most once.
func (s *Session) finish(res Result) {
	if s.finished {
		return
	}
	s.finished = true
	s.running = false
	s.engine.Pause()

	s.broadcastEvent(protocol.EventEOG, protocol.EndOfGamePayload{
		WinnerID: res.WinnerID,
		Score1:   res.Score1,
		Score2:   res.Score2,
		Forfeit:  res.Forfeit,
		Reason:   string(res.Reason),
	})
	s.closeConns()

	if s.onEnd != nil {
		s.onEnd(res)
	}
}

func (s *Session) closeConns() {
	for _, side := range sides {
		if c := s.conns[side]; c != nil {
			_ = c.Close()
			s.conns[side] = nil
		}
	}
}

func (s *Session) timestamp() float64 {
	return float64(s.engine.Tick()) / float64(s.engine.Config().TPS)
}

func (s *Session) broadcast(p protocol.ServerPacket) {
	b, err := s.codec.Encode(p)
	if err != nil {
		log.Error().Err(err).Str("match_code", s.code).Msg("failed to encode packet")
		return
	}
	for _, side := range sides {
		c := s.conns[side]
		if c == nil {
			continue
		}
		if err := c.SendBinary(b); err != nil {
			log.Warn().Err(err).Str("match_code", s.code).Str("side", side.String()).Msg("failed to send packet")
			s.broken[side] = true
		}
	}
}

func (s *Session) broadcastEvent(t protocol.EventType, data any) {
	for _, side := range sides {
		s.sendEvent(side, t, data)
	}
}

func (s *Session) sendEvent(side simulation.Side, t protocol.EventType, data any) {
	c := s.conns[side]
	if c == nil {
		return
	}
	b, err := protocol.MarshalEvent(t, data)
	if err != nil {
		log.Error().Err(err).Str("match_code", s.code).Str("event", string(t)).Msg("failed to marshal event")
		return
	}
	if err := c.SendText(b); err != nil {
		log.Warn().Err(err).Str("match_code", s.code).Str("side", side.String()).Msg("failed to send event")
		s.broken[side] = true
	}
}
