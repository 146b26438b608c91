package match

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/events"
	"github.com/mcdev12/pongarena/go/internal/protocol"
	"github.com/mcdev12/pongarena/go/internal/simulation"
)

const (
	DefaultJoinTimeout    = 60 * time.Second
	DefaultConnectTimeout = 30 * time.Second

	historyTimeout = 10 * time.Second
	notifyTimeout  = 5 * time.Second
	maxCodeRetries = 32
	// events queued for the notifier beyond this are dropped
	eventQueueSize = 1024
)

// Config tunes the registry and the sessions it spawns.
type Config struct {
	JoinTimeout      time.Duration
	ConnectTimeout   time.Duration
	Simulation       simulation.Config
	NetworkPrecision float64
}

func DefaultConfig() Config {
	return Config{
		JoinTimeout:      DefaultJoinTimeout,
		ConnectTimeout:   DefaultConnectTimeout,
		Simulation:       simulation.DefaultConfig(),
		NetworkPrecision: protocol.DefaultNetworkPrecision,
	}
}

type entry struct {
	match        Match
	session      *Session
	attached     [2]bool
	joinTimer    clockwork.Timer
	connectTimer clockwork.Timer
	// ending is set once a forfeit is queued; the session no longer accepts
	// a second player.
	ending bool
	ended  bool
}

// Registry owns every live match. All maps are guarded by mu; no
// collaborator is called while mu is held.
type Registry struct {
	cfg   Config
	clock clockwork.Clock
	codec protocol.Codec

	mu            sync.Mutex
	matches       map[string]*entry
	playerToMatch map[int]string
	// players assigned to a match that has not started yet
	busy map[int]struct{}

	history  HistoryRecorder
	notifier Notifier
	metrics  Metrics
	hook     TournamentHook

	// events are delivered in order by dispatch, off the session goroutines
	queue      chan events.Event
	dispatched chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry. Nil collaborators are replaced with no-ops.
func NewRegistry(cfg Config, clock clockwork.Clock, history HistoryRecorder, notifier Notifier, metrics Metrics) *Registry {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	cfg.Simulation = cfg.Simulation.WithDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if history == nil {
		history = noopHistory{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		cfg:           cfg,
		clock:         clock,
		codec:         protocol.NewCodec(cfg.NetworkPrecision),
		matches:       make(map[string]*entry),
		playerToMatch: make(map[int]string),
		busy:          make(map[int]struct{}),
		history:       history,
		notifier:      notifier,
		metrics:       metrics,
		queue:         make(chan events.Event, eventQueueSize),
		dispatched:    make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
	go r.dispatch()
	return r
}

// SetTournamentHook registers the receiver of tournament match results.
func (r *Registry) SetTournamentHook(h TournamentHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = h
}

// RequestMatch creates a waiting match for p1, and for p2 when both players
// are known up front (tournament matches).
func (r *Registry) RequestMatch(ctx context.Context, p1 PlayerRef, p2 *PlayerRef, ref *TournamentRef) (Match, error) {
	if p1.ID <= 0 || (p2 != nil && (p2.ID <= 0 || p2.ID == p1.ID)) {
		return Match{}, ErrInvalidPlayer
	}

	engine, err := simulation.NewEngine(r.cfg.Simulation, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	if err != nil {
		return Match{}, fmt.Errorf("failed to create engine: %w", err)
	}

	r.mu.Lock()
	if r.inMatchLocked(p1.ID) || (p2 != nil && r.inMatchLocked(p2.ID)) {
		r.mu.Unlock()
		return Match{}, ErrPlayerAlreadyInMatch
	}

	code, err := r.uniqueCodeLocked()
	if err != nil {
		r.mu.Unlock()
		return Match{}, err
	}

	m := Match{
		Code:       code,
		P1:         p1,
		Status:     StatusWaiting,
		CreatedAt:  r.clock.Now(),
		Tournament: ref,
	}
	if p2 != nil {
		cp := *p2
		m.P2 = &cp
	}

	e := &entry{match: m}
	e.session = newSession(code, p1, p2, ref, engine, r.codec, r.clock,
		func() { r.markReady(code, e) },
		func(res Result) { r.finish(e, res) },
	)
	r.matches[code] = e
	r.indexPlayerLocked(p1.ID, code)
	if p2 != nil {
		r.indexPlayerLocked(p2.ID, code)
		r.armTimer(&e.connectTimer, code, r.cfg.ConnectTimeout, func() { r.expire(code, e, ReasonConnectTimeout) })
	} else {
		r.armTimer(&e.joinTimer, code, r.cfg.JoinTimeout, func() { r.expire(code, e, ReasonJoinTimeout) })
	}
	active := len(r.matches)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		e.session.run(r.ctx)
	}()
	r.mu.Unlock()

	r.metrics.SetActiveMatches(active)
	r.notify(events.Event{
		Type:        events.TypeMatchCreated,
		AggregateID: code,
		Payload: events.MatchCreatedPayload{
			MatchCode:      code,
			Player1ID:      p1.ID,
			Player2ID:      playerID(p2),
			TournamentCode: tournamentCode(ref),
			CreatedAt:      m.CreatedAt,
		},
	})

	log.Info().
		Str("match_code", code).
		Int("player1_id", p1.ID).
		Int("player2_id", playerID(p2)).
		Str("tournament_code", tournamentCode(ref)).
		Msg("match created")
	return m, nil
}

// JoinMatch seats p as the second player of a waiting match.
func (r *Registry) JoinMatch(ctx context.Context, code string, p PlayerRef) (Match, error) {
	if p.ID <= 0 {
		return Match{}, ErrInvalidPlayer
	}

	r.mu.Lock()
	e, ok := r.matches[code]
	if !ok || e.ended || e.ending {
		r.mu.Unlock()
		return Match{}, ErrMatchNotFound
	}
	if e.match.P1.ID == p.ID || r.inMatchLocked(p.ID) {
		r.mu.Unlock()
		return Match{}, ErrPlayerAlreadyInMatch
	}
	if e.match.P2 != nil {
		r.mu.Unlock()
		return Match{}, ErrMatchFull
	}

	cp := p
	e.match.P2 = &cp
	r.indexPlayerLocked(p.ID, code)
	cancelTimer(&e.joinTimer)
	r.armTimer(&e.connectTimer, code, r.cfg.ConnectTimeout, func() { r.expire(code, e, ReasonConnectTimeout) })
	m := e.match
	r.mu.Unlock()

	if err := e.session.submit(ctx, joinCmd{player: p}); err != nil {
		r.mu.Lock()
		if !e.ended && e.match.P2 != nil && e.match.P2.ID == p.ID {
			e.match.P2 = nil
			cancelTimer(&e.connectTimer)
			r.armTimer(&e.joinTimer, code, r.cfg.JoinTimeout, func() { r.expire(code, e, ReasonJoinTimeout) })
		}
		r.releasePlayerLocked(p.ID, code)
		r.mu.Unlock()
		return Match{}, fmt.Errorf("failed to seat player: %w", err)
	}

	log.Info().
		Str("match_code", code).
		Int("user_id", p.ID).
		Msg("player joined match")
	return m, nil
}

// Attach binds conn to p's side of the match. The returned seat forwards the
// socket's input to the session.
func (r *Registry) Attach(ctx context.Context, code string, p PlayerRef, conn Conn) (*Seat, error) {
	r.mu.Lock()
	e, ok := r.matches[code]
	if !ok || e.ended || e.ending {
		r.mu.Unlock()
		return nil, ErrMatchNotFound
	}
	var side simulation.Side
	switch {
	case e.match.P1.ID == p.ID:
		side = simulation.Left
	case e.match.P2 != nil && e.match.P2.ID == p.ID:
		side = simulation.Right
	default:
		r.mu.Unlock()
		return nil, ErrNotAParticipant
	}
	if e.attached[side] {
		r.mu.Unlock()
		return nil, ErrAlreadyAttached
	}
	e.attached[side] = true
	r.mu.Unlock()

	reply := make(chan error, 1)
	err := e.session.submit(ctx, attachCmd{side: side, conn: conn, reply: reply})
	if err == nil {
		select {
		case err = <-reply:
		case <-e.session.done:
			err = ErrSessionClosed
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		r.mu.Lock()
		e.attached[side] = false
		r.mu.Unlock()
		return nil, err
	}

	return &Seat{session: e.session, side: side, conn: conn, Player: p, Code: code}, nil
}

// ForfeitPlayer ends the player's current match in the opponent's favour.
func (r *Registry) ForfeitPlayer(ctx context.Context, playerID int) error {
	r.mu.Lock()
	code, ok := r.playerToMatch[playerID]
	if !ok {
		r.mu.Unlock()
		return ErrMatchNotFound
	}
	e, ok := r.matches[code]
	if !ok || e.ended {
		r.mu.Unlock()
		return ErrMatchNotFound
	}
	side := simulation.Left
	if e.match.P1.ID != playerID {
		side = simulation.Right
	}
	e.ending = true
	r.mu.Unlock()

	log.Info().Str("match_code", code).Int("user_id", playerID).Msg("player forfeits match")
	return e.session.submit(ctx, forfeitCmd{loser: side, reason: ReasonForfeit})
}

// Get returns a snapshot of the match with code.
func (r *Registry) Get(code string) (Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.matches[code]
	if !ok {
		return Match{}, false
	}
	return e.match, true
}

// MatchOf returns the code of the player's current match.
func (r *Registry) MatchOf(playerID int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.playerToMatch[playerID]
	return code, ok
}

// IsBusy reports whether the player is seated in a match that has not
// started yet.
func (r *Registry) IsBusy(playerID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.busy[playerID]
	return ok
}

func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

// Close stops every session and waits for pending history writes.
func (r *Registry) Close() {
	r.mu.Lock()
	for _, e := range r.matches {
		cancelTimer(&e.joinTimer)
		cancelTimer(&e.connectTimer)
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	<-r.dispatched
	log.Info().Msg("match registry closed")
}

func (r *Registry) markReady(code string, e *entry) {
	r.mu.Lock()
	if r.matches[code] != e || e.ended {
		r.mu.Unlock()
		return
	}
	e.match.Status = StatusActive
	cancelTimer(&e.connectTimer)
	delete(r.busy, e.match.P1.ID)
	if e.match.P2 != nil {
		delete(r.busy, e.match.P2.ID)
	}
	m := e.match
	r.mu.Unlock()

	r.notify(events.Event{
		Type:        events.TypeMatchStarted,
		AggregateID: code,
		Payload: events.MatchStartedPayload{
			MatchCode: code,
			Player1ID: m.P1.ID,
			Player2ID: playerID(m.P2),
			StartedAt: r.clock.Now(),
		},
	})
}

// expire handles a join or connect timeout. A timer that fires after its
// match ended or was replaced does nothing.
func (r *Registry) expire(code string, e *entry, reason EndReason) {
	r.mu.Lock()
	if r.matches[code] != e || e.ended || e.match.Status == StatusActive {
		r.mu.Unlock()
		return
	}
	// the join timer lost the race with JoinMatch
	if reason == ReasonJoinTimeout && e.match.P2 != nil {
		r.mu.Unlock()
		return
	}
	loser := simulation.Right
	if reason == ReasonConnectTimeout && e.attached[simulation.Right] && !e.attached[simulation.Left] {
		loser = simulation.Left
	}
	e.ending = true
	r.mu.Unlock()

	log.Warn().
		Str("match_code", code).
		Str("reason", string(reason)).
		Msg("match timed out")

	if err := e.session.submit(r.ctx, forfeitCmd{loser: loser, reason: reason}); err != nil {
		log.Debug().Err(err).Str("match_code", code).Msg("timeout after session stopped")
	}
}

// finish is the end-match procedure. It runs once per entry, on the
// session's goroutine.
func (r *Registry) finish(e *entry, res Result) {
	r.mu.Lock()
	if e.ended {
		r.mu.Unlock()
		return
	}
	e.ended = true
	e.match.Status = StatusEnded
	cancelTimer(&e.joinTimer)
	cancelTimer(&e.connectTimer)
	if r.matches[res.Code] == e {
		delete(r.matches, res.Code)
	}
	r.releasePlayerLocked(e.match.P1.ID, res.Code)
	if e.match.P2 != nil {
		r.releasePlayerLocked(e.match.P2.ID, res.Code)
	}
	active := len(r.matches)
	hook := r.hook
	r.mu.Unlock()

	r.metrics.SetActiveMatches(active)
	r.metrics.MatchEnded(string(res.Reason))

	// A match nobody joined has nothing worth keeping.
	if res.P2 != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), historyTimeout)
			defer cancel()
			if err := r.history.SaveMatchToHistory(ctx, historyRecord(res)); err != nil {
				log.Error().Err(err).Str("match_code", res.Code).Msg("failed to save match history")
			}
		}()
	}

	r.notify(events.Event{
		Type:        events.TypeMatchEnded,
		AggregateID: res.Code,
		Payload: events.MatchEndedPayload{
			MatchCode:      res.Code,
			Player1ID:      res.P1.ID,
			Player2ID:      playerID(res.P2),
			Score1:         res.Score1,
			Score2:         res.Score2,
			WinnerID:       res.WinnerID,
			Forfeit:        res.Forfeit,
			Reason:         string(res.Reason),
			TournamentCode: tournamentCode(res.Tournament),
			Round:          tournamentRound(res.Tournament),
			MatchNumber:    tournamentMatchNumber(res.Tournament),
			EndedAt:        res.EndedAt,
		},
	})

	if res.Tournament != nil && hook != nil {
		if err := hook.OnTournamentMatchEnd(r.ctx, res); err != nil {
			log.Error().
				Err(err).
				Str("match_code", res.Code).
				Str("tournament_code", res.Tournament.TournamentCode).
				Msg("failed to advance tournament")
		}
	}

	log.Info().
		Str("match_code", res.Code).
		Int("winner_id", res.WinnerID).
		Int("score1", res.Score1).
		Int("score2", res.Score2).
		Bool("forfeit", res.Forfeit).
		Str("reason", string(res.Reason)).
		Msg("match ended")
}

// notify queues ev for the notifier. It never blocks.
func (r *Registry) notify(ev events.Event) {
	select {
	case r.queue <- ev:
	default:
		log.Error().Str("event_type", string(ev.Type)).Str("aggregate_id", ev.AggregateID).Msg("event queue full, dropping event")
	}
}

// dispatch hands queued events to the notifier in order. On Close it
// flushes what is already queued.
func (r *Registry) dispatch() {
	defer close(r.dispatched)
	for {
		select {
		case ev := <-r.queue:
			r.deliver(ev)
		case <-r.ctx.Done():
			for {
				select {
				case ev := <-r.queue:
					r.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Registry) deliver(ev events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), notifyTimeout)
	defer cancel()
	if err := r.notifier.Notify(ctx, ev); err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Str("aggregate_id", ev.AggregateID).Msg("failed to publish event")
	}
}

func (r *Registry) inMatchLocked(playerID int) bool {
	if _, ok := r.playerToMatch[playerID]; ok {
		return true
	}
	_, ok := r.busy[playerID]
	return ok
}

func (r *Registry) indexPlayerLocked(playerID int, code string) {
	r.playerToMatch[playerID] = code
	r.busy[playerID] = struct{}{}
}

func (r *Registry) releasePlayerLocked(playerID int, code string) {
	if r.playerToMatch[playerID] == code {
		delete(r.playerToMatch, playerID)
		delete(r.busy, playerID)
	}
}

func (r *Registry) uniqueCodeLocked() (string, error) {
	for range maxCodeRetries {
		code, err := GenerateCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.matches[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to allocate match code after %d attempts", maxCodeRetries)
}

func playerID(p *PlayerRef) int {
	if p == nil {
		return 0
	}
	return p.ID
}

func tournamentCode(ref *TournamentRef) string {
	if ref == nil {
		return ""
	}
	return ref.TournamentCode
}

func tournamentRound(ref *TournamentRef) int {
	if ref == nil {
		return -1
	}
	return ref.Round
}

func tournamentMatchNumber(ref *TournamentRef) int {
	if ref == nil {
		return -1
	}
	return ref.MatchNumber
}
