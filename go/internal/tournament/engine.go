package tournament

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/events"
	"github.com/mcdev12/pongarena/go/internal/match"
)

const (
	DefaultPurgeGrace = 5 * time.Minute

	maxCodeRetries = 32
)

// Config is the tournament policy. AllowedSizes restricts the sizes a
// tournament may be created with; an empty list allows any power of two.
type Config struct {
	AllowedSizes []int
	PurgeGrace   time.Duration
}

func DefaultConfig() Config {
	return Config{
		AllowedSizes: []int{4},
		PurgeGrace:   DefaultPurgeGrace,
	}
}

// MatchRequester is the part of the match registry the engine drives.
type MatchRequester interface {
	RequestMatch(ctx context.Context, p1 match.PlayerRef, p2 *match.PlayerRef, ref *match.TournamentRef) (match.Match, error)
	ForfeitPlayer(ctx context.Context, playerID int) error
	MatchOf(playerID int) (string, bool)
}

// Metrics receives the active tournament gauge.
type Metrics interface {
	SetActiveTournaments(n int)
}

type noopMetrics struct{}

func (noopMetrics) SetActiveTournaments(int) {}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, events.Event) error { return nil }

type entry struct {
	t       Tournament
	players map[int]match.PlayerRef
	// participants who quit after the bracket was drawn; their future
	// matches are walkovers
	quit  map[int]struct{}
	purge clockwork.Timer
}

// startReq is a bracket match whose two players are known and that still
// needs a live game.
type startReq struct {
	code        string
	round       int
	matchNumber int
	p1, p2      match.PlayerRef
}

// Engine runs single-elimination tournaments on top of the match registry.
// It implements match.TournamentHook. mu is never held while calling the
// registry.
type Engine struct {
	cfg      Config
	matches  MatchRequester
	clock    clockwork.Clock
	notifier match.Notifier
	metrics  Metrics

	mu          sync.Mutex
	tournaments map[string]*entry
	// player id -> tournament code for pending and ongoing tournaments
	participants map[int]string
	rng          *rand.Rand
}

// NewEngine creates a tournament engine. Nil collaborators are replaced with
// no-ops.
func NewEngine(cfg Config, matches MatchRequester, clock clockwork.Clock, notifier match.Notifier, metrics Metrics) *Engine {
	if cfg.PurgeGrace <= 0 {
		cfg.PurgeGrace = DefaultPurgeGrace
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Engine{
		cfg:          cfg,
		matches:      matches,
		clock:        clock,
		notifier:     notifier,
		metrics:      metrics,
		tournaments:  make(map[string]*entry),
		participants: make(map[int]string),
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Create opens a pending tournament of size maxParticipants with creator as
// its first participant.
func (e *Engine) Create(ctx context.Context, creator match.PlayerRef, maxParticipants int) (Tournament, error) {
	if creator.ID <= 0 {
		return Tournament{}, match.ErrInvalidPlayer
	}
	if !IsPowerOfTwo(maxParticipants) {
		return Tournament{}, fmt.Errorf("%w: %d is not a power of two", ErrInvalidSize, maxParticipants)
	}
	if len(e.cfg.AllowedSizes) > 0 && !slices.Contains(e.cfg.AllowedSizes, maxParticipants) {
		return Tournament{}, fmt.Errorf("%w: allowed sizes are %v", ErrInvalidSize, e.cfg.AllowedSizes)
	}

	e.mu.Lock()
	if _, ok := e.participants[creator.ID]; ok {
		e.mu.Unlock()
		return Tournament{}, ErrAlreadyInTournament
	}
	code, err := e.uniqueCodeLocked()
	if err != nil {
		e.mu.Unlock()
		return Tournament{}, err
	}
	en := &entry{
		t: Tournament{
			Code:            code,
			Status:          StatusPending,
			MaxParticipants: maxParticipants,
			Participants:    []match.PlayerRef{creator},
			CreatedAt:       e.clock.Now(),
		},
		players: map[int]match.PlayerRef{creator.ID: creator},
		quit:    make(map[int]struct{}),
	}
	e.tournaments[code] = en
	e.participants[creator.ID] = code
	snapshot := en.t.clone()
	active := e.activeLocked()
	e.mu.Unlock()

	e.metrics.SetActiveTournaments(active)
	log.Info().
		Str("tournament_code", code).
		Int("user_id", creator.ID).
		Int("max_participants", maxParticipants).
		Msg("tournament created")
	return snapshot, nil
}

// Join adds player to a pending tournament. The join that fills it draws the
// bracket and starts the first round.
func (e *Engine) Join(ctx context.Context, code string, player match.PlayerRef) (Tournament, error) {
	if player.ID <= 0 {
		return Tournament{}, match.ErrInvalidPlayer
	}

	e.mu.Lock()
	en, ok := e.tournaments[code]
	if !ok {
		e.mu.Unlock()
		return Tournament{}, ErrTournamentNotFound
	}
	if _, busy := e.participants[player.ID]; busy {
		e.mu.Unlock()
		return Tournament{}, ErrAlreadyInTournament
	}
	if en.t.Status != StatusPending || len(en.t.Participants) >= en.t.MaxParticipants {
		e.mu.Unlock()
		return Tournament{}, ErrTournamentFull
	}

	en.t.Participants = append(en.t.Participants, player)
	en.players[player.ID] = player
	e.participants[player.ID] = code
	log.Info().
		Str("tournament_code", code).
		Int("user_id", player.ID).
		Int("participants", len(en.t.Participants)).
		Msg("player joined tournament")

	var reqs []startReq
	if len(en.t.Participants) == en.t.MaxParticipants {
		var err error
		reqs, err = e.drawLocked(en)
		if err != nil {
			e.mu.Unlock()
			log.Error().Err(err).Str("tournament_code", code).Msg("failed to build bracket")
			return Tournament{}, err
		}
	}
	snapshot := en.t.clone()
	e.mu.Unlock()

	if reqs != nil {
		ids := make([]int, len(snapshot.Participants))
		for i, p := range snapshot.Participants {
			ids[i] = p.ID
		}
		e.notify(ctx, events.Event{
			Type:        events.TypeTournamentStarted,
			AggregateID: code,
			Payload: events.TournamentStartedPayload{
				TournamentCode: code,
				Participants:   ids,
				Rounds:         Rounds(snapshot.MaxParticipants),
				StartedAt:      e.clock.Now(),
			},
		})
		e.startMatches(ctx, reqs)
		if latest, ok := e.Get(code); ok {
			snapshot = latest
		}
	}
	return snapshot, nil
}

// drawLocked shuffles the participants, builds the bracket and returns the
// first-round matches to start.
func (e *Engine) drawLocked(en *entry) ([]startReq, error) {
	e.rng.Shuffle(len(en.t.Participants), func(i, j int) {
		en.t.Participants[i], en.t.Participants[j] = en.t.Participants[j], en.t.Participants[i]
	})
	ids := make([]int, len(en.t.Participants))
	for i, p := range en.t.Participants {
		ids[i] = p.ID
	}

	slots, err := BuildBracket(ids)
	if err != nil {
		return nil, err
	}
	en.t.Matches = slots
	en.t.Status = StatusOngoing

	maxRound := Rounds(en.t.MaxParticipants)
	reqs := make([]startReq, 0, len(slots)/2+1)
	for i := range en.t.Matches {
		s := &en.t.Matches[i]
		if s.Round == maxRound {
			reqs = append(reqs, e.requestFor(en, s))
		}
	}
	log.Info().
		Str("tournament_code", en.t.Code).
		Int("rounds", maxRound).
		Int("matches", len(slots)).
		Msg("tournament bracket drawn")
	return reqs, nil
}

func (e *Engine) requestFor(en *entry, s *MatchSlot) startReq {
	return startReq{
		code:        en.t.Code,
		round:       s.Round,
		matchNumber: s.MatchNumber,
		p1:          en.players[*s.Player1ID],
		p2:          en.players[*s.Player2ID],
	}
}

// startMatches turns ready bracket slots into live matches. A slot that
// cannot be played is decided as a walkover, which may make more slots ready.
func (e *Engine) startMatches(ctx context.Context, reqs []startReq) {
	for len(reqs) > 0 {
		req := reqs[0]
		reqs = reqs[1:]

		if winner, ok := e.walkoverWinner(req); ok {
			reqs = append(reqs, e.walkover(ctx, req, winner)...)
			continue
		}

		p2 := req.p2
		m, err := e.matches.RequestMatch(ctx, req.p1, &p2, &match.TournamentRef{
			TournamentCode: req.code,
			Round:          req.round,
			MatchNumber:    req.matchNumber,
		})
		if err != nil {
			log.Error().
				Err(err).
				Str("tournament_code", req.code).
				Int("round", req.round).
				Int("match_number", req.matchNumber).
				Msg("failed to start tournament match")
			winner := req.p1.ID
			if errors.Is(err, match.ErrPlayerAlreadyInMatch) {
				if _, busy := e.matches.MatchOf(req.p1.ID); busy {
					winner = req.p2.ID
				}
			}
			reqs = append(reqs, e.walkover(ctx, req, winner)...)
			continue
		}

		e.mu.Lock()
		if en, ok := e.tournaments[req.code]; ok {
			if s, ok := en.t.Slot(req.round, req.matchNumber); ok && s.Status == SlotPending {
				s.Status = SlotOngoing
				s.GameCode = m.Code
			}
		}
		e.mu.Unlock()

		e.notify(ctx, events.Event{
			Type:        events.TypeTournamentMatchReady,
			AggregateID: req.code,
			Payload: events.TournamentMatchReadyPayload{
				TournamentCode: req.code,
				Round:          req.round,
				MatchNumber:    req.matchNumber,
				MatchCode:      m.Code,
				Player1ID:      req.p1.ID,
				Player2ID:      req.p2.ID,
			},
		})
		log.Info().
			Str("tournament_code", req.code).
			Str("match_code", m.Code).
			Int("round", req.round).
			Int("match_number", req.matchNumber).
			Msg("tournament match started")
	}
}

// walkoverWinner decides a slot without playing it when a player has quit.
func (e *Engine) walkoverWinner(req startReq) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.tournaments[req.code]
	if !ok {
		return 0, false
	}
	_, q1 := en.quit[req.p1.ID]
	_, q2 := en.quit[req.p2.ID]
	switch {
	case q1 && !q2:
		return req.p2.ID, true
	case q2:
		return req.p1.ID, true
	}
	return 0, false
}

func (e *Engine) walkover(ctx context.Context, req startReq, winnerID int) []startReq {
	log.Warn().
		Str("tournament_code", req.code).
		Int("round", req.round).
		Int("match_number", req.matchNumber).
		Int("winner_id", winnerID).
		Msg("tournament match decided by walkover")

	reqs, completed, err := e.record(req.code, req.round, req.matchNumber, winnerID, 0, 0, true)
	if err != nil {
		log.Error().Err(err).Str("tournament_code", req.code).Msg("failed to record walkover")
		return nil
	}
	if completed != nil {
		e.completed(ctx, *completed)
	}
	return reqs
}

// OnTournamentMatchEnd records a finished tournament match and advances its
// winner. It is called by the match registry.
func (e *Engine) OnTournamentMatchEnd(ctx context.Context, res match.Result) error {
	if res.Tournament == nil {
		return nil
	}
	ref := res.Tournament
	reqs, completed, err := e.record(ref.TournamentCode, ref.Round, ref.MatchNumber, res.WinnerID, res.Score1, res.Score2, res.Forfeit)
	if err != nil {
		if errors.Is(err, ErrInvalidBracketState) {
			log.Error().
				Err(err).
				Str("tournament_code", ref.TournamentCode).
				Str("match_code", res.Code).
				Msg("bracket invariant violated")
		}
		return err
	}
	if completed != nil {
		e.completed(ctx, *completed)
	}
	e.startMatches(ctx, reqs)
	return nil
}

// record stamps a slot with its result and moves the winner down the
// bracket. It returns the slots that became ready and, when the final was
// decided, a snapshot of the completed tournament.
func (e *Engine) record(code string, round, matchNumber, winnerID, score1, score2 int, forfeit bool) ([]startReq, *Tournament, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	en, ok := e.tournaments[code]
	if !ok {
		return nil, nil, ErrTournamentNotFound
	}
	s, ok := en.t.Slot(round, matchNumber)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no match %d/%d", ErrInvalidBracketState, round, matchNumber)
	}
	if s.Status == SlotCompleted {
		return nil, nil, nil
	}
	if s.Player1ID == nil || s.Player2ID == nil {
		return nil, nil, fmt.Errorf("%w: match %d/%d ended before both players were known", ErrInvalidBracketState, round, matchNumber)
	}
	if winnerID != *s.Player1ID && winnerID != *s.Player2ID {
		return nil, nil, fmt.Errorf("%w: winner %d did not play match %d/%d", ErrInvalidBracketState, winnerID, round, matchNumber)
	}

	s.Status = SlotCompleted
	s.ScorePlayer1 = intPtr(score1)
	s.ScorePlayer2 = intPtr(score2)
	s.WinnerID = intPtr(winnerID)
	s.Forfeit = forfeit

	log.Info().
		Str("tournament_code", code).
		Int("round", round).
		Int("match_number", matchNumber).
		Int("winner_id", winnerID).
		Msg("tournament match recorded")

	if round == 1 {
		e.completeLocked(en)
		snapshot := en.t.clone()
		return nil, &snapshot, nil
	}

	next, first, err := nextSlot(&en.t, round, matchNumber)
	if err != nil {
		return nil, nil, err
	}
	if first {
		next.Player1ID = intPtr(winnerID)
	} else {
		next.Player2ID = intPtr(winnerID)
	}
	if next.Player1ID == nil || next.Player2ID == nil {
		return nil, nil, nil
	}
	return []startReq{e.requestFor(en, next)}, nil, nil
}

func (e *Engine) completeLocked(en *entry) {
	now := e.clock.Now()
	en.t.Status = StatusCompleted
	en.t.CompletedAt = &now
	for _, p := range en.t.Participants {
		if e.participants[p.ID] == en.t.Code {
			delete(e.participants, p.ID)
		}
	}

	code := en.t.Code
	en.purge = e.clock.AfterFunc(e.cfg.PurgeGrace, func() { e.purge(code, en) })
}

func (e *Engine) completed(ctx context.Context, t Tournament) {
	winner, _ := t.WinnerID()
	e.metrics.SetActiveTournaments(e.ActiveCount())
	e.notify(ctx, events.Event{
		Type:        events.TypeTournamentCompleted,
		AggregateID: t.Code,
		Payload: events.TournamentCompletedPayload{
			TournamentCode: t.Code,
			WinnerID:       winner,
			CompletedAt:    *t.CompletedAt,
		},
	})
	log.Info().
		Str("tournament_code", t.Code).
		Int("winner_id", winner).
		Msg("tournament completed")
}

// purge drops a completed tournament once clients had time to read it.
func (e *Engine) purge(code string, en *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tournaments[code] != en {
		return
	}
	delete(e.tournaments, code)
	log.Debug().Str("tournament_code", code).Msg("tournament purged")
}

// Quit removes player from a tournament. Leaving a pending tournament frees
// the seat; an empty tournament is deleted. Quitting an ongoing tournament
// forfeits the current match and every later one.
func (e *Engine) Quit(ctx context.Context, code string, player match.PlayerRef) error {
	e.mu.Lock()
	en, ok := e.tournaments[code]
	if !ok {
		e.mu.Unlock()
		return ErrTournamentNotFound
	}
	if en.t.Status == StatusCompleted {
		e.mu.Unlock()
		return ErrTournamentClosed
	}
	if !en.t.hasParticipant(player.ID) {
		e.mu.Unlock()
		return ErrNotParticipant
	}
	if _, gone := en.quit[player.ID]; gone {
		e.mu.Unlock()
		return ErrNotParticipant
	}

	var forfeitMatch bool
	switch en.t.Status {
	case StatusPending:
		en.t.Participants = slices.DeleteFunc(en.t.Participants, func(p match.PlayerRef) bool { return p.ID == player.ID })
		delete(en.players, player.ID)
		if len(en.t.Participants) == 0 {
			delete(e.tournaments, code)
			log.Info().Str("tournament_code", code).Msg("empty tournament deleted")
		}
	case StatusOngoing:
		en.quit[player.ID] = struct{}{}
		forfeitMatch = playingIn(&en.t, player.ID)
	}
	if e.participants[player.ID] == code {
		delete(e.participants, player.ID)
	}
	active := e.activeLocked()
	e.mu.Unlock()

	e.metrics.SetActiveTournaments(active)
	log.Info().
		Str("tournament_code", code).
		Int("user_id", player.ID).
		Msg("player quit tournament")

	if forfeitMatch {
		if err := e.matches.ForfeitPlayer(ctx, player.ID); err != nil && !errors.Is(err, match.ErrMatchNotFound) {
			return fmt.Errorf("failed to forfeit tournament match: %w", err)
		}
	}
	return nil
}

// playingIn reports whether the player has a tournament match in progress.
func playingIn(t *Tournament, playerID int) bool {
	for _, s := range t.Matches {
		if s.Status != SlotOngoing {
			continue
		}
		if (s.Player1ID != nil && *s.Player1ID == playerID) || (s.Player2ID != nil && *s.Player2ID == playerID) {
			return true
		}
	}
	return false
}

// Get returns a snapshot of the tournament with code.
func (e *Engine) Get(code string) (Tournament, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.tournaments[code]
	if !ok {
		return Tournament{}, false
	}
	return en.t.clone(), true
}

// TournamentOf returns the code of the player's pending or ongoing
// tournament.
func (e *Engine) TournamentOf(playerID int) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	code, ok := e.participants[playerID]
	return code, ok
}

// ActiveCount is the number of pending and ongoing tournaments.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeLocked()
}

// Close stops pending purge timers.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, en := range e.tournaments {
		if en.purge != nil {
			en.purge.Stop()
		}
	}
}

func (e *Engine) activeLocked() int {
	n := 0
	for _, en := range e.tournaments {
		if en.t.Status != StatusCompleted {
			n++
		}
	}
	return n
}

func (e *Engine) notify(ctx context.Context, ev events.Event) {
	if err := e.notifier.Notify(ctx, ev); err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Str("aggregate_id", ev.AggregateID).Msg("failed to publish event")
	}
}

func (e *Engine) uniqueCodeLocked() (string, error) {
	for range maxCodeRetries {
		code, err := match.GenerateCode()
		if err != nil {
			return "", err
		}
		if _, taken := e.tournaments[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to allocate tournament code after %d attempts", maxCodeRetries)
}
