package match

import (
	"context"

	"github.com/mcdev12/pongarena/go/internal/events"
)

// Conn is one player's socket as seen by a session. Sends must not block.
type Conn interface {
	SendBinary(data []byte) error
	SendText(data []byte) error
	Close() error
}

// HistoryRecord is one finished match as stored by the history collaborator.
// Tournament fields are -1 / empty for casual matches.
type HistoryRecord struct {
	MatchCode      string
	Player1ID      int
	Player2ID      int
	Score1         int
	Score2         int
	TournamentCode string
	Round          int
	MatchNumber    int
}

// HistoryRecorder persists finished matches.
type HistoryRecorder interface {
	SaveMatchToHistory(ctx context.Context, rec HistoryRecord) error
}

// Notifier publishes domain events.
type Notifier interface {
	Notify(ctx context.Context, ev events.Event) error
}

// Metrics receives registry gauges.
type Metrics interface {
	SetActiveMatches(n int)
	MatchEnded(reason string)
}

// TournamentHook is called with the result of every tournament match.
type TournamentHook interface {
	OnTournamentMatchEnd(ctx context.Context, res Result) error
}

type noopHistory struct{}

func (noopHistory) SaveMatchToHistory(context.Context, HistoryRecord) error { return nil }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, events.Event) error { return nil }

type noopMetrics struct{}

func (noopMetrics) SetActiveMatches(int) {}
func (noopMetrics) MatchEnded(string)    {}

// historyRecord converts a result into the collaborator's shape.
func historyRecord(res Result) HistoryRecord {
	rec := HistoryRecord{
		MatchCode:   res.Code,
		Player1ID:   res.P1.ID,
		Score1:      res.Score1,
		Score2:      res.Score2,
		Round:       -1,
		MatchNumber: -1,
	}
	if res.P2 != nil {
		rec.Player2ID = res.P2.ID
	}
	if res.Tournament != nil {
		rec.TournamentCode = res.Tournament.TournamentCode
		rec.Round = res.Tournament.Round
		rec.MatchNumber = res.Tournament.MatchNumber
	}
	return rec
}
