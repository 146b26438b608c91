package tournament

import (
	"slices"
	"time"

	"github.com/mcdev12/pongarena/go/internal/match"
)

// Status of a tournament.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
)

// SlotStatus of one bracket match.
type SlotStatus string

const (
	SlotPending   SlotStatus = "pending"
	SlotOngoing   SlotStatus = "ongoing"
	SlotCompleted SlotStatus = "completed"
)

// MatchSlot is one node of the bracket. Round 1 is the final; the previous
// match ids point at match numbers in the round above.
type MatchSlot struct {
	Round            int        `json:"round"`
	MatchNumber      int        `json:"match_number"`
	Player1ID        *int       `json:"player1_id,omitempty"`
	Player2ID        *int       `json:"player2_id,omitempty"`
	PreviousMatchID1 *int       `json:"previous_match_id1,omitempty"`
	PreviousMatchID2 *int       `json:"previous_match_id2,omitempty"`
	Status           SlotStatus `json:"status"`
	ScorePlayer1     *int       `json:"score_player1,omitempty"`
	ScorePlayer2     *int       `json:"score_player2,omitempty"`
	WinnerID         *int       `json:"winner_id,omitempty"`
	Forfeit          bool       `json:"forfeit,omitempty"`
	GameCode         string     `json:"game_code,omitempty"`
}

// Tournament is a snapshot of a single-elimination tournament.
type Tournament struct {
	Code            string            `json:"code"`
	Status          Status            `json:"status"`
	MaxParticipants int               `json:"max_participants"`
	Participants    []match.PlayerRef `json:"participants"`
	Matches         []MatchSlot       `json:"matches"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

// Slot returns the bracket match at (round, matchNumber).
func (t *Tournament) Slot(round, matchNumber int) (*MatchSlot, bool) {
	for i := range t.Matches {
		if t.Matches[i].Round == round && t.Matches[i].MatchNumber == matchNumber {
			return &t.Matches[i], true
		}
	}
	return nil, false
}

// WinnerID returns the tournament winner once the final is decided.
func (t *Tournament) WinnerID() (int, bool) {
	final, ok := t.Slot(1, 0)
	if !ok || final.WinnerID == nil {
		return 0, false
	}
	return *final.WinnerID, true
}

func (t *Tournament) hasParticipant(id int) bool {
	return slices.ContainsFunc(t.Participants, func(p match.PlayerRef) bool { return p.ID == id })
}

func (t *Tournament) clone() Tournament {
	c := *t
	c.Participants = slices.Clone(t.Participants)
	c.Matches = make([]MatchSlot, len(t.Matches))
	for i, s := range t.Matches {
		c.Matches[i] = s.clone()
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return c
}

func (s MatchSlot) clone() MatchSlot {
	s.Player1ID = cloneInt(s.Player1ID)
	s.Player2ID = cloneInt(s.Player2ID)
	s.PreviousMatchID1 = cloneInt(s.PreviousMatchID1)
	s.PreviousMatchID2 = cloneInt(s.PreviousMatchID2)
	s.ScorePlayer1 = cloneInt(s.ScorePlayer1)
	s.ScorePlayer2 = cloneInt(s.ScorePlayer2)
	s.WinnerID = cloneInt(s.WinnerID)
	return s
}

func intPtr(v int) *int { return &v }

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	return intPtr(*p)
}
