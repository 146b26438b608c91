package match

import (
	"time"
)

// PlayerRef identifies a player as handed to us by the auth layer.
type PlayerRef struct {
	ID    int    `json:"id"`
	Login string `json:"login"`
}

// Status of a match in the registry.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// TournamentRef ties a match to its bracket slot.
type TournamentRef struct {
	TournamentCode string `json:"tournament_code"`
	Round          int    `json:"round"`
	MatchNumber    int    `json:"match_number"`
}

// Match is a snapshot of a registry entry.
type Match struct {
	Code       string         `json:"code"`
	P1         PlayerRef      `json:"p1"`
	P2         *PlayerRef     `json:"p2,omitempty"`
	Status     Status         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	Tournament *TournamentRef `json:"tournament,omitempty"`
}

// EndReason records how a match finished.
type EndReason string

const (
	ReasonScore          EndReason = "score"
	ReasonDisconnect     EndReason = "disconnect"
	ReasonJoinTimeout    EndReason = "join_timeout"
	ReasonConnectTimeout EndReason = "connect_timeout"
	ReasonForfeit        EndReason = "forfeit"
)

// Result is what a finished match reports to history, notifications and the
// tournament engine. Scores are points scored by each player.
type Result struct {
	Code       string
	P1         PlayerRef
	P2         *PlayerRef
	Score1     int
	Score2     int
	WinnerID   int
	Forfeit    bool
	Reason     EndReason
	Tournament *TournamentRef
	EndedAt    time.Time
}

// LoserID returns the id of the player who did not win, or 0.
func (r Result) LoserID() int {
	switch {
	case r.P2 == nil:
		return 0
	case r.WinnerID == r.P1.ID:
		return r.P2.ID
	case r.WinnerID == r.P2.ID:
		return r.P1.ID
	}
	return 0
}
