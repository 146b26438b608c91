package events

import (
	"encoding/json"
	"time"
)

// Event payload types shared by the match registry, the tournament engine and
// the outbox relay.

// Type is the outbox event_type column and the JetStream subject suffix.
type Type string

const (
	TypeMatchCreated         Type = "MatchCreated"
	TypeMatchStarted         Type = "MatchStarted"
	TypeMatchEnded           Type = "MatchEnded"
	TypeTournamentStarted    Type = "TournamentStarted"
	TypeTournamentMatchReady Type = "TournamentMatchReady"
	TypeTournamentCompleted  Type = "TournamentCompleted"
)

// Event is handed to a notifier. AggregateID is the match or tournament code.
type Event struct {
	Type        Type
	AggregateID string
	Payload     any
}

// MatchCreatedPayload is the payload for a MatchCreated event
type MatchCreatedPayload struct {
	MatchCode      string    `json:"match_code"`
	Player1ID      int       `json:"player1_id"`
	Player2ID      int       `json:"player2_id,omitempty"`
	TournamentCode string    `json:"tournament_code,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MatchStartedPayload is the payload for a MatchStarted event
type MatchStartedPayload struct {
	MatchCode string    `json:"match_code"`
	Player1ID int       `json:"player1_id"`
	Player2ID int       `json:"player2_id"`
	StartedAt time.Time `json:"started_at"`
}

// MatchEndedPayload is the payload for a MatchEnded event
type MatchEndedPayload struct {
	MatchCode      string    `json:"match_code"`
	Player1ID      int       `json:"player1_id"`
	Player2ID      int       `json:"player2_id"`
	Score1         int       `json:"score1"`
	Score2         int       `json:"score2"`
	WinnerID       int       `json:"winner_id"`
	Forfeit        bool      `json:"forfeit"`
	Reason         string    `json:"reason"`
	TournamentCode string    `json:"tournament_code,omitempty"`
	Round          int       `json:"round,omitempty"`
	MatchNumber    int       `json:"match_number,omitempty"`
	EndedAt        time.Time `json:"ended_at"`
}

// TournamentStartedPayload is the payload for a TournamentStarted event
type TournamentStartedPayload struct {
	TournamentCode string    `json:"tournament_code"`
	Participants   []int     `json:"participants"`
	Rounds         int       `json:"rounds"`
	StartedAt      time.Time `json:"started_at"`
}

// TournamentMatchReadyPayload is the payload for a TournamentMatchReady event
type TournamentMatchReadyPayload struct {
	TournamentCode string `json:"tournament_code"`
	Round          int    `json:"round"`
	MatchNumber    int    `json:"match_number"`
	MatchCode      string `json:"match_code"`
	Player1ID      int    `json:"player1_id"`
	Player2ID      int    `json:"player2_id"`
}

// TournamentCompletedPayload is the payload for a TournamentCompleted event
type TournamentCompletedPayload struct {
	TournamentCode string    `json:"tournament_code"`
	WinnerID       int       `json:"winner_id"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Envelope is the JSON body published for every event on the bus.
type Envelope struct {
	EventID     string          `json:"eventId"`
	EventType   Type            `json:"eventType"`
	AggregateID string          `json:"aggregateId"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}
