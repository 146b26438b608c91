package protocol

import "encoding/json"

// EventType names a control event sent as a JSON text frame alongside the
// binary stream.
type EventType string

const (
	EventSlot       EventType = "slot"
	EventOpponent   EventType = "opponent"
	EventStart      EventType = "start"
	EventStartingIn EventType = "startingIn"
	EventEOG        EventType = "EOG"
)

// ControlEvent is the envelope of every text frame.
type ControlEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SlotPayload tells a client which side it controls.
type SlotPayload struct {
	MatchCode string `json:"matchCode"`
	Slot      int    `json:"slot"` // 1 or 2
	MaxLives  int    `json:"maxLives"`
}

// OpponentPayload introduces the other player.
type OpponentPayload struct {
	UserID int    `json:"userId"`
	Login  string `json:"login"`
}

// StartingInPayload announces a countdown second.
type StartingInPayload struct {
	Seconds int `json:"seconds"`
}

// EndOfGamePayload closes a match.
type EndOfGamePayload struct {
	WinnerID int    `json:"winnerId"`
	Score1   int    `json:"score1"`
	Score2   int    `json:"score2"`
	Forfeit  bool   `json:"forfeit"`
	Reason   string `json:"reason,omitempty"`
}

// MarshalEvent builds the JSON text frame for an event. data may be nil.
func MarshalEvent(t EventType, data any) ([]byte, error) {
	ev := ControlEvent{Type: t}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		ev.Data = raw
	}
	return json.Marshal(ev)
}

// ParseEventPayload decodes an event's data into its payload struct.
func ParseEventPayload(ev ControlEvent) (any, error) {
	var payload any
	switch ev.Type {
	case EventSlot:
		payload = &SlotPayload{}
	case EventOpponent:
		payload = &OpponentPayload{}
	case EventStartingIn:
		payload = &StartingInPayload{}
	case EventEOG:
		payload = &EndOfGamePayload{}
	default:
		return nil, nil
	}
	if err := json.Unmarshal(ev.Data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
