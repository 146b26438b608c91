package protocol

import "github.com/mcdev12/pongarena/go/internal/geometry"

// Client packets pack their kind into the low three bits of the first byte
// and use the next two bits as flags.
const (
	clientKindMask = 0b00111
	moveKind       = 0b00001
	ballKind       = 0b00101

	moveMovingBit = 0b01000
	moveDownBit   = 0b10000

	// BallVelocityBit marks a ball report that carries velocity.
	BallVelocityBit = 0b01000
	// BallPositionBit marks a ball report that carries position.
	BallPositionBit = 0b10000

	TypeBallTimestamp = ballKind
	TypeBallVelocity  = ballKind | BallVelocityBit
	TypeBallPosition  = ballKind | BallPositionBit
	TypeBallFull      = TypeBallVelocity | TypeBallPosition
)

// Direction of a Move request.
type Direction uint8

const (
	Up Direction = iota
	Down
)

// ClientPacket is one of the client to server packets in this file.
type ClientPacket interface {
	TypeByte() byte
	appendTo(b []byte) []byte
}

// Move is a paddle input.
type Move struct {
	Moving    bool
	Direction Direction
	Timestamp float64
}

// BallReport is the client's view of the ball. The server is authoritative
// and only logs these.
type BallReport struct {
	Timestamp   float64
	HasVelocity bool
	Velocity    geometry.Vector2
	Factor      float64
	HasPosition bool
	Position    geometry.Vector2
}

func (m Move) TypeByte() byte {
	b := byte(moveKind)
	if m.Moving {
		b |= moveMovingBit
	}
	if m.Direction == Down {
		b |= moveDownBit
	}
	return b
}

func (m Move) appendTo(b []byte) []byte {
	return appendFloat64(b, m.Timestamp)
}

func (r BallReport) TypeByte() byte {
	b := byte(ballKind)
	if r.HasVelocity {
		b |= BallVelocityBit
	}
	if r.HasPosition {
		b |= BallPositionBit
	}
	return b
}

func (r BallReport) appendTo(b []byte) []byte {
	b = appendFloat64(b, r.Timestamp)
	if r.HasVelocity {
		b = appendFloat64(appendVector(b, r.Velocity), r.Factor)
	}
	if r.HasPosition {
		b = appendVector(b, r.Position)
	}
	return b
}

// EncodeClient serializes a client packet.
func (c Codec) EncodeClient(p ClientPacket) []byte {
	return p.appendTo([]byte{p.TypeByte()})
}

// DecodeClient parses a client packet. Frames of an unknown kind yield
// (nil, nil).
func (c Codec) DecodeClient(data []byte) (ClientPacket, error) {
	if len(data) == 0 {
		return nil, ErrTruncated
	}
	head := data[0]
	r := &reader{data: data, offset: 1}

	var p ClientPacket
	switch head & clientKindMask {
	case moveKind:
		m := Move{Moving: head&moveMovingBit != 0, Direction: Up}
		if head&moveDownBit != 0 {
			m.Direction = Down
		}
		m.Timestamp = r.float64()
		p = m
	case ballKind:
		br := BallReport{Timestamp: r.float64()}
		if head&BallVelocityBit != 0 {
			br.HasVelocity = true
			br.Velocity = r.vector()
			br.Factor = r.float64()
		}
		if head&BallPositionBit != 0 {
			br.HasPosition = true
			br.Position = r.vector()
		}
		p = br
	default:
		return nil, nil
	}

	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}
