package protocol

import (
	"fmt"
	"math/bits"

	"github.com/mcdev12/pongarena/go/internal/geometry"
)

// PacketType is the leading byte of every server packet.
type PacketType uint8

const (
	TypeSegmentUpdate  PacketType = 0x02
	TypeBallVeloChange PacketType = 0x04
	TypeBallPos        PacketType = 0x05
	TypeBallSync       PacketType = 0x06
	TypeScore          PacketType = 0x07
	TypeCountdown      PacketType = 0x08
)

const (
	// MaxSegments is the most segments one SegmentUpdate can carry.
	MaxSegments = 255

	segmentSize  = 32
	ballSyncSize = 11
	scoreMask    = 0x1F
)

// SegmentKind tells the client which geometry a SegmentUpdate replaces.
type SegmentKind uint8

const (
	SegmentArena SegmentKind = iota
	SegmentPadLeft
	SegmentPadRight
)

// ServerPacket is one of the server to client packets in this file.
type ServerPacket interface {
	Type() PacketType
	appendTo(b []byte, c Codec) ([]byte, error)
}

// SegmentUpdate pushes arena or pad geometry.
type SegmentUpdate struct {
	Time     float64
	Kind     SegmentKind
	Segments []geometry.Segment
}

// BallVeloChange carries a new ball velocity and speed factor.
type BallVeloChange struct {
	Velocity geometry.Vector2
	Factor   float64
}

// BallPos carries a ball position.
type BallPos struct {
	Position geometry.Vector2
}

// BallSync is the compact per-tick ball state, quantized to int16.
type BallSync struct {
	Velocity geometry.Vector2
	Factor   float64
	Position geometry.Vector2
}

// Score carries both scores and the life cap. Each value travels in five
// bits; larger values wrap.
type Score struct {
	P1       int
	P2       int
	MaxLives int
}

// Countdown carries the seconds left before play resumes.
type Countdown struct {
	Seconds uint8
}

func (SegmentUpdate) Type() PacketType  { return TypeSegmentUpdate }
func (BallVeloChange) Type() PacketType { return TypeBallVeloChange }
func (BallPos) Type() PacketType        { return TypeBallPos }
func (BallSync) Type() PacketType       { return TypeBallSync }
func (Score) Type() PacketType          { return TypeScore }
func (Countdown) Type() PacketType      { return TypeCountdown }

func (p SegmentUpdate) appendTo(b []byte, _ Codec) ([]byte, error) {
	if len(p.Segments) > MaxSegments {
		return nil, fmt.Errorf("%w: %d segments in one update", ErrProtocolLimitExceeded, len(p.Segments))
	}
	b = appendFloat64(b, p.Time)
	b = append(b, byte(p.Kind), byte(len(p.Segments)))
	for _, s := range p.Segments {
		b = appendSegment(b, s)
	}
	return b, nil
}

func (p BallVeloChange) appendTo(b []byte, _ Codec) ([]byte, error) {
	return appendFloat64(appendVector(b, p.Velocity), p.Factor), nil
}

func (p BallPos) appendTo(b []byte, _ Codec) ([]byte, error) {
	return appendVector(b, p.Position), nil
}

func (p BallSync) appendTo(b []byte, c Codec) ([]byte, error) {
	for _, v := range []float64{p.Velocity.X, p.Velocity.Y, p.Factor, p.Position.X, p.Position.Y} {
		q := uint16(c.quantize(v))
		b = append(b, byte(q), byte(q>>8))
	}
	return b, nil
}

func (p Score) appendTo(b []byte, _ Codec) ([]byte, error) {
	w := PackScore(p.P1, p.P2, p.MaxLives)
	return append(b, byte(w), byte(w>>8)), nil
}

func (p Countdown) appendTo(b []byte, _ Codec) ([]byte, error) {
	return append(b, p.Seconds), nil
}

// PackScore builds the score word. Values are masked to their low five bits
// for wire compatibility; the low bit makes the word's set-bit count even.
func PackScore(p1, p2, maxLives int) uint16 {
	w := uint16(p1&scoreMask)<<11 | uint16(p2&scoreMask)<<6 | uint16(maxLives&scoreMask)<<1
	if bits.OnesCount16(w)%2 == 1 {
		w |= 1
	}
	return w
}

// UnpackScore reverses PackScore, failing with ErrScoreParity when a bit
// flipped in transit.
func UnpackScore(w uint16) (Score, error) {
	if bits.OnesCount16(w)%2 != 0 {
		return Score{}, ErrScoreParity
	}
	return Score{
		P1:       int(w>>11) & scoreMask,
		P2:       int(w>>6) & scoreMask,
		MaxLives: int(w>>1) & scoreMask,
	}, nil
}

// Encode serializes a server packet, type byte first.
func (c Codec) Encode(p ServerPacket) ([]byte, error) {
	b := make([]byte, 1, 64)
	b[0] = byte(p.Type())
	return p.appendTo(b, c)
}

// Decode parses a server packet. An unknown type byte yields (nil, nil) so
// callers can drop the frame.
func (c Codec) Decode(data []byte) (ServerPacket, error) {
	if len(data) == 0 {
		return nil, ErrTruncated
	}
	r := &reader{data: data, offset: 1}

	var p ServerPacket
	switch PacketType(data[0]) {
	case TypeSegmentUpdate:
		u := SegmentUpdate{Time: r.float64(), Kind: SegmentKind(r.uint8())}
		n := int(r.uint8())
		if r.err == nil && len(data)-r.offset < n*segmentSize {
			return nil, ErrTruncated
		}
		u.Segments = make([]geometry.Segment, n)
		for i := range u.Segments {
			u.Segments[i] = r.segment()
		}
		p = u
	case TypeBallVeloChange:
		p = BallVeloChange{Velocity: r.vector(), Factor: r.float64()}
	case TypeBallPos:
		p = BallPos{Position: r.vector()}
	case TypeBallSync:
		if len(data) < ballSyncSize {
			return nil, ErrTruncated
		}
		vx, vy, f := r.int16(), r.int16(), r.int16()
		px, py := r.int16(), r.int16()
		p = BallSync{
			Velocity: geometry.Vec(c.dequantize(vx), c.dequantize(vy)),
			Factor:   c.dequantize(f),
			Position: geometry.Vec(c.dequantize(px), c.dequantize(py)),
		}
	case TypeScore:
		w := r.uint16()
		if r.err != nil {
			return nil, r.err
		}
		s, err := UnpackScore(w)
		if err != nil {
			return nil, err
		}
		p = s
	case TypeCountdown:
		p = Countdown{Seconds: r.uint8()}
	default:
		return nil, nil
	}

	if r.err != nil {
		return nil, r.err
	}
	return p, nil
}
