package protocol

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/mcdev12/pongarena/go/internal/geometry"
)

// DefaultNetworkPrecision is the fixed-point scale used by BallSync.
const DefaultNetworkPrecision = 1000

var (
	// ErrProtocolLimitExceeded is returned when a packet cannot carry its
	// payload, e.g. more than 255 segments.
	ErrProtocolLimitExceeded = errors.New("protocol limit exceeded")
	// ErrTruncated is returned when a frame ends before its fixed layout.
	ErrTruncated = errors.New("truncated packet")
	// ErrScoreParity is returned when a score word fails its parity check.
	ErrScoreParity = errors.New("score parity mismatch")
)

// Codec encodes and decodes packets. The zero value uses
// DefaultNetworkPrecision.
type Codec struct {
	Precision float64
}

// NewCodec returns a codec with the given fixed-point precision.
func NewCodec(precision float64) Codec {
	return Codec{Precision: precision}
}

func (c Codec) precision() float64 {
	if c.Precision <= 0 {
		return DefaultNetworkPrecision
	}
	return c.Precision
}

// quantize scales v to the fixed-point grid, saturating at the int16 range.
func (c Codec) quantize(v float64) int16 {
	q := math.Round(v * c.precision())
	switch {
	case math.IsNaN(q):
		return 0
	case q > math.MaxInt16:
		return math.MaxInt16
	case q < math.MinInt16:
		return math.MinInt16
	}
	return int16(q)
}

func (c Codec) dequantize(q int16) float64 {
	return float64(q) / c.precision()
}

func appendFloat64(b []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
}

func appendVector(b []byte, v geometry.Vector2) []byte {
	return appendFloat64(appendFloat64(b, v.X), v.Y)
}

func appendSegment(b []byte, s geometry.Segment) []byte {
	return appendVector(appendVector(b, s.P1), s.P2)
}

// reader walks a frame. The first short read sets err and every later read
// returns zero values.
type reader struct {
	data   []byte
	offset int
	err    error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.offset+n > len(r.data) {
		r.err = ErrTruncated
		return nil
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b
}

func (r *reader) uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) int16() int16 {
	return int16(r.uint16())
}

func (r *reader) float64() float64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (r *reader) vector() geometry.Vector2 {
	x := r.float64()
	y := r.float64()
	return geometry.Vector2{X: x, Y: y}
}

func (r *reader) segment() geometry.Segment {
	p1 := r.vector()
	p2 := r.vector()
	return geometry.Segment{P1: p1, P2: p2}
}
