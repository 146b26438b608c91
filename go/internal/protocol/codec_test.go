package protocol

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pongarena/go/internal/geometry"
)

func TestScoreClampLaw(t *testing.T) {
	var c Codec
	b, err := c.Encode(Score{P1: 35, P2: 40, MaxLives: 100})
	require.NoError(t, err)
	require.Len(t, b, 3)
	assert.Equal(t, byte(TypeScore), b[0])

	p, err := c.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, Score{P1: 3, P2: 8, MaxLives: 4}, p)
}

func TestScoreParity(t *testing.T) {
	for p1 := 0; p1 < 32; p1 += 5 {
		for p2 := 0; p2 < 32; p2 += 3 {
			w := PackScore(p1, p2, 11)
			assert.Zero(t, popcount(w)%2)

			s, err := UnpackScore(w)
			require.NoError(t, err)
			assert.Equal(t, Score{P1: p1, P2: p2, MaxLives: 11}, s)

			_, err = UnpackScore(w ^ 1<<7)
			assert.ErrorIs(t, err, ErrScoreParity)
		}
	}

	var c Codec
	_, err := c.Decode([]byte{byte(TypeScore), 0x01, 0x00})
	assert.ErrorIs(t, err, ErrScoreParity)
}

func popcount(w uint16) int {
	n := 0
	for ; w != 0; w &= w - 1 {
		n++
	}
	return n
}

func TestBallSyncRoundTrip(t *testing.T) {
	c := NewCodec(DefaultNetworkPrecision)
	rng := rand.New(rand.NewPCG(9, 9))
	tolerance := 0.5/DefaultNetworkPrecision + 1e-12

	for i := 0; i < 1000; i++ {
		in := BallSync{
			Velocity: geometry.Vec(rng.Float64()*12-6, rng.Float64()*12-6),
			Factor:   1 + rng.Float64()*1.5,
			Position: geometry.Vec(rng.Float64()*16-8, rng.Float64()*10-5),
		}
		b, err := c.Encode(in)
		require.NoError(t, err)
		require.Len(t, b, 11)

		p, err := c.Decode(b)
		require.NoError(t, err)
		out := p.(BallSync)
		assert.InDelta(t, in.Velocity.X, out.Velocity.X, tolerance)
		assert.InDelta(t, in.Velocity.Y, out.Velocity.Y, tolerance)
		assert.InDelta(t, in.Factor, out.Factor, tolerance)
		assert.InDelta(t, in.Position.X, out.Position.X, tolerance)
		assert.InDelta(t, in.Position.Y, out.Position.Y, tolerance)
	}
}

func TestBallSyncSaturates(t *testing.T) {
	c := NewCodec(1000)
	b, err := c.Encode(BallSync{Position: geometry.Vec(100, -100)})
	require.NoError(t, err)

	p, err := c.Decode(b)
	require.NoError(t, err)
	out := p.(BallSync)
	assert.Equal(t, float64(math.MaxInt16)/1000, out.Position.X)
	assert.Equal(t, float64(math.MinInt16)/1000, out.Position.Y)
}

func TestFloatPacketsRoundTripExactly(t *testing.T) {
	var c Codec
	packets := []ServerPacket{
		BallVeloChange{Velocity: geometry.Vec(-4.25, 1.0/3), Factor: 1.1025},
		BallPos{Position: geometry.Vec(math.Pi, -math.E)},
		Countdown{Seconds: 3},
		SegmentUpdate{
			Time: 1234.5,
			Kind: SegmentPadRight,
			Segments: []geometry.Segment{
				geometry.MustSegment(geometry.Vec(7, -1), geometry.Vec(7, 1)),
				geometry.MustSegment(geometry.Vec(-8, 5), geometry.Vec(8, 5)),
			},
		},
	}
	for _, in := range packets {
		b, err := c.Encode(in)
		require.NoError(t, err)
		out, err := c.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestLayoutIsLittleEndian(t *testing.T) {
	var c Codec
	b, err := c.Encode(BallPos{Position: geometry.Vec(1, 0)})
	require.NoError(t, err)
	require.Len(t, b, 17)
	assert.Equal(t, []byte{0x05, 0, 0, 0, 0, 0, 0, 0xf0, 0x3f}, b[:9])

	b, err = c.Encode(SegmentUpdate{Segments: make([]geometry.Segment, 3)})
	require.NoError(t, err)
	assert.Len(t, b, 1+8+1+1+3*32)
	assert.Equal(t, byte(3), b[10])
}

func TestSegmentUpdateLimit(t *testing.T) {
	var c Codec
	_, err := c.Encode(SegmentUpdate{Segments: make([]geometry.Segment, MaxSegments)})
	require.NoError(t, err)

	_, err = c.Encode(SegmentUpdate{Segments: make([]geometry.Segment, MaxSegments+1)})
	assert.ErrorIs(t, err, ErrProtocolLimitExceeded)
}

func TestDecodeUnknownAndTruncated(t *testing.T) {
	var c Codec

	p, err := c.Decode([]byte{0x03, 1, 2, 3})
	assert.NoError(t, err)
	assert.Nil(t, p)

	_, err = c.Decode(nil)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = c.Decode([]byte{byte(TypeBallPos), 1, 2})
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = c.Decode([]byte{byte(TypeBallSync), 1, 2, 3})
	assert.ErrorIs(t, err, ErrTruncated)

	full, err := c.Encode(SegmentUpdate{Segments: make([]geometry.Segment, 2)})
	require.NoError(t, err)
	_, err = c.Decode(full[:len(full)-1])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestClientMoveRoundTrip(t *testing.T) {
	var c Codec
	for _, in := range []Move{
		{Moving: true, Direction: Up, Timestamp: 10.5},
		{Moving: true, Direction: Down, Timestamp: 11},
		{Moving: false, Direction: Down, Timestamp: 12},
	} {
		b := c.EncodeClient(in)
		require.Len(t, b, 9)
		assert.Equal(t, byte(moveKind), b[0]&clientKindMask)

		out, err := c.DecodeClient(b)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestClientBallFamilyBits(t *testing.T) {
	assert.Equal(t, 0b01101, TypeBallVelocity)
	assert.Equal(t, 0b10101, TypeBallPosition)
	assert.Equal(t, 0b11101, TypeBallFull)

	var c Codec
	full := BallReport{
		Timestamp:   99,
		HasVelocity: true,
		Velocity:    geometry.Vec(1, -2),
		Factor:      1.5,
		HasPosition: true,
		Position:    geometry.Vec(3, 4),
	}
	b := c.EncodeClient(full)
	assert.Equal(t, byte(TypeBallFull), b[0])
	assert.Len(t, b, 1+8+24+16)

	out, err := c.DecodeClient(b)
	require.NoError(t, err)
	report := out.(BallReport)
	assert.True(t, report.HasVelocity)
	assert.True(t, report.HasPosition)
	assert.Equal(t, full, report)

	posOnly := BallReport{Timestamp: 1, HasPosition: true, Position: geometry.Vec(5, 6)}
	b = c.EncodeClient(posOnly)
	assert.Equal(t, byte(TypeBallPosition), b[0])
	out, err = c.DecodeClient(b)
	require.NoError(t, err)
	assert.Equal(t, posOnly, out)

	stamp := BallReport{Timestamp: 2}
	b = c.EncodeClient(stamp)
	assert.Equal(t, []byte{TypeBallTimestamp}, b[:1])
	out, err = c.DecodeClient(b)
	require.NoError(t, err)
	assert.Equal(t, stamp, out)
}

func TestDecodeClientUnknownAndTruncated(t *testing.T) {
	var c Codec
	p, err := c.DecodeClient([]byte{0b00010, 0, 0})
	assert.NoError(t, err)
	assert.Nil(t, p)

	_, err = c.DecodeClient([]byte{TypeBallFull, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestControlEvents(t *testing.T) {
	b, err := MarshalEvent(EventStartingIn, StartingInPayload{Seconds: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"startingIn","data":{"seconds":2}}`, string(b))

	var ev ControlEvent
	require.NoError(t, json.Unmarshal(b, &ev))
	payload, err := ParseEventPayload(ev)
	require.NoError(t, err)
	assert.Equal(t, &StartingInPayload{Seconds: 2}, payload)

	b, err = MarshalEvent(EventStart, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"start"}`, string(b))
}
