package simulation

import (
	"math"

	"github.com/mcdev12/pongarena/go/internal/geometry"
)

// Side identifies a player. Left is player 1.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) Opponent() Side {
	if s == Left {
		return Right
	}
	return Left
}

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Direction is a pad's requested travel.
type Direction int

const (
	Up Direction = iota
	Down
)

// moveEpsilon swallows float residue left after clamping a pad to a border.
const moveEpsilon = 1e-12

// Pad is a group of segments that translate together along the Y axis.
type Pad struct {
	Segments []geometry.Segment
}

func newPad(x, length float64) Pad {
	half := length / 2
	return Pad{Segments: []geometry.Segment{
		geometry.MustSegment(geometry.Vec(x, -half), geometry.Vec(x, half)),
	}}
}

// bounds returns the lowest and highest Y any pad segment reaches.
func (p Pad) bounds() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range p.Segments {
		lo = math.Min(lo, math.Min(s.P1.Y, s.P2.Y))
		hi = math.Max(hi, math.Max(s.P1.Y, s.P2.Y))
	}
	return lo, hi
}

// Move shifts the pad by dy, clamped so it stays within [minY, maxY]. It
// reports whether the pad actually moved.
func (p *Pad) Move(dy, minY, maxY float64) bool {
	lo, hi := p.bounds()
	if lo+dy < minY {
		dy = minY - lo
	}
	if hi+dy > maxY {
		dy = maxY - hi
	}
	if math.Abs(dy) < moveEpsilon {
		return false
	}
	d := geometry.Vec(0, dy)
	for i := range p.Segments {
		p.Segments[i] = p.Segments[i].Translate(d)
	}
	return true
}

// Center returns the midpoint of the pad's vertical extent.
func (p Pad) Center() float64 {
	lo, hi := p.bounds()
	return (lo + hi) / 2
}

func (p Pad) clone() Pad {
	return Pad{Segments: append([]geometry.Segment(nil), p.Segments...)}
}

// arena holds the fixed border geometry.
type arena struct {
	borders    []geometry.Segment
	winBorders [2]geometry.Segment
}

func newArena(cfg Config) arena {
	w, h := cfg.ArenaHalfWidth, cfg.ArenaHalfHeight
	return arena{
		borders: []geometry.Segment{
			geometry.MustSegment(geometry.Vec(-w, h), geometry.Vec(w, h)),
			geometry.MustSegment(geometry.Vec(-w, -h), geometry.Vec(w, -h)),
		},
		winBorders: [2]geometry.Segment{
			Left:  geometry.MustSegment(geometry.Vec(-w, -h), geometry.Vec(-w, h)),
			Right: geometry.MustSegment(geometry.Vec(w, -h), geometry.Vec(w, h)),
		},
	}
}
