package geometry

import (
	"fmt"
	"math"
)

// collinearEpsilon bounds the cross product under which three points are
// treated as collinear.
const collinearEpsilon = 1e-12

// Segment is a wall or pad face between two distinct points.
type Segment struct {
	P1 Vector2 `json:"p1"`
	P2 Vector2 `json:"p2"`
}

// NewSegment builds a segment, rejecting zero-length input.
func NewSegment(p1, p2 Vector2) (Segment, error) {
	if p1 == p2 {
		return Segment{}, fmt.Errorf("%w: degenerate segment at (%g, %g)", ErrInvalidGeometry, p1.X, p1.Y)
	}
	return Segment{P1: p1, P2: p2}, nil
}

// MustSegment is NewSegment for constant geometry; it panics on bad input.
func MustSegment(p1, p2 Vector2) Segment {
	s, err := NewSegment(p1, p2)
	if err != nil {
		panic(err)
	}
	return s
}

// Direction returns P2 - P1.
func (s Segment) Direction() Vector2 {
	return s.P2.Sub(s.P1)
}

func (s Segment) Length() float64 {
	return s.Direction().Length()
}

// Translate returns the segment moved by d.
func (s Segment) Translate(d Vector2) Segment {
	return Segment{P1: s.P1.Add(d), P2: s.P2.Add(d)}
}

// ClosestPoint returns the point on s nearest to p.
func (s Segment) ClosestPoint(p Vector2) Vector2 {
	d := s.Direction()
	l2 := d.SquaredLength()
	if l2 == 0 {
		return s.P1
	}
	t := p.Sub(s.P1).Dot(d) / l2
	t = math.Max(0, math.Min(1, t))
	return s.P1.Add(d.Scale(t))
}

// IntersectsCircle reports whether c reaches the closest point of s to its
// center. Tangency counts.
func (s Segment) IntersectsCircle(c Circle) bool {
	return s.ClosestPoint(c.Origin).SquaredDist(c.Origin) <= c.Radius*c.Radius
}

// IntersectsSegment reports whether the two segments share any point,
// including collinear overlap and touching endpoints.
func (s Segment) IntersectsSegment(o Segment) bool {
	o1 := orientation(s.P1, s.P2, o.P1)
	o2 := orientation(s.P1, s.P2, o.P2)
	o3 := orientation(o.P1, o.P2, s.P1)
	o4 := orientation(o.P1, o.P2, s.P2)

	if o1 != o2 && o3 != o4 {
		return true
	}

	switch {
	case o1 == 0 && withinBounds(s.P1, s.P2, o.P1):
		return true
	case o2 == 0 && withinBounds(s.P1, s.P2, o.P2):
		return true
	case o3 == 0 && withinBounds(o.P1, o.P2, s.P1):
		return true
	case o4 == 0 && withinBounds(o.P1, o.P2, s.P2):
		return true
	}
	return false
}

// orientation returns 0 for collinear points, 1 for clockwise and -1 for
// counter-clockwise turns a -> b -> c.
func orientation(a, b, c Vector2) int {
	v := b.Sub(a).Cross(c.Sub(a))
	switch {
	case math.Abs(v) <= collinearEpsilon:
		return 0
	case v < 0:
		return 1
	default:
		return -1
	}
}

// withinBounds reports whether q, known to be collinear with a and b, lies
// inside their bounding box.
func withinBounds(a, b, q Vector2) bool {
	return q.X <= math.Max(a.X, b.X) && q.X >= math.Min(a.X, b.X) &&
		q.Y <= math.Max(a.Y, b.Y) && q.Y >= math.Min(a.Y, b.Y)
}
