package geometry

import (
	"fmt"
	"math"
)

// tangentEpsilon absorbs rounding in the radical-line construction so that
// numerically tangent circles still yield their contact point.
const tangentEpsilon = 1e-12

// Circle is the ball's collision shape.
type Circle struct {
	Origin Vector2 `json:"origin"`
	Radius float64 `json:"radius"`
}

// NewCircle fails with ErrInvalidRadius unless radius > 0.
func NewCircle(origin Vector2, radius float64) (Circle, error) {
	if !(radius > 0) {
		return Circle{}, fmt.Errorf("%w: got %g", ErrInvalidRadius, radius)
	}
	return Circle{Origin: origin, Radius: radius}, nil
}

// NormalAt returns the unit vector from the circle's origin towards p.
func (c Circle) NormalAt(p Vector2) Vector2 {
	return p.Sub(c.Origin).Normalize()
}

// IntersectCircle returns the points where c and o meet: nil when they are
// apart, one point when tangent, two otherwise. Concentric, contained or
// otherwise ill-conditioned pairs collapse to the smaller circle's center.
func (c Circle) IntersectCircle(o Circle) []Vector2 {
	d2 := c.Origin.SquaredDist(o.Origin)
	sum := c.Radius + o.Radius
	if d2 > sum*sum {
		return nil
	}
	if d2 == 0 {
		return []Vector2{c.degenerate(o)}
	}

	d := math.Sqrt(d2)
	a := (c.Radius*c.Radius - o.Radius*o.Radius + d2) / (2 * d)
	h2 := c.Radius*c.Radius - a*a
	if h2 < 0 && h2 > -tangentEpsilon*c.Radius*c.Radius {
		h2 = 0
	}

	dir := o.Origin.Sub(c.Origin).Scale(1 / d)
	mid := c.Origin.Add(dir.Scale(a))
	if h2 == 0 {
		if mid.IsNaN() {
			return []Vector2{c.degenerate(o)}
		}
		return []Vector2{mid}
	}

	h := math.Sqrt(h2)
	offset := dir.Perp().Scale(h)
	p1 := mid.Add(offset)
	p2 := mid.Sub(offset)
	if p1.IsNaN() || p2.IsNaN() {
		return []Vector2{c.degenerate(o)}
	}
	return []Vector2{p1, p2}
}

func (c Circle) degenerate(o Circle) Vector2 {
	if o.Radius < c.Radius {
		return o.Origin
	}
	return c.Origin
}
