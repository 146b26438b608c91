package geometry

import "math"

// Vector2 is a point or direction in the arena plane.
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec is shorthand for Vector2{X: x, Y: y}.
func Vec(x, y float64) Vector2 {
	return Vector2{X: x, Y: y}
}

// FromAngle returns a vector of the given magnitude pointing at angle radians.
func FromAngle(angle, magnitude float64) Vector2 {
	return Vector2{
		X: magnitude * math.Cos(angle),
		Y: magnitude * math.Sin(angle),
	}
}

// Add returns the sum of two vectors
func (v Vector2) Add(other Vector2) Vector2 {
	return Vector2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub returns v - other
func (v Vector2) Sub(other Vector2) Vector2 {
	return Vector2{X: v.X - other.X, Y: v.Y - other.Y}
}

// Scale multiplies the vector by a scalar value
func (v Vector2) Scale(factor float64) Vector2 {
	return Vector2{X: v.X * factor, Y: v.Y * factor}
}

// Dot returns the dot product of two vectors
func (v Vector2) Dot(other Vector2) float64 {
	return v.X*other.X + v.Y*other.Y
}

// Cross returns the z component of the 3D cross product.
func (v Vector2) Cross(other Vector2) float64 {
	return v.X*other.Y - v.Y*other.X
}

func (v Vector2) SquaredLength() float64 {
	return v.X*v.X + v.Y*v.Y
}

func (v Vector2) Length() float64 {
	return math.Sqrt(v.SquaredLength())
}

func (v Vector2) SquaredDist(other Vector2) float64 {
	return v.Sub(other).SquaredLength()
}

// Normalize returns a unit vector in the same direction. The zero vector
// stays zero.
func (v Vector2) Normalize() Vector2 {
	length := v.Length()
	if length == 0 {
		return Vector2{}
	}
	return Vector2{X: v.X / length, Y: v.Y / length}
}

// Perp returns v rotated a quarter turn counter-clockwise.
func (v Vector2) Perp() Vector2 {
	return Vector2{X: -v.Y, Y: v.X}
}

func (v Vector2) IsNaN() bool {
	return math.IsNaN(v.X) || math.IsNaN(v.Y)
}

// AddInPlace adds other to v.
func (v *Vector2) AddInPlace(other Vector2) {
	v.X += other.X
	v.Y += other.Y
}

// ScaleInPlace multiplies v by factor.
func (v *Vector2) ScaleInPlace(factor float64) {
	v.X *= factor
	v.Y *= factor
}

// Reflect mirrors v about the unit normal n: v - 2(v·n)n.
func Reflect(v, n Vector2) Vector2 {
	return v.Sub(n.Scale(2 * v.Dot(n)))
}
