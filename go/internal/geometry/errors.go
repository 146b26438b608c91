package geometry

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is returned when a primitive would be degenerate.
var ErrInvalidGeometry = errors.New("invalid geometry")

// ErrInvalidRadius is returned by NewCircle for a non-positive radius.
var ErrInvalidRadius = fmt.Errorf("%w: radius must be positive", ErrInvalidGeometry)
