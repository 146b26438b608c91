package simulation

import (
	"math"
	"math/rand/v2"

	"github.com/mcdev12/pongarena/go/internal/geometry"
)

// RunState is toggled by the owning session.
type RunState int

const (
	Paused RunState = iota
	Started
)

// Ball is the ball's kinematic state. Velocity has magnitude BaseSpeed; the
// effective speed is Velocity * SpeedFactor.
type Ball struct {
	Position    geometry.Vector2
	Velocity    geometry.Vector2
	SpeedFactor float64
	Radius      float64
}

func (b Ball) Circle() geometry.Circle {
	return geometry.Circle{Origin: b.Position, Radius: b.Radius}
}

// StepResult summarises what changed during one tick.
type StepResult struct {
	Tick      uint64
	Countdown int
	PadsMoved [2]bool
	Bounced   bool
	Scored    bool
	Conceded  Side
	Ended     bool
}

type padInput struct {
	moving bool
	dir    Direction
}

// Engine is the deterministic state of one match. It is not safe for
// concurrent use; the owning session is its only caller.
type Engine struct {
	cfg   Config
	rng   *rand.Rand
	arena arena

	pads   [2]Pad
	inputs [2]padInput
	ball   Ball
	lives  [2]int

	pauseTicks int
	tick       uint64
	state      RunState
	ended      bool
}

// NewEngine builds a paused engine with the ball at center and a full
// countdown pending. A nil rng seeds a fresh one.
func NewEngine(cfg Config, rng *rand.Rand) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	e := &Engine{
		cfg:   cfg,
		rng:   rng,
		arena: newArena(cfg),
		lives: [2]int{cfg.MaxLives, cfg.MaxLives},
	}
	e.pads[Left] = newPad(-cfg.ArenaHalfWidth+cfg.PadInset, cfg.PadLength)
	e.pads[Right] = newPad(cfg.ArenaHalfWidth-cfg.PadInset, cfg.PadLength)
	e.resetBall()
	return e, nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Start() { e.state = Started }
func (e *Engine) Pause() { e.state = Paused }

func (e *Engine) State() RunState { return e.state }
func (e *Engine) Tick() uint64    { return e.tick }
func (e *Engine) Ball() Ball      { return e.ball }
func (e *Engine) Ended() bool     { return e.ended }

// Lives returns the lives a side has left.
func (e *Engine) Lives(side Side) int { return e.lives[side] }

// Points returns how many points a side has scored.
func (e *Engine) Points(side Side) int {
	return e.cfg.MaxLives - e.lives[side.Opponent()]
}

// Winner reports the winning side once the opponent has no lives left.
func (e *Engine) Winner() (Side, bool) {
	switch {
	case e.lives[Right] <= 0:
		return Left, true
	case e.lives[Left] <= 0:
		return Right, true
	}
	return Left, false
}

// Countdown is the number of countdown seconds still to show; 0 means live.
func (e *Engine) Countdown() int {
	if e.pauseTicks <= 0 {
		return 0
	}
	step := e.cfg.TicksPerStep()
	return (e.pauseTicks + step - 1) / step
}

// PadSegments returns a copy of a pad's current segments.
func (e *Engine) PadSegments(side Side) []geometry.Segment {
	return e.pads[side].clone().Segments
}

// ArenaSegments returns the static play borders.
func (e *Engine) ArenaSegments() []geometry.Segment {
	return append([]geometry.Segment(nil), e.arena.borders...)
}

// SetPadInput buffers a side's movement request for the next tick. Later
// calls overwrite earlier ones.
func (e *Engine) SetPadInput(side Side, moving bool, dir Direction) {
	e.inputs[side] = padInput{moving: moving, dir: dir}
}

// Step advances the match by one fixed tick. It is a no-op while paused or
// once a side has run out of lives.
func (e *Engine) Step() StepResult {
	res := StepResult{Tick: e.tick, Countdown: e.Countdown(), Ended: e.ended}
	if e.state != Started || e.ended {
		return res
	}

	e.tick++
	res.Tick = e.tick

	frozen := e.pauseTicks > 0
	if frozen {
		e.pauseTicks--
	}
	res.Countdown = e.Countdown()

	for _, side := range []Side{Left, Right} {
		res.PadsMoved[side] = e.movePad(side)
	}
	if frozen {
		return res
	}

	prev := e.ball.Position
	e.ball.Position.AddInPlace(e.ball.Velocity.Scale(e.ball.SpeedFactor * e.cfg.dt()))

	// Win borders sit behind the play borders, so they are checked first.
	if side, ok := e.crossedWinBorder(); ok {
		e.lives[side]--
		res.Scored = true
		res.Conceded = side
		if e.lives[side] <= 0 {
			e.lives[side] = 0
			e.ended = true
			res.Ended = true
		}
		e.resetBall()
		res.Countdown = e.Countdown()
		return res
	}

	res.Bounced = e.bounce(prev)
	return res
}

func (e *Engine) movePad(side Side) bool {
	in := e.inputs[side]
	if !in.moving {
		return false
	}
	dy := e.cfg.PadSpeed * e.cfg.dt()
	if in.dir == Down {
		dy = -dy
	}
	return e.pads[side].Move(dy, -e.cfg.ArenaHalfHeight, e.cfg.ArenaHalfHeight)
}

func (e *Engine) crossedWinBorder() (Side, bool) {
	c := e.ball.Circle()
	for _, side := range []Side{Left, Right} {
		if e.arena.winBorders[side].IntersectsCircle(c) {
			return side, true
		}
	}
	return Left, false
}

func (e *Engine) bounce(prev geometry.Vector2) bool {
	bounced := false
	for _, s := range e.arena.borders {
		if e.collide(s, prev) {
			bounced = true
		}
	}
	for side := range e.pads {
		for _, s := range e.pads[side].Segments {
			if e.collide(s, prev) {
				bounced = true
			}
		}
	}
	if bounced {
		e.ball.SpeedFactor = math.Min(e.ball.SpeedFactor*e.cfg.SpeedIncreaseFactor, e.cfg.MaxSpeed)
	}
	return bounced
}

// collide reflects the ball off s when it overlaps s and is travelling
// towards it, then pushes the ball back to touching distance on the side it
// came from.
func (e *Engine) collide(s geometry.Segment, prev geometry.Vector2) bool {
	c := e.ball.Circle()
	if !s.IntersectsCircle(c) {
		return false
	}

	contact := s.ClosestPoint(c.Origin)
	n := c.NormalAt(contact)
	switch {
	case n == (geometry.Vector2{}):
		n = s.Direction().Perp().Normalize()
		if n.Dot(e.ball.Velocity) < 0 {
			n = n.Scale(-1)
		}
	case crossed(prev, c.Origin, s):
		// The center went through s this tick, so the contact normal
		// points backwards.
		n = n.Scale(-1)
	}

	if e.ball.Velocity.Dot(n) <= 0 {
		return false
	}
	e.ball.Velocity = geometry.Reflect(e.ball.Velocity, n)
	e.ball.Position = contact.Sub(n.Scale(e.ball.Radius))
	return true
}

func crossed(from, to geometry.Vector2, s geometry.Segment) bool {
	path, err := geometry.NewSegment(from, to)
	if err != nil {
		return false
	}
	return path.IntersectsSegment(s)
}

// resetBall serves from the center towards a random side at base speed and
// restarts the countdown.
func (e *Engine) resetBall() {
	angle := (e.rng.Float64()*2 - 1) * math.Pi / 4
	dir := geometry.FromAngle(angle, 1)
	if e.rng.IntN(2) == 0 {
		dir.X = -dir.X
	}
	e.ball = Ball{
		Velocity:    dir.Scale(e.cfg.BaseSpeed),
		SpeedFactor: 1,
		Radius:      e.cfg.BallRadius,
	}
	e.pauseTicks = e.cfg.PauseTicksAfterPoint
}
