package simulation

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("invalid simulation config")

// Config holds the tuning of a match. It is loaded from the game tuning YAML
// file; zero fields keep their defaults.
type Config struct {
	TPS                  int     `yaml:"tps"`
	MaxLives             int     `yaml:"max_lives"`
	PauseTicksAfterPoint int     `yaml:"pause_ticks_after_point"`
	CountdownSteps       int     `yaml:"countdown_steps"`
	ArenaHalfWidth       float64 `yaml:"arena_half_width"`
	ArenaHalfHeight      float64 `yaml:"arena_half_height"`
	PadInset             float64 `yaml:"pad_inset"`
	PadLength            float64 `yaml:"pad_length"`
	PadSpeed             float64 `yaml:"pad_speed"`
	BallRadius           float64 `yaml:"ball_radius"`
	BaseSpeed            float64 `yaml:"base_speed"`
	SpeedIncreaseFactor  float64 `yaml:"speed_increase_factor"`
	MaxSpeed             float64 `yaml:"max_speed"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		TPS:                  60,
		MaxLives:             5,
		PauseTicksAfterPoint: 120,
		CountdownSteps:       3,
		ArenaHalfWidth:       8,
		ArenaHalfHeight:      5,
		PadInset:             1,
		PadLength:            2,
		PadSpeed:             8,
		BallRadius:           0.2,
		BaseSpeed:            6,
		SpeedIncreaseFactor:  1.05,
		MaxSpeed:             2.5,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.TPS == 0 {
		c.TPS = d.TPS
	}
	if c.MaxLives == 0 {
		c.MaxLives = d.MaxLives
	}
	if c.PauseTicksAfterPoint == 0 {
		c.PauseTicksAfterPoint = d.PauseTicksAfterPoint
	}
	if c.CountdownSteps == 0 {
		c.CountdownSteps = d.CountdownSteps
	}
	if c.ArenaHalfWidth == 0 {
		c.ArenaHalfWidth = d.ArenaHalfWidth
	}
	if c.ArenaHalfHeight == 0 {
		c.ArenaHalfHeight = d.ArenaHalfHeight
	}
	if c.PadInset == 0 {
		c.PadInset = d.PadInset
	}
	if c.PadLength == 0 {
		c.PadLength = d.PadLength
	}
	if c.PadSpeed == 0 {
		c.PadSpeed = d.PadSpeed
	}
	if c.BallRadius == 0 {
		c.BallRadius = d.BallRadius
	}
	if c.BaseSpeed == 0 {
		c.BaseSpeed = d.BaseSpeed
	}
	if c.SpeedIncreaseFactor == 0 {
		c.SpeedIncreaseFactor = d.SpeedIncreaseFactor
	}
	if c.MaxSpeed == 0 {
		c.MaxSpeed = d.MaxSpeed
	}
	return c
}

// Validate checks the relationships the engine relies on.
func (c Config) Validate() error {
	switch {
	case c.TPS <= 0:
		return fmt.Errorf("%w: tps must be positive", ErrInvalidConfig)
	case c.MaxLives <= 0 || c.MaxLives > 31:
		return fmt.Errorf("%w: max lives must be in 1..31", ErrInvalidConfig)
	case c.PauseTicksAfterPoint < 0:
		return fmt.Errorf("%w: pause ticks must not be negative", ErrInvalidConfig)
	case c.CountdownSteps <= 0 || c.CountdownSteps > c.PauseTicksAfterPoint:
		return fmt.Errorf("%w: countdown steps must be in 1..pause ticks", ErrInvalidConfig)
	case c.ArenaHalfWidth <= 0 || c.ArenaHalfHeight <= 0:
		return fmt.Errorf("%w: arena extents must be positive", ErrInvalidConfig)
	case c.PadInset <= 0 || c.PadInset >= c.ArenaHalfWidth:
		return fmt.Errorf("%w: pad inset must be inside the arena", ErrInvalidConfig)
	case c.PadLength <= 0 || c.PadLength >= 2*c.ArenaHalfHeight:
		return fmt.Errorf("%w: pad length must fit the arena", ErrInvalidConfig)
	case c.BallRadius <= 0 || c.BaseSpeed <= 0 || c.PadSpeed <= 0:
		return fmt.Errorf("%w: ball radius and speeds must be positive", ErrInvalidConfig)
	case c.SpeedIncreaseFactor < 1 || c.MaxSpeed < 1:
		return fmt.Errorf("%w: speed factors must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// TickDuration is the fixed timestep 1/TPS.
func (c Config) TickDuration() time.Duration {
	return time.Second / time.Duration(c.TPS)
}

func (c Config) dt() float64 {
	return 1 / float64(c.TPS)
}

// TicksPerStep is the number of pause ticks each countdown second lasts.
func (c Config) TicksPerStep() int {
	return c.PauseTicksAfterPoint / c.CountdownSteps
}
