package robot

import (
	"fmt"
	"math"
	"time"

	"github.com/gwillem/pickplace/pkg/motion"
)

// Constants is the compiled-in tuning table of the mechanism.
type Constants struct {
	Elevator motion.JointConfig
	Elbow    motion.JointConfig
	Wrist    motion.JointConfig

	// NominalVoltage is the effort that maps to a full-speed servo step.
	NominalVoltage float64
	// MaxStep is the largest raw position change a servo is asked for per tick.
	MaxStep int
}

// DefaultConstants returns the tuning used on the real mechanism.
func DefaultConstants() Constants {
	return Constants{
		Elevator: motion.JointConfig{
			P:                 12,
			I:                 0,
			D:                 0.2,
			MaxVelocity:       1.0,
			MaxAcceleration:   2.0,
			Min:               0.0,
			Max:               1.2,
			PositionTolerance: 0.01,
			VelocityTolerance: 0.05,
		},
		Elbow: motion.JointConfig{
			P:                 8,
			I:                 0.5,
			D:                 0.1,
			MaxVelocity:       math.Pi,
			MaxAcceleration:   2 * math.Pi,
			Min:               -math.Pi / 2,
			Max:               math.Pi / 2,
			PositionTolerance: 0.02,
			VelocityTolerance: 0.1,
			IntegralZone:      0.2,
			Feedforward:       motion.ArmFeedforward{S: 0.1, G: 0.6, V: 1.2},
		},
		Wrist: motion.JointConfig{
			P:                 6,
			I:                 0,
			D:                 0.05,
			MaxVelocity:       2 * math.Pi,
			MaxAcceleration:   4 * math.Pi,
			Min:               0,
			Max:               math.Pi,
			PositionTolerance: 0.02,
			VelocityTolerance: 0.1,
		},
		NominalVoltage: 12,
		MaxStep:        40,
	}
}

// WithPeriod returns a copy whose joints are tuned for a control loop
// ticking every p.
func (c Constants) WithPeriod(p time.Duration) Constants {
	s := p.Seconds()
	c.Elevator.Period = s
	c.Elbow.Period = s
	c.Wrist.Period = s
	return c
}

// Joint returns the configuration of a controlled joint.
func (c Constants) Joint(name JointName) (motion.JointConfig, bool) {
	switch name {
	case Elevator:
		return c.Elevator, true
	case Elbow:
		return c.Elbow, true
	case Wrist:
		return c.Wrist, true
	}
	return motion.JointConfig{}, false
}

// Validate checks every joint configuration.
func (c Constants) Validate() error {
	for _, name := range ControlledJoints() {
		cfg, _ := c.Joint(name)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.NominalVoltage <= 0 {
		return fmt.Errorf("nominal voltage %v must be positive", c.NominalVoltage)
	}
	return nil
}
