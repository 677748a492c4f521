package motion

import "math"

// Feedforward models a known disturbance as a function of the profiled state.
type Feedforward interface {
	Calculate(position, velocity float64) float64
}

// ArmFeedforward compensates a rotating joint loaded by gravity. Position is
// the angle from horizontal in radians.
type ArmFeedforward struct {
	S float64 // static friction, volts
	G float64 // gravity at horizontal, volts
	V float64 // volts per unit/s
}

// Calculate implements Feedforward.
func (f ArmFeedforward) Calculate(position, velocity float64) float64 {
	return f.S*sign(velocity) + f.G*math.Cos(position) + f.V*velocity
}

// ElevatorFeedforward compensates a linear joint carrying a constant load.
type ElevatorFeedforward struct {
	S float64
	G float64
	V float64
}

// Calculate implements Feedforward.
func (f ElevatorFeedforward) Calculate(_, velocity float64) float64 {
	return f.S*sign(velocity) + f.G + f.V*velocity
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
