// Package motion provides profiled feedback control for a single joint.
package motion

import "math"

// State is a point along a motion profile.
type State struct {
	Position float64
	Velocity float64
}

// Constraints bound a trapezoidal profile.
type Constraints struct {
	MaxVelocity     float64
	MaxAcceleration float64
}

// TrapezoidProfile generates velocity-limited, acceleration-limited motion
// between two states.
type TrapezoidProfile struct {
	constraints Constraints
}

// NewTrapezoidProfile creates a profile with the given constraints.
func NewTrapezoidProfile(c Constraints) TrapezoidProfile {
	return TrapezoidProfile{constraints: c}
}

// Constraints returns the profile constraints.
func (p TrapezoidProfile) Constraints() Constraints {
	return p.constraints
}

// phases holds the end times of the accelerate, cruise and decelerate phases,
// measured from the current state in the profile's positive direction.
type phases struct {
	current, goal State
	endAccel      float64
	endFullSpeed  float64
	endDecel      float64
}

func (p TrapezoidProfile) plan(current, goal State) (phases, float64) {
	dir := 1.0
	if current.Position > goal.Position {
		dir = -1.0
	}
	current = State{current.Position * dir, current.Velocity * dir}
	goal = State{goal.Position * dir, goal.Velocity * dir}

	maxV := p.constraints.MaxVelocity
	maxA := p.constraints.MaxAcceleration

	if current.Velocity > maxV {
		current.Velocity = maxV
	}

	// Pretend the profile started and ends at rest so the full trapezoid can be
	// solved, then cut off the parts already covered.
	cutoffBegin := current.Velocity / maxA
	cutoffDistBegin := cutoffBegin * cutoffBegin * maxA / 2

	cutoffEnd := goal.Velocity / maxA
	cutoffDistEnd := cutoffEnd * cutoffEnd * maxA / 2

	fullTrapezoidDist := cutoffDistBegin + (goal.Position - current.Position) + cutoffDistEnd
	accelTime := maxV / maxA

	fullSpeedDist := fullTrapezoidDist - accelTime*accelTime*maxA
	if fullSpeedDist < 0 {
		accelTime = math.Sqrt(fullTrapezoidDist / maxA)
		fullSpeedDist = 0
	}

	ph := phases{current: current, goal: goal}
	ph.endAccel = accelTime - cutoffBegin
	ph.endFullSpeed = ph.endAccel + fullSpeedDist/maxV
	ph.endDecel = ph.endFullSpeed + accelTime - cutoffEnd
	return ph, dir
}

// Calculate returns the state t seconds after current on the way to goal.
func (p TrapezoidProfile) Calculate(t float64, current, goal State) State {
	ph, dir := p.plan(current, goal)
	maxV := p.constraints.MaxVelocity
	maxA := p.constraints.MaxAcceleration

	result := ph.current
	switch {
	case t < ph.endAccel:
		result.Velocity += t * maxA
		result.Position += (ph.current.Velocity + t*maxA/2) * t
	case t < ph.endFullSpeed:
		result.Velocity = maxV
		result.Position += (ph.current.Velocity+ph.endAccel*maxA/2)*ph.endAccel +
			maxV*(t-ph.endAccel)
	case t <= ph.endDecel:
		timeLeft := ph.endDecel - t
		result.Velocity = ph.goal.Velocity + timeLeft*maxA
		result.Position = ph.goal.Position - (ph.goal.Velocity+timeLeft*maxA/2)*timeLeft
	default:
		result = ph.goal
	}

	return State{result.Position * dir, result.Velocity * dir}
}
