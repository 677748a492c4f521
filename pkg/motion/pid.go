package motion

import "math"

// PID is a discrete PID controller running at a fixed period.
type PID struct {
	P, I, D float64

	period float64

	// integratorRange bounds I*integral; izone disables integration while
	// the error is larger than it. Zero izone means no zone.
	integratorRange float64
	izone           float64

	positionTolerance float64
	velocityTolerance float64

	positionError float64
	prevError     float64
	velocityError float64
	integral      float64
	haveSample    bool
}

// Default at-setpoint tolerances of a new PID controller.
const DefaultPositionTolerance = 0.05

var DefaultVelocityTolerance = math.Inf(1)

// NewPID creates a PID controller that is called every period seconds.
func NewPID(p, i, d, period float64) *PID {
	return &PID{
		P:                 p,
		I:                 i,
		D:                 d,
		period:            period,
		integratorRange:   1,
		positionTolerance: DefaultPositionTolerance,
		velocityTolerance: DefaultVelocityTolerance,
	}
}

// SetIntegratorRange bounds the integral contribution to [-r, r].
func (c *PID) SetIntegratorRange(r float64) {
	c.integratorRange = r
}

// SetIntegralZone sets the error magnitude above which the integral is reset.
func (c *PID) SetIntegralZone(z float64) {
	c.izone = z
}

// SetTolerance sets the at-setpoint tolerances.
func (c *PID) SetTolerance(position, velocity float64) {
	c.positionTolerance = position
	c.velocityTolerance = velocity
}

// Calculate returns the controller output for a measurement and setpoint.
func (c *PID) Calculate(measurement, setpoint float64) float64 {
	c.prevError = c.positionError
	c.positionError = setpoint - measurement

	if c.haveSample {
		c.velocityError = (c.positionError - c.prevError) / c.period
	} else {
		c.velocityError = 0
		c.haveSample = true
	}

	if c.izone > 0 && math.Abs(c.positionError) > c.izone {
		c.integral = 0
	} else if c.I != 0 {
		limit := c.integratorRange / math.Abs(c.I)
		c.integral = Clamp(c.integral+c.positionError*c.period, -limit, limit)
	}

	return c.P*c.positionError + c.I*c.integral + c.D*c.velocityError
}

// AtSetpoint reports whether both errors are within tolerance.
func (c *PID) AtSetpoint() bool {
	return c.haveSample &&
		math.Abs(c.positionError) <= c.positionTolerance &&
		math.Abs(c.velocityError) <= c.velocityTolerance
}

// PositionError returns the last position error.
func (c *PID) PositionError() float64 { return c.positionError }

// VelocityError returns the last velocity error.
func (c *PID) VelocityError() float64 { return c.velocityError }

// Reset clears the integral and error history.
func (c *PID) Reset() {
	c.positionError = 0
	c.prevError = 0
	c.velocityError = 0
	c.integral = 0
	c.haveSample = false
}

// Clamp restricts v to the closed interval [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
