package motion

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultPeriod is the control period in seconds (50 Hz).
const DefaultPeriod = 0.02

// JointConfig holds the tuning and limits of one joint. It is never mutated
// after construction and may be shared between controllers.
type JointConfig struct {
	P float64 `json:"p"`
	I float64 `json:"i"`
	D float64 `json:"d"`

	MaxVelocity     float64 `json:"max_velocity"`
	MaxAcceleration float64 `json:"max_acceleration"`

	// Min and Max are the closed clamp bounds for targets, in joint units
	// (meters for linear joints, radians for rotational ones).
	Min float64 `json:"min"`
	Max float64 `json:"max"`

	// Zero tolerances mean DefaultPositionTolerance and DefaultVelocityTolerance.
	PositionTolerance float64 `json:"position_tolerance"`
	VelocityTolerance float64 `json:"velocity_tolerance"`

	// IntegratorRange bounds I*integral. Zero means 1.
	IntegratorRange float64 `json:"integrator_range,omitempty"`
	// IntegralZone resets the integral while |error| exceeds it. Zero disables.
	IntegralZone float64 `json:"integral_zone,omitempty"`

	Feedforward Feedforward `json:"-"`

	// Period is the control period in seconds. Zero means DefaultPeriod.
	Period float64 `json:"period,omitempty"`
}

// Constraints returns the profile constraints of the joint.
func (c JointConfig) Constraints() Constraints {
	return Constraints{MaxVelocity: c.MaxVelocity, MaxAcceleration: c.MaxAcceleration}
}

// Clamp restricts a target to the joint's bounds.
func (c JointConfig) Clamp(target float64) float64 {
	return Clamp(target, c.Min, c.Max)
}

func (c JointConfig) period() float64 {
	if c.Period <= 0 {
		return DefaultPeriod
	}
	return c.Period
}

// TickPeriod returns the control period the joint is tuned for.
func (c JointConfig) TickPeriod() time.Duration {
	return time.Duration(math.Round(c.period() * float64(time.Second)))
}

func (c JointConfig) tolerances() (position, velocity float64) {
	position, velocity = c.PositionTolerance, c.VelocityTolerance
	if position == 0 {
		position = DefaultPositionTolerance
	}
	if velocity == 0 {
		velocity = DefaultVelocityTolerance
	}
	return position, velocity
}

// Validate reports configuration mistakes.
func (c JointConfig) Validate() error {
	var errs []error
	if c.MaxVelocity <= 0 {
		errs = append(errs, fmt.Errorf("max velocity %v must be positive", c.MaxVelocity))
	}
	if c.MaxAcceleration <= 0 {
		errs = append(errs, fmt.Errorf("max acceleration %v must be positive", c.MaxAcceleration))
	}
	if c.Min > c.Max {
		errs = append(errs, fmt.Errorf("min %v above max %v", c.Min, c.Max))
	}
	if c.PositionTolerance < 0 || c.VelocityTolerance < 0 {
		errs = append(errs, errors.New("tolerances must not be negative"))
	}
	if c.Period < 0 {
		errs = append(errs, fmt.Errorf("period %v must not be negative", c.Period))
	}
	return errors.Join(errs...)
}

// JointController drives one joint toward a target along a trapezoidal
// profile, correcting tracking error with PID and an optional feedforward.
type JointController struct {
	cfg     JointConfig
	profile TrapezoidProfile
	pid     *PID

	goal     State
	setpoint State
	ticked   bool
}

// NewJointController creates a controller for the given joint configuration.
func NewJointController(cfg JointConfig) *JointController {
	period := cfg.period()
	pid := NewPID(cfg.P, cfg.I, cfg.D, period)
	if cfg.IntegratorRange > 0 {
		pid.SetIntegratorRange(cfg.IntegratorRange)
	}
	pid.SetIntegralZone(cfg.IntegralZone)
	pid.SetTolerance(cfg.tolerances())

	return &JointController{
		cfg:     cfg,
		profile: NewTrapezoidProfile(cfg.Constraints()),
		pid:     pid,
	}
}

// Reset restarts the profile from a measured state and clears error history.
func (j *JointController) Reset(position, velocity float64) {
	j.pid.Reset()
	j.setpoint = State{Position: position, Velocity: velocity}
	j.goal = State{Position: j.cfg.Clamp(position)}
	j.ticked = false
}

// Tick advances the controller by one period and returns the actuation
// command together with the position and velocity error of this tick.
// Targets outside the joint bounds are clamped, never rejected; a NaN target
// keeps the previous goal.
func (j *JointController) Tick(current, target float64) (command, positionError, velocityError float64) {
	if !math.IsNaN(target) {
		j.goal = State{Position: j.cfg.Clamp(target)}
	}
	j.setpoint = j.profile.Calculate(j.cfg.period(), j.setpoint, j.goal)
	j.ticked = true

	command = j.pid.Calculate(current, j.setpoint.Position)
	if j.cfg.Feedforward != nil {
		command += j.cfg.Feedforward.Calculate(j.setpoint.Position, j.setpoint.Velocity)
	}
	return command, j.pid.PositionError(), j.pid.VelocityError()
}

// AtGoal reports whether the profile has reached the goal and both tracking
// errors are inside tolerance.
func (j *JointController) AtGoal() bool {
	return j.ticked && j.setpoint == j.goal && j.pid.AtSetpoint()
}

// Goal returns the clamped goal of the last tick.
func (j *JointController) Goal() State { return j.goal }

// Setpoint returns the current profiled setpoint.
func (j *JointController) Setpoint() State { return j.setpoint }

// PositionError returns the position error of the last tick.
func (j *JointController) PositionError() float64 { return j.pid.PositionError() }

// VelocityError returns the velocity error of the last tick.
func (j *JointController) VelocityError() float64 { return j.pid.VelocityError() }

// Config returns the joint configuration.
func (j *JointController) Config() JointConfig { return j.cfg }
