package pnp

import "math"

// TargetSource supplies the live targets of a run. Each accessor is called
// exactly once per tick, in the order elevator, elbow, wrist, intake.
type TargetSource interface {
	ElevatorTarget() float64 // meters
	ElbowTarget() float64    // radians
	WristTarget() float64    // radians
	IntakeTarget() float64   // effort, volts
}

// Fixed holds constant targets.
type Fixed struct {
	Elevator float64
	Elbow    float64
	Wrist    float64
	Intake   float64
}

func (f Fixed) ElevatorTarget() float64 { return f.Elevator }
func (f Fixed) ElbowTarget() float64    { return f.Elbow }
func (f Fixed) WristTarget() float64    { return f.Wrist }
func (f Fixed) IntakeTarget() float64   { return f.Intake }

// Operator demo constants.
const (
	StartHeight     = 0.5
	HeightPerTick   = 1.0 / 25
	IntakeFullScale = 12.0
)

// OperatorTargets drives the elevator from a joystick axis and holds the
// elbow level and the wrist upright. The elevator target is a pure
// integrator: height += LeftX/25 on every read, never decayed and never
// bounded here. The joint controller clamps it.
type OperatorTargets struct {
	pad    Gamepad
	height float64
}

// NewOperatorTargets starts the elevator integrator at StartHeight.
func NewOperatorTargets(pad Gamepad) *OperatorTargets {
	return &OperatorTargets{pad: pad, height: StartHeight}
}

// ElevatorTarget advances the integrator and returns it.
func (o *OperatorTargets) ElevatorTarget() float64 {
	o.height += o.pad.LeftX() * HeightPerTick
	return o.height
}

func (o *OperatorTargets) ElbowTarget() float64  { return 0 }
func (o *OperatorTargets) WristTarget() float64  { return math.Pi / 2 }
func (o *OperatorTargets) IntakeTarget() float64 { return o.pad.LeftTrigger() * IntakeFullScale }
