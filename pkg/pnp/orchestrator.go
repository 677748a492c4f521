// Package pnp runs the pick-and-place mechanism: it ticks one profiled
// controller per joint, passes the intake effort through, decides when a
// run is finished and publishes diagnostics.
package pnp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gwillem/pickplace/internal/log"
	"github.com/gwillem/pickplace/pkg/motion"
	"github.com/gwillem/pickplace/pkg/robot"
	"github.com/gwillem/pickplace/pkg/telemetry"
)

// Mode selects the termination policy of a run.
type Mode int

const (
	// Continuous never finishes on its own; it must be interrupted.
	Continuous Mode = iota
	// OneShot finishes once all joints are at their goal.
	OneShot
)

func (m Mode) String() string {
	if m == OneShot {
		return "one-shot"
	}
	return "continuous"
}

// TelemetryTable is the table all keys are published under.
const TelemetryTable = "Arm"

// Telemetry keys, published once per tick in this order.
const (
	KeyDesiredElevator = "DesiredElevator"
	KeyDesiredElbow    = "DesiredElbow"
	KeyDesiredWrist    = "DesiredWrist"
	KeyDesiredIntake   = "DesiredIntake"

	KeyElevatorPosError = "ElevatorPidPosError"
	KeyElbowPosError    = "ElbowPidPosError"
	KeyWristPosError    = "WristPidPosError"

	KeyElevatorVelError = "ElevatorPidVelError"
	KeyElbowVelError    = "ElbowPidVelError"
	KeyWristVelError    = "WristPidVelError"

	KeyElevatorVolts = "ElevatorVolts"
	KeyElbowVolts    = "ElbowVolts"
	KeyWristVolts    = "WristVolts"
)

// JointOutput is what one joint controller produced on a tick.
type JointOutput struct {
	Target        float64 // as read from the target source
	Goal          float64 // clamped target
	Setpoint      float64 // profiled setpoint position
	Command       float64
	PositionError float64
	VelocityError float64
	AtGoal        bool
}

// Output is the result of one tick.
type Output struct {
	Tick     uint64
	Elevator JointOutput
	Elbow    JointOutput
	Wrist    JointOutput
	Intake   float64 // pass-through effort
	Finished bool
}

// Joint returns the output of a controlled joint.
func (o Output) Joint(name robot.JointName) JointOutput {
	switch name {
	case robot.Elevator:
		return o.Elevator
	case robot.Elbow:
		return o.Elbow
	case robot.Wrist:
		return o.Wrist
	}
	return JointOutput{}
}

// Config configures an Orchestrator.
type Config struct {
	Name      string // owner name used when acquiring the subsystem
	Subsystem *robot.Subsystem
	Targets   TargetSource
	Telemetry telemetry.Sink
	Mode      Mode
	Constants robot.Constants
}

// Orchestrator ticks the three joint controllers and the intake once per
// control period. It is not safe for concurrent use; a Runner drives it.
type Orchestrator struct {
	name    string
	sub     *robot.Subsystem
	targets TargetSource
	sink    telemetry.Table
	mode    Mode

	elevator *motion.JointController
	elbow    *motion.JointController
	wrist    *motion.JointController

	lease  *robot.Lease
	active bool
	runID  string
	out    Output
	log    *slog.Logger
}

// New creates an idle orchestrator.
func New(cfg Config) *Orchestrator {
	name := cfg.Name
	if name == "" {
		name = "pnp-" + cfg.Mode.String()
	}
	return &Orchestrator{
		name:     name,
		sub:      cfg.Subsystem,
		targets:  cfg.Targets,
		sink:     telemetry.NewTable(cfg.Telemetry, TelemetryTable),
		mode:     cfg.Mode,
		elevator: motion.NewJointController(cfg.Constants.Elevator),
		elbow:    motion.NewJointController(cfg.Constants.Elbow),
		wrist:    motion.NewJointController(cfg.Constants.Wrist),
		log:      log.With("component", "orchestrator", "name", name),
	}
}

// NewOperatorControl builds the continuous operator-driven run: the
// elevator follows the left stick, elbow and wrist hold 0 and pi/2, and the
// left trigger drives the intake.
func NewOperatorControl(sub *robot.Subsystem, pad Gamepad, sink telemetry.Sink, consts robot.Constants) *Orchestrator {
	return New(Config{
		Name:      "operator",
		Subsystem: sub,
		Targets:   NewOperatorTargets(pad),
		Telemetry: sink,
		Mode:      Continuous,
		Constants: consts,
	})
}

// NewGoTo builds a one-shot run to fixed targets.
func NewGoTo(sub *robot.Subsystem, targets Fixed, sink telemetry.Sink, consts robot.Constants) *Orchestrator {
	return New(Config{
		Name:      "goto",
		Subsystem: sub,
		Targets:   targets,
		Telemetry: sink,
		Mode:      OneShot,
		Constants: consts,
	})
}

// Mode returns the termination policy.
func (o *Orchestrator) Mode() Mode { return o.mode }

// RunID returns the ID of the current or last run.
func (o *Orchestrator) RunID() string { return o.runID }

// Active reports whether the orchestrator is running.
func (o *Orchestrator) Active() bool { return o.active }

// Period returns the control period the joint controllers are tuned for.
func (o *Orchestrator) Period() time.Duration {
	return o.elevator.Config().TickPeriod()
}

// Output returns the output of the last tick.
func (o *Orchestrator) Output() Output { return o.out }

// Activate takes exclusive ownership of the actuators and restarts every
// joint controller from its measured position.
func (o *Orchestrator) Activate() error {
	if o.active {
		return fmt.Errorf("%s already active", o.name)
	}
	for _, j := range []*motion.JointController{o.elbow, o.wrist} {
		if p := j.Config().TickPeriod(); p != o.Period() {
			return fmt.Errorf("joint periods differ: %v and %v", o.Period(), p)
		}
	}

	lease, err := o.sub.Acquire(o.name)
	if err != nil {
		return fmt.Errorf("acquire mechanism: %w", err)
	}
	o.lease = lease

	o.elevator.Reset(o.sub.Position(robot.Elevator), 0)
	o.elbow.Reset(o.sub.Position(robot.Elbow), 0)
	o.wrist.Reset(o.sub.Position(robot.Wrist), 0)

	o.runID = uuid.NewString()
	o.sink.SetRun(o.runID)
	o.out = Output{}
	o.active = true

	o.log.Info("run started", "run", o.runID, "mode", o.mode)
	return nil
}

func (o *Orchestrator) tickJoint(name robot.JointName, j *motion.JointController, target float64) JointOutput {
	cmd, posErr, velErr := j.Tick(o.sub.Position(name), target)
	o.lease.SetCommand(name, cmd)
	return JointOutput{
		Target:        target,
		Goal:          j.Goal().Position,
		Setpoint:      j.Setpoint().Position,
		Command:       cmd,
		PositionError: posErr,
		VelocityError: velErr,
		AtGoal:        j.AtGoal(),
	}
}

// Tick runs one control period. Ticking an idle orchestrator returns the
// last output and commands nothing.
func (o *Orchestrator) Tick() Output {
	if !o.active {
		return o.out
	}

	out := Output{Tick: o.out.Tick + 1}
	out.Elevator = o.tickJoint(robot.Elevator, o.elevator, o.targets.ElevatorTarget())
	out.Elbow = o.tickJoint(robot.Elbow, o.elbow, o.targets.ElbowTarget())
	out.Wrist = o.tickJoint(robot.Wrist, o.wrist, o.targets.WristTarget())

	out.Intake = o.targets.IntakeTarget()
	o.lease.SetCommand(robot.Intake, out.Intake)

	out.Finished = o.IsFinished()
	o.out = out
	o.publish(out)
	return out
}

// publish runs after every command of the tick was computed, so all values
// belong to the same tick.
func (o *Orchestrator) publish(out Output) {
	s := o.sink
	s.Publish(KeyDesiredElevator, out.Elevator.Target)
	s.Publish(KeyDesiredElbow, out.Elbow.Target)
	s.Publish(KeyDesiredWrist, out.Wrist.Target)
	s.Publish(KeyDesiredIntake, out.Intake)

	s.Publish(KeyElevatorPosError, out.Elevator.PositionError)
	s.Publish(KeyElbowPosError, out.Elbow.PositionError)
	s.Publish(KeyWristPosError, out.Wrist.PositionError)

	s.Publish(KeyElevatorVelError, out.Elevator.VelocityError)
	s.Publish(KeyElbowVelError, out.Elbow.VelocityError)
	s.Publish(KeyWristVelError, out.Wrist.VelocityError)

	s.Publish(KeyElevatorVolts, out.Elevator.Command)
	s.Publish(KeyElbowVolts, out.Elbow.Command)
	s.Publish(KeyWristVolts, out.Wrist.Command)
}

// IsFinished is false in Continuous mode. In OneShot mode it is true
// exactly when all three joints are at their goal right now.
func (o *Orchestrator) IsFinished() bool {
	if o.mode == Continuous {
		return false
	}
	return o.elevator.AtGoal() && o.elbow.AtGoal() && o.wrist.AtGoal()
}

// Deactivate commands zero effort on every actuator and releases ownership.
// Calling it on an idle orchestrator does nothing.
func (o *Orchestrator) Deactivate(interrupted bool) {
	if !o.active {
		return
	}
	for _, name := range robot.AllJoints() {
		o.lease.SetCommand(name, 0)
	}
	o.lease.Release()
	o.lease = nil
	o.active = false

	o.log.Info("run ended", "run", o.runID, "interrupted", interrupted, "ticks", o.out.Tick)
}
